// Package task keeps cleanup tasks in a plain ordered slice, for owners that
// want "set task for id" semantics without a full registry object.
package task

import (
	"github.com/l1jgo/roster/internal/core/disposer"
	"go.uber.org/multierr"
)

// Task is one entry of a List. An empty ID means the task is unkeyed.
type Task struct {
	ID    string
	Value any
	Mode  disposer.Mode
}

// List is an ordered sequence of tasks. The zero value is ready to use.
// Not safe for concurrent use; owners mutate it from the game loop.
type List struct {
	tasks []Task
}

// AddTask appends value and returns it. A task already registered under the
// same non-empty id is removed and disposed first, unless it is the very same
// value, which keeps recomputed owners from stacking duplicate timers.
func (l *List) AddTask(value any, mode disposer.Mode, id string) (any, error) {
	var err error
	if id != "" {
		if i := l.index(id); i >= 0 {
			old := l.tasks[i]
			if identical(old.Value, value) {
				l.tasks[i].Mode = mode
				return value, nil
			}
			l.tasks = append(l.tasks[:i], l.tasks[i+1:]...)
			err = disposer.Dispose(old.Value, old.Mode)
		}
	}
	l.tasks = append(l.tasks, Task{ID: id, Value: value, Mode: mode})
	return value, err
}

// RemoveTask detaches the task registered under id and, unless skipCleanup is
// set, disposes it. It returns the removed value or nil.
func (l *List) RemoveTask(id string, skipCleanup bool) (any, error) {
	i := l.index(id)
	if i < 0 {
		return nil, nil
	}
	t := l.tasks[i]
	l.tasks = append(l.tasks[:i], l.tasks[i+1:]...)
	if skipCleanup {
		return t.Value, nil
	}
	return t.Value, disposer.Dispose(t.Value, t.Mode)
}

// GetTask returns the value registered under id.
func (l *List) GetTask(id string) (any, bool) {
	if i := l.index(id); i >= 0 {
		return l.tasks[i].Value, true
	}
	return nil, false
}

// IDs returns the ids of keyed tasks in insertion order.
func (l *List) IDs() []string {
	ids := make([]string, 0, len(l.tasks))
	for _, t := range l.tasks {
		if t.ID != "" {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

func (l *List) Len() int { return len(l.tasks) }

// Cleanup disposes every task newest first and empties the list. The list
// stays usable afterwards.
func (l *List) Cleanup() error {
	tasks := l.tasks
	l.tasks = nil
	var errs error
	for i := len(tasks) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, disposer.Dispose(tasks[i].Value, tasks[i].Mode))
	}
	return errs
}

func (l *List) index(id string) int {
	if id == "" {
		return -1
	}
	for i := range l.tasks {
		if l.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func identical(a, b any) bool {
	defer func() { _ = recover() }()
	return a == b
}
