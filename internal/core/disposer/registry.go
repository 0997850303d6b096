// Package disposer collects cleanup actions and runs each of them exactly
// once, newest first, when the owning scope is torn down.
package disposer

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/multierr"
)

type entry struct {
	key   any // nil = unkeyed
	value any
	mode  Mode
}

// Registry is an ordered set of cleanup entries. A Registry is owned by
// whoever created it until it is nested into another registry or detached
// from one.
type Registry struct {
	mu       sync.Mutex
	entries  []entry
	disposed bool
}

func New() *Registry {
	return &Registry{entries: make([]entry, 0, 4)}
}

// Active reports whether DisposeAll has not yet been called.
func (r *Registry) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.disposed
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Add registers an unkeyed cleanup.
func (r *Registry) Add(value any, mode Mode) error {
	return r.insert(nil, value, mode)
}

// Put registers a cleanup under key. An existing entry for the same key is
// disposed and removed first, even when it holds the same value.
func (r *Registry) Put(key, value any, mode Mode) error {
	if key == nil || !reflect.TypeOf(key).Comparable() {
		return fmt.Errorf("%w: key %T is not comparable", ErrInvalidArgument, key)
	}
	return r.insert(key, value, mode)
}

// Give adds value with mode and returns it unchanged, so construction
// expressions can be wrapped in place. On a disposed registry the value is
// torn down immediately. Give panics if mode cannot dispose value, in the
// manner of regexp.MustCompile: the pairing is fixed at the call site.
func Give[T any](r *Registry, value T, mode Mode) T {
	if err := r.Add(value, mode); errors.Is(err, ErrInvalidArgument) {
		panic(err)
	}
	return value
}

func (r *Registry) insert(key, value any, mode Mode) error {
	if err := mode.validate(value); err != nil {
		return err
	}

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		if err := Dispose(value, mode); err != nil {
			return fmt.Errorf("%w (rejected value cleanup: %v)", ErrDisposed, err)
		}
		return ErrDisposed
	}

	var replaced *entry
	if key != nil {
		if i := r.indexOf(key); i >= 0 {
			old := r.entries[i]
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			replaced = &old
		}
	}
	r.mu.Unlock()

	// The previous holder of the key is torn down before its successor goes in.
	var cleanupErr error
	if replaced != nil {
		cleanupErr = Dispose(replaced.value, replaced.mode)
	}

	r.mu.Lock()
	if r.disposed {
		// Disposed by the replaced entry's cleanup.
		r.mu.Unlock()
		return multierr.Append(cleanupErr, r.rejectLate(value, mode))
	}
	if key != nil {
		// A reentrant Put for the same key during the replacement wins.
		if i := r.indexOf(key); i >= 0 {
			r.mu.Unlock()
			return multierr.Append(cleanupErr, Dispose(value, mode))
		}
	}
	r.entries = append(r.entries, entry{key: key, value: value, mode: mode})
	r.mu.Unlock()

	if cleanupErr != nil {
		return newCleanupError(cleanupErr)
	}
	return nil
}

func (r *Registry) rejectLate(value any, mode Mode) error {
	if err := Dispose(value, mode); err != nil {
		return fmt.Errorf("%w (rejected value cleanup: %v)", ErrDisposed, err)
	}
	return ErrDisposed
}

// Get returns the value registered under key.
func (r *Registry) Get(key any) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexOf(key); i >= 0 {
		return r.entries[i].value, true
	}
	return nil, false
}

// Remove removes and disposes the entry under key. It returns the removed
// value, or nil when no entry exists.
func (r *Registry) Remove(key any) (any, error) {
	r.mu.Lock()
	i := r.indexOf(key)
	if i < 0 {
		r.mu.Unlock()
		return nil, nil
	}
	e := r.entries[i]
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	r.mu.Unlock()

	if err := Dispose(e.value, e.mode); err != nil {
		return e.value, newCleanupError(err)
	}
	return e.value, nil
}

// Detach removes the entry under key without disposing it. The caller takes
// over ownership of the returned value.
func (r *Registry) Detach(key any) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(key)
	if i < 0 {
		return nil, false
	}
	v := r.entries[i].value
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	return v, true
}

// DisposeAll runs every remaining cleanup exactly once, newest first, and
// marks the registry inactive. Failing cleanups do not stop the others; their
// errors are returned together as a *CleanupError. Calling DisposeAll again,
// including from inside one of the cleanups, is a no-op.
func (r *Registry) DisposeAll() error {
	r.mu.Lock()
	r.disposed = true
	entries := r.entries
	r.entries = nil
	r.mu.Unlock()

	var errs error
	for i := len(entries) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, Dispose(entries[i].value, entries[i].mode))
	}
	return newCleanupError(errs)
}

// indexOf must be called with mu held.
func (r *Registry) indexOf(key any) int {
	if key == nil || !reflect.TypeOf(key).Comparable() {
		return -1
	}
	for i := range r.entries {
		if k := r.entries[i].key; k != nil && reflect.TypeOf(k) == reflect.TypeOf(key) && k == key {
			return i
		}
	}
	return -1
}
