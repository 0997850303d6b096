package system

import (
	"context"
	"time"

	"github.com/l1jgo/roster/internal/core/disposer"
	"github.com/l1jgo/roster/internal/core/future"
	"github.com/l1jgo/roster/internal/core/task"
	"github.com/l1jgo/roster/internal/data"
	"github.com/l1jgo/roster/internal/handler"
	"github.com/l1jgo/roster/internal/world"
	"go.uber.org/zap"
)

// Announcer broadcasts periodic server messages to characters in world.
// Each announcement runs its own ticker, kept as a task under the entry's ID
// so that reloading an entry replaces its ticker.
type Announcer struct {
	roster *world.Roster
	exec   future.Executor
	tasks  task.List
	log    *zap.Logger
}

func NewAnnouncer(ros *world.Roster, exec future.Executor, log *zap.Logger) *Announcer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Announcer{roster: ros, exec: exec, log: log}
}

// Reload starts a ticker per entry and stops tickers of entries no longer
// listed. Game loop only.
func (a *Announcer) Reload(entries []*data.AnnounceEntry) {
	keep := make(map[string]bool, len(entries))
	for _, e := range entries {
		keep[e.ID] = true
		if _, err := a.tasks.AddTask(a.startTicker(e), disposer.Default, e.ID); err != nil {
			a.log.Warn("replace announcement failed", zap.String("id", e.ID), zap.Error(err))
		}
	}
	for _, id := range a.tasks.IDs() {
		if keep[id] {
			continue
		}
		if _, err := a.tasks.RemoveTask(id, false); err != nil {
			a.log.Warn("stop announcement failed", zap.String("id", id), zap.Error(err))
		}
	}
	a.log.Info("announcements loaded", zap.Int("count", a.tasks.Len()))
}

// Running returns the IDs of active announcements.
func (a *Announcer) Running() []string {
	return a.tasks.IDs()
}

// Stop stops every ticker.
func (a *Announcer) Stop() error {
	return a.tasks.Cleanup()
}

// Announce sends e's message to every character in world at or above its
// minimum level and returns how many received it. Game loop only.
func (a *Announcer) Announce(e *data.AnnounceEntry) int {
	msg := handler.BuildMessage(e.Message)
	n := 0
	a.roster.AllCharacters(func(ch *world.Character) {
		if ch.Level < e.MinLevel || ch.Owner == nil {
			return
		}
		ch.Owner.Send(msg)
		n++
	})
	return n
}

// startTicker posts e onto the game loop every interval until the returned
// cancel func runs.
func (a *Announcer) startTicker(e *data.AnnounceEntry) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	entry := *e
	go func() {
		ticker := time.NewTicker(entry.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.exec.Post(func() {
					if ctx.Err() != nil {
						return
					}
					n := a.Announce(&entry)
					a.log.Debug("announcement sent", zap.String("id", entry.ID), zap.Int("recipients", n))
				})
			case <-ctx.Done():
				return
			}
		}
	}()
	return cancel
}
