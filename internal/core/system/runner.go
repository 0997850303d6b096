package system

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Runner executes systems in phase order each tick. Systems sharing a phase
// keep their registration order. A panicking system is logged and skipped for
// that tick only; the rest of the tick still runs.
type Runner struct {
	systems []System
	sorted  bool
	log     *zap.Logger
}

func NewRunner(log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		systems: make([]System, 0, 8),
		log:     log,
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

func (r *Runner) Len() int { return len(r.systems) }

// Tick runs every system once. A single system taking longer than the whole
// tick budget dt is reported, since it delays queued timeouts and packet
// flushes for every player.
func (r *Runner) Tick(dt time.Duration) {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
	for _, s := range r.systems {
		start := time.Now()
		r.update(s, dt)
		if took := time.Since(start); dt > 0 && took > dt {
			r.log.Warn("slow system",
				zap.String("system", fmt.Sprintf("%T", s)),
				zap.Stringer("phase", s.Phase()),
				zap.Duration("took", took),
				zap.Duration("budget", dt),
			)
		}
	}
}

func (r *Runner) update(s System, dt time.Duration) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("system panic recovered",
				zap.String("system", fmt.Sprintf("%T", s)),
				zap.Any("panic", rec),
			)
		}
	}()
	s.Update(dt)
}
