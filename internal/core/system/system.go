package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: accept sessions, drain packet queues
	PhasePreUpdate               // 1: run work posted by timers and helper goroutines
	PhaseUpdate                  // 2: lifecycle logic
	PhasePostUpdate              // 3: periodic per-character tasks
	PhaseOutput                  // 4: flush packets
	PhasePersist                 // 5: audit flush
	PhaseCleanup                 // 6: end-of-tick teardown
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre-update"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post-update"
	case PhaseOutput:
		return "output"
	case PhasePersist:
		return "persist"
	case PhaseCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// System is the interface every game-loop system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
