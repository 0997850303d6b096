package roster

import (
	"errors"
	"fmt"

	"github.com/l1jgo/roster/internal/core/disposer"
	"github.com/l1jgo/roster/internal/core/future"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// State is a watch session's lifecycle phase.
type State int

const (
	StateIdle      State = iota // no subordinate
	StateWaiting                // bounded wait in flight
	StateActive                 // subordinate present, setup has run
	StateCancelled              // terminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateWaiting:
		return "Waiting"
	case StateActive:
		return "Active"
	case StateCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// watchSession coordinates subordinate setup and teardown for one primary.
type watchSession[P comparable, S comparable] struct {
	c       *Coordinator[P, S]
	primary P
	setup   SetupFunc[S]

	state       State
	subordinate S
	nested      *disposer.Registry // non-nil only while Active
	generation  uint64
	wait        *future.Future[S]

	subs *disposer.Registry // the session's own signal connections
	log  *zap.Logger
}

func newWatchSession[P comparable, S comparable](c *Coordinator[P, S], p P, setup SetupFunc[S]) *watchSession[P, S] {
	return &watchSession[P, S]{
		c:       c,
		primary: p,
		setup:   setup,
		subs:    disposer.New(),
		log:     c.log.With(zap.String("primary", fmt.Sprint(p))),
	}
}

// start subscribes first and checks presence second, in one synchronous
// step, so an appearance can be neither missed nor seen twice.
func (s *watchSession[P, S]) start() {
	src := s.c.src
	disposer.Give(s.subs, src.SubordinateAdded(s.primary).Connect(s.onAdded), disposer.Default)
	disposer.Give(s.subs, src.SubordinateRemoving(s.primary).Connect(s.onRemoving), disposer.Default)

	if sub, ok := src.Subordinate(s.primary); ok {
		s.activate(sub)
		return
	}
	s.beginWait()
}

func (s *watchSession[P, S]) beginWait() {
	s.state = StateWaiting
	gen := s.generation
	reason := fmt.Sprintf("subordinate of %v", s.primary)
	w := future.FromSignal(s.c.exec, s.c.src.SubordinateAdded(s.primary), nil).Timeout(s.c.waitTimeout, reason)
	s.wait = w
	w.OnSettle(func(sub S, err error) {
		s.onWaitSettled(gen, w, sub, err)
	})
}

func (s *watchSession[P, S]) onWaitSettled(gen uint64, w *future.Future[S], sub S, err error) {
	if s.wait == w {
		s.wait = nil
	}
	if s.state != StateWaiting || gen != s.generation {
		return // stale continuation
	}
	if err != nil {
		if !errors.Is(err, future.ErrCancelled) {
			s.log.Warn("subordinate wait failed", zap.Error(err))
		}
		s.state = StateIdle
		return
	}
	s.activate(sub)
}

func (s *watchSession[P, S]) onAdded(sub S) {
	switch s.state {
	case StateWaiting:
		// The in-flight wait resolves with this same event.
		return
	case StateActive:
		if sub == s.subordinate {
			return
		}
		s.log.Warn("subordinate appeared while another is active",
			zap.Error(ErrDuplicateSetup),
			zap.String("previous", fmt.Sprint(s.subordinate)),
			zap.String("next", fmt.Sprint(sub)),
		)
		s.deactivate()
		if s.state != StateIdle {
			return // cancelled by a cleanup
		}
		s.activate(sub)
	case StateIdle:
		s.activate(sub)
	}
}

func (s *watchSession[P, S]) onRemoving(sub S) {
	if s.state != StateActive || sub != s.subordinate {
		return
	}
	s.deactivate()
}

func (s *watchSession[P, S]) activate(sub S) {
	s.state = StateActive
	s.subordinate = sub
	nested := disposer.New()
	s.nested = nested

	// If setup tears the session down, nested is already disposed and
	// rejects whatever setup adds afterwards.
	if err := s.c.safeCall(func() { s.setup(sub, nested) }); err != nil {
		s.log.Error("subordinate setup failed", zap.Error(err))
	}
}

// deactivate disposes the nested registry and invalidates continuations of
// the setup that created it.
func (s *watchSession[P, S]) deactivate() {
	nested := s.nested
	s.nested = nil
	var zero S
	s.subordinate = zero
	s.state = StateIdle
	s.generation++
	s.disposeNested(nested)
}

func (s *watchSession[P, S]) disposeNested(nested *disposer.Registry) {
	if nested == nil {
		return
	}
	if err := nested.DisposeAll(); err != nil {
		s.log.Warn("subordinate cleanup failed", zap.Error(err))
	}
}

// Dispose cancels the session: nested registry first, then the in-flight
// wait, then the session's own subscriptions.
func (s *watchSession[P, S]) Dispose() error {
	if s.state == StateCancelled {
		return nil
	}
	s.state = StateCancelled
	s.generation++

	var errs error
	if nested := s.nested; nested != nil {
		s.nested = nil
		errs = multierr.Append(errs, nested.DisposeAll())
	}
	var zero S
	s.subordinate = zero
	if w := s.wait; w != nil {
		s.wait = nil
		w.Cancel()
	}
	return multierr.Append(errs, s.subs.DisposeAll())
}
