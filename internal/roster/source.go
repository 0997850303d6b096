// Package roster tracks a changing set of primary entities (logged-in
// clients) and, for each, the subordinate entity (character) that comes and
// goes within the primary's lifetime.
//
// Every subscription, session and user cleanup is owned by a
// disposer.Registry, so cancelling one Handle tears down everything it
// started. All methods, callbacks and signal handlers run on a single
// goroutine (the game loop); work from timers is handed back to it through
// the configured Executor.
package roster

import (
	"errors"

	"github.com/l1jgo/roster/internal/core/disposer"
	"github.com/l1jgo/roster/internal/core/event"
	"github.com/l1jgo/roster/internal/core/future"
)

// Source is the host's view of primaries and their subordinates.
type Source[P comparable, S comparable] interface {
	// Primaries returns every primary currently present.
	Primaries() []P
	PrimaryAdded() *event.Signal[P]
	// PrimaryRemoving fires while the primary is still present.
	PrimaryRemoving() *event.Signal[P]

	// Subordinate returns the primary's current subordinate, if any.
	Subordinate(p P) (S, bool)
	SubordinateAdded(p P) *event.Signal[S]
	SubordinateRemoving(p P) *event.Signal[S]
}

// SetupFunc runs once per subordinate appearance. Cleanups added to scope run
// when the subordinate goes away or the watch is cancelled.
type SetupFunc[S any] func(sub S, scope *disposer.Registry)

var (
	ErrInvalidArgument = disposer.ErrInvalidArgument

	// ErrDuplicateSetup is logged when a subordinate appears while another
	// is still active for the same primary. The old one is torn down first.
	ErrDuplicateSetup = errors.New("duplicate setup")

	// ErrWaitTimeout matches a bounded wait that expired.
	ErrWaitTimeout = future.ErrTimeout

	// ErrClosed is returned by a coordinator after Close.
	ErrClosed = errors.New("coordinator closed")
)
