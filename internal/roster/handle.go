package roster

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/l1jgo/roster/internal/core/disposer"
)

// Handle cancels everything one coordinator call started.
type Handle struct {
	id        string
	kind      string
	root      *disposer.Registry
	cancelled atomic.Bool
}

func newHandle(kind string) *Handle {
	return &Handle{
		id:   uuid.NewString(),
		kind: kind,
		root: disposer.New(),
	}
}

// ID identifies the handle in logs.
func (h *Handle) ID() string { return h.id }

// Kind names the coordinator operation that issued the handle.
func (h *Handle) Kind() string { return h.kind }

// Cancel disconnects the handle's subscriptions and disposes every
// registration it owns. Only the first call does anything; it returns the
// aggregated cleanup failure, if any.
func (h *Handle) Cancel() error {
	if !h.cancelled.CompareAndSwap(false, true) {
		return nil
	}
	return h.root.DisposeAll()
}

func (h *Handle) IsCancelled() bool {
	return h.cancelled.Load()
}
