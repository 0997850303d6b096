package roster

import (
	"fmt"
	"time"

	"github.com/l1jgo/roster/internal/core/disposer"
	"github.com/l1jgo/roster/internal/core/future"
	"go.uber.org/zap"
)

// DefaultWaitTimeout bounds the wait for a subordinate after a primary joins.
const DefaultWaitTimeout = 5 * time.Second

// Coordinator issues roster watches over one Source.
type Coordinator[P comparable, S comparable] struct {
	src         Source[P, S]
	exec        future.Executor
	waitTimeout time.Duration
	log         *zap.Logger

	handles *disposer.Registry
}

// Option configures a Coordinator.
type Option func(*options)

type options struct {
	exec        future.Executor
	waitTimeout time.Duration
	log         *zap.Logger
}

// WithExecutor sets where timer-driven work runs. It is required: wait
// timeouts fire on timer goroutines and must be handed back to the goroutine
// that drives the Source, normally the game loop's queue.
func WithExecutor(exec future.Executor) Option {
	return func(o *options) { o.exec = exec }
}

func WithWaitTimeout(d time.Duration) Option {
	return func(o *options) { o.waitTimeout = d }
}

func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

func New[P comparable, S comparable](src Source[P, S], opts ...Option) (*Coordinator[P, S], error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", ErrInvalidArgument)
	}
	o := options{
		waitTimeout: DefaultWaitTimeout,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.exec == nil {
		return nil, fmt.Errorf("%w: no executor", ErrInvalidArgument)
	}
	if o.waitTimeout <= 0 {
		return nil, fmt.Errorf("%w: wait timeout must be positive, got %s", ErrInvalidArgument, o.waitTimeout)
	}
	return &Coordinator[P, S]{
		src:         src,
		exec:        o.exec,
		waitTimeout: o.waitTimeout,
		log:         o.log,
		handles:     disposer.New(),
	}, nil
}

// ForEachPrimary calls fn for every present primary and for every primary
// that joins later. Each call gets its own registry, disposed when that
// primary is removed or the handle is cancelled.
func (c *Coordinator[P, S]) ForEachPrimary(fn func(p P, scope *disposer.Registry)) (*Handle, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil primary callback", ErrInvalidArgument)
	}
	h, err := c.issue("primaries")
	if err != nil {
		return nil, err
	}

	track := func(p P) {
		if _, ok := h.root.Get(p); ok {
			return
		}
		scope := disposer.New()
		if err := h.root.Put(p, scope, disposer.Default); err != nil {
			return
		}
		if err := c.safeCall(func() { fn(p, scope) }); err != nil {
			c.log.Error("primary callback failed", zap.String("primary", fmt.Sprint(p)), zap.Error(err))
		}
	}
	c.watchRoster(h, track)
	return h, nil
}

// ForEachSubordinate runs a watch session for every present and future
// primary, calling fn once per subordinate appearance.
func (c *Coordinator[P, S]) ForEachSubordinate(fn SetupFunc[S]) (*Handle, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil setup callback", ErrInvalidArgument)
	}
	h, err := c.issue("subordinates")
	if err != nil {
		return nil, err
	}
	c.watchRoster(h, func(p P) { c.startSession(h, p, fn) })
	return h, nil
}

// WatchSubordinate is ForEachSubordinate for a single primary. The handle is
// cancelled automatically when p is removed.
func (c *Coordinator[P, S]) WatchSubordinate(p P, fn SetupFunc[S]) (*Handle, error) {
	var zero P
	if p == zero {
		return nil, fmt.Errorf("%w: zero primary", ErrInvalidArgument)
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: nil setup callback", ErrInvalidArgument)
	}
	if !c.present(p) {
		return nil, fmt.Errorf("%w: primary %v is not present", ErrInvalidArgument, p)
	}
	h, err := c.issue("subordinate")
	if err != nil {
		return nil, err
	}

	disposer.Give(h.root, c.src.PrimaryRemoving().Connect(func(removed P) {
		if removed == p {
			c.cancelHandle(h)
		}
	}), disposer.Default)
	c.startSession(h, p, fn)
	return h, nil
}

// OnPrimaryRemoved calls fn once, the first time p is removed. The handle
// is cancelled before fn runs; cancelling it earlier means fn never runs.
func (c *Coordinator[P, S]) OnPrimaryRemoved(p P, fn func()) (*Handle, error) {
	var zero P
	if p == zero {
		return nil, fmt.Errorf("%w: zero primary", ErrInvalidArgument)
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: nil removal callback", ErrInvalidArgument)
	}
	h, err := c.issue("removal")
	if err != nil {
		return nil, err
	}

	disposer.Give(h.root, c.src.PrimaryRemoving().Connect(func(removed P) {
		if removed != p || h.IsCancelled() {
			return
		}
		c.cancelHandle(h)
		if err := c.safeCall(fn); err != nil {
			c.log.Error("removal callback failed", zap.String("primary", fmt.Sprint(p)), zap.Error(err))
		}
	}), disposer.Default)
	return h, nil
}

// Close cancels every handle the coordinator has issued. Later calls return
// ErrClosed.
func (c *Coordinator[P, S]) Close() error {
	return c.handles.DisposeAll()
}

func (c *Coordinator[P, S]) issue(kind string) (*Handle, error) {
	h := newHandle(kind)
	if err := c.handles.Put(h.id, h, disposer.Default); err != nil {
		return nil, ErrClosed
	}
	// A cancelled handle drops out of the coordinator's books.
	_ = h.root.Add(func() { c.handles.Detach(h.id) }, disposer.Call)
	c.log.Debug("roster handle issued", zap.String("handle", h.id), zap.String("kind", kind))
	return h, nil
}

// watchRoster subscribes to joins and removals and then replays the current
// primaries, all in one synchronous step. track must skip primaries it
// already holds.
func (c *Coordinator[P, S]) watchRoster(h *Handle, track func(P)) {
	disposer.Give(h.root, c.src.PrimaryAdded().Connect(track), disposer.Default)
	disposer.Give(h.root, c.src.PrimaryRemoving().Connect(func(p P) {
		if _, err := h.root.Remove(p); err != nil {
			c.log.Warn("primary cleanup failed", zap.String("primary", fmt.Sprint(p)), zap.Error(err))
		}
	}), disposer.Default)

	for _, p := range c.src.Primaries() {
		track(p)
	}
}

func (c *Coordinator[P, S]) startSession(h *Handle, p P, fn SetupFunc[S]) {
	if _, ok := h.root.Get(p); ok {
		return
	}
	s := newWatchSession(c, p, fn)
	if err := h.root.Put(p, s, disposer.Default); err != nil {
		return
	}
	s.start()
}

func (c *Coordinator[P, S]) present(p P) bool {
	for _, q := range c.src.Primaries() {
		if q == p {
			return true
		}
	}
	return false
}

func (c *Coordinator[P, S]) cancelHandle(h *Handle) {
	if err := h.Cancel(); err != nil {
		c.log.Warn("roster handle cleanup failed", zap.String("handle", h.id), zap.Error(err))
	}
}

// safeCall isolates one entity's callback from its siblings.
func (c *Coordinator[P, S]) safeCall(fn func()) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("callback panic: %v", rec)
		}
	}()
	fn()
	return nil
}
