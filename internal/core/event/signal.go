package event

import (
	"context"
	"sync"
	"sync/atomic"
)

// Signal is a typed publish/subscribe point. Handlers run synchronously on
// the goroutine that calls Fire, in connection order.
type Signal[T any] struct {
	mu       sync.Mutex // only protects handler registration
	nextID   uint64
	handlers []*handler[T]
}

type handler[T any] struct {
	id   uint64
	fn   func(T)
	conn *Connection
}

// Connection is the subscription returned by Connect.
type Connection struct {
	connected  atomic.Bool
	disconnect func()
}

// Disconnect removes the handler. Safe to call more than once and from
// inside the handler itself.
func (c *Connection) Disconnect() {
	if c.connected.CompareAndSwap(true, false) {
		c.disconnect()
	}
}

// Connected reports whether the handler is still subscribed.
func (c *Connection) Connected() bool {
	return c.connected.Load()
}

// Connect subscribes fn to the signal.
func (s *Signal[T]) Connect(fn func(T)) *Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	conn := &Connection{}
	conn.disconnect = func() { s.remove(id) }
	conn.connected.Store(true)
	s.handlers = append(s.handlers, &handler[T]{id: id, fn: fn, conn: conn})
	return conn
}

func (s *Signal[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, h := range s.handlers {
		if h.id == id {
			s.handlers = append(s.handlers[:i:i], s.handlers[i+1:]...)
			return
		}
	}
}

// Fire delivers v to every handler connected at the time of the call.
// A handler disconnected by an earlier handler in the same Fire is skipped.
func (s *Signal[T]) Fire(v T) {
	s.mu.Lock()
	snapshot := s.handlers
	s.mu.Unlock()

	for _, h := range snapshot {
		if !h.conn.Connected() {
			continue
		}
		h.fn(v)
	}
}

// Len returns the number of connected handlers.
func (s *Signal[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// Wait blocks until the next Fire or until ctx is done.
func (s *Signal[T]) Wait(ctx context.Context) (T, error) {
	ch := make(chan T, 1)
	conn := s.Connect(func(v T) {
		select {
		case ch <- v:
		default:
		}
	})
	defer conn.Disconnect()

	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
