// Package future is a small settle-once promise used to express bounded waits
// on signals. Callbacks run on the goroutine that settles the future; timers
// hand their settlement to an Executor so that it happens on the owner's loop.
package future

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/l1jgo/roster/internal/core/event"
)

var (
	// ErrTimeout matches every *TimeoutError.
	ErrTimeout = errors.New("timed out")

	// ErrCancelled is the rejection reason of a cancelled future.
	ErrCancelled = errors.New("future cancelled")
)

// TimeoutError is the rejection reason produced by Timeout.
type TimeoutError struct {
	After  time.Duration
	Reason string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Timed out after %s waiting for %s", e.After, e.Reason)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Executor runs posted work on its owner's goroutine.
type Executor interface {
	Post(fn func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(fn func())

func (f ExecutorFunc) Post(fn func()) { f(fn) }

// Inline runs posted work immediately on the posting goroutine.
var Inline Executor = ExecutorFunc(func(fn func()) { fn() })

// Future settles exactly once, with a value or an error.
type Future[T any] struct {
	exec Executor

	mu        sync.Mutex
	settled   bool
	value     T
	err       error
	callbacks []func(T, error)
	done      chan struct{}
}

// New creates a pending future. If executor is non-nil it is called
// synchronously with the resolve and reject functions.
func New[T any](exec Executor, executor func(resolve func(T), reject func(error))) *Future[T] {
	if exec == nil {
		exec = Inline
	}
	f := &Future[T]{exec: exec, done: make(chan struct{})}
	if executor != nil {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					f.Reject(fmt.Errorf("future executor panic: %v", rec))
				}
			}()
			executor(func(v T) { f.Resolve(v) }, func(err error) { f.Reject(err) })
		}()
	}
	return f
}

// Resolved returns a future already settled with v.
func Resolved[T any](exec Executor, v T) *Future[T] {
	f := New[T](exec, nil)
	f.Resolve(v)
	return f
}

// Resolve settles the future with v. It reports whether this call settled it.
func (f *Future[T]) Resolve(v T) bool {
	return f.settle(v, nil)
}

// Reject settles the future with err. It reports whether this call settled it.
func (f *Future[T]) Reject(err error) bool {
	if err == nil {
		err = errors.New("future rejected with nil error")
	}
	var zero T
	return f.settle(zero, err)
}

// Cancel rejects the future with ErrCancelled.
func (f *Future[T]) Cancel() bool {
	return f.Reject(ErrCancelled)
}

func (f *Future[T]) settle(v T, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.value, f.err = v, err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(v, err)
	}
	return true
}

// OnSettle registers fn to run once the future settles. If it already has,
// fn runs immediately.
func (f *Future[T]) OnSettle(fn func(T, error)) {
	f.mu.Lock()
	if !f.settled {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	v, err := f.value, f.err
	f.mu.Unlock()
	fn(v, err)
}

// Finally registers fn to run once the future settles, whatever the outcome.
// Used to release subscriptions and timers.
func (f *Future[T]) Finally(fn func()) {
	f.OnSettle(func(T, error) { fn() })
}

// Done is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Settled reports whether the future has settled.
func (f *Future[T]) Settled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settled
}

// Await blocks until the future settles or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Timeout returns a future that follows f but is rejected with a
// *TimeoutError if f has not settled within d. When the timeout wins, f is
// cancelled so that whatever it was waiting on is released; when f wins, the
// timer is stopped. Cancelling the returned future cancels f.
func (f *Future[T]) Timeout(d time.Duration, reason string) *Future[T] {
	out := New[T](f.exec, nil)
	timer := time.AfterFunc(d, func() {
		f.exec.Post(func() {
			out.Reject(&TimeoutError{After: d, Reason: reason})
		})
	})
	out.Finally(func() {
		timer.Stop()
		f.Cancel()
	})
	f.OnSettle(func(v T, err error) {
		if err != nil {
			out.Reject(err)
			return
		}
		out.Resolve(v)
	})
	return out
}

// FromSignal resolves with the next value fired on sig that satisfies pred
// (nil pred accepts everything). The subscription is released as soon as the
// future settles, on any path.
func FromSignal[T any](exec Executor, sig *event.Signal[T], pred func(T) bool) *Future[T] {
	f := New[T](exec, nil)
	conn := sig.Connect(func(v T) {
		if pred == nil || pred(v) {
			f.Resolve(v)
		}
	})
	f.Finally(conn.Disconnect)
	return f
}

// Race settles with the first of futs to settle and cancels the rest.
func Race[T any](exec Executor, futs ...*Future[T]) *Future[T] {
	out := New[T](exec, nil)
	if len(futs) == 0 {
		out.Reject(errors.New("race of no futures"))
		return out
	}
	for _, f := range futs {
		f := f
		f.OnSettle(func(v T, err error) {
			if err != nil {
				out.Reject(err)
				return
			}
			out.Resolve(v)
		})
	}
	out.Finally(func() {
		for _, f := range futs {
			f.Cancel()
		}
	})
	return out
}
