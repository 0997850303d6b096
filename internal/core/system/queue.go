package system

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Queue carries work from timers and network goroutines onto the game loop.
// Post is safe from any goroutine; Drain and Run must only be called by the
// loop that owns the state the posted work touches.
type Queue struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	log     *zap.Logger
}

func NewQueue(log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		pending: make([]func(), 0, 16),
		wake:    make(chan struct{}, 1),
		log:     log,
	}
}

// Post schedules fn to run on the next Drain.
func (q *Queue) Post(fn func()) {
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Wake is signalled whenever work is posted.
func (q *Queue) Wake() <-chan struct{} { return q.wake }

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain runs queued work until the queue is empty, including work posted by
// the jobs themselves. It returns the number of jobs run.
func (q *Queue) Drain() int {
	n := 0
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = make([]func(), 0, 16)
		q.mu.Unlock()

		if len(batch) == 0 {
			return n
		}
		for _, fn := range batch {
			q.safeRun(fn)
			n++
		}
	}
}

// Run drains the queue each time work is posted until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-q.wake:
			q.Drain()
		case <-ctx.Done():
			q.Drain()
			return ctx.Err()
		}
	}
}

// DrainFor keeps draining until d has elapsed. Intended for tools and tests
// that need timer-driven work to land without a full game loop.
func (q *Queue) DrainFor(d time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	n := 0
	for {
		select {
		case <-q.wake:
			n += q.Drain()
		case <-ctx.Done():
			return n + q.Drain()
		}
	}
}

// safeRun keeps one bad job from taking down the loop.
func (q *Queue) safeRun(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			q.log.Error("posted job panic recovered", zap.Any("panic", rec))
		}
	}()
	fn()
}

// QueueSystem drains a Queue once per tick. Phase 1 (PreUpdate).
type QueueSystem struct {
	queue *Queue
}

func NewQueueSystem(q *Queue) *QueueSystem {
	return &QueueSystem{queue: q}
}

func (s *QueueSystem) Phase() Phase { return PhasePreUpdate }

func (s *QueueSystem) Update(_ time.Duration) {
	s.queue.Drain()
}
