package queue

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrh3k5/walletops/internal/metrics"
	"golang.org/x/time/rate"
)

const completionPollInterval = 10 * time.Millisecond

var (
	// ErrQueueCleared is returned to callers whose operation was still waiting
	// for dispatch when the queue was cleared. The operation never ran.
	ErrQueueCleared = errors.New("operation removed from queue before it was dispatched")

	// ErrSchedulerDestroyed is returned when work is submitted to a destroyed Scheduler.
	ErrSchedulerDestroyed = errors.New("scheduler has been destroyed")
)

// Status is a point-in-time snapshot of a Scheduler.
type Status struct {
	QueueLength    int
	ActiveRequests int
	MaxConcurrent  int
	RatePerSecond  float64
}

type outcome struct {
	value any
	err   error
}

type operation struct {
	id          string
	label       string
	submittedAt time.Time
	ctx         context.Context //nolint:containedctx
	run         func(ctx context.Context) (any, error)
	done        chan outcome
	element     *list.Element // nil once the operation has left the queue
}

// Scheduler dispatches submitted operations in submission order while
// keeping at most Policy.MaxConcurrent of them executing and starting no more
// than Policy.RatePerSecond of them per second.
type Scheduler struct {
	policy  Policy
	limiter *rate.Limiter

	mu        sync.Mutex
	pending   *list.List
	active    int
	destroyed bool

	wake        chan struct{}
	stop        context.CancelFunc
	stopped     chan struct{}
	destroyOnce sync.Once
}

// NewScheduler builds a Scheduler and starts its dispatcher. Call Destroy to
// release it.
func NewScheduler(policy Policy) (*Scheduler, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduler policy: %w", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	s := &Scheduler{
		policy:  policy,
		limiter: rate.NewLimiter(rate.Limit(policy.RatePerSecond), 1),
		pending: list.New(),
		wake:    make(chan struct{}, 1),
		stop:    stop,
		stopped: make(chan struct{}),
	}

	go s.dispatch(runCtx)

	return s, nil
}

// Enqueue submits op to the scheduler and blocks until it has been executed,
// removed from the queue, or ctx ends.
//
// If ctx ends while op is still queued, op is removed and never runs. If ctx
// ends after op was dispatched, op keeps running and its result is discarded.
func Enqueue[T any](
	ctx context.Context,
	s *Scheduler,
	label string,
	op func(ctx context.Context) (T, error),
) (T, error) {
	var zero T

	value, err := s.submit(ctx, label, func(ctx context.Context) (any, error) {
		return op(ctx)
	})
	if err != nil {
		return zero, err
	}

	typed, _ := value.(T)

	return typed, nil
}

// Submit is Enqueue for operations that produce no value.
func (s *Scheduler) Submit(ctx context.Context, label string, op func(ctx context.Context) error) error {
	_, err := s.submit(ctx, label, func(ctx context.Context) (any, error) {
		return nil, op(ctx)
	})

	return err
}

func (s *Scheduler) submit(
	ctx context.Context,
	label string,
	run func(ctx context.Context) (any, error),
) (any, error) {
	op := &operation{
		id:          uuid.NewString(),
		label:       label,
		submittedAt: time.Now(),
		ctx:         ctx,
		run:         run,
		done:        make(chan outcome, 1),
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()

		return nil, ErrSchedulerDestroyed
	}
	op.element = s.pending.PushBack(op)
	s.mu.Unlock()

	metrics.SchedulerQueueLength.Inc()
	s.signal()

	select {
	case out := <-op.done:
		return out.value, out.err
	case <-ctx.Done():
		s.mu.Lock()
		if op.element != nil {
			s.pending.Remove(op.element)
			op.element = nil
			metrics.SchedulerQueueLength.Dec()
		}
		s.mu.Unlock()

		return nil, fmt.Errorf("%s abandoned: %w", label, ctx.Err())
	}
}

// Clear rejects every queued operation with ErrQueueCleared and returns how
// many were rejected. Operations that are already executing are unaffected.
func (s *Scheduler) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := 0
	for e := s.pending.Front(); e != nil; {
		next := e.Next()
		op, _ := s.pending.Remove(e).(*operation)
		op.element = nil
		op.done <- outcome{err: ErrQueueCleared}
		cleared++
		e = next
	}

	metrics.SchedulerQueueLength.Sub(float64(cleared))

	return cleared
}

// Destroy stops the dispatcher and clears the queue. Later submissions fail
// with ErrSchedulerDestroyed. Calling Destroy more than once has no effect.
func (s *Scheduler) Destroy() {
	s.destroyOnce.Do(func() {
		s.mu.Lock()
		s.destroyed = true
		s.mu.Unlock()

		s.stop()
		<-s.stopped

		if cleared := s.Clear(); cleared > 0 {
			slog.Debug(fmt.Sprintf("Rejected %d queued operations while destroying scheduler", cleared))
		}
	})
}

// WaitForCompletion blocks until nothing is queued or executing, or ctx ends.
func (s *Scheduler) WaitForCompletion(ctx context.Context) error {
	ticker := time.NewTicker(completionPollInterval)
	defer ticker.Stop()

	for {
		if s.idle() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Status returns a snapshot of the scheduler's queue and policy.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		QueueLength:    s.pending.Len(),
		ActiveRequests: s.active,
		MaxConcurrent:  s.policy.MaxConcurrent,
		RatePerSecond:  s.policy.RatePerSecond,
	}
}

func (s *Scheduler) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pending.Len() == 0 && s.active == 0
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pending.Len() > 0 && s.active < s.policy.MaxConcurrent
}

func (s *Scheduler) dispatch(ctx context.Context) {
	defer close(s.stopped)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}

		for s.ready() {
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}

			op := s.next()
			if op == nil {
				continue
			}

			go s.execute(op)
		}
	}
}

// next takes the head of the queue and counts it as active. It returns nil if
// the queue emptied or the scheduler filled up while waiting on the limiter.
func (s *Scheduler) next() *operation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active >= s.policy.MaxConcurrent {
		return nil
	}

	front := s.pending.Front()
	if front == nil {
		return nil
	}

	op, _ := s.pending.Remove(front).(*operation)
	op.element = nil
	s.active++

	metrics.SchedulerQueueLength.Dec()
	metrics.SchedulerActiveRequests.Inc()
	metrics.SchedulerQueueWait.Observe(time.Since(op.submittedAt).Seconds())

	return op
}

func (s *Scheduler) execute(op *operation) {
	out := s.invoke(op)

	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	metrics.SchedulerActiveRequests.Dec()

	op.done <- out
	s.signal()
}

func (s *Scheduler) invoke(op *operation) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: fmt.Errorf("operation %s (%s) panicked: %v", op.label, op.id, r)}
		}
	}()

	value, err := op.run(op.ctx)

	return outcome{value: value, err: err}
}
