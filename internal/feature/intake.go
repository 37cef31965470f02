package feature

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/udflow/internal/stream"
)

// IntakePolicy selects how Process buffers events ahead of the pipeline.
type IntakePolicy int

const (
	// IntakeQueue keeps every event in an unbounded FIFO. No event is lost
	// while the pipeline is alive.
	IntakeQueue IntakePolicy = iota

	// IntakeLatest holds at most one pending event. Process drops the event
	// when the slot is still occupied.
	IntakeLatest
)

// String returns the policy name used in configuration.
func (p IntakePolicy) String() string {
	switch p {
	case IntakeQueue:
		return "queue"
	case IntakeLatest:
		return "latest"
	default:
		return fmt.Sprintf("IntakePolicy(%d)", int(p))
	}
}

// ParseIntakePolicy converts a configuration value into an IntakePolicy.
func ParseIntakePolicy(s string) (IntakePolicy, error) {
	switch s {
	case "", "queue":
		return IntakeQueue, nil
	case "latest":
		return IntakeLatest, nil
	default:
		return 0, fmt.Errorf("unknown intake policy %q: must be queue or latest", s)
	}
}

// intake buffers events between Process and the first interactor.
type intake[E any] interface {
	// offer hands an event to the intake without blocking.
	offer(e E) bool
	// events is the stream fed to EventToAction.
	events() <-chan E
}

func newIntake[E any](ctx context.Context, policy IntakePolicy) intake[E] {
	if policy == IntakeLatest {
		return &latestIntake[E]{ctx: ctx, ch: make(chan E, 1)}
	}
	q := newQueueIntake[E]()
	go q.pump(ctx)
	return q
}

// latestIntake is a one-slot buffer with try-send semantics.
// The channel is never closed; consumers stop on context cancellation.
type latestIntake[E any] struct {
	ctx context.Context
	ch  chan E
}

func (l *latestIntake[E]) offer(e E) bool {
	if l.ctx.Err() != nil {
		return false
	}
	select {
	case l.ch <- e:
		return true
	default:
		return false
	}
}

func (l *latestIntake[E]) events() <-chan E {
	return l.ch
}

// queueIntake is an unbounded, thread-safe FIFO drained by a pump goroutine.
//
// The queue uses a one-slot signal channel so that the pump can wait for
// events and for context cancellation in the same select.
type queueIntake[E any] struct {
	mu     sync.Mutex
	items  []E
	closed bool
	signal chan struct{} // buffered, size 1; coalesces wakeups
	out    chan E
}

func newQueueIntake[E any]() *queueIntake[E] {
	return &queueIntake[E]{
		items:  make([]E, 0, 16),
		signal: make(chan struct{}, 1),
		out:    make(chan E),
	}
}

// offer appends an event. Returns false once the queue is closed.
func (q *queueIntake[E]) offer(e E) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, e)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// tryDequeue removes the front event without blocking.
func (q *queueIntake[E]) tryDequeue() (E, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero E
	if len(q.items) == 0 {
		return zero, false
	}

	e := q.items[0]
	// Clear the slot so the backing array does not pin the event.
	q.items[0] = zero
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return e, true
}

// len returns the number of pending events.
func (q *queueIntake[E]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// close rejects further offers and discards pending events.
func (q *queueIntake[E]) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
}

func (q *queueIntake[E]) events() <-chan E {
	return q.out
}

// pump moves events from the queue to out, one at a time, until ctx ends.
func (q *queueIntake[E]) pump(ctx context.Context) {
	defer close(q.out)
	defer q.close()

	for {
		if e, ok := q.tryDequeue(); ok {
			if !stream.Send(ctx, q.out, e) {
				return
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-q.signal:
		}
	}
}
