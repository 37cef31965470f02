package feature

import (
	"context"
	"sync"
)

// DefaultEffectBuffer is the per-subscriber delivery buffer for effects.
const DefaultEffectBuffer = 16

// effectBus fans effects out to the subscribers present at emission time.
// There is no replay: an effect emitted with no subscriber is gone.
type effectBus[F any] struct {
	mu     sync.RWMutex
	subs   map[*effectSub[F]]struct{}
	buffer int
}

// effectSub decouples emitters from the subscriber's channel lifetime:
// emitters write to in, a forwarder goroutine owns out and closes it.
type effectSub[F any] struct {
	in   chan F
	out  chan F
	done chan struct{}
}

func newEffectBus[F any](buffer int) *effectBus[F] {
	if buffer < 0 {
		buffer = 0
	}
	return &effectBus[F]{
		subs:   make(map[*effectSub[F]]struct{}),
		buffer: buffer,
	}
}

// subscribe registers a subscriber before returning, so every effect emitted
// after subscribe returns is delivered to it.
func (b *effectBus[F]) subscribe(ctx context.Context) <-chan F {
	sub := &effectSub[F]{
		in:   make(chan F, b.buffer),
		out:  make(chan F),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		close(sub.done)
	}()

	go sub.forward()

	return sub.out
}

func (s *effectSub[F]) forward() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case f := <-s.in:
			select {
			case s.out <- f:
			case <-s.done:
				return
			}
		}
	}
}

// emit hands f to every current subscriber's buffer. It blocks while a
// subscriber's buffer is full, until that subscriber drains, unsubscribes,
// or ctx ends. Returns the number of subscribers that accepted f.
func (b *effectBus[F]) emit(ctx context.Context, f F) (int, error) {
	b.mu.RLock()
	subs := make([]*effectSub[F], 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	delivered := 0
	for _, sub := range subs {
		select {
		case sub.in <- f:
			delivered++
		case <-sub.done:
		case <-ctx.Done():
			return delivered, ctx.Err()
		}
	}
	return delivered, nil
}

// count returns the number of active subscribers.
func (b *effectBus[F]) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
