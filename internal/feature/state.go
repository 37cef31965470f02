package feature

import (
	"context"
	"sync"
)

// StateFlow holds the current state of a feature and broadcasts changes.
//
// A StateFlow always has a value. Every subscriber first receives the value
// current at subscription time, then each later change. Slow subscribers are
// conflated: they only ever see the latest value, never a backlog.
//
// Only the pipeline's fold loop writes to a StateFlow.
type StateFlow[S any] struct {
	mu    sync.Mutex
	value S
	equal func(a, b S) bool
	subs  map[chan S]struct{}
}

func newStateFlow[S any](initial S, equal func(a, b S) bool) *StateFlow[S] {
	return &StateFlow[S]{
		value: initial,
		equal: equal,
		subs:  make(map[chan S]struct{}),
	}
}

// Value returns the current state.
func (f *StateFlow[S]) Value() S {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Subscribe returns a channel that yields the current state immediately and
// then every subsequent change. The channel is closed when ctx ends; it never
// closes on its own.
func (f *StateFlow[S]) Subscribe(ctx context.Context) <-chan S {
	ch := make(chan S, 1)

	f.mu.Lock()
	ch <- f.value
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, ch)
		close(ch)
		f.mu.Unlock()
	}()

	return ch
}

// Subscribers returns the number of active subscriptions.
func (f *StateFlow[S]) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// set replaces the current state and notifies subscribers.
// Returns false when the equality function reports no change.
func (f *StateFlow[S]) set(v S) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.equal != nil && f.equal(f.value, v) {
		return false
	}
	f.value = v

	for ch := range f.subs {
		// Drop the unread value, if any, so the slot always holds the latest.
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
	return true
}
