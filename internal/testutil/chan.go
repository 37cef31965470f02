package testutil

import (
	"testing"
	"time"
)

// DefaultWait bounds how long channel helpers wait before failing a test.
const DefaultWait = 5 * time.Second

// Receive returns the next value from ch, failing the test if ch closes or
// nothing arrives within DefaultWait.
func Receive[T any](t testing.TB, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed while waiting for a value")
		}
		return v
	case <-time.After(DefaultWait):
		t.Fatalf("no value received within %s", DefaultWait)
	}
	var zero T
	return zero
}

// ReceiveUntil reads from ch until match returns true and returns every value
// read, the matching one last. Fails the test on timeout or close.
func ReceiveUntil[T any](t testing.TB, ch <-chan T, match func(T) bool) []T {
	t.Helper()
	deadline := time.After(DefaultWait)
	var seen []T
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed before match; saw %d values", len(seen))
			}
			seen = append(seen, v)
			if match(v) {
				return seen
			}
		case <-deadline:
			t.Fatalf("no matching value within %s; saw %d values", DefaultWait, len(seen))
			return seen
		}
	}
}

// NoReceive fails the test if ch yields a value within wait.
// A closed channel counts as no value.
func NoReceive[T any](t testing.TB, ch <-chan T, wait time.Duration) {
	t.Helper()
	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf("unexpected value received: %v", v)
		}
	case <-time.After(wait):
	}
}

// Closed reports whether ch is closed within DefaultWait, draining any
// values still buffered.
func Closed[T any](ch <-chan T) bool {
	deadline := time.After(DefaultWait)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return true
			}
		case <-deadline:
			return false
		}
	}
}
