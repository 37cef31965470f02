package stream

import "context"

// Send delivers v on out unless ctx ends first.
// Returns false if ctx ended before the value was accepted.
func Send[T any](ctx context.Context, out chan<- T, v T) bool {
	select {
	case out <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

// Of emits the given values in order, then closes.
func Of[T any](ctx context.Context, values ...T) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for _, v := range values {
			if !Send(ctx, out, v) {
				return
			}
		}
	}()
	return out
}

// Map applies fn to every value of in.
func Map[T, R any](ctx context.Context, in <-chan T, fn func(T) R) <-chan R {
	out := make(chan R)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-in:
				if !ok {
					return
				}
				if !Send(ctx, out, fn(v)) {
					return
				}
			}
		}
	}()
	return out
}

// ConcatMap expands every value of in into zero or more values, preserving
// order: all expansions of one input are emitted before the next input is read.
func ConcatMap[T, R any](ctx context.Context, in <-chan T, fn func(T) []R) <-chan R {
	out := make(chan R)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-in:
				if !ok {
					return
				}
				for _, r := range fn(v) {
					if !Send(ctx, out, r) {
						return
					}
				}
			}
		}
	}()
	return out
}

// Scan emits initial, then the running accumulation of every value of in.
// The accumulator runs on a single goroutine so fn never races with itself.
func Scan[T, A any](ctx context.Context, in <-chan T, initial A, fn func(A, T) A) <-chan A {
	out := make(chan A)
	go func() {
		defer close(out)
		acc := initial
		if !Send(ctx, out, acc) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-in:
				if !ok {
					return
				}
				acc = fn(acc, v)
				if !Send(ctx, out, acc) {
					return
				}
			}
		}
	}()
	return out
}

// Collect drains in until it closes or ctx ends.
func Collect[T any](ctx context.Context, in <-chan T) []T {
	var values []T
	for {
		select {
		case <-ctx.Done():
			return values
		case v, ok := <-in:
			if !ok {
				return values
			}
			values = append(values, v)
		}
	}
}
