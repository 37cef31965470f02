package feature

import (
	"context"
	"fmt"
)

// Kinded is implemented by variant types that name themselves.
// Event, action, result, state and effect variants implement it so that
// logs, spans and the journal carry a stable variant name.
type Kinded interface {
	Kind() string
}

// KindOf returns v's variant name, falling back to its Go type.
func KindOf(v any) string {
	if k, ok := v.(Kinded); ok {
		return k.Kind()
	}
	return fmt.Sprintf("%T", v)
}

// Started describes a pipeline at construction time.
type Started struct {
	Feature string
	ID      string
	State   any
}

// Folded describes one fold of a result into state.
type Folded struct {
	Feature  string
	ID       string
	Seq      int64
	Result   any
	Previous any
	State    any
	// Changed is false when the definition's Equal reported no change.
	Changed bool
}

// Emitted describes one effect emission.
type Emitted struct {
	Feature string
	ID      string
	Seq     int64
	Effect  any
	// Delivered counts subscribers that accepted the effect.
	Delivered int
}

// Observer receives a record of everything a pipeline does.
//
// Observers are called from the goroutine performing the work (the fold
// loop for Folded, the emitter for Emitted) and must not call back into the
// pipeline. Returned errors are logged; they never stop the pipeline.
type Observer interface {
	Started(ctx context.Context, rec Started) error
	Folded(ctx context.Context, rec Folded) error
	Emitted(ctx context.Context, rec Emitted) error
}

// Observers combines several observers into one. Every observer is called;
// the first error is returned.
type Observers []Observer

func (o Observers) Started(ctx context.Context, rec Started) error {
	var first error
	for _, obs := range o {
		if err := obs.Started(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (o Observers) Folded(ctx context.Context, rec Folded) error {
	var first error
	for _, obs := range o {
		if err := obs.Folded(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (o Observers) Emitted(ctx context.Context, rec Emitted) error {
	var first error
	for _, obs := range o {
		if err := obs.Emitted(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}
