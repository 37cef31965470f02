package feature

import (
	"context"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/roach88/udflow/internal/feature"

// Interactor transforms a stream of T into a stream of R.
//
// An interactor owns the goroutines it starts. Its output must close once
// the input has closed and all pending work has drained, or when ctx ends.
type Interactor[T, R any] func(ctx context.Context, in <-chan T) <-chan R

// Emitter emits one-shot effects.
type Emitter[F any] interface {
	EmitEffect(ctx context.Context, effect F) error
}

// Definition describes a feature: its initial state, its two interactor
// stages and its reducer.
type Definition[S, E, A, R, F any] struct {
	// Name identifies the feature in logs, spans and the journal.
	Name string

	// Initial is the state published before any event is processed.
	Initial S

	EventToAction  Interactor[E, A]
	ActionToResult Interactor[A, R]

	// HandleResult folds result into previous. It is never called
	// concurrently with itself. It may emit effects through emit, which
	// blocks until every current subscriber has buffered the effect.
	HandleResult func(ctx context.Context, emit Emitter[F], previous S, result R) S

	// Equal, if set, suppresses publishing a state equal to the current one.
	Equal func(a, b S) bool
}

func (d Definition[S, E, A, R, F]) validate() error {
	switch {
	case d.EventToAction == nil:
		return newDefinitionError(d.Name, "EventToAction is required")
	case d.ActionToResult == nil:
		return newDefinitionError(d.Name, "ActionToResult is required")
	case d.HandleResult == nil:
		return newDefinitionError(d.Name, "HandleResult is required")
	}
	return nil
}

// Feature is the public contract of a running feature.
type Feature[S, E, F any] interface {
	// State exposes the current state and its changes.
	State() *StateFlow[S]
	// Effects subscribes to effects emitted from now until ctx ends.
	Effects(ctx context.Context) <-chan F
	// Process enqueues an event without blocking.
	Process(event E) bool
}

// Pipeline is the running Event -> Action -> Result -> State machinery.
//
// Thread-safety model:
//   - Process, State, Effects, EmitEffect: safe from any goroutine
//   - HandleResult: called only from the fold loop goroutine
type Pipeline[S, E, A, R, F any] struct {
	def      Definition[S, E, A, R, F]
	name     string
	id       string
	ctx      context.Context
	cancel   context.CancelFunc
	intake   intake[E]
	state    *StateFlow[S]
	effects  *effectBus[F]
	clock    *Clock
	observer Observer
	logger   *slog.Logger
	tracer   trace.Tracer
	dropped  atomic.Int64
	done     chan struct{}
}

var _ Feature[int, int, int] = (*Pipeline[int, int, int, int, int])(nil)

// New builds a pipeline for def and starts it in ctx.
//
// The state is initialised to def.Initial before New returns. The pipeline
// runs until ctx is cancelled or Close is called; the caller owns ctx.
func New[S, E, A, R, F any](ctx context.Context, def Definition[S, E, A, R, F], opts ...Option) (*Pipeline[S, E, A, R, F], error) {
	if err := def.validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.effectBuffer < 0 {
		return nil, &PipelineError{
			Code:    ErrCodeInvalidOption,
			Message: "effect buffer must not be negative",
			Feature: def.Name,
		}
	}

	name := def.Name
	if name == "" {
		name = "feature"
	}

	pctx, cancel := context.WithCancel(ctx)
	p := &Pipeline[S, E, A, R, F]{
		def:      def,
		name:     name,
		id:       o.ids.Generate(),
		ctx:      pctx,
		cancel:   cancel,
		state:    newStateFlow(def.Initial, def.Equal),
		effects:  newEffectBus[F](o.effectBuffer),
		clock:    NewClock(),
		observer: o.observer,
		logger:   o.logger.With("feature", name),
		tracer:   o.tracerProvider.Tracer(tracerName),
		done:     make(chan struct{}),
	}
	p.logger = p.logger.With("id", p.id)

	if p.observer != nil {
		if err := p.observer.Started(pctx, Started{Feature: name, ID: p.id, State: def.Initial}); err != nil {
			p.logger.Warn("observer failed on start", "error", err)
		}
	}

	p.intake = newIntake[E](pctx, o.intake)
	actions := def.EventToAction(pctx, p.intake.events())
	results := def.ActionToResult(pctx, actions)

	p.logger.Debug("pipeline starting", "intake", o.intake.String())
	go p.run(results)

	return p, nil
}

// ID returns the instance id.
func (p *Pipeline[S, E, A, R, F]) ID() string {
	return p.id
}

// Name returns the feature name.
func (p *Pipeline[S, E, A, R, F]) Name() string {
	return p.name
}

// State returns the state flow.
func (p *Pipeline[S, E, A, R, F]) State() *StateFlow[S] {
	return p.state
}

// Effects subscribes to effects emitted after this call, until ctx ends.
func (p *Pipeline[S, E, A, R, F]) Effects(ctx context.Context) <-chan F {
	return p.effects.subscribe(ctx)
}

// Process enqueues event for processing. It never blocks.
//
// Returns false if the event was not accepted: the pipeline is closed, or
// the intake policy is IntakeLatest and an earlier event is still pending.
func (p *Pipeline[S, E, A, R, F]) Process(event E) bool {
	if p.ctx.Err() == nil && p.intake.offer(event) {
		return true
	}
	p.dropped.Add(1)
	p.logger.Debug("event dropped", "event", KindOf(event))
	return false
}

// Dropped returns the number of events Process did not accept.
func (p *Pipeline[S, E, A, R, F]) Dropped() int64 {
	return p.dropped.Load()
}

// EmitEffect hands effect to every current subscriber.
//
// It returns once every subscriber has buffered the effect, not once they
// have consumed it. With no subscribers the effect is dropped and EmitEffect
// returns immediately. Returns ErrClosed if the pipeline has ended.
//
// An effect emitted by a fold is always reported to the observer, with the
// number of subscribers that actually received it, so the journal holds
// every effect the reducer produced even when the scope ends mid-fold.
func (p *Pipeline[S, E, A, R, F]) EmitEffect(ctx context.Context, effect F) error {
	seq, inFold := foldSeq(ctx)

	if p.ctx.Err() != nil {
		p.logger.Debug("effect not delivered: pipeline closed", "effect", KindOf(effect))
		if inFold {
			p.recordEffect(ctx, seq, effect, 0)
		}
		return ErrClosed
	}
	if !inFold {
		seq = p.clock.Next()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	ctx, span := p.tracer.Start(ctx, "feature.effect",
		trace.WithAttributes(
			attribute.String("feature.name", p.name),
			attribute.String("feature.id", p.id),
			attribute.Int64("feature.seq", seq),
			attribute.String("feature.effect", KindOf(effect)),
		),
	)
	defer span.End()

	delivered, err := p.effects.emit(ctx, effect)
	span.SetAttributes(attribute.Int("feature.delivered", delivered))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		p.logger.Debug("effect not delivered",
			"seq", seq,
			"effect", KindOf(effect),
			"delivered", delivered,
			"error", err,
		)
		if inFold {
			p.recordEffect(ctx, seq, effect, delivered)
		}
		if p.ctx.Err() != nil {
			return ErrClosed
		}
		return err
	}

	p.logger.Debug("effect emitted",
		"seq", seq,
		"effect", KindOf(effect),
		"delivered", delivered,
	)
	p.recordEffect(ctx, seq, effect, delivered)
	return nil
}

func (p *Pipeline[S, E, A, R, F]) recordEffect(ctx context.Context, seq int64, effect F, delivered int) {
	if p.observer == nil {
		return
	}
	rec := Emitted{Feature: p.name, ID: p.id, Seq: seq, Effect: effect, Delivered: delivered}
	if err := p.observer.Emitted(context.WithoutCancel(ctx), rec); err != nil {
		p.logger.Warn("observer failed on effect", "seq", seq, "error", err)
	}
}

// Done is closed once the fold loop has exited.
func (p *Pipeline[S, E, A, R, F]) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the fold loop has exited.
func (p *Pipeline[S, E, A, R, F]) Wait() {
	<-p.done
}

// Close cancels the pipeline scope and waits for the fold loop to exit.
// Safe to call more than once.
func (p *Pipeline[S, E, A, R, F]) Close() {
	p.cancel()
	<-p.done
}

// run is the single-writer fold loop.
func (p *Pipeline[S, E, A, R, F]) run(results <-chan R) {
	defer close(p.done)
	defer p.cancel()

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("pipeline stopping: context cancelled")
			return
		case r, ok := <-results:
			if !ok {
				p.logger.Debug("pipeline stopping: result stream closed")
				return
			}
			// select picks at random when both are ready; a result that
			// arrives with the scope already gone is not folded.
			if p.ctx.Err() != nil {
				p.logger.Debug("pipeline stopping: context cancelled", "dropped", KindOf(r))
				return
			}
			p.fold(r)
		}
	}
}

// fold applies one result. Called only from run.
func (p *Pipeline[S, E, A, R, F]) fold(result R) {
	seq := p.clock.Next()

	ctx, span := p.tracer.Start(p.ctx, "feature.fold",
		trace.WithAttributes(
			attribute.String("feature.name", p.name),
			attribute.String("feature.id", p.id),
			attribute.Int64("feature.seq", seq),
			attribute.String("feature.result", KindOf(result)),
		),
	)
	defer span.End()

	ctx = withFoldSeq(ctx, seq)

	previous := p.state.Value()
	next := p.def.HandleResult(ctx, p, previous, result)
	changed := p.state.set(next)

	span.SetAttributes(
		attribute.String("feature.state", KindOf(next)),
		attribute.Bool("feature.changed", changed),
	)

	p.logger.Debug("result folded",
		"seq", seq,
		"result", KindOf(result),
		"state", KindOf(next),
		"changed", changed,
	)

	// The fold has happened; record it even if the scope is ending.
	if p.observer != nil {
		rec := Folded{
			Feature:  p.name,
			ID:       p.id,
			Seq:      seq,
			Result:   result,
			Previous: previous,
			State:    next,
			Changed:  changed,
		}
		if err := p.observer.Folded(context.WithoutCancel(ctx), rec); err != nil {
			p.logger.Warn("observer failed on fold", "seq", seq, "error", err)
		}
	}
}

type foldSeqKey struct{}

func withFoldSeq(ctx context.Context, seq int64) context.Context {
	return context.WithValue(ctx, foldSeqKey{}, seq)
}

// foldSeq returns the sequence number of the fold ctx belongs to.
func foldSeq(ctx context.Context) (int64, bool) {
	seq, ok := ctx.Value(foldSeqKey{}).(int64)
	return seq, ok
}
