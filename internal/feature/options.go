package feature

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	intake         IntakePolicy
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	observer       Observer
	effectBuffer   int
	ids            IDGenerator
}

func defaultOptions() options {
	return options{
		intake:         IntakeQueue,
		logger:         slog.Default(),
		tracerProvider: otel.GetTracerProvider(),
		effectBuffer:   DefaultEffectBuffer,
		ids:            UUIDv7Generator{},
	}
}

// WithIntake selects the event intake policy.
//
// Default: IntakeQueue.
func WithIntake(policy IntakePolicy) Option {
	return func(o *options) {
		o.intake = policy
	}
}

// WithLogger sets the logger. A nil logger keeps the default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider used for fold
// and effect spans. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithObserver attaches an observer, such as a journal.
// Calling it more than once attaches every observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		switch {
		case obs == nil:
		case o.observer == nil:
			o.observer = obs
		default:
			o.observer = Observers{o.observer, obs}
		}
	}
}

// WithEffectBuffer sets the per-subscriber effect buffer.
//
// Default: 16 (DefaultEffectBuffer). Zero makes EmitEffect wait until each
// subscriber's forwarder has picked the effect up.
func WithEffectBuffer(n int) Option {
	return func(o *options) {
		o.effectBuffer = n
	}
}

// WithIDGenerator sets the instance id generator.
//
// Default: UUIDv7Generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(o *options) {
		if ids != nil {
			o.ids = ids
		}
	}
}
