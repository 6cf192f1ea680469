package gyre

import (
	"context"

	"github.com/zoobzio/pipz"
)

// Option configures the event middleware pipeline of a Loop. Middleware runs
// on the reducer context against each event before the transition function,
// so it cannot break the loop's ordering or single-flight guarantees. A
// middleware error drops the event; it never halts the loop.
//
// Instance configuration (reducer executor, metrics, error history, etc.) is
// handled via chainable methods on the Loop before calling Start().
type Option[E any] func(pipz.Chainable[E]) pipz.Chainable[E]

// buildPipeline wraps an identity terminal with the configured options.
// Returns nil when there is no middleware, letting the loop skip the
// pipeline entirely.
func buildPipeline[E any](opts []Option[E]) pipz.Chainable[E] {
	if len(opts) == 0 {
		return nil
	}
	var pipeline pipz.Chainable[E] = pipz.Transform(pipz.Name("deliver"),
		func(_ context.Context, event E) E { return event },
	)
	for _, opt := range opts {
		pipeline = opt(pipeline)
	}
	return pipeline
}

// WithMiddleware wraps the pipeline with a sequence of processors.
// Processors execute in order before the event reaches the reducer.
//
// Use the Use* functions to create processors for common patterns,
// or provide custom pipz.Chainable implementations directly.
func WithMiddleware[E any](processors ...pipz.Chainable[E]) Option[E] {
	return func(p pipz.Chainable[E]) pipz.Chainable[E] {
		all := make([]pipz.Chainable[E], 0, len(processors)+1)
		all = append(all, processors...)
		all = append(all, p)
		return pipz.NewSequence("middleware", all...)
	}
}

// WithErrorHandler adds error observation to the pipeline. Errors are passed
// to the handler for logging, metrics, or alerting, but the event is still
// dropped. Use this for observability, not recovery.
func WithErrorHandler[E any](handler pipz.Chainable[*pipz.Error[E]]) Option[E] {
	return func(p pipz.Chainable[E]) pipz.Chainable[E] {
		return pipz.NewHandle("error-handler", p, handler)
	}
}

// UseTransform creates a processor that maps the event. Cannot fail.
func UseTransform[E any](name string, fn func(context.Context, E) E) pipz.Chainable[E] {
	return pipz.Transform(pipz.Name(name), fn)
}

// UseApply creates a processor that can map the event and fail. A failure
// drops the event.
func UseApply[E any](name string, fn func(context.Context, E) (E, error)) pipz.Chainable[E] {
	return pipz.Apply(pipz.Name(name), fn)
}

// UseEffect creates a processor that observes the event without changing it.
// Use for logging, metrics, or notifications. An error drops the event, so
// observers should normally return nil.
func UseEffect[E any](name string, fn func(context.Context, E) error) pipz.Chainable[E] {
	return pipz.Effect(pipz.Name(name), fn)
}

// UseFilter wraps a processor with a condition. If the condition returns
// false, the event passes through unchanged.
func UseFilter[E any](name string, condition func(context.Context, E) bool, processor pipz.Chainable[E]) pipz.Chainable[E] {
	return pipz.NewFilter(pipz.Name(name), condition, processor)
}

// UseRateLimit creates a rate limiting processor. Uses a token bucket with
// the specified rate (events per second) and burst size. When tokens are
// exhausted, delivery waits for availability; because middleware runs on the
// reducer context, this backpressures the whole event stream.
func UseRateLimit[E any](rate float64, burst int) pipz.Chainable[E] {
	return pipz.NewRateLimiter[E]("rate-limiter", rate, burst)
}
