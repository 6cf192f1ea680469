package gyre

import (
	"context"
	"time"

	"github.com/zoobzio/clockz"
)

// Effect turns a state into a stream of events. The returned channel is the
// event stream: each value is delivered to the reducer, and closing the
// channel is the activation's terminal completion signal.
//
// A non-nil error is a terminal failure: the feedback is permanently
// finished and produces no further events for any state (the loop itself
// keeps running). Map recoverable failures into events inside the effect
// instead of returning them.
//
// The context is cancelled when the activation is superseded under
// CancelOnNewState, or when the loop stops. Effects must release timers and
// subscriptions promptly on cancellation; events emitted after cancellation
// are discarded in any case.
type Effect[S, E any] func(ctx context.Context, state S) (<-chan E, error)

// Source produces a state-independent event stream. It is started once when
// the loop starts and runs until its channel closes or the context is
// cancelled. Emit-style injection and watcher-backed feedbacks are sources.
type Source[E any] func(ctx context.Context) (<-chan E, error)

// Feedback is a single effect producer: its effect (or source), filtering
// rule, execution policy, and execution context. A Feedback is immutable
// once its loop starts; the chainable methods return modified copies.
type Feedback[S, E any] struct {
	name     string
	policy   Policy
	executor Executor
	filter   func(S) bool
	skip     func(prev, curr S) bool
	effect   Effect[S, E]
	source   Source[E]
}

// NewFeedback creates a feedback from an effect. Defaults: every activation
// runs on the Concurrent executor under ContinueOnNewState, with no filter.
func NewFeedback[S, E any](effect Effect[S, E]) Feedback[S, E] {
	return Feedback[S, E]{
		executor: Concurrent,
		effect:   effect,
	}
}

// React creates a feedback whose effect synchronously emits exactly one
// event per state, derived by fn.
func React[S, E any](fn func(S) E) Feedback[S, E] {
	return NewFeedback(func(_ context.Context, state S) (<-chan E, error) {
		out := make(chan E, 1)
		out <- fn(state)
		close(out)
		return out, nil
	})
}

// NewLensFeedback creates a feedback whose effect observes only the
// sub-state extracted by lens. Events it emits are unchanged.
func NewLensFeedback[S, Sub, E any](lens func(S) Sub, effect Effect[Sub, E]) Feedback[S, E] {
	return NewFeedback(func(ctx context.Context, state S) (<-chan E, error) {
		return effect(ctx, lens(state))
	})
}

// FromChannel creates a state-independent feedback that emits every value
// received on ch. The channel outlives individual states: it is consumed
// once, from loop start until it closes or the loop stops.
func FromChannel[S, E any](ch <-chan E) Feedback[S, E] {
	return Feedback[S, E]{
		name:     "channel",
		executor: Concurrent,
		source: func(context.Context) (<-chan E, error) {
			return ch, nil
		},
	}
}

// AfterDelay creates a feedback that emits fn(state) a fixed duration after
// each state. It defaults to CancelOnNewState: a newer state stops the
// pending timer, so only states that stay current for the full duration
// produce an event. This models debounce and timeout loops.
func AfterDelay[S, E any](clock clockz.Clock, d time.Duration, fn func(S) E) Feedback[S, E] {
	effect := func(ctx context.Context, state S) (<-chan E, error) {
		out := make(chan E, 1)
		go func() {
			defer close(out)
			timer := clock.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
			case <-timer.C():
				select {
				case out <- fn(state):
				case <-ctx.Done():
				}
			}
		}()
		return out, nil
	}
	return NewFeedback(effect).Policy(CancelOnNewState).Named("after-delay")
}

// Named sets the feedback's name, used in signals, metrics, and errors.
// Unnamed feedbacks are named by position when the loop starts.
func (f Feedback[S, E]) Named(name string) Feedback[S, E] {
	f.name = name
	return f
}

// Policy sets the overlap policy for the feedback's activations.
func (f Feedback[S, E]) Policy(p Policy) Feedback[S, E] {
	f.policy = p
	return f
}

// Executor sets the execution context the effect is dispatched on.
func (f Feedback[S, E]) Executor(ex Executor) Feedback[S, E] {
	f.executor = ex
	return f
}

// Filter sets a predicate; states it rejects cause no activation and no
// work for this feedback.
func (f Feedback[S, E]) Filter(pred func(S) bool) Feedback[S, E] {
	f.filter = pred
	return f
}

// SkipRepeats suppresses activations for states equal to the previously
// observed one, per eq. Useful with NewLensFeedback to react only when the
// extracted sub-state changes.
func (f Feedback[S, E]) SkipRepeats(eq func(prev, curr S) bool) Feedback[S, E] {
	f.skip = eq
	return f
}
