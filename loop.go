package gyre

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/pipz"
)

// validate is the shared validator instance.
var validate = validator.New()

// definition is the construction-time shape checked by the validator.
type definition[S, E any] struct {
	Reducer   Reducer[S, E]    `validate:"required"`
	Feedbacks []Feedback[S, E] `validate:"required,min=1"`
}

// Loop composes an initial state, an ordered list of feedbacks, and a
// reducer into one running cyclic stream: states flow out to the feedbacks,
// the events they produce are merged back through the reducer, and the
// resulting state re-enters the same feedbacks through a re-entrancy-safe
// relay.
//
// Lifecycle: constructed → running → stopped. Stopped is terminal; build a
// fresh Loop to run again.
type Loop[S, E any] struct {
	initial   S
	feedbacks []Feedback[S, E]
	reduce    Reducer[S, E]
	pipeline  pipz.Chainable[E]

	reducerExec Executor
	serial      *SerialExecutor
	clock       clockz.Clock
	metrics     MetricsProvider
	onStop      func(Status)
	history     *errorRing

	relay   *relay[S]
	runners []*feedbackRunner[S, E]

	status    atomic.Int32
	lastError atomic.Pointer[error]

	// reduced is the reducer's accumulator: the output of the last
	// transition, which the next transition consumes. It runs ahead of the
	// relay's current slot while the trampoline is draining.
	stateMu sync.Mutex
	reduced S

	mu       sync.Mutex
	started  bool
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// New creates a Loop from an initial state, a reducer, and an ordered list
// of feedbacks. The list is fixed for the Loop's lifetime. Options configure
// the event middleware pipeline; instance configuration uses chainable
// methods before calling Start().
//
// Construction fails with ErrNoReducer, ErrNoFeedbacks, or ErrNilEffect if
// the definition is incomplete.
func New[S, E any](initial S, reduce Reducer[S, E], feedbacks []Feedback[S, E], opts ...Option[E]) (*Loop[S, E], error) {
	def := definition[S, E]{Reducer: reduce, Feedbacks: feedbacks}
	if err := validate.Struct(def); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				switch fe.StructField() {
				case "Reducer":
					return nil, ErrNoReducer
				case "Feedbacks":
					return nil, ErrNoFeedbacks
				}
			}
		}
		return nil, fmt.Errorf("gyre: invalid loop definition: %w", err)
	}
	for i, fb := range feedbacks {
		if fb.effect == nil && fb.source == nil {
			return nil, fmt.Errorf("%w (index %d)", ErrNilEffect, i)
		}
	}

	l := &Loop[S, E]{
		initial:   initial,
		feedbacks: append([]Feedback[S, E](nil), feedbacks...),
		reduce:    reduce,
		pipeline:  buildPipeline(opts),
		clock:     clockz.RealClock,
		relay:     newRelay[S](),
		reduced:   initial,
	}
	l.status.Store(int32(StatusIdle))
	return l, nil
}

// -----------------------------------------------------------------------------
// Chainable Instance Configuration
// -----------------------------------------------------------------------------

// ReducerExecutor sets the serialization context for reducer applications.
// Default: a SerialExecutor owned by the loop. The context must run closures
// strictly sequentially, or the single-flight reducer invariant is lost;
// Immediate is safe only when every feedback also runs on Immediate.
// Must be called before Start().
func (l *Loop[S, E]) ReducerExecutor(ex Executor) *Loop[S, E] {
	l.reducerExec = ex
	return l
}

// Clock sets a custom clock for reduction timing.
// Use this with clockz.FakeClock for deterministic tests.
// Must be called before Start().
func (l *Loop[S, E]) Clock(clock clockz.Clock) *Loop[S, E] {
	l.clock = clock
	return l
}

// Metrics sets a metrics provider for observability integration.
// Must be called before Start().
func (l *Loop[S, E]) Metrics(provider MetricsProvider) *Loop[S, E] {
	l.metrics = provider
	return l
}

// OnStop sets a callback invoked once when the loop stops, with the final
// status. Must be called before Start().
func (l *Loop[S, E]) OnStop(fn func(Status)) *Loop[S, E] {
	l.onStop = fn
	return l
}

// ErrorHistorySize sets the number of recent feedback and middleware
// failures to retain. Use 0 (default) to only retain the most recent error
// via LastError(). Must be called before Start().
func (l *Loop[S, E]) ErrorHistorySize(n int) *Loop[S, E] {
	l.history = newErrorRing(n)
	return l
}

// -----------------------------------------------------------------------------
// Observation
// -----------------------------------------------------------------------------

// Status returns the loop's lifecycle status.
func (l *Loop[S, E]) Status() Status {
	return Status(l.status.Load())
}

// Current returns the most recently broadcast state and true, or the zero
// value and false if the loop has not started.
func (l *Loop[S, E]) Current() (S, bool) {
	return l.relay.latest()
}

// Subscribe registers fn to receive every broadcast state, starting with the
// current one if the loop is running. Notifications are serialized with the
// relay's broadcasts. Returns an unsubscribe function.
func (l *Loop[S, E]) Subscribe(fn func(S)) func() {
	return l.relay.subscribe(fn, true)
}

// LastError returns the most recent feedback or middleware failure, or nil.
func (l *Loop[S, E]) LastError() error {
	ptr := l.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// ErrorHistory returns the recent failure history, oldest first.
// Returns nil unless ErrorHistorySize was set.
func (l *Loop[S, E]) ErrorHistory() []error {
	return l.history.all()
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start begins the cyclic broadcast with the initial state. Feedbacks are
// subscribed in declaration order, the relay is seeded, and state-independent
// sources begin pumping. The loop stops when ctx is cancelled or Stop is
// called.
//
// Start can only be called once: a second call returns ErrAlreadyStarted,
// and calling Start on a stopped loop returns ErrLoopStopped.
func (l *Loop[S, E]) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.Status() == StatusStopped {
		l.mu.Unlock()
		return ErrLoopStopped
	}
	if l.started {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	l.started = true
	l.ctx, l.cancel = context.WithCancel(ctx)
	if l.reducerExec == nil {
		l.serial = NewSerialExecutor()
		l.reducerExec = l.serial
	}
	l.mu.Unlock()

	for i := range l.feedbacks {
		if l.feedbacks[i].name == "" {
			l.feedbacks[i].name = fmt.Sprintf("feedback-%d", i)
		}
	}

	// Subscribe state-driven feedbacks in declaration order. Registration
	// order is what makes synchronous same-step emissions reach the reducer
	// in declaration order.
	for i := range l.feedbacks {
		r := &feedbackRunner[S, E]{loop: l, fb: l.feedbacks[i]}
		l.runners = append(l.runners, r)
		if r.fb.effect != nil {
			l.relay.subscribe(r.onState, false)
		}
	}

	l.status.Store(int32(StatusRunning))
	if l.metrics != nil {
		l.metrics.OnStatusChange(StatusIdle, StatusRunning)
	}
	capitan.Emit(l.ctx, LoopStarted,
		KeyFeedbackCount.Field(len(l.feedbacks)),
	)

	go func() {
		<-l.ctx.Done()
		l.Stop()
	}()

	// Seed the relay before starting sources so the first reduction always
	// consumes the initial state.
	l.relay.publish(l.initial)

	for _, r := range l.runners {
		if r.fb.source == nil {
			continue
		}
		ch, err := r.fb.source(l.ctx)
		if err != nil {
			l.Stop()
			return fmt.Errorf("feedback %s: %w", r.fb.name, err)
		}
		go l.pumpSource(r, ch)
	}

	return nil
}

// Stop unsubscribes all feedbacks, cancels in-flight cancellable
// activations, drops the relay's pending queue without further broadcasting,
// and transitions to StatusStopped. Stop is idempotent and terminal.
func (l *Loop[S, E]) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		started := l.started
		l.mu.Unlock()

		from := l.Status()
		l.status.Store(int32(StatusStopped))

		if started {
			l.cancel()
			l.relay.close()
			if l.serial != nil {
				l.serial.Close()
			}
		}

		capitan.Emit(context.Background(), LoopStopped,
			KeyStatus.Field(from.String()),
		)
		if l.metrics != nil {
			l.metrics.OnStatusChange(from, StatusStopped)
		}
		if l.onStop != nil {
			l.onStop(StatusStopped)
		}
	})
}

// -----------------------------------------------------------------------------
// Merge and reduction
// -----------------------------------------------------------------------------

// dispatch hands an event to the reducer context. act is the activation that
// produced the event, or nil for state-independent sources and
// continue-policy effects; events whose activation has been superseded by the
// time the reducer picks them up are discarded.
func (l *Loop[S, E]) dispatch(event E, act *activation, source string) {
	l.reducerExec.Schedule(func() {
		if l.Status() != StatusRunning {
			return
		}
		if act != nil && act.superseded.Load() {
			l.dropEvent(source)
			return
		}
		capitan.Emit(l.ctx, EventReceived,
			KeyFeedback.Field(source),
		)
		if l.metrics != nil {
			l.metrics.OnEventReceived(source)
		}

		ev := event
		if l.pipeline != nil {
			processed, err := l.pipeline.Process(l.ctx, ev)
			if err != nil {
				l.recordError(fmt.Errorf("event middleware: %w", err))
				l.dropEvent(source)
				return
			}
			ev = processed
		}

		start := l.clock.Now()
		l.stateMu.Lock()
		next := l.reduce(l.reduced, ev)
		l.reduced = next
		l.stateMu.Unlock()
		elapsed := l.clock.Since(start)

		if l.metrics != nil {
			l.metrics.OnReduce(elapsed)
		}
		capitan.Emit(l.ctx, ReducerApplied,
			KeyReduceDuration.Field(elapsed),
		)

		l.relay.publish(next)
	})
}

// pumpSource forwards a state-independent event stream into the merge.
func (l *Loop[S, E]) pumpSource(r *feedbackRunner[S, E], ch <-chan E) {
	for {
		select {
		case <-l.ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			l.dispatch(event, nil, r.fb.name)
		}
	}
}

func (l *Loop[S, E]) dropEvent(source string) {
	capitan.Emit(l.ctx, EventDropped,
		KeyFeedback.Field(source),
	)
	if l.metrics != nil {
		l.metrics.OnEventDropped(source)
	}
}

func (l *Loop[S, E]) feedbackFailed(name string, err error) {
	l.recordError(fmt.Errorf("feedback %s: %w", name, err))
	capitan.Emit(l.ctx, FeedbackFailed,
		KeyFeedback.Field(name),
		KeyError.Field(err.Error()),
	)
	if l.metrics != nil {
		l.metrics.OnFeedbackFailure(name)
	}
}

func (l *Loop[S, E]) recordError(err error) {
	e := err
	l.lastError.Store(&e)
	l.history.push(err)
}

// -----------------------------------------------------------------------------
// Feedback execution
// -----------------------------------------------------------------------------

// activation tracks one effect run under CancelOnNewState. The context
// abandons in-flight work when cancelled; the superseded flag is the discard
// marker for events already queued on the reducer context. Keeping the two
// separate means normal completion never condemns events the activation
// produced while it was still current.
type activation struct {
	ctx        context.Context
	cancel     context.CancelFunc
	superseded atomic.Bool
}

// supersede marks the activation's remaining events for discard, then cancels
// its in-flight work. The flag is set first so an event racing onto the
// reducer queue cannot slip past the check.
func (a *activation) supersede() {
	a.superseded.Store(true)
	a.cancel()
}

// feedbackRunner manages one feedback's activations against the relay's
// state notifications.
type feedbackRunner[S, E any] struct {
	loop *Loop[S, E]
	fb   Feedback[S, E]

	mu     sync.Mutex
	act    *activation
	failed bool

	// last/hasLast back SkipRepeats. They are only touched inside onState,
	// which the relay already serializes.
	last    S
	hasLast bool
}

// onState handles one state notification: filter, skip-repeats, supersede
// the prior activation if the policy demands it, then dispatch the effect on
// the feedback's executor. The relay is never blocked on the effect beyond
// what the executor itself does inline.
func (r *feedbackRunner[S, E]) onState(state S) {
	r.mu.Lock()
	failed := r.failed
	r.mu.Unlock()
	if failed {
		return
	}

	if r.fb.filter != nil && !r.fb.filter(state) {
		return
	}
	if r.fb.skip != nil {
		if r.hasLast && r.fb.skip(r.last, state) {
			r.last = state
			return
		}
		r.last = state
		r.hasLast = true
	}

	if r.fb.policy == CancelOnNewState {
		actx, cancel := context.WithCancel(r.loop.ctx)
		act := &activation{ctx: actx, cancel: cancel}
		r.mu.Lock()
		if r.act != nil {
			r.act.supersede()
		}
		r.act = act
		r.mu.Unlock()
		r.fb.executor.Schedule(func() {
			r.run(act, state)
		})
		return
	}

	r.fb.executor.Schedule(func() {
		r.run(nil, state)
	})
}

// run invokes the effect and pumps its event stream into the merge. act is
// non-nil only under CancelOnNewState. It executes on the feedback's
// executor; with Immediate this happens inline during the relay notification,
// which is what makes synchronous effects merge in declaration order.
func (r *feedbackRunner[S, E]) run(act *activation, state S) {
	actx := r.loop.ctx
	if act != nil {
		actx = act.ctx
	}
	ch, err := r.fb.effect(actx, state)
	if err != nil {
		r.fail(err)
		return
	}
	for {
		select {
		case <-actx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if act != nil && act.superseded.Load() {
				r.loop.dropEvent(r.fb.name)
				return
			}
			r.loop.dispatch(event, act, r.fb.name)
		}
	}
}

// fail marks the feedback permanently finished. The loop keeps running on
// the remaining feedbacks.
func (r *feedbackRunner[S, E]) fail(err error) {
	r.mu.Lock()
	already := r.failed
	r.failed = true
	r.mu.Unlock()
	if already {
		return
	}
	r.loop.feedbackFailed(r.fb.name, err)
}
