package gyre

import "context"

// emitBuffer is the capacity of a Handle's injection queue. Events emitted
// before Start are held here until the loop begins pumping.
const emitBuffer = 1024

// Handle decorates a Loop for hosts that need to push events in from the
// outside, typically a UI translating user interaction. It appends one
// always-present feedback whose effect is an externally fed queue, and
// exposes the loop's observation points and lifecycle.
type Handle[S, E any] struct {
	loop   *Loop[S, E]
	events chan E
}

// NewHandle builds a Loop from the given definition plus the injection
// feedback, appended after the declared feedbacks. Construction fails with
// the same errors as New, except that a nil feedback list is allowed: the
// injection feedback alone satisfies the loop.
func NewHandle[S, E any](initial S, reduce Reducer[S, E], feedbacks []Feedback[S, E], opts ...Option[E]) (*Handle[S, E], error) {
	events := make(chan E, emitBuffer)
	all := make([]Feedback[S, E], 0, len(feedbacks)+1)
	all = append(all, feedbacks...)
	all = append(all, FromChannel[S, E](events).Named("emit"))

	loop, err := New(initial, reduce, all, opts...)
	if err != nil {
		return nil, err
	}
	return &Handle[S, E]{loop: loop, events: events}, nil
}

// Loop returns the underlying loop, for chainable instance configuration
// before Start.
func (h *Handle[S, E]) Loop() *Loop[S, E] {
	return h.loop
}

// Start starts the underlying loop. The loop stops when ctx is cancelled.
func (h *Handle[S, E]) Start(ctx context.Context) error {
	return h.loop.Start(ctx)
}

// Stop stops the underlying loop. Idempotent and terminal.
func (h *Handle[S, E]) Stop() {
	h.loop.Stop()
}

// Emit injects an event directly into the merge, bypassing the feedbacks.
// While the loop runs, each call causes exactly one reducer application,
// independent of ongoing feedback activity. Events emitted before Start are
// buffered up to the handle's capacity and delivered once the loop starts;
// events emitted after Stop are discarded.
func (h *Handle[S, E]) Emit(event E) {
	l := h.loop
	if l.Status() == StatusStopped {
		return
	}

	l.mu.Lock()
	ctx := l.ctx
	l.mu.Unlock()

	if ctx == nil {
		// Not started yet. Queue what fits; anything beyond the buffer
		// before Start is dropped.
		select {
		case h.events <- event:
		default:
		}
		return
	}

	select {
	case h.events <- event:
	case <-ctx.Done():
	}
}

// Current returns the most recently broadcast state, if any.
func (h *Handle[S, E]) Current() (S, bool) {
	return h.loop.Current()
}

// Subscribe registers fn to receive every broadcast state, starting with
// the current one. Returns an unsubscribe function.
func (h *Handle[S, E]) Subscribe(fn func(S)) func() {
	return h.loop.Subscribe(fn)
}
