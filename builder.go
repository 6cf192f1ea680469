package gyre

// Builder accumulates an initial state, zero or more feedbacks, and a
// reducer into a Loop. It is construction sugar over New: a loop built here
// is observably identical to one built with the declarative form from the
// same inputs.
type Builder[S, E any] struct {
	initial   S
	feedbacks []Feedback[S, E]
	reducer   Reducer[S, E]
	opts      []Option[E]
}

// NewBuilder starts a Builder seeded with the initial state.
func NewBuilder[S, E any](initial S) *Builder[S, E] {
	return &Builder[S, E]{initial: initial}
}

// Feedback appends one feedback. Declaration order is merge order.
func (b *Builder[S, E]) Feedback(f Feedback[S, E]) *Builder[S, E] {
	b.feedbacks = append(b.feedbacks, f)
	return b
}

// Feedbacks appends several feedbacks in order.
func (b *Builder[S, E]) Feedbacks(fs ...Feedback[S, E]) *Builder[S, E] {
	b.feedbacks = append(b.feedbacks, fs...)
	return b
}

// Reducer sets the transition function. Exactly one is required.
func (b *Builder[S, E]) Reducer(r Reducer[S, E]) *Builder[S, E] {
	b.reducer = r
	return b
}

// Middleware appends event middleware options.
func (b *Builder[S, E]) Middleware(opts ...Option[E]) *Builder[S, E] {
	b.opts = append(b.opts, opts...)
	return b
}

// Build constructs the Loop. It fails with the same configuration errors
// as New.
func (b *Builder[S, E]) Build() (*Loop[S, E], error) {
	return New(b.initial, b.reducer, b.feedbacks, b.opts...)
}

// BuildHandle constructs the Loop wrapped in a Handle for manual event
// injection.
func (b *Builder[S, E]) BuildHandle() (*Handle[S, E], error) {
	return NewHandle(b.initial, b.reducer, b.feedbacks, b.opts...)
}
