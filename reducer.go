package gyre

// Reducer is the pure transition function: it consumes exactly one event
// against the current state and returns the next state.
//
// Purity is a contract, not a runtime check: the same (state, event) pair
// must always yield the same next state, with no I/O and no mutation outside
// the return value. The loop
// guarantees in exchange that reducer applications are strictly sequential
// on one serialization context, regardless of which context produced the
// triggering event.
type Reducer[S, E any] func(state S, event E) S
