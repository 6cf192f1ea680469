// Package gyre provides a feedback-loop engine: a cyclic pipeline that turns
// an initial state, a set of independently scheduled effect producers, and a
// pure transition function into a continuously self-feeding sequence of
// states. It is the substrate on which UI and business-logic state machines
// are built.
//
// # Loop
//
// A Loop wires three things into one cycle:
//
//	relay ──state──▶ feedbacks ──events──▶ reducer ──next state──▶ relay
//
// The relay broadcasts every state to each feedback in declaration order.
// Each feedback's effect runs on its own execution context under its own
// overlap policy and emits zero or more events. Events are merged into a
// single sequence and applied one at a time by the reducer on one
// serialization context; the resulting state re-enters the relay. Re-entrant
// publishes land on a FIFO queue drained iteratively, so arbitrarily long
// transition chains never grow the call stack.
//
// Invariants:
//
//   - Exactly one state is current at any instant.
//   - All feedbacks observe the identical state sequence in identical order.
//   - Reducer applications are totally ordered; no two transitions compute
//     concurrently.
//   - Events emitted synchronously during one broadcast step reach the
//     reducer in feedback declaration order.
//
// # Feedbacks
//
// A Feedback turns states into an event stream. NewFeedback wraps an effect
// function, React emits one derived event per state, NewLensFeedback scopes
// the effect to an extracted sub-state, FromChannel adapts an external event
// channel, FromWatcher decodes a Watcher's payloads, and AfterDelay emits on
// a clock. Policy(CancelOnNewState) makes a newer state cancel the in-flight
// activation; the default ContinueOnNewState lets overlapping activations
// run to completion.
//
// An effect that fails terminally silences only its own feedback: the loop
// keeps running on the rest, and the failure is observable through the
// FeedbackFailed signal, the metrics provider, and the loop's error history.
//
// # Construction
//
// The declarative form and the builder form produce identical loops:
//
//	loop, err := gyre.New(initial, reduce, []gyre.Feedback[State, Event]{fb})
//
//	loop, err := gyre.NewBuilder[State, Event](initial).
//	    Feedback(fb).
//	    Reducer(reduce).
//	    Build()
//
// # Example
//
//	type Counter struct{ N int }
//
//	type Tick struct{}
//
//	fb := gyre.AfterDelay(clockz.RealClock, time.Second,
//	    func(Counter) Tick { return Tick{} })
//
//	loop, err := gyre.New(Counter{}, func(s Counter, _ Tick) Counter {
//	    return Counter{N: s.N + 1}
//	}, []gyre.Feedback[Counter, Tick]{fb})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	unsub := loop.Subscribe(func(s Counter) { log.Printf("n=%d", s.N) })
//	defer unsub()
//
//	if err := loop.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Hosts that inject events directly use a Handle:
//
//	h, err := gyre.NewHandle(initial, reduce, feedbacks)
//	_ = h.Start(ctx)
//	h.Emit(ButtonPressed{})
package gyre
