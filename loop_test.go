package gyre

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// appendingFeedback emits "_<suffix><n>" for the first limit activations,
// where n counts activations, and nothing afterwards. Runs inline so its
// emissions are synchronous with the relay broadcast.
func appendingFeedback(suffix string, limit int) Feedback[string, string] {
	var n atomic.Int32
	return NewFeedback(func(_ context.Context, _ string) (<-chan string, error) {
		out := make(chan string, 1)
		k := n.Add(1)
		if int(k) <= limit {
			out <- fmt.Sprintf("_%s%d", suffix, k)
		}
		close(out)
		return out, nil
	}).Executor(Immediate)
}

func TestLoop_DeterministicInterleaving(t *testing.T) {
	loop, err := New(
		"initialState",
		func(s, e string) string { return s + e },
		[]Feedback[string, string]{
			appendingFeedback("a", 2),
			appendingFeedback("b", 2),
			appendingFeedback("c", 2),
		},
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	loop.ReducerExecutor(Immediate)

	var states []string
	loop.Subscribe(func(s string) { states = append(states, s) })

	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer loop.Stop()

	want := []string{
		"initialState",
		"initialState_a1",
		"initialState_a1_b1",
		"initialState_a1_b1_c1",
		"initialState_a1_b1_c1_a2",
		"initialState_a1_b1_c1_a2_b2",
		"initialState_a1_b1_c1_a2_b2_c2",
	}
	if len(states) != len(want) {
		t.Fatalf("expected %d states, got %d: %v", len(want), len(states), states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("state %d: expected %q, got %q", i, want[i], states[i])
		}
	}
}

func TestLoop_TrampolineBoundedStack(t *testing.T) {
	const n = 10000

	stackDepth := func() int {
		buf := make([]byte, 1<<16)
		m := runtime.Stack(buf, false)
		return bytes.Count(buf[:m], []byte("\n"))
	}

	fb := NewFeedback(func(_ context.Context, s int) (<-chan int, error) {
		out := make(chan int, 1)
		if s < n {
			out <- 1
		}
		close(out)
		return out, nil
	}).Executor(Immediate)

	var count, firstDepth, lastDepth int
	loop, err := New(0, func(s, e int) int {
		count++
		switch count {
		case 1:
			firstDepth = stackDepth()
		case n:
			lastDepth = stackDepth()
		}
		return s + e
	}, []Feedback[int, int]{fb})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	loop.ReducerExecutor(Immediate)

	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer loop.Stop()

	if count != n {
		t.Fatalf("expected %d reductions, got %d", n, count)
	}
	if s, _ := loop.Current(); s != n {
		t.Errorf("expected final state %d, got %d", n, s)
	}
	// The trampoline keeps the chain iterative: depth at reduction 10000
	// must not exceed depth at reduction 1 by more than jitter.
	if lastDepth > firstDepth+20 {
		t.Errorf("stack grew with chain length: first %d frames, last %d frames", firstDepth, lastDepth)
	}
}

func TestLoop_ReducerSingleFlight(t *testing.T) {
	mkSource := func(count int) Feedback[int, int] {
		ch := make(chan int, count)
		for i := 0; i < count; i++ {
			ch <- 1
		}
		close(ch)
		return FromChannel[int](ch)
	}

	fb1 := mkSource(100)
	fb2 := mkSource(100)
	fb3 := mkSource(100)

	var inflight atomic.Int32
	var violations atomic.Int32
	var applied atomic.Int32

	loop, err := New(0, func(s, e int) int {
		if inflight.Add(1) != 1 {
			violations.Add(1)
		}
		time.Sleep(50 * time.Microsecond)
		inflight.Add(-1)
		applied.Add(1)
		return s + e
	}, []Feedback[int, int]{fb1, fb2, fb3})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer loop.Stop()

	eventually(t, func() bool { return applied.Load() == 300 },
		fmt.Sprintf("expected 300 reductions, got %d", applied.Load()))

	if violations.Load() != 0 {
		t.Errorf("reducer ran concurrently with itself %d times", violations.Load())
	}
	if s, _ := loop.Current(); s != 300 {
		t.Errorf("expected final state 300, got %d", s)
	}
}

func TestLoop_BuilderAndDeclarativeFormsAreIdentical(t *testing.T) {
	run := func(build func() (*Loop[string, string], error)) []string {
		t.Helper()
		loop, err := build()
		if err != nil {
			t.Fatalf("construction failed: %v", err)
		}
		loop.ReducerExecutor(Immediate)
		var states []string
		loop.Subscribe(func(s string) { states = append(states, s) })
		if err := loop.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		loop.Stop()
		return states
	}

	reduce := func(s, e string) string { return s + e }

	declarative := run(func() (*Loop[string, string], error) {
		return New("s0", reduce, []Feedback[string, string]{
			appendingFeedback("a", 1),
			appendingFeedback("b", 1),
		})
	})
	built := run(func() (*Loop[string, string], error) {
		return NewBuilder[string, string]("s0").
			Feedback(appendingFeedback("a", 1)).
			Feedback(appendingFeedback("b", 1)).
			Reducer(reduce).
			Build()
	})

	if len(declarative) != len(built) {
		t.Fatalf("forms diverged: %v vs %v", declarative, built)
	}
	for i := range declarative {
		if declarative[i] != built[i] {
			t.Errorf("state %d: declarative %q, builder %q", i, declarative[i], built[i])
		}
	}
}

func TestLoop_ConstructionErrors(t *testing.T) {
	reduce := func(s, e string) string { return s + e }
	fb := appendingFeedback("a", 1)

	if _, err := New[string, string]("s0", nil, []Feedback[string, string]{fb}); !errors.Is(err, ErrNoReducer) {
		t.Errorf("expected ErrNoReducer, got %v", err)
	}
	if _, err := New("s0", reduce, nil); !errors.Is(err, ErrNoFeedbacks) {
		t.Errorf("expected ErrNoFeedbacks, got %v", err)
	}
	if _, err := New("s0", reduce, []Feedback[string, string]{}); !errors.Is(err, ErrNoFeedbacks) {
		t.Errorf("expected ErrNoFeedbacks for empty list, got %v", err)
	}
	if _, err := New("s0", reduce, []Feedback[string, string]{{}}); !errors.Is(err, ErrNilEffect) {
		t.Errorf("expected ErrNilEffect, got %v", err)
	}
	if _, err := NewBuilder[string, string]("s0").Feedback(fb).Build(); !errors.Is(err, ErrNoReducer) {
		t.Errorf("expected ErrNoReducer from builder, got %v", err)
	}
}

func TestLoop_StartTwiceFails(t *testing.T) {
	loop, err := New("s0", func(s, e string) string { return s + e },
		[]Feedback[string, string]{appendingFeedback("a", 1)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	loop.ReducerExecutor(Immediate)

	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	defer loop.Stop()

	if err := loop.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestLoop_StopIsIdempotentAndTerminal(t *testing.T) {
	var stopCalls atomic.Int32
	loop, err := New("s0", func(s, e string) string { return s + e },
		[]Feedback[string, string]{appendingFeedback("a", 1)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	loop.ReducerExecutor(Immediate).OnStop(func(final Status) {
		stopCalls.Add(1)
		if final != StatusStopped {
			t.Errorf("expected final status stopped, got %s", final)
		}
	})

	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	loop.Stop()
	loop.Stop()

	if loop.Status() != StatusStopped {
		t.Errorf("expected stopped, got %s", loop.Status())
	}
	if stopCalls.Load() != 1 {
		t.Errorf("expected OnStop once, got %d", stopCalls.Load())
	}
	if err := loop.Start(context.Background()); !errors.Is(err, ErrLoopStopped) {
		t.Errorf("expected ErrLoopStopped after stop, got %v", err)
	}
}

func TestLoop_StopBeforeStart(t *testing.T) {
	loop, err := New("s0", func(s, e string) string { return s + e },
		[]Feedback[string, string]{appendingFeedback("a", 1)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	loop.Stop()

	if loop.Status() != StatusStopped {
		t.Errorf("expected stopped, got %s", loop.Status())
	}
	if err := loop.Start(context.Background()); !errors.Is(err, ErrLoopStopped) {
		t.Errorf("expected ErrLoopStopped, got %v", err)
	}
}

func TestLoop_ContextCancelStops(t *testing.T) {
	loop, err := New("s0", func(s, e string) string { return s + e },
		[]Feedback[string, string]{appendingFeedback("a", 1)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := loop.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cancel()
	eventually(t, func() bool { return loop.Status() == StatusStopped },
		"expected loop to stop when its context was cancelled")
}

func TestLoop_SubscribeReplaysCurrentState(t *testing.T) {
	loop, err := New("s0", func(s, e string) string { return s + e },
		[]Feedback[string, string]{appendingFeedback("a", 1)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	loop.ReducerExecutor(Immediate)

	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer loop.Stop()

	var mu sync.Mutex
	var got []string
	loop.Subscribe(func(s string) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})

	mu.Lock()
	defer mu.Unlock()
	if len(got) == 0 || got[0] != "s0_a1" {
		t.Errorf("expected immediate replay of current state %q, got %v", "s0_a1", got)
	}
}

func TestLoop_LensAndSkipRepeats(t *testing.T) {
	type state struct{ A, B int }
	type event struct{ A, B int }

	var activations atomic.Int32
	lens := func(s state) int { return s.A }
	fb := NewLensFeedback(lens, func(_ context.Context, sub int) (<-chan event, error) {
		activations.Add(1)
		out := make(chan event)
		close(out)
		return out, nil
	}).SkipRepeats(func(prev, curr state) bool { return prev.A == curr.A }).Executor(Immediate)

	h, err := NewHandle(state{}, func(s state, e event) state {
		return state{A: e.A, B: e.B}
	}, []Feedback[state, event]{fb})
	if err != nil {
		t.Fatalf("NewHandle failed: %v", err)
	}

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer h.Stop()

	// Initial state: one activation.
	eventually(t, func() bool { return activations.Load() == 1 }, "expected initial activation")

	// B changes, A unchanged: skipped.
	h.Emit(event{A: 0, B: 1})
	eventually(t, func() bool {
		s, _ := h.Current()
		return s.B == 1
	}, "expected state update for B")
	if activations.Load() != 1 {
		t.Errorf("expected no activation when extracted sub-state unchanged, got %d", activations.Load())
	}

	// A changes: new activation.
	h.Emit(event{A: 5, B: 1})
	eventually(t, func() bool { return activations.Load() == 2 },
		"expected activation when extracted sub-state changed")
}

func TestLoop_FilterSuppressesActivations(t *testing.T) {
	var activations atomic.Int32
	fb := NewFeedback(func(_ context.Context, s int) (<-chan int, error) {
		activations.Add(1)
		out := make(chan int)
		close(out)
		return out, nil
	}).Filter(func(s int) bool { return s%2 == 0 }).Executor(Immediate)

	h, err := NewHandle(0, func(s, e int) int { return e }, []Feedback[int, int]{fb})
	if err != nil {
		t.Fatalf("NewHandle failed: %v", err)
	}
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer h.Stop()

	eventually(t, func() bool { return activations.Load() == 1 }, "expected activation for initial state")

	h.Emit(1)
	eventually(t, func() bool {
		s, _ := h.Current()
		return s == 1
	}, "expected state 1")
	if activations.Load() != 1 {
		t.Errorf("expected odd state to be filtered, got %d activations", activations.Load())
	}

	h.Emit(2)
	eventually(t, func() bool { return activations.Load() == 2 }, "expected activation for even state")
}

// recordingMetrics counts provider callbacks.
type recordingMetrics struct {
	NoOpMetricsProvider
	statusChanges atomic.Int32
	reduces       atomic.Int32
	received      atomic.Int32
	failures      atomic.Int32
}

func (m *recordingMetrics) OnStatusChange(_, _ Status) { m.statusChanges.Add(1) }
func (m *recordingMetrics) OnReduce(_ time.Duration)   { m.reduces.Add(1) }
func (m *recordingMetrics) OnEventReceived(_ string)   { m.received.Add(1) }
func (m *recordingMetrics) OnFeedbackFailure(_ string) { m.failures.Add(1) }

func TestLoop_MetricsProvider(t *testing.T) {
	metrics := &recordingMetrics{}

	loop, err := New("s0", func(s, e string) string { return s + e },
		[]Feedback[string, string]{appendingFeedback("a", 2)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	loop.ReducerExecutor(Immediate).Metrics(metrics)

	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	loop.Stop()

	if metrics.statusChanges.Load() != 2 {
		t.Errorf("expected 2 status changes (idle→running, running→stopped), got %d", metrics.statusChanges.Load())
	}
	if metrics.reduces.Load() != 2 {
		t.Errorf("expected 2 reductions, got %d", metrics.reduces.Load())
	}
	if metrics.received.Load() != 2 {
		t.Errorf("expected 2 events received, got %d", metrics.received.Load())
	}
}
