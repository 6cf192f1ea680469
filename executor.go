package gyre

import "sync"

// Executor is the execution-context capability: an opaque handle on which
// closures can be scheduled. The core only requires "run this closure on
// context C"; it never inspects the context itself.
//
// Implementations decide ordering and concurrency. SerialExecutor runs
// closures strictly one at a time, Concurrent runs each on its own
// goroutine, and Immediate runs them inline on the caller.
type Executor interface {
	// Schedule submits fn for execution. Submission is fire-and-forget:
	// implementations other than Immediate must not block the caller on
	// fn's completion.
	Schedule(fn func())
}

// Immediate runs closures inline on the calling goroutine. Use it for
// effects that are cheap and synchronous, and in tests where fully
// deterministic single-goroutine execution is required.
var Immediate Executor = immediateExecutor{}

type immediateExecutor struct{}

func (immediateExecutor) Schedule(fn func()) { fn() }

// Concurrent runs every closure on its own goroutine. This is the default
// execution context for feedback effects: overlapping activations of a
// feedback can genuinely run in parallel.
var Concurrent Executor = concurrentExecutor{}

type concurrentExecutor struct{}

func (concurrentExecutor) Schedule(fn func()) { go fn() }

// SerialExecutor runs closures one at a time, in submission order, on a
// dedicated goroutine. Schedule never blocks; the queue is unbounded.
//
// A SerialExecutor is the default reducer context: it is what makes
// "exactly one reducer application in flight at a time" hold even when
// events arrive from concurrently running effects.
type SerialExecutor struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// NewSerialExecutor creates a SerialExecutor and starts its goroutine.
func NewSerialExecutor() *SerialExecutor {
	e := &SerialExecutor{done: make(chan struct{})}
	e.cond = sync.NewCond(&e.mu)
	go e.run()
	return e
}

// Schedule enqueues fn. Closures submitted after Close are dropped.
func (e *SerialExecutor) Schedule(fn func()) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue, fn)
	e.cond.Signal()
	e.mu.Unlock()
}

// Close stops accepting new work. Already-queued closures still run, then
// the executor goroutine exits. Close is idempotent and does not block.
func (e *SerialExecutor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.cond.Signal()
	e.mu.Unlock()
}

// Done returns a channel that is closed once the executor goroutine has
// drained its queue and exited.
func (e *SerialExecutor) Done() <-chan struct{} {
	return e.done
}

func (e *SerialExecutor) run() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		fn := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()
		fn()
	}
}
