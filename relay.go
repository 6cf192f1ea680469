package gyre

import (
	"sync"
	"sync/atomic"
)

// relay is the cyclic state broadcaster. It holds the single authoritative
// "current state" slot and notifies subscribers of every published state in
// registration order.
//
// Publishing while a broadcast is in progress (re-entrantly from a
// subscriber, or concurrently from another goroutine) appends the state to a
// FIFO queue instead of recursing. The goroutine that owns the broadcast
// drains the queue iteratively, so the call stack stays bounded no matter
// how many transitions chain together, and notifications are strictly
// sequential.
type relay[S any] struct {
	mu           sync.Mutex
	subscribers  []*subscription[S]
	pending      []broadcastItem[S]
	broadcasting bool
	closed       bool
	current      S
	hasCurrent   bool
}

type subscription[S any] struct {
	notify func(S)
	active atomic.Bool
}

// broadcastItem is one unit of delivery work. A nil only means "notify every
// subscriber"; a non-nil only is a replay of the current state to a single
// late subscriber, serialized through the same queue so it cannot interleave
// with a regular broadcast.
type broadcastItem[S any] struct {
	state S
	only  *subscription[S]
}

func newRelay[S any]() *relay[S] {
	return &relay[S]{}
}

// publish delivers state to every subscriber, or queues it if a broadcast is
// already in progress. States are delivered in the order they were published;
// none are lost or duplicated. After close, publish is a no-op.
func (r *relay[S]) publish(state S) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if r.broadcasting {
		r.pending = append(r.pending, broadcastItem[S]{state: state})
		r.mu.Unlock()
		return
	}
	r.broadcasting = true
	r.drain(broadcastItem[S]{state: state})
}

// subscribe registers fn and returns an unsubscribe function. If replay is
// true and a current state exists, fn receives it through the broadcast
// queue before any later state.
func (r *relay[S]) subscribe(fn func(S), replay bool) func() {
	sub := &subscription[S]{notify: fn}
	sub.active.Store(true)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return func() {}
	}
	r.subscribers = append(r.subscribers, sub)

	if replay && r.hasCurrent {
		item := broadcastItem[S]{state: r.current, only: sub}
		if r.broadcasting {
			r.pending = append(r.pending, item)
			r.mu.Unlock()
		} else {
			r.broadcasting = true
			r.drain(item)
		}
	} else {
		r.mu.Unlock()
	}

	return func() {
		sub.active.Store(false)
		r.mu.Lock()
		for i, s := range r.subscribers {
			if s == sub {
				r.subscribers = append(r.subscribers[:i], r.subscribers[i+1:]...)
				break
			}
		}
		r.mu.Unlock()
	}
}

// latest returns the most recently broadcast state, if any.
func (r *relay[S]) latest() (S, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, r.hasCurrent
}

// close drops the pending queue and stops all further broadcasts. The
// current slot keeps its last value so the final state remains readable.
func (r *relay[S]) close() {
	r.mu.Lock()
	r.closed = true
	r.pending = nil
	r.subscribers = nil
	r.mu.Unlock()
}

// drain is the trampoline. It is entered with r.mu held and broadcasting
// set, and returns with r.mu released and broadcasting cleared. Subscriber
// callbacks run outside the lock; anything they publish lands on the pending
// queue and is picked up by the next iteration.
func (r *relay[S]) drain(item broadcastItem[S]) {
	for {
		var targets []*subscription[S]
		if item.only != nil {
			targets = []*subscription[S]{item.only}
		} else {
			r.current = item.state
			r.hasCurrent = true
			targets = make([]*subscription[S], len(r.subscribers))
			copy(targets, r.subscribers)
		}
		r.mu.Unlock()

		for _, sub := range targets {
			if sub.active.Load() {
				sub.notify(item.state)
			}
		}

		r.mu.Lock()
		if r.closed {
			r.pending = nil
		}
		if len(r.pending) == 0 {
			r.broadcasting = false
			r.mu.Unlock()
			return
		}
		item = r.pending[0]
		r.pending = r.pending[1:]
	}
}
