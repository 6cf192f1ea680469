package gyre

import (
	"context"

	"github.com/zoobzio/streamz"
)

// Pipe runs an event channel through a sequence of streamz processors.
// Use it to shape an external event source before handing it to
// FromChannel: buffering bursts, throttling, or dropping events the loop
// should never see.
//
//	shaped := gyre.Pipe(ctx, raw,
//	    streamz.NewBuffer[Event](1000),
//	    streamz.NewThrottle[Event](50.0),
//	)
//	fb := gyre.FromChannel[State](shaped)
//
// The returned channel closes when the input closes or ctx is cancelled.
func Pipe[E any](ctx context.Context, in <-chan E, processors ...streamz.Processor[E, E]) <-chan E {
	current := in
	for _, proc := range processors {
		current = proc.Process(ctx, current)
	}
	return current
}
