package gyre

import (
	"context"
	"fmt"

	"github.com/zoobzio/capitan"
)

// Watcher observes an external source and emits raw bytes on a channel.
// Watchers are how backend adapters (files, KV stores, brokers) feed events
// into a loop without the core depending on any particular client library:
// an adapter implements Watcher out-of-module and is wired in through
// FromWatcher.
type Watcher interface {
	// Watch begins observing the source and returns a channel that emits
	// raw bytes when changes occur. The channel is closed when the context
	// is canceled or an unrecoverable error occurs.
	Watch(ctx context.Context) (<-chan []byte, error)
}

// ChannelWatcher wraps an existing byte channel as a Watcher.
// Useful for testing and custom sources that already produce bytes.
type ChannelWatcher struct {
	ch <-chan []byte
}

// NewChannelWatcher creates a ChannelWatcher over the given channel.
func NewChannelWatcher(ch <-chan []byte) *ChannelWatcher {
	return &ChannelWatcher{ch: ch}
}

// Watch returns a channel that emits values from the wrapped channel.
func (w *ChannelWatcher) Watch(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-w.ch:
				if !ok {
					return
				}
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// FromWatcher creates a state-independent feedback that decodes each payload
// the watcher emits into a P using codec, then emits fn(payload). Payloads
// that fail to decode or that fn rejects are skipped with a
// SourceDecodeFailed signal; the source keeps running.
//
// If the watcher fails to start, Loop.Start reports the error.
func FromWatcher[S, E, P any](w Watcher, codec Codec, fn func(P) (E, error)) Feedback[S, E] {
	return Feedback[S, E]{
		name:     "watcher",
		executor: Concurrent,
		source: func(ctx context.Context) (<-chan E, error) {
			raw, err := w.Watch(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to start watcher: %w", err)
			}

			out := make(chan E)
			go func() {
				defer close(out)
				for data := range raw {
					var payload P
					if err := codec.Unmarshal(data, &payload); err != nil {
						capitan.Emit(ctx, SourceDecodeFailed,
							KeyError.Field(err.Error()),
						)
						continue
					}
					event, err := fn(payload)
					if err != nil {
						capitan.Emit(ctx, SourceDecodeFailed,
							KeyError.Field(err.Error()),
						)
						continue
					}
					select {
					case out <- event:
					case <-ctx.Done():
						return
					}
				}
			}()
			return out, nil
		},
	}
}
