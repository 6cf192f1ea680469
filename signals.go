package gyre

import "github.com/zoobzio/capitan"

// Loop lifecycle signals.
var (
	// LoopStarted is emitted when a Loop begins broadcasting.
	LoopStarted = capitan.NewSignal(
		"gyre.loop.started",
		"Loop started",
	)

	// LoopStopped is emitted when a Loop stops.
	LoopStopped = capitan.NewSignal(
		"gyre.loop.stopped",
		"Loop stopped",
	)
)

// Event processing signals.
var (
	// EventReceived is emitted when an event reaches the reducer context.
	EventReceived = capitan.NewSignal(
		"gyre.event.received",
		"Event received from a feedback",
	)

	// EventDropped is emitted when an event is discarded: its activation
	// was cancelled, the loop stopped, or the event middleware rejected it.
	EventDropped = capitan.NewSignal(
		"gyre.event.dropped",
		"Event discarded before reduction",
	)

	// ReducerApplied is emitted after each reducer application.
	ReducerApplied = capitan.NewSignal(
		"gyre.reducer.applied",
		"Reducer produced a new state",
	)
)

// Feedback signals.
var (
	// FeedbackFailed is emitted when a feedback's effect reports a terminal
	// failure. The feedback produces no further events; the loop continues.
	FeedbackFailed = capitan.NewSignal(
		"gyre.feedback.failed",
		"Feedback effect failed terminally",
	)

	// SourceDecodeFailed is emitted when a watcher-backed feedback cannot
	// decode a payload. The payload is skipped; the source keeps running.
	SourceDecodeFailed = capitan.NewSignal(
		"gyre.source.decode.failed",
		"Watcher payload decode failed",
	)
)
