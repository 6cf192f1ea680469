package gyre

import "errors"

// Construction and lifecycle errors.
var (
	// ErrNoReducer is returned when a loop is constructed without a reducer.
	ErrNoReducer = errors.New("gyre: reducer is required")

	// ErrNoFeedbacks is returned when a loop is constructed with an empty
	// feedback list.
	ErrNoFeedbacks = errors.New("gyre: at least one feedback is required")

	// ErrNilEffect is returned when a feedback carries neither an effect
	// nor an event source.
	ErrNilEffect = errors.New("gyre: feedback has no effect")

	// ErrAlreadyStarted is returned by Start on a loop that is already running.
	ErrAlreadyStarted = errors.New("gyre: loop already started")

	// ErrLoopStopped is returned by Start on a loop that has been stopped.
	// A stopped loop is terminal; construct a new one to run again.
	ErrLoopStopped = errors.New("gyre: loop is stopped")
)
