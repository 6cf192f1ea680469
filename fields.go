package gyre

import "github.com/zoobzio/capitan"

// Field keys for Loop events.
var (
	// KeyFeedback is the name of the feedback that produced an event.
	KeyFeedback = capitan.NewStringKey("feedback")

	// KeyPolicy is the execution policy of a feedback.
	KeyPolicy = capitan.NewStringKey("policy")

	// KeyStatus is the loop status at the time of the event.
	KeyStatus = capitan.NewStringKey("status")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeyFeedbackCount is the number of feedbacks attached to a loop.
	KeyFeedbackCount = capitan.NewIntKey("feedback_count")

	// KeyReduceDuration is the time a reducer application took.
	KeyReduceDuration = capitan.NewDurationKey("reduce_duration")
)
