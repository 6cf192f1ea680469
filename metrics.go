package gyre

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus, StatsD, etc.
// Implement this interface to receive callbacks on key loop events.
type MetricsProvider interface {
	// OnStatusChange is called when the loop transitions between lifecycle states.
	OnStatusChange(from, to Status)

	// OnEventReceived is called when an event from the named feedback reaches
	// the reducer context.
	OnEventReceived(feedback string)

	// OnEventDropped is called when an event is discarded before reduction:
	// its activation was cancelled, the loop stopped, or the event middleware
	// rejected it.
	OnEventDropped(feedback string)

	// OnReduce is called after each reducer application with the time the
	// transition took.
	OnReduce(duration time.Duration)

	// OnFeedbackFailure is called when a feedback's effect fails terminally.
	OnFeedbackFailure(feedback string)
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnStatusChange(_, _ Status) {}
func (NoOpMetricsProvider) OnEventReceived(_ string)   {}
func (NoOpMetricsProvider) OnEventDropped(_ string)    {}
func (NoOpMetricsProvider) OnReduce(_ time.Duration)   {}
func (NoOpMetricsProvider) OnFeedbackFailure(_ string) {}
