package gyre

// Status represents the lifecycle state of a Loop.
type Status int32

const (
	// StatusIdle indicates the Loop has been constructed but not started.
	StatusIdle Status = iota

	// StatusRunning indicates the Loop is broadcasting states and its
	// feedbacks are subscribed.
	StatusRunning

	// StatusStopped indicates the Loop has been stopped. This state is
	// terminal; a stopped Loop cannot be restarted.
	StatusStopped
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
