package gyre

// Policy governs what happens to an in-flight effect activation when the
// state that spawned it is superseded by a newer state.
type Policy int32

const (
	// ContinueOnNewState lets overlapping activations run independently to
	// completion. Every event they eventually produce reaches the reducer,
	// each attributed to the state that spawned it. This is the default.
	ContinueOnNewState Policy = iota

	// CancelOnNewState cancels the prior activation when a newer state
	// arrives. In-flight work is abandoned and any event the cancelled
	// activation later produces is discarded. Models a latest-wins switch.
	CancelOnNewState
)

// String returns the string representation of the policy.
func (p Policy) String() string {
	switch p {
	case ContinueOnNewState:
		return "continue-on-new-state"
	case CancelOnNewState:
		return "cancel-on-new-state"
	default:
		return "unknown"
	}
}
