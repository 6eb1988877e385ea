package session

// State is the connection state of a Manager.
type State int

const (
	// Connecting means the dial is pending. It is the initial state.
	Connecting State = iota

	// Open means the connection is established and frames flow.
	Open

	// Closed means the connection ended cleanly, locally or remotely.
	Closed

	// Errored means the dial failed or the transport failed while open.
	Errored
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == Closed || s == Errored
}

// canTransition encodes the state machine:
// Connecting -> Open | Errored | Closed, Open -> Closed | Errored.
func canTransition(from, to State) bool {
	switch from {
	case Connecting:
		return to == Open || to == Errored || to == Closed
	case Open:
		return to == Closed || to == Errored
	default:
		return false
	}
}

// StateChange describes one transition.
type StateChange struct {
	From State
	To   State
	Err  error // cause of an Errored or remote Closed transition
}
