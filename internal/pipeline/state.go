package pipeline

// State is the lifecycle state of a Pipeline. A pipeline runs once:
// Idle → Running → Stopped.
type State int

const (
	// StateIdle is the state before Start.
	StateIdle State = iota

	// StateRunning means the three workers have been spawned.
	StateRunning

	// StateStopped is terminal. Workers may still be draining until Stop
	// returns or Done is closed.
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateStopped
}
