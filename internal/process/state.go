package process

// State represents the current state of the measurement process.
type State int

const (
	// StateCreated is the initial state before the process has started.
	StateCreated State = iota

	// StateStarting indicates the process is being spawned.
	StateStarting

	// StateRunning indicates the process is running and being read.
	StateRunning

	// StateStopping indicates the process is being terminated early, after
	// a protocol desync or a cancelled context.
	StateStopping

	// StateExited indicates the process has been waited for.
	StateExited
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// IsActive returns true while a process may be alive.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}

// IsTerminal returns true once the process has been waited for.
func (s State) IsTerminal() bool {
	return s == StateExited
}
