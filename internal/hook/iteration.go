package hook

import "fmt"

// Phase is the lifecycle phase an iteration belongs to.
type Phase int

const (
	// PhaseNone marks invocations outside any iteration (global setup and
	// cleanup).
	PhaseNone Phase = iota

	// PhaseWarmup iterations stabilize the system; their measurements are
	// discarded unless explicitly emitted.
	PhaseWarmup

	// PhaseTarget iterations produce the reported measurements.
	PhaseTarget
)

// String returns a human-readable name for the phase.
func (p Phase) String() string {
	switch p {
	case PhaseNone:
		return "none"
	case PhaseWarmup:
		return "warmup"
	case PhaseTarget:
		return "target"
	default:
		return "unknown"
	}
}

// Iteration identifies one iteration of a run. It is passed by value into
// every hook invocation; global hooks receive the zero value.
type Iteration struct {
	// Phase of the iteration.
	Phase Phase

	// Index is the run-wide iteration number, starting at 1. It is never
	// reset at the warmup/target boundary.
	Index int

	// PhaseIndex is the iteration number within Phase, starting at 1.
	PhaseIndex int
}

// IsZero reports whether it is the zero Iteration (a global hook call).
func (it Iteration) IsZero() bool {
	return it == Iteration{}
}

// String formats the iteration as "target#2 (5)".
func (it Iteration) String() string {
	if it.IsZero() {
		return "global"
	}
	return fmt.Sprintf("%s#%d (%d)", it.Phase, it.PhaseIndex, it.Index)
}
