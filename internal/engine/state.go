package engine

// State is the phase of an engine run.
type State int

const (
	// StateIdle is the initial state before Run.
	StateIdle State = iota

	// StateGlobalSetup runs the global setup hook.
	StateGlobalSetup

	// StateWarming runs warmup iterations.
	StateWarming

	// StateTargeting runs measured iterations.
	StateTargeting

	// StateGlobalCleanup runs the global cleanup hook.
	StateGlobalCleanup

	// StateDone is terminal, reached by successful and aborted runs alike.
	StateDone
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGlobalSetup:
		return "global_setup"
	case StateWarming:
		return "warming"
	case StateTargeting:
		return "targeting"
	case StateGlobalCleanup:
		return "global_cleanup"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// IsIterating returns true while warmup or target iterations run.
func (s State) IsIterating() bool {
	return s == StateWarming || s == StateTargeting
}

// IsTerminal returns true if the run has finished.
func (s State) IsTerminal() bool {
	return s == StateDone
}

// Role names the lifecycle slot a hook is bound to.
type Role int

const (
	RoleGlobalSetup Role = iota
	RoleIterationSetup
	RoleBenchmark
	RoleIterationCleanup
	RoleGlobalCleanup
)

// String returns the hook name as used in logs and metrics labels.
func (r Role) String() string {
	switch r {
	case RoleGlobalSetup:
		return "GlobalSetup"
	case RoleIterationSetup:
		return "IterationSetup"
	case RoleBenchmark:
		return "Benchmark"
	case RoleIterationCleanup:
		return "IterationCleanup"
	case RoleGlobalCleanup:
		return "GlobalCleanup"
	default:
		return "Unknown"
	}
}

// Roles lists every role in lifecycle order.
func Roles() []Role {
	return []Role{RoleGlobalSetup, RoleIterationSetup, RoleBenchmark, RoleIterationCleanup, RoleGlobalCleanup}
}
