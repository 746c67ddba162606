// Package process builds and runs the measurement process.
package process

import (
	"context"
	"os/exec"
	"time"
)

// Runner creates executable commands for the measurement process.
// This interface allows the executor to be process-agnostic.
type Runner interface {
	// BuildCommand returns a ready-to-start command.
	// The command should NOT be started yet.
	BuildCommand(ctx context.Context) (*exec.Cmd, error)

	// Name returns a human-readable name for this process type.
	Name() string
}

// Result captures the outcome of a process execution.
type Result struct {
	PID       int
	ExitCode  int // -1 if the process never started
	StartTime time.Time
	EndTime   time.Time
}

// Duration returns the wall time between start and exit.
func (r Result) Duration() time.Duration {
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}
