package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// MeasureRunner implements Runner by re-executing a go-bench-engine binary
// in measurement mode.
type MeasureRunner struct {
	binaryPath string
	args       []string
	env        []string
}

// NewMeasureRunner creates a runner for binaryPath with args. An empty
// binaryPath selects the running executable.
func NewMeasureRunner(binaryPath string, args []string) (*MeasureRunner, error) {
	if binaryPath == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve own executable: %w", err)
		}
		binaryPath = self
	}
	return &MeasureRunner{
		binaryPath: binaryPath,
		args:       append([]string(nil), args...),
	}, nil
}

// WithEnv adds KEY=VALUE entries to the inherited environment.
func (r *MeasureRunner) WithEnv(kv ...string) *MeasureRunner {
	r.env = append(r.env, kv...)
	return r
}

// Name returns "measure".
func (r *MeasureRunner) Name() string {
	return "measure"
}

// BinaryPath returns the resolved binary.
func (r *MeasureRunner) BinaryPath() string {
	return r.binaryPath
}

// Args returns a copy of the command-line arguments.
func (r *MeasureRunner) Args() []string {
	return append([]string(nil), r.args...)
}

// BuildCommand creates the exec.Cmd for the measurement process.
func (r *MeasureRunner) BuildCommand(ctx context.Context) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, r.binaryPath, r.args...)
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}
	return cmd, nil
}

// CommandString returns the command that would be executed (for debugging).
func (r *MeasureRunner) CommandString() string {
	parts := make([]string, 0, len(r.args)+1)
	parts = append(parts, shellQuote(r.binaryPath))
	for _, a := range r.args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

// shellQuote quotes s for a POSIX shell when needed.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`*?[]{}()<>|&;#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
