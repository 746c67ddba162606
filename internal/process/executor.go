package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/randomizedcoder/go-bench-engine/internal/logging"
	"github.com/randomizedcoder/go-bench-engine/internal/protocol"
)

// ErrProcessFailed matches errors for a measurement process that exited
// non-zero or could not be started.
var ErrProcessFailed = errors.New("measurement process failed")

// DefaultWaitDelay is how long a stopped process gets between SIGTERM and
// SIGKILL.
const DefaultWaitDelay = 5 * time.Second

// Callbacks contains optional callback functions for executor events.
type Callbacks struct {
	// OnStateChange is called when the process state changes.
	OnStateChange func(oldState, newState State)

	// OnStart is called when the process starts.
	OnStart func(pid int)

	// OnExit is called when the process has been waited for.
	OnExit func(exitCode int, uptime time.Duration)
}

// ExecutorConfig holds configuration for an Executor.
type ExecutorConfig struct {
	Runner Runner

	// Parser receives every stdout line. Required.
	Parser *protocol.Parser

	// Output receives stderr lines. Pass-through stdout lines reach it only
	// if the parser's callbacks forward them.
	Output *logging.OutputHandler

	Logger    *slog.Logger
	Callbacks Callbacks

	// WaitDelay overrides DefaultWaitDelay.
	WaitDelay time.Duration
}

// Executor runs one measurement process: stdout is fed to the protocol
// parser, stderr to the output handler, and the process is waited for once
// both streams are drained. A protocol desync terminates the process.
type Executor struct {
	runner    Runner
	parser    *protocol.Parser
	output    *logging.OutputHandler
	logger    *slog.Logger
	callbacks Callbacks
	waitDelay time.Duration

	stateMu sync.RWMutex
	state   State
}

// NewExecutor creates an executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	output := cfg.Output
	if output == nil {
		output = logging.NewOutputHandler(logger, false)
	}
	waitDelay := cfg.WaitDelay
	if waitDelay <= 0 {
		waitDelay = DefaultWaitDelay
	}
	return &Executor{
		runner:    cfg.Runner,
		parser:    cfg.Parser,
		output:    output,
		logger:    logger,
		callbacks: cfg.Callbacks,
		waitDelay: waitDelay,
	}
}

// Run starts the process and blocks until it has exited and both output
// streams are drained. The returned error is, in order of precedence, the
// protocol desync, the context error, or ErrProcessFailed.
func (e *Executor) Run(ctx context.Context) (Result, error) {
	result := Result{ExitCode: -1}
	if e.runner == nil || e.parser == nil {
		return result, errors.New("executor requires a runner and a parser")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.setState(StateStarting)

	cmd, err := e.runner.BuildCommand(runCtx)
	if err != nil {
		e.logger.Error("failed_to_build_command", "runner", e.runner.Name(), "error", err)
		e.setState(StateExited)
		return result, fmt.Errorf("%w: build command: %v", ErrProcessFailed, err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		e.setState(StateExited)
		return result, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		e.setState(StateExited)
		return result, fmt.Errorf("stderr pipe: %w", err)
	}

	// Own process group so a stop reaches anything the benchmark spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		e.setState(StateStopping)
		return signalGroup(cmd.Process, syscall.SIGTERM)
	}
	cmd.WaitDelay = e.waitDelay

	if err := cmd.Start(); err != nil {
		e.logger.Error("failed_to_start_process", "runner", e.runner.Name(), "error", err)
		e.setState(StateExited)
		return result, fmt.Errorf("%w: start: %v", ErrProcessFailed, err)
	}

	result.PID = cmd.Process.Pid
	result.StartTime = time.Now()
	e.setState(StateRunning)
	e.logger.Info("process_started", "runner", e.runner.Name(), "pid", result.PID)
	if e.callbacks.OnStart != nil {
		e.callbacks.OnStart(result.PID)
	}

	var g errgroup.Group
	g.Go(func() error {
		err := protocol.NewReader(stdout, e.parser).Run()
		if err != nil {
			e.logger.Error("protocol_desync", "pid", result.PID, "error", err)
			cancel()
		}
		return err
	})
	g.Go(func() error {
		err := e.output.HandleReader(logging.StreamStderr, stderr)
		if err != nil {
			// Nothing drains stderr any more, so stop the child before it blocks.
			e.logger.Error("stderr_read_failed", "pid", result.PID, "error", err)
			cancel()
		}
		return err
	})
	readErr := g.Wait()

	waitErr := cmd.Wait()
	result.EndTime = time.Now()
	result.ExitCode = extractExitCode(waitErr)
	e.setState(StateExited)

	e.logger.Info("process_exited",
		"pid", result.PID,
		"exit_code", result.ExitCode,
		"uptime", result.Duration().String(),
	)
	if e.callbacks.OnExit != nil {
		e.callbacks.OnExit(result.ExitCode, result.Duration())
	}

	switch {
	case errors.Is(readErr, protocol.ErrDesync):
		return result, readErr
	case ctx.Err() != nil:
		return result, fmt.Errorf("measurement process stopped: %w", ctx.Err())
	case result.ExitCode != 0:
		return result, fmt.Errorf("%w: exit code %d", ErrProcessFailed, result.ExitCode)
	case readErr != nil:
		return result, readErr
	}
	return result, nil
}

// State returns the current process state.
func (e *Executor) State() State {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

// setState updates the state and calls the callback if registered.
func (e *Executor) setState(newState State) {
	e.stateMu.Lock()
	oldState := e.state
	e.state = newState
	e.stateMu.Unlock()

	if e.callbacks.OnStateChange != nil && oldState != newState {
		e.callbacks.OnStateChange(oldState, newState)
	}
}

// signalGroup signals the process group of p, falling back to p alone.
func signalGroup(p *os.Process, sig syscall.Signal) error {
	if p == nil {
		return nil
	}
	if pgid, err := syscall.Getpgid(p.Pid); err == nil {
		if err := syscall.Kill(-pgid, sig); !errors.Is(err, syscall.ESRCH) {
			return err
		}
		return os.ErrProcessDone
	}
	return p.Signal(sig)
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error, assume exit code 1
	return 1
}
