// Package engine runs one benchmark's lifecycle: global setup, warmup
// iterations, target iterations and global cleanup.
//
// The engine is single-threaded and strictly sequential. Every hook is called
// through hook.Hook.Invoke, which blocks until the hook has fully completed,
// so no two hook invocations are ever in flight and iteration i+1 never starts
// before iteration i has been cleaned up.
//
// A run cannot be cancelled once started. It ends in StateDone either after
// global cleanup or after a fatal hook failure; in the latter case global
// cleanup is still attempted and the original failure is returned.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-bench-engine/internal/hook"
)

// Phase and IterationContext are shared with the hook package so hooks
// receive the scheduler's counters by value.
type (
	Phase            = hook.Phase
	IterationContext = hook.Iteration
)

const (
	PhaseWarmup = hook.PhaseWarmup
	PhaseTarget = hook.PhaseTarget
)

// Descriptor is the unit under test. Benchmark is required, every other hook
// is optional. A Descriptor is not modified by the engine.
type Descriptor struct {
	Name             string
	Benchmark        hook.Hook
	GlobalSetup      hook.Hook
	GlobalCleanup    hook.Hook
	IterationSetup   hook.Hook
	IterationCleanup hook.Hook
}

// Hook returns the hook bound to role.
func (d Descriptor) Hook(role Role) hook.Hook {
	switch role {
	case RoleGlobalSetup:
		return d.GlobalSetup
	case RoleIterationSetup:
		return d.IterationSetup
	case RoleBenchmark:
		return d.Benchmark
	case RoleIterationCleanup:
		return d.IterationCleanup
	case RoleGlobalCleanup:
		return d.GlobalCleanup
	default:
		return hook.None()
	}
}

// Validate checks that the benchmark hook is bound.
func (d Descriptor) Validate() error {
	if !d.Benchmark.Present() {
		return &ConfigError{Err: FieldError{Field: "benchmark", Message: "is required"}}
	}
	return nil
}

// IterationResult is the measurement of one completed iteration.
type IterationResult struct {
	Iteration IterationContext

	// Elapsed is the time spent inside benchmark calls only. Setup and
	// cleanup hooks are never timed.
	Elapsed time.Duration

	// Operations is the number of benchmark calls timed.
	Operations int64
}

// PerOperation returns Elapsed divided by Operations.
func (r IterationResult) PerOperation() time.Duration {
	if r.Operations <= 0 {
		return r.Elapsed
	}
	return r.Elapsed / time.Duration(r.Operations)
}

// Recorder receives every emitted iteration result, in order, before the
// engine proceeds to the next iteration.
type Recorder interface {
	Record(IterationResult) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(IterationResult) error

func (f RecorderFunc) Record(r IterationResult) error { return f(r) }

// Callbacks contains optional observers of engine events. They run on the
// engine goroutine and must not block.
type Callbacks struct {
	// OnStateChange is called on every state transition.
	OnStateChange func(oldState, newState State)

	// OnHook is called after every setup or cleanup hook invocation, and
	// after a failed benchmark call. Successful benchmark calls are reported
	// through OnIteration instead.
	OnHook func(role Role, it IterationContext, err error)

	// OnIteration is called for every completed iteration, warmup included,
	// whether or not it is emitted.
	OnIteration func(res IterationResult)
}

// Report summarizes a run. It is returned even when the run fails.
type Report struct {
	Name string
	Plan RunPlan

	// Results holds the emitted iteration results in order.
	Results []IterationResult

	// Completed counts iterations that finished their cleanup.
	Completed int

	Duration time.Duration
}

// Targets returns the target-phase results.
func (r Report) Targets() []IterationResult {
	out := make([]IterationResult, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Iteration.Phase == PhaseTarget {
			out = append(out, res)
		}
	}
	return out
}

// Config holds configuration for creating a new Engine.
type Config struct {
	Descriptor Descriptor
	Plan       RunPlan

	// Recorder is optional; without one results are only kept in the Report.
	Recorder Recorder

	// Clock defaults to the real clock.
	Clock Clock

	// Logger defaults to a discarding logger.
	Logger *slog.Logger

	Callbacks Callbacks
}

// Engine runs one benchmark once.
type Engine struct {
	desc      Descriptor
	plan      RunPlan
	recorder  Recorder
	clock     Clock
	logger    *slog.Logger
	callbacks Callbacks

	state   State
	stateMu sync.RWMutex

	ran atomic.Bool
}

// New validates the plan and descriptor and returns an idle Engine. Invalid
// configuration is rejected here, before any hook can run.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Plan.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Descriptor.Validate(); err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Engine{
		desc:      cfg.Descriptor,
		plan:      cfg.Plan,
		recorder:  cfg.Recorder,
		clock:     clock,
		logger:    logger,
		callbacks: cfg.Callbacks,
		state:     StateIdle,
	}, nil
}

// Run executes the whole lifecycle and returns when the engine is Done.
//
// The returned error is nil, a *HookError or a *RecordError. If global
// cleanup fails after an earlier failure, the earlier failure is returned
// and the cleanup failure is only logged.
func (e *Engine) Run() (Report, error) {
	if !e.ran.CompareAndSwap(false, true) {
		return Report{}, ErrAlreadyRun
	}

	report := Report{Name: e.desc.Name, Plan: e.plan}
	start := e.clock.Now()

	e.logger.Info("run_starting",
		"benchmark", e.desc.Name,
		"strategy", e.plan.Strategy.String(),
		"warmup_count", e.plan.EffectiveWarmupCount(),
		"target_count", e.plan.TargetCount,
		"invocations_per_iteration", e.plan.InvocationsPerIteration,
		"unroll_factor", e.plan.UnrollFactor,
	)

	err := e.runPhases(&report)
	if err != nil {
		e.logger.Error("run_aborted",
			"benchmark", e.desc.Name,
			"state", e.State().String(),
			"completed", report.Completed,
			"error", err,
		)
	}

	e.setState(StateGlobalCleanup)
	if cleanupErr := e.invoke(RoleGlobalCleanup, IterationContext{}); cleanupErr != nil {
		if err == nil {
			err = cleanupErr
		} else {
			e.logger.Warn("global_cleanup_failed_after_abort",
				"benchmark", e.desc.Name,
				"error", cleanupErr,
			)
		}
	}

	e.setState(StateDone)
	report.Duration = e.clock.Now().Sub(start)

	if err == nil {
		e.logger.Info("run_completed",
			"benchmark", e.desc.Name,
			"iterations", report.Completed,
			"emitted", len(report.Results),
			"duration", report.Duration.String(),
		)
	}
	return report, err
}

// State returns the current engine state. Safe for concurrent use.
func (e *Engine) State() State {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

// Plan returns the run plan.
func (e *Engine) Plan() RunPlan {
	return e.plan
}

func (e *Engine) setState(newState State) {
	e.stateMu.Lock()
	oldState := e.state
	e.state = newState
	e.stateMu.Unlock()

	if oldState == newState {
		return
	}
	e.logger.Debug("phase_changed",
		"benchmark", e.desc.Name,
		"from", oldState.String(),
		"to", newState.String(),
	)
	if e.callbacks.OnStateChange != nil {
		e.callbacks.OnStateChange(oldState, newState)
	}
}

// runPhases runs global setup and both iteration phases. Global cleanup is
// left to the caller so it runs on every path.
func (e *Engine) runPhases(report *Report) error {
	e.setState(StateGlobalSetup)
	if err := e.invoke(RoleGlobalSetup, IterationContext{}); err != nil {
		return err
	}

	phases := []struct {
		phase Phase
		state State
		count int
	}{
		{PhaseWarmup, StateWarming, e.plan.EffectiveWarmupCount()},
		{PhaseTarget, StateTargeting, e.plan.TargetCount},
	}

	// The global index is shared by both phases.
	index := 0
	for _, p := range phases {
		// An empty phase is skipped, so GlobalSetup goes straight to Targeting.
		if p.count == 0 {
			continue
		}
		e.setState(p.state)
		for local := 1; local <= p.count; local++ {
			index++
			it := IterationContext{Phase: p.phase, Index: index, PhaseIndex: local}

			res, err := e.runIteration(it)
			if err != nil {
				return err
			}
			report.Completed++

			if err := e.emit(report, res); err != nil {
				return err
			}
		}
	}
	return nil
}

// runIteration runs setup, the timed benchmark calls and cleanup for one
// iteration. A failure stops the iteration immediately.
func (e *Engine) runIteration(it IterationContext) (IterationResult, error) {
	res := IterationResult{Iteration: it}
	unroll := int64(e.plan.UnrollFactor)

	if e.plan.Strategy.bracketsInvocations() {
		for inv := 0; inv < e.plan.InvocationsPerIteration; inv++ {
			if err := e.invoke(RoleIterationSetup, it); err != nil {
				return res, err
			}
			elapsed, err := e.measure(it, unroll)
			res.Elapsed += elapsed
			if err != nil {
				return res, err
			}
			res.Operations += unroll
			if err := e.invoke(RoleIterationCleanup, it); err != nil {
				return res, err
			}
		}
		return res, nil
	}

	if err := e.invoke(RoleIterationSetup, it); err != nil {
		return res, err
	}
	ops := e.plan.OperationsPerIteration()
	elapsed, err := e.measure(it, ops)
	res.Elapsed = elapsed
	if err != nil {
		return res, err
	}
	res.Operations = ops
	if err := e.invoke(RoleIterationCleanup, it); err != nil {
		return res, err
	}
	return res, nil
}

// measure calls the benchmark n times and returns the time spent.
func (e *Engine) measure(it IterationContext, n int64) (time.Duration, error) {
	bench := e.desc.Benchmark
	start := e.clock.Now()
	for k := int64(0); k < n; k++ {
		if err := bench.Invoke(it); err != nil {
			elapsed := e.clock.Now().Sub(start)
			if e.callbacks.OnHook != nil {
				e.callbacks.OnHook(RoleBenchmark, it, err)
			}
			return elapsed, e.hookFailed(RoleBenchmark, bench.Kind(), it, err)
		}
	}
	return e.clock.Now().Sub(start), nil
}

// invoke calls the hook bound to role. Absent hooks are skipped without
// touching any counter.
func (e *Engine) invoke(role Role, it IterationContext) error {
	h := e.desc.Hook(role)
	if !h.Present() {
		return nil
	}

	err := h.Invoke(it)
	if e.callbacks.OnHook != nil {
		e.callbacks.OnHook(role, it, err)
	}
	if err != nil {
		return e.hookFailed(role, h.Kind(), it, err)
	}
	return nil
}

func (e *Engine) hookFailed(role Role, kind hook.Kind, it IterationContext, err error) error {
	herr := &HookError{Role: role, Kind: kind, Iteration: it, Err: err}

	attrs := []any{
		"benchmark", e.desc.Name,
		"hook", role.String(),
		"kind", kind.String(),
		"error", err,
	}
	if !it.IsZero() {
		attrs = append(attrs, "phase", it.Phase.String(), "iteration", it.Index, "phase_index", it.PhaseIndex)
	}
	e.logger.Error("hook_failed", attrs...)
	return herr
}

// emit hands a completed iteration to observers and, unless it is a
// discarded warmup iteration, to the recorder.
func (e *Engine) emit(report *Report, res IterationResult) error {
	if e.callbacks.OnIteration != nil {
		e.callbacks.OnIteration(res)
	}
	if res.Iteration.Phase == PhaseWarmup && !e.plan.EmitWarmup {
		return nil
	}

	report.Results = append(report.Results, res)
	if e.recorder == nil {
		return nil
	}
	if err := e.recorder.Record(res); err != nil {
		e.logger.Error("record_failed",
			"benchmark", e.desc.Name,
			"iteration", res.Iteration.Index,
			"error", err,
		)
		return &RecordError{Iteration: res.Iteration, Err: fmt.Errorf("recorder: %w", err)}
	}
	return nil
}
