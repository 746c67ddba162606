package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Strategy selects how iterations are shaped.
type Strategy int

const (
	// StrategyThroughput runs warmup and target phases; iteration setup and
	// cleanup bracket the whole iteration.
	StrategyThroughput Strategy = iota

	// StrategyColdStart skips the warmup phase; iteration setup and cleanup
	// bracket every invocation.
	StrategyColdStart

	// StrategyMonitoring runs warmup and target phases; iteration setup and
	// cleanup bracket every invocation.
	StrategyMonitoring
)

// String returns the strategy name as accepted by ParseStrategy.
func (s Strategy) String() string {
	switch s {
	case StrategyThroughput:
		return "throughput"
	case StrategyColdStart:
		return "coldstart"
	case StrategyMonitoring:
		return "monitoring"
	default:
		return "unknown"
	}
}

// ParseStrategy parses a strategy name, case-insensitively.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "throughput", "":
		return StrategyThroughput, nil
	case "coldstart", "cold-start", "cold_start":
		return StrategyColdStart, nil
	case "monitoring":
		return StrategyMonitoring, nil
	default:
		return 0, fmt.Errorf("unknown run strategy %q", s)
	}
}

// runsWarmup reports whether the strategy has a warmup phase.
func (s Strategy) runsWarmup() bool {
	return s != StrategyColdStart
}

// bracketsInvocations reports whether iteration setup and cleanup run around
// every invocation rather than once per iteration.
func (s Strategy) bracketsInvocations() bool {
	return s == StrategyColdStart || s == StrategyMonitoring
}

// RunPlan holds the phase counts and invocation shape of one run.
// It is produced by the configuration layer and immutable for the run.
type RunPlan struct {
	// WarmupCount is the number of warmup iterations (>= 0).
	WarmupCount int

	// TargetCount is the number of measured iterations (>= 1).
	TargetCount int

	// InvocationsPerIteration is the number of invocations per iteration (>= 1).
	InvocationsPerIteration int

	// UnrollFactor is the number of benchmark calls per invocation (>= 1).
	UnrollFactor int

	// Strategy shapes the phases and hook bracketing.
	Strategy Strategy

	// EmitWarmup hands warmup results to the recorder as well. By default
	// warmup measurements are discarded.
	EmitWarmup bool
}

// DefaultRunPlan returns a small throughput plan.
func DefaultRunPlan() RunPlan {
	return RunPlan{
		WarmupCount:             6,
		TargetCount:             15,
		InvocationsPerIteration: 1,
		UnrollFactor:            1,
		Strategy:                StrategyThroughput,
	}
}

// Validate rejects plans the engine cannot run. The returned error matches
// ErrConfiguration and joins one FieldError per problem.
func (p RunPlan) Validate() error {
	var errs []error

	if p.WarmupCount < 0 {
		errs = append(errs, FieldError{Field: "warmup_count", Message: "must be >= 0"})
	}
	if p.TargetCount < 1 {
		errs = append(errs, FieldError{Field: "target_count", Message: "must be at least 1"})
	}
	if p.InvocationsPerIteration < 1 {
		errs = append(errs, FieldError{Field: "invocations_per_iteration", Message: "must be at least 1"})
	}
	if p.UnrollFactor < 1 {
		errs = append(errs, FieldError{Field: "unroll_factor", Message: "must be at least 1"})
	}
	switch p.Strategy {
	case StrategyThroughput, StrategyColdStart, StrategyMonitoring:
	default:
		errs = append(errs, FieldError{Field: "strategy", Message: fmt.Sprintf("unknown strategy %d", int(p.Strategy))})
	}

	if len(errs) > 0 {
		return &ConfigError{Err: errors.Join(errs...)}
	}
	return nil
}

// EffectiveWarmupCount returns the number of warmup iterations that will
// actually run under the plan's strategy.
func (p RunPlan) EffectiveWarmupCount() int {
	if !p.Strategy.runsWarmup() {
		return 0
	}
	return p.WarmupCount
}

// TotalIterations returns the number of iterations in the run.
func (p RunPlan) TotalIterations() int {
	return p.EffectiveWarmupCount() + p.TargetCount
}

// OperationsPerIteration returns the number of benchmark calls per iteration.
func (p RunPlan) OperationsPerIteration() int64 {
	return int64(p.InvocationsPerIteration) * int64(p.UnrollFactor)
}
