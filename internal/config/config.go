// Package config provides configuration management for go-bench-engine.
package config

import (
	"time"

	"github.com/randomizedcoder/go-bench-engine/internal/engine"
)

// Config holds all configuration options for the host and the measurement
// process.
type Config struct {
	// Mode
	Measure        bool `json:"measure"` // run the engine in-process and emit protocol lines
	ListBenchmarks bool `json:"list_benchmarks"`

	// Benchmark selection
	Benchmark string `json:"benchmark"`
	PlanFile  string `json:"plan_file"`

	// Run plan
	WarmupCount             int    `json:"warmup_count"`
	TargetCount             int    `json:"target_count"`
	InvocationsPerIteration int    `json:"invocations_per_iteration"`
	UnrollFactor            int    `json:"unroll_factor"`
	Strategy                string `json:"strategy"` // throughput, coldstart, monitoring
	EmitWarmup              bool   `json:"emit_warmup"`
	Unit                    string `json:"unit"` // ps, ns, us, ms, s

	// Measurement process
	BinaryPath string        `json:"binary_path"` // "" = this executable
	Timeout    time.Duration `json:"timeout"`     // 0 = no limit

	// Diagnostic modes
	PrintCmd      bool `json:"print_cmd"`
	SkipPreflight bool `json:"skip_preflight"`

	// TUI
	TUIEnabled bool `json:"tui_enabled"`

	// Observability
	MetricsAddr     string `json:"metrics_addr"`     // "" = disabled
	MetricsTextfile string `json:"metrics_textfile"` // measurement process dump
	Verbose         bool   `json:"verbose"`
	LogFormat       string `json:"log_format"` // json, text
	LogLevel        string `json:"log_level"`  // debug, info, warn, error
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	plan := engine.DefaultRunPlan()
	return &Config{
		// Benchmark selection
		Benchmark: "lifecycle-sync",

		// Run plan
		WarmupCount:             plan.WarmupCount,
		TargetCount:             plan.TargetCount,
		InvocationsPerIteration: plan.InvocationsPerIteration,
		UnrollFactor:            plan.UnrollFactor,
		Strategy:                plan.Strategy.String(),
		Unit:                    "ns",

		// Measurement process
		Timeout: 10 * time.Minute,

		// TUI (disabled by default)
		TUIEnabled: false,

		// Observability
		MetricsAddr: "0.0.0.0:17091",
		LogFormat:   "json",
		LogLevel:    "info",
	}
}

// RunPlan converts the plan fields to an engine.RunPlan. Call Validate first;
// an unknown strategy falls back to throughput here.
func (c *Config) RunPlan() engine.RunPlan {
	strategy, err := engine.ParseStrategy(c.Strategy)
	if err != nil {
		strategy = engine.StrategyThroughput
	}
	return engine.RunPlan{
		WarmupCount:             c.WarmupCount,
		TargetCount:             c.TargetCount,
		InvocationsPerIteration: c.InvocationsPerIteration,
		UnrollFactor:            c.UnrollFactor,
		Strategy:                strategy,
		EmitWarmup:              c.EmitWarmup,
	}
}
