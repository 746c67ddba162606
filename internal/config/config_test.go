package config

import (
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/randomizedcoder/go-bench-engine/internal/engine"
)

// =============================================================================
// Defaults and Flags
// =============================================================================

func TestFlagType(t *testing.T) {
	testCases := []struct {
		name     string
		defValue string
		expected string
	}{
		{"bool true", "true", ""},
		{"bool false", "false", ""},
		{"int", "42", "int"},
		{"string", "hello", "string"},
		{"unit", "ns", "string"},
		{"duration seconds", "5s", "duration"},
		{"duration minutes", "10m0s", "duration"},
		{"duration hours", "1h", "duration"},
		{"empty", "", "string"},
		{"zero", "0", "int"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := &flag.Flag{
				Name:     "test",
				DefValue: tc.defValue,
			}
			result := flagType(f)
			if result != tc.expected {
				t.Errorf("flagType(%q) = %q, want %q", tc.defValue, result, tc.expected)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.WarmupCount != 6 || cfg.TargetCount != 15 {
		t.Errorf("Warmup/Target = %d/%d, want 6/15", cfg.WarmupCount, cfg.TargetCount)
	}
	if cfg.Strategy != "throughput" {
		t.Errorf("Strategy = %q, want throughput", cfg.Strategy)
	}
	if cfg.Unit != "ns" {
		t.Errorf("Unit = %q, want ns", cfg.Unit)
	}
	if cfg.TUIEnabled {
		t.Error("TUIEnabled should be false by default")
	}
	if cfg.MetricsAddr != "0.0.0.0:17091" {
		t.Errorf("MetricsAddr = %q, want %q", cfg.MetricsAddr, "0.0.0.0:17091")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() should validate: %v", err)
	}
}

func TestParseFlags(t *testing.T) {
	cfg, err := parseFlags([]string{
		"-warmup", "2",
		"-target", "3",
		"-strategy", "monitoring",
		"-emit-warmup",
		"-unit", "us",
		"sha256",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}

	if cfg.Benchmark != "sha256" {
		t.Errorf("Benchmark = %q, want sha256", cfg.Benchmark)
	}
	want := engine.RunPlan{
		WarmupCount:             2,
		TargetCount:             3,
		InvocationsPerIteration: 1,
		UnrollFactor:            1,
		Strategy:                engine.StrategyMonitoring,
		EmitWarmup:              true,
	}
	if got := cfg.RunPlan(); got != want {
		t.Errorf("RunPlan() = %+v, want %+v", got, want)
	}
	if cfg.Unit != "us" {
		t.Errorf("Unit = %q, want us", cfg.Unit)
	}
}

func TestParseFlags_UnknownFlag(t *testing.T) {
	if _, err := parseFlags([]string{"-clients", "5"}, io.Discard); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestParseFlags_Usage(t *testing.T) {
	var sb strings.Builder
	_, err := parseFlags([]string{"-h"}, &sb)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("parseFlags(-h) error = %v, want flag.ErrHelp", err)
	}
	for _, want := range []string{"Run Plan:", "-strategy string", "-timeout duration", "(default 15)"} {
		if !strings.Contains(sb.String(), want) {
			t.Errorf("usage missing %q:\n%s", want, sb.String())
		}
	}
}

func TestMeasureArgs_RoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Benchmark = "alloc"
	cfg.WarmupCount = 0
	cfg.TargetCount = 7
	cfg.UnrollFactor = 4
	cfg.Strategy = "coldstart"
	cfg.EmitWarmup = true
	cfg.MetricsTextfile = "/tmp/engine.prom"

	args := cfg.MeasureArgs()
	if args[0] != "-measure" {
		t.Errorf("MeasureArgs()[0] = %q, want -measure", args[0])
	}

	child, err := parseFlags(args, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags(MeasureArgs()) error = %v", err)
	}
	if !child.Measure || child.Benchmark != "alloc" || child.MetricsTextfile != "/tmp/engine.prom" {
		t.Errorf("child config = %+v", child)
	}
	if child.RunPlan() != cfg.RunPlan() {
		t.Errorf("child plan = %+v, want %+v", child.RunPlan(), cfg.RunPlan())
	}
}

// =============================================================================
// Plan File
// =============================================================================

func writePlan(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPlanFile_FlagsOverride(t *testing.T) {
	path := writePlan(t, `
benchmark: lifecycle-deferred
warmup_count: 4
target_count: 40
strategy: monitoring
emit_warmup: true
unit: ms
`)

	cfg, err := parseFlags([]string{"-plan", path, "-target", "9"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}

	if cfg.Benchmark != "lifecycle-deferred" {
		t.Errorf("Benchmark = %q, want lifecycle-deferred", cfg.Benchmark)
	}
	if cfg.WarmupCount != 4 {
		t.Errorf("WarmupCount = %d, want 4 (from file)", cfg.WarmupCount)
	}
	if cfg.TargetCount != 9 {
		t.Errorf("TargetCount = %d, want 9 (flag overrides file)", cfg.TargetCount)
	}
	if cfg.Strategy != "monitoring" || !cfg.EmitWarmup || cfg.Unit != "ms" {
		t.Errorf("Strategy/EmitWarmup/Unit = %q/%v/%q", cfg.Strategy, cfg.EmitWarmup, cfg.Unit)
	}
	if cfg.InvocationsPerIteration != 1 {
		t.Errorf("InvocationsPerIteration = %d, want default 1", cfg.InvocationsPerIteration)
	}
}

func TestPlanFile_PositionalBenchmarkWins(t *testing.T) {
	path := writePlan(t, "benchmark: sleep\n")
	cfg, err := parseFlags([]string{"-plan", path, "alloc"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Benchmark != "alloc" {
		t.Errorf("Benchmark = %q, want alloc", cfg.Benchmark)
	}
}

func TestPlanFile_Errors(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"unknown key", "clients: 5\n"},
		{"wrong type", "target_count: many\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseFlags([]string{"-plan", writePlan(t, tc.body)}, io.Discard); err == nil {
				t.Errorf("expected error for %q", tc.body)
			}
		})
	}

	if _, err := LoadPlanFile(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadPlanFile(missing) error = %v, want ErrNotExist", err)
	}
}

func TestDecodePlanFile_Empty(t *testing.T) {
	pf, err := DecodePlanFile(strings.NewReader(""))
	if err != nil {
		t.Fatalf("DecodePlanFile(empty) error = %v", err)
	}
	cfg := DefaultConfig()
	pf.Apply(cfg, nil)
	if *cfg != *DefaultConfig() {
		t.Errorf("empty plan changed config: %+v", cfg)
	}
}

// =============================================================================
// Validation
// =============================================================================

func fields(err error) []string {
	var out []string
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return out
	}
	for _, e := range joined.Unwrap() {
		var ve ValidationError
		if errors.As(e, &ve) {
			out = append(out, ve.Field)
		}
	}
	return out
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"missing benchmark", func(c *Config) { c.Benchmark = "" }, "benchmark"},
		{"unknown strategy", func(c *Config) { c.Strategy = "burst" }, "strategy"},
		{"negative warmup", func(c *Config) { c.WarmupCount = -1 }, "warmup_count"},
		{"zero target", func(c *Config) { c.TargetCount = 0 }, "target_count"},
		{"zero invocations", func(c *Config) { c.InvocationsPerIteration = 0 }, "invocations_per_iteration"},
		{"zero unroll", func(c *Config) { c.UnrollFactor = 0 }, "unroll_factor"},
		{"unknown unit", func(c *Config) { c.Unit = "fortnights" }, "unit"},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, "timeout"},
		{"bad metrics addr", func(c *Config) { c.MetricsAddr = "17091" }, "metrics_addr"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "log_level"},
		{"tui in measure mode", func(c *Config) { c.Measure, c.TUIEnabled = true, true }, "tui"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatalf("expected error mentioning %s", tc.field)
			}
			if got := fields(err); !slices.Contains(got, tc.field) {
				t.Errorf("error fields = %v, want %s (err: %v)", got, tc.field, err)
			}
		})
	}
}

func TestValidate_ListAllowsNoBenchmark(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Benchmark = ""
	cfg.ListBenchmarks = true

	if err := Validate(cfg); err != nil {
		t.Errorf("-list should allow empty benchmark: %v", err)
	}
}

func TestValidate_MetricsDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricsAddr = ""

	if err := Validate(cfg); err != nil {
		t.Errorf("empty metrics addr should be valid: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TargetCount = 0
	cfg.UnrollFactor = 0
	cfg.LogFormat = "xml"

	got := fields(Validate(cfg))
	for _, want := range []string{"target_count", "unroll_factor", "log_format"} {
		if !slices.Contains(got, want) {
			t.Errorf("fields = %v, missing %s", got, want)
		}
	}
}
