// Package main provides the go-bench-engine CLI entry point.
//
// go-bench-engine runs a benchmark's lifecycle hooks through warmup and
// target phases in a separate measurement process, and reads the
// measurements back over a line protocol on that process's stdout.
//
// Without -measure the binary is the host: it re-executes itself with
// -measure and reports the result. With -measure it runs the engine
// in-process and writes protocol lines to stdout.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-bench-engine/internal/config"
	"github.com/randomizedcoder/go-bench-engine/internal/engine"
	"github.com/randomizedcoder/go-bench-engine/internal/logging"
	"github.com/randomizedcoder/go-bench-engine/internal/metrics"
	"github.com/randomizedcoder/go-bench-engine/internal/orchestrator"
	"github.com/randomizedcoder/go-bench-engine/internal/process"
	"github.com/randomizedcoder/go-bench-engine/internal/protocol"
	"github.com/randomizedcoder/go-bench-engine/internal/suite"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-bench-engine
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// Handle version flag early (before flag parsing)
	if len(args) > 0 {
		arg := args[0]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-bench-engine %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// When TUI is enabled, suppress logs to avoid interfering with rendering
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	if cfg.ListBenchmarks {
		printBenchmarks(os.Stdout)
		return 0
	}

	if _, err := suite.Lookup(cfg.Benchmark); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v (see -list)\n", err)
		return 1
	}

	if cfg.Measure {
		return runMeasure(cfg, logger)
	}

	if cfg.PrintCmd {
		return printMeasureCommand(cfg)
	}

	logger.Info("starting",
		"version", version,
		"benchmark", cfg.Benchmark,
		"strategy", cfg.Strategy,
		"metrics_addr", cfg.MetricsAddr,
	)
	if !cfg.TUIEnabled {
		printBanner(cfg)
	}

	orch, err := orchestrator.New(cfg, logger, orchestrator.Options{Version: version})
	if err != nil {
		logger.Error("orchestrator_failed", "error", err)
		return 1
	}
	if _, err := orch.Run(context.Background()); err != nil {
		logger.Error("orchestrator_failed", "error", err)
		return 1
	}
	return 0
}

// =============================================================================
// Measurement Mode
// =============================================================================

// runMeasure runs the engine in this process. Protocol lines and the
// benchmark's own output share stdout; logs go to stderr.
func runMeasure(cfg *config.Config, logger *slog.Logger) int {
	out := newStdoutWriter(os.Stdout)
	defer out.Flush()

	desc, err := suite.Descriptor(cfg.Benchmark, out)
	if err != nil {
		logger.Error("unknown_benchmark", "benchmark", cfg.Benchmark, "error", err)
		return 1
	}
	unit, err := protocol.ParseUnit(cfg.Unit)
	if err != nil {
		logger.Error("invalid_unit", "unit", cfg.Unit, "error", err)
		return 1
	}

	plan := cfg.RunPlan()
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Benchmark: cfg.Benchmark,
		Version:   version,
		Plan:      plan,
	}, registry)

	e, err := engine.New(engine.Config{
		Descriptor: desc,
		Plan:       plan,
		Recorder:   protocol.NewEmitter(out, unit),
		Logger:     logger,
		Callbacks:  collector.EngineCallbacks(),
	})
	if err != nil {
		logger.Error("engine_config_invalid", "error", err)
		return 1
	}

	report, runErr := e.Run()
	collector.SetRunDuration(report.Duration)
	if err := out.Flush(); err != nil {
		logger.Error("stdout_flush_failed", "error", err)
		runErr = errors.Join(runErr, err)
	}

	// The host reads hook counts from the textfile, also after a failure.
	if cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsTextfile, registry); err != nil {
			logger.Warn("metrics_textfile_failed", "path", cfg.MetricsTextfile, "error", err)
		}
	}

	if runErr != nil {
		return 1
	}
	return 0
}

// stdoutWriter serializes benchmark output and protocol lines onto one
// buffered stdout. Flush makes the protocol emitter push every line.
type stdoutWriter struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func newStdoutWriter(w io.Writer) *stdoutWriter {
	return &stdoutWriter{w: bufio.NewWriter(w)}
}

func (s *stdoutWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *stdoutWriter) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}

// =============================================================================
// Host Output
// =============================================================================

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	plan := cfg.RunPlan()

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                         go-bench-engine                           ║")
	fmt.Println("║       Benchmark Lifecycle Engine with Out-of-Process Timing       ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Benchmark:   %s\n", cfg.Benchmark)
	fmt.Printf("  Strategy:    %s\n", plan.Strategy)
	fmt.Printf("  Iterations:  %d warmup, %d target\n", plan.EffectiveWarmupCount(), plan.TargetCount)
	fmt.Printf("  Per Iter:    %d invocations x %d unroll\n", plan.InvocationsPerIteration, plan.UnrollFactor)
	if cfg.MetricsAddr != "" {
		fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}

// printBenchmarks prints the built-in benchmarks.
func printBenchmarks(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDESCRIPTION")
	for _, b := range suite.All() {
		fmt.Fprintf(tw, "%s\t%s\n", b.Name, b.Description)
	}
	tw.Flush()
}

// printMeasureCommand prints the measurement command the host would run.
func printMeasureCommand(cfg *config.Config) int {
	runner, err := process.NewMeasureRunner(cfg.BinaryPath, cfg.MeasureArgs())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Println("# Measurement command that would be run:")
	fmt.Println()
	fmt.Println(runner.CommandString())
	return 0
}
