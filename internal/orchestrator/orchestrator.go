// Package orchestrator runs one benchmark from the host side: it starts the
// measurement process, reconstructs its measurements from the protocol
// stream and reports them.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-bench-engine/internal/config"
	"github.com/randomizedcoder/go-bench-engine/internal/engine"
	"github.com/randomizedcoder/go-bench-engine/internal/logging"
	"github.com/randomizedcoder/go-bench-engine/internal/metrics"
	"github.com/randomizedcoder/go-bench-engine/internal/preflight"
	"github.com/randomizedcoder/go-bench-engine/internal/process"
	"github.com/randomizedcoder/go-bench-engine/internal/protocol"
	"github.com/randomizedcoder/go-bench-engine/internal/stats"
	"github.com/randomizedcoder/go-bench-engine/internal/tui"
)

// ErrIncompleteRun matches runs whose measurement process exited cleanly
// without reporting every target iteration.
var ErrIncompleteRun = errors.New("incomplete measurement stream")

// ErrPreflight is returned when a required preflight check fails.
var ErrPreflight = errors.New("preflight checks failed (use -skip-preflight to override)")

// recentOutputLines is how much benchmark output the failure summary shows.
const recentOutputLines = 10

// Options holds host settings that do not come from flags.
type Options struct {
	// Version is reported in the info metric.
	Version string

	// Stdout receives preflight results and the exit summary. Defaults to
	// os.Stdout.
	Stdout io.Writer

	// ChildEnv is added to the measurement process environment.
	ChildEnv []string
}

// Outcome is the result of a run as seen by the host.
type Outcome struct {
	Summary stats.Summary

	// Entries are the target measurements, in stream order.
	Entries []protocol.Entry

	Process process.Result
	Parser  protocol.ParserStats

	// HookCounts and HookFailures are read from the measurement process's
	// metrics textfile. Nil if it wrote none.
	HookCounts   map[string]float64
	HookFailures map[string]float64
}

// Orchestrator coordinates the components of one host-side run.
type Orchestrator struct {
	config *config.Config
	plan   engine.RunPlan
	logger *slog.Logger
	out    io.Writer

	runner        *process.MeasureRunner
	executor      *process.Executor
	parser        *protocol.Parser
	output        *logging.OutputHandler
	aggregator    *stats.Aggregator
	metrics       *metrics.Collector
	metricsServer *metrics.Server

	textfile    string
	ownTextfile bool

	mu        sync.Mutex
	latest    protocol.Entry
	hasLatest bool
}

// New creates an Orchestrator for cfg. cfg must have been validated.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Orchestrator, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}

	o := &Orchestrator{
		config:     cfg,
		plan:       cfg.RunPlan(),
		logger:     logger,
		out:        out,
		aggregator: stats.NewAggregator(),
		output:     logging.NewOutputHandler(logger, cfg.Verbose),
		textfile:   cfg.MetricsTextfile,
	}

	// The measurement process always dumps its metrics so the host can
	// report hook counts. A textfile the user did not ask for is removed.
	child := *cfg
	if child.MetricsTextfile == "" {
		o.ownTextfile = true
		o.textfile = filepath.Join(os.TempDir(),
			fmt.Sprintf("go-bench-engine-%d-%d.prom", os.Getpid(), time.Now().UnixNano()))
		child.MetricsTextfile = o.textfile
	}

	runner, err := process.NewMeasureRunner(cfg.BinaryPath, child.MeasureArgs())
	if err != nil {
		return nil, fmt.Errorf("measurement runner: %w", err)
	}
	o.runner = runner.WithEnv(opts.ChildEnv...)

	registry := prometheus.NewRegistry()
	o.metrics = metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Benchmark: cfg.Benchmark,
		Version:   opts.Version,
		Plan:      o.plan,
	}, registry)
	if cfg.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(cfg.MetricsAddr, registry, logger)
	}

	o.parser = protocol.NewParser(o.metrics.ParserCallbacks(protocol.ParserCallbacks{
		OnEntry:       o.onEntry,
		OnPassthrough: o.output.PassthroughFunc(),
		OnDesync: func(err *protocol.DesyncError) {
			o.logger.Error("protocol_desync", "line", err.Line, "reason", err.Reason)
		},
	}))

	o.executor = process.NewExecutor(process.ExecutorConfig{
		Runner: o.runner,
		Parser: o.parser,
		Output: o.output,
		Logger: logger,
		Callbacks: process.Callbacks{
			OnStateChange: o.onStateChange,
			OnExit:        o.metrics.RecordExit,
		},
	})

	return o, nil
}

// Run executes the benchmark in a measurement process and blocks until it
// exits, the timeout elapses, or a signal arrives. The outcome is returned
// even when the run fails, with the measurements received so far.
func (o *Orchestrator) Run(ctx context.Context) (*Outcome, error) {
	if !o.config.SkipPreflight {
		result := preflight.RunAll(preflight.Options{
			BinaryPath:  o.runner.BinaryPath(),
			Plan:        o.plan,
			MetricsAddr: o.config.MetricsAddr,
		})
		preflight.PrintResults(o.out, result)
		if !result.Passed {
			return nil, ErrPreflight
		}
	}

	if o.metricsServer != nil {
		if err := o.metricsServer.Start(); err != nil {
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
				o.logger.Warn("metrics_server_shutdown_error", "error", err)
			}
		}()
	}
	if o.ownTextfile {
		defer os.Remove(o.textfile)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if o.config.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, o.config.Timeout)
		defer cancelTimeout()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program, tuiDone := o.startTUI(cancel)

	o.logger.Info("run_starting",
		"benchmark", o.config.Benchmark,
		"strategy", o.plan.Strategy.String(),
		"warmup", o.plan.EffectiveWarmupCount(),
		"target", o.plan.TargetCount,
		"operations_per_iteration", o.plan.OperationsPerIteration(),
		"binary", o.runner.BinaryPath(),
	)

	res, runErr := o.executor.Run(ctx)

	if program != nil {
		tui.SendDone(program, runErr)
		<-tuiDone
	}

	outcome := &Outcome{
		Summary: o.aggregator.Snapshot(),
		Entries: o.parser.Targets(),
		Process: res,
		Parser:  o.parser.Stats(),
	}
	o.metrics.RecordIgnored(outcome.Parser.Ignored)
	o.mergeTextfile(outcome)

	if runErr == nil && len(outcome.Entries) != o.plan.TargetCount {
		runErr = fmt.Errorf("%w: %d of %d target measurements",
			ErrIncompleteRun, len(outcome.Entries), o.plan.TargetCount)
	}

	if runErr != nil {
		o.logger.Error("run_failed", "error", runErr, "exit_code", res.ExitCode)
	} else {
		o.logger.Info("run_complete",
			"samples", outcome.Summary.Count,
			"mean_ns", outcome.Summary.Mean,
			"duration", res.Duration().String(),
		)
	}

	o.printExitSummary(outcome, runErr)
	return outcome, runErr
}

// startTUI runs the dashboard in the background when enabled. Quitting it
// cancels the run.
func (o *Orchestrator) startTUI(cancel context.CancelFunc) (*tea.Program, <-chan struct{}) {
	if !o.config.TUIEnabled {
		return nil, nil
	}

	program := tea.NewProgram(tui.New(tui.Config{
		Benchmark:   o.config.Benchmark,
		Plan:        o.plan,
		MetricsAddr: o.config.MetricsAddr,
		Source:      o,
	}), tea.WithAltScreen())

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := program.Run(); err != nil {
			o.logger.Warn("tui_error", "error", err)
		}
		cancel()
	}()
	return program, done
}

// mergeTextfile folds the measurement process's hook counters into the host
// metrics and the outcome.
func (o *Orchestrator) mergeTextfile(outcome *Outcome) {
	families, err := metrics.ReadTextfile(o.textfile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			o.logger.Warn("metrics_textfile_unreadable", "path", o.textfile, "error", err)
		}
		return
	}

	outcome.HookCounts = metrics.HookCounts(families)
	outcome.HookFailures = metrics.HookFailures(families)
	o.metrics.MergeHookCounts(outcome.HookCounts, outcome.HookFailures)

	o.logger.Debug("hook_counts", "invocations", outcome.HookCounts, "failures", outcome.HookFailures)
}

func (o *Orchestrator) printExitSummary(outcome *Outcome, runErr error) {
	cfg := stats.SummaryConfig{
		Benchmark:   o.config.Benchmark,
		Plan:        o.plan,
		Duration:    outcome.Process.Duration(),
		ExitCode:    outcome.Process.ExitCode,
		Err:         runErr,
		Parser:      outcome.Parser,
		MetricsAddr: o.config.MetricsAddr,
	}
	if o.metricsServer != nil {
		cfg.MetricsAddr = o.metricsServer.Addr()
	}
	if runErr != nil || outcome.Process.ExitCode != 0 {
		cfg.RecentOutput = o.output.RecentLines(recentOutputLines)
	}
	fmt.Fprint(o.out, stats.FormatExitSummary(outcome.Summary, cfg))
}

// Callback handlers

func (o *Orchestrator) onEntry(e protocol.Entry) {
	o.aggregator.Add(e)
	if e.Phase != engine.PhaseTarget {
		return
	}
	o.mu.Lock()
	o.latest = e
	o.hasLatest = true
	o.mu.Unlock()
}

func (o *Orchestrator) onStateChange(oldState, newState process.State) {
	o.logger.Debug("process_state_changed", "from", oldState.String(), "to", newState.String())
}

// Progress returns a snapshot for the dashboard. Safe for concurrent use.
func (o *Orchestrator) Progress() tui.Progress {
	summary := o.aggregator.Snapshot()
	parserStats := o.parser.Stats()

	o.mu.Lock()
	latest, hasLatest := o.latest, o.hasLatest
	o.mu.Unlock()

	return tui.Progress{
		Benchmark:    o.config.Benchmark,
		Plan:         o.plan,
		ProcessState: o.executor.State(),
		WarmupDone:   summary.WarmupCount,
		TargetDone:   summary.Count,
		Latest:       latest,
		HasLatest:    hasLatest,
		Summary:      summary,
		Lines:        parserStats.Lines,
		Desync:       o.parser.Err() != nil,
	}
}

// Runner returns the measurement runner.
func (o *Orchestrator) Runner() *process.MeasureRunner {
	return o.runner
}

// Metrics returns the host metrics collector.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}
