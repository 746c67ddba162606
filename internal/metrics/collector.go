// Package metrics provides Prometheus metrics for go-bench-engine.
//
// The same Collector serves both sides of a run:
//   - in the measurement process it observes the engine through
//     engine.Callbacks and is dumped to a textfile on exit;
//   - in the host it observes the protocol parser and the measurement
//     process, and is served on /metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-bench-engine/internal/engine"
	"github.com/randomizedcoder/go-bench-engine/internal/protocol"
)

const namespace = "bench_engine"

// Protocol line kinds, used as the "kind" label.
const (
	LineMeasurement = "measurement"
	LinePassthrough = "passthrough"
	LineIgnored     = "ignored"
)

// sampleBuckets span 1ns to ~4.5s per call.
var sampleBuckets = prometheus.ExponentialBuckets(1e-9, 4, 17)

// Collector holds all engine and protocol metrics. Metrics are created per
// Collector so tests can use private registries.
type Collector struct {
	info              *prometheus.GaugeVec
	plannedIterations *prometheus.GaugeVec
	engineState       prometheus.Gauge

	iterationsTotal      *prometheus.CounterVec
	operationsTotal      prometheus.Counter
	hookInvocationsTotal *prometheus.CounterVec
	hookFailuresTotal    *prometheus.CounterVec

	protocolLinesTotal  *prometheus.CounterVec
	protocolDesyncTotal prometheus.Counter

	sampleSeconds *prometheus.HistogramVec

	processExitCode    prometheus.Gauge
	runDurationSeconds prometheus.Gauge

	mu         sync.Mutex
	state      engine.State
	iterations map[engine.Phase]int64
	failures   int64
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Benchmark string
	Version   string
	Plan      engine.RunPlan
}

// NewCollector creates a collector registered with the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing to avoid conflicts with the global registry.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Information about the run (value always 1)",
		}, []string{"version", "benchmark", "strategy"}),

		plannedIterations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "planned_iterations",
			Help:      "Iterations planned per phase",
		}, []string{"phase"}),

		engineState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Engine state (0=idle 1=global_setup 2=warming 3=targeting 4=global_cleanup 5=done)",
		}),

		iterationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Completed iterations by phase",
		}, []string{"phase"}),

		operationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Benchmark calls in completed iterations",
		}),

		hookInvocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hook_invocations_total",
			Help:      "Setup and cleanup hook invocations by hook",
		}, []string{"hook"}),

		hookFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hook_failures_total",
			Help:      "Failed hook invocations by hook",
		}, []string{"hook"}),

		protocolLinesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_lines_total",
			Help:      "Lines read from the measurement process by kind",
		}, []string{"kind"}),

		protocolDesyncTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_desync_total",
			Help:      "Malformed measurement lines",
		}),

		sampleSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sample_seconds",
			Help:      "Time per benchmark call by phase",
			Buckets:   sampleBuckets,
		}, []string{"phase"}),

		processExitCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_exit_code",
			Help:      "Exit code of the measurement process (-1 while running)",
		}),

		runDurationSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the run",
		}),

		iterations: make(map[engine.Phase]int64),
	}

	registry.MustRegister(
		c.info,
		c.plannedIterations,
		c.engineState,
		c.iterationsTotal,
		c.operationsTotal,
		c.hookInvocationsTotal,
		c.hookFailuresTotal,
		c.protocolLinesTotal,
		c.protocolDesyncTotal,
		c.sampleSeconds,
		c.processExitCode,
		c.runDurationSeconds,
	)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	c.info.WithLabelValues(version, cfg.Benchmark, cfg.Plan.Strategy.String()).Set(1)
	c.plannedIterations.WithLabelValues(engine.PhaseWarmup.String()).Set(float64(cfg.Plan.EffectiveWarmupCount()))
	c.plannedIterations.WithLabelValues(engine.PhaseTarget.String()).Set(float64(cfg.Plan.TargetCount))
	c.processExitCode.Set(-1)

	// Expose zero-valued series up front.
	for _, role := range engine.Roles() {
		c.hookInvocationsTotal.WithLabelValues(role.String())
		c.hookFailuresTotal.WithLabelValues(role.String())
	}
	for _, kind := range []string{LineMeasurement, LinePassthrough, LineIgnored} {
		c.protocolLinesTotal.WithLabelValues(kind)
	}

	return c
}

// =============================================================================
// Engine side
// =============================================================================

// EngineCallbacks returns callbacks wiring the collector to an engine.
func (c *Collector) EngineCallbacks() engine.Callbacks {
	return engine.Callbacks{
		OnStateChange: c.SetState,
		OnHook:        c.RecordHook,
		OnIteration:   c.RecordIteration,
	}
}

// SetState records an engine state transition.
func (c *Collector) SetState(_, newState engine.State) {
	c.mu.Lock()
	c.state = newState
	c.mu.Unlock()
	c.engineState.Set(float64(newState))
}

// RecordHook records one hook invocation.
func (c *Collector) RecordHook(role engine.Role, _ engine.IterationContext, err error) {
	c.hookInvocationsTotal.WithLabelValues(role.String()).Inc()
	if err != nil {
		c.hookFailuresTotal.WithLabelValues(role.String()).Inc()
		c.mu.Lock()
		c.failures++
		c.mu.Unlock()
	}
}

// RecordIteration records one completed iteration.
func (c *Collector) RecordIteration(res engine.IterationResult) {
	phase := res.Iteration.Phase
	c.countIteration(phase)
	c.operationsTotal.Add(float64(res.Operations))

	perOp := res.Elapsed.Seconds()
	if res.Operations > 0 {
		perOp /= float64(res.Operations)
	}
	c.sampleSeconds.WithLabelValues(phase.String()).Observe(perOp)
}

func (c *Collector) countIteration(phase engine.Phase) {
	c.iterationsTotal.WithLabelValues(phase.String()).Inc()
	c.mu.Lock()
	c.iterations[phase]++
	c.mu.Unlock()
}

// =============================================================================
// Host side
// =============================================================================

// ParserCallbacks wraps next so that every parsed line is also counted.
func (c *Collector) ParserCallbacks(next protocol.ParserCallbacks) protocol.ParserCallbacks {
	return protocol.ParserCallbacks{
		OnEntry: func(e protocol.Entry) {
			c.RecordEntry(e)
			if next.OnEntry != nil {
				next.OnEntry(e)
			}
		},
		OnPassthrough: func(line string) {
			c.protocolLinesTotal.WithLabelValues(LinePassthrough).Inc()
			if next.OnPassthrough != nil {
				next.OnPassthrough(line)
			}
		},
		OnDesync: func(err *protocol.DesyncError) {
			c.RecordDesync()
			if next.OnDesync != nil {
				next.OnDesync(err)
			}
		},
	}
}

// RecordEntry records one parsed measurement.
func (c *Collector) RecordEntry(e protocol.Entry) {
	c.protocolLinesTotal.WithLabelValues(LineMeasurement).Inc()
	c.countIteration(e.Phase)
	c.sampleSeconds.WithLabelValues(e.Phase.String()).Observe(e.Seconds())
}

// RecordDesync records a malformed measurement line.
func (c *Collector) RecordDesync() {
	c.protocolDesyncTotal.Inc()
}

// RecordIgnored records lines dropped after a desync.
func (c *Collector) RecordIgnored(n int64) {
	if n > 0 {
		c.protocolLinesTotal.WithLabelValues(LineIgnored).Add(float64(n))
	}
}

// RecordExit records the measurement process exit.
func (c *Collector) RecordExit(exitCode int, d time.Duration) {
	c.processExitCode.Set(float64(exitCode))
	c.runDurationSeconds.Set(d.Seconds())
}

// MergeHookCounts adds hook counters read from a measurement process's
// textfile to the host's counters.
func (c *Collector) MergeHookCounts(invocations, failures map[string]float64) {
	for hook, n := range invocations {
		if n > 0 {
			c.hookInvocationsTotal.WithLabelValues(hook).Add(n)
		}
	}
	var failed int64
	for hook, n := range failures {
		if n > 0 {
			c.hookFailuresTotal.WithLabelValues(hook).Add(n)
			failed += int64(n)
		}
	}
	c.mu.Lock()
	c.failures += failed
	c.mu.Unlock()
}

// SetRunDuration records the wall time of an in-process run.
func (c *Collector) SetRunDuration(d time.Duration) {
	c.runDurationSeconds.Set(d.Seconds())
}

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is a point-in-time view of the collector for display.
type Snapshot struct {
	State        engine.State
	WarmupDone   int64
	TargetDone   int64
	HookFailures int64
}

// Snapshot returns the current counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:        c.state,
		WarmupDone:   c.iterations[engine.PhaseWarmup],
		TargetDone:   c.iterations[engine.PhaseTarget],
		HookFailures: c.failures,
	}
}
