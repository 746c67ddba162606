package stats

import (
	"fmt"
	"strings"
	"time"

	"github.com/randomizedcoder/go-bench-engine/internal/engine"
	"github.com/randomizedcoder/go-bench-engine/internal/protocol"
)

const (
	heavyRule = "═══════════════════════════════════════════════════════════════════════════════\n"
	lightRule = "───────────────────────────────────────────────────────────────────────────────\n"
)

// SummaryConfig holds run information shown around the samples.
type SummaryConfig struct {
	// Benchmark is the benchmark name
	Benchmark string

	// Plan is the run plan the measurement process ran
	Plan engine.RunPlan

	// Duration is the wall time of the measurement process
	Duration time.Duration

	// ExitCode of the measurement process (-1 if it never started)
	ExitCode int

	// Err is the run failure, if any
	Err error

	// Parser holds protocol line counters
	Parser protocol.ParserStats

	// RecentOutput holds the last lines of benchmark output, shown on failure
	RecentOutput []string

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string
}

// FormatExitSummary formats the sample summary for display at program exit.
func FormatExitSummary(s Summary, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(heavyRule)
	b.WriteString("                         go-bench-engine Exit Summary\n")
	b.WriteString(heavyRule + "\n")

	fmt.Fprintf(&b, "Benchmark:              %s\n", cfg.Benchmark)
	fmt.Fprintf(&b, "Strategy:               %s\n", cfg.Plan.Strategy)
	fmt.Fprintf(&b, "Iterations:             %d warmup, %d target\n", cfg.Plan.EffectiveWarmupCount(), cfg.Plan.TargetCount)
	fmt.Fprintf(&b, "Operations/Iteration:   %d (%d invocations x %d unroll)\n",
		cfg.Plan.OperationsPerIteration(),
		cfg.Plan.InvocationsPerIteration,
		cfg.Plan.UnrollFactor,
	)
	fmt.Fprintf(&b, "Run Duration:           %s\n\n", FormatDuration(cfg.Duration))

	section(&b, "Samples")
	if s.Count == 0 {
		b.WriteString("  (no target samples were received)\n\n")
	} else {
		fmt.Fprintf(&b, "  %-20s %s\n", "Samples:", FormatNumber(s.Count))
		fmt.Fprintf(&b, "  %-20s %s ± %s (%.2f%%)\n", "Mean:", FormatNanos(s.Mean), FormatNanos(s.StdDev), s.RelativeStdDev()*100)
		fmt.Fprintf(&b, "  %-20s %s\n", "Min:", FormatNanos(s.Min))
		fmt.Fprintf(&b, "  %-20s %s\n", "P50 (median):", FormatNanos(s.P50))
		fmt.Fprintf(&b, "  %-20s %s\n", "P90:", FormatNanos(s.P90))
		fmt.Fprintf(&b, "  %-20s %s\n", "P95:", FormatNanos(s.P95))
		fmt.Fprintf(&b, "  %-20s %s\n", "P99:", FormatNanos(s.P99))
		fmt.Fprintf(&b, "  %-20s %s\n", "Max:", FormatNanos(s.Max))
		fmt.Fprintf(&b, "  %-20s %s\n\n", "Throughput:", FormatRate(s.OpsPerSecond()))
	}

	section(&b, "Protocol")
	fmt.Fprintf(&b, "  %-20s %d\n", "Lines read:", cfg.Parser.Lines)
	fmt.Fprintf(&b, "  %-20s %d (%d warmup)\n", "Measurements:", cfg.Parser.Entries, s.WarmupCount)
	fmt.Fprintf(&b, "  %-20s %d\n", "Benchmark output:", cfg.Parser.Passthrough)
	if cfg.Parser.Ignored > 0 {
		fmt.Fprintf(&b, "  %-20s %d (after desync)\n", "Ignored:", cfg.Parser.Ignored)
	}
	b.WriteString("\n")

	if cfg.Err != nil || cfg.ExitCode != 0 {
		section(&b, "Failure")
		if cfg.Err != nil {
			fmt.Fprintf(&b, "  Error:     %v\n", cfg.Err)
		}
		fmt.Fprintf(&b, "  Exit code: %d %s\n", cfg.ExitCode, exitCodeLabel(cfg.ExitCode))
		if len(cfg.RecentOutput) > 0 {
			b.WriteString("\n  Last output:\n")
			for _, line := range cfg.RecentOutput {
				fmt.Fprintf(&b, "    %s\n", line)
			}
		}
		b.WriteString("\n")
	}

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString(heavyRule)
	return b.String()
}

func section(b *strings.Builder, title string) {
	pad := (len(lightRule)/3 - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	b.WriteString(lightRule)
	b.WriteString(strings.Repeat(" ", pad) + title + "\n")
	b.WriteString(lightRule + "\n")
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case -1:
		return "(not started)"
	case 0:
		return "(clean)"
	case 1:
		return "(run failed)"
	case 2:
		return "(usage error)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatNanos formats nanoseconds with the largest unit keeping the value
// at or above one.
func FormatNanos(ns float64) string {
	switch {
	case ns >= 1e9:
		return fmt.Sprintf("%.3f s", ns/1e9)
	case ns >= 1e6:
		return fmt.Sprintf("%.3f ms", ns/1e6)
	case ns >= 1e3:
		return fmt.Sprintf("%.3f µs", ns/1e3)
	default:
		return fmt.Sprintf("%.2f ns", ns)
	}
}

// FormatRate formats an operations-per-second rate.
func FormatRate(rate float64) string {
	if rate >= 1_000_000 {
		return fmt.Sprintf("%.2fM op/s", rate/1_000_000)
	}
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK op/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f op/s", rate)
	}
	return fmt.Sprintf("%.3f op/s", rate)
}
