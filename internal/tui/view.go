package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-bench-engine/internal/process"
	"github.com/randomizedcoder/go-bench-engine/internal/stats"
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderSummaryView renders the dashboard.
func (m Model) renderSummaryView() string {
	sections := []string{
		m.renderHeader(),
		m.renderProgress(),
	}
	if m.progress.HasLatest {
		sections = append(sections, m.renderSamples())
	}
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" go-bench-engine │ %s │ %s │ %s │ Elapsed: %s ",
		m.benchmark,
		m.plan.Strategy,
		renderProcessState(m.progress.ProcessState, m.progress.Desync),
		stats.FormatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

func renderProcessState(s process.State, desync bool) string {
	switch {
	case desync:
		return statusError.Render("● desync")
	case s == process.StateRunning:
		return statusOK.Render("● " + s.String())
	case s == process.StateStopping:
		return statusWarning.Render("● " + s.String())
	default:
		return statusInfo.Render("● " + s.String())
	}
}

// =============================================================================
// Progress Section
// =============================================================================

func (m Model) renderProgress() string {
	barWidth := max(m.width-40, 20)

	rows := []string{sectionHeaderStyle.Render("Phase Progress")}
	if m.plan.EmitWarmup && m.plan.EffectiveWarmupCount() > 0 {
		rows = append(rows, renderPhaseRow("Warmup",
			RenderProgressBar(m.WarmupProgress(), barWidth),
			formatCount(m.progress.WarmupDone, m.plan.EffectiveWarmupCount())))
	}
	rows = append(rows, renderPhaseRow("Target",
		RenderProgressBar(m.TargetProgress(), barWidth),
		formatCount(m.progress.TargetDone, m.plan.TargetCount)))

	rows = append(rows, m.renderStatus())
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func renderPhaseRow(label, bar, count string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		bar,
		mutedStyle.Render("  "+count),
	)
}

func (m Model) renderStatus() string {
	switch {
	case m.progress.Desync:
		return statusError.Render("✗ Measurement stream out of sync")
	case m.done && m.doneErr != nil:
		return statusError.Render("✗ " + m.doneErr.Error())
	case m.done || m.TargetProgress() >= 1.0:
		return statusOK.Render("✓ All target iterations measured")
	case m.progress.TargetDone == 0:
		return statusInfo.Render("Waiting for target measurements...")
	default:
		return statusInfo.Render(fmt.Sprintf("Measuring... %s lines read",
			formatNumberWithCommas(m.progress.Lines)))
	}
}

// =============================================================================
// Sample Statistics
// =============================================================================

func (m Model) renderSamples() string {
	s := m.progress.Summary
	latest := m.progress.Latest

	rows := []string{
		sectionHeaderStyle.Render("Target Samples (per call)"),
		RenderKeyValue(fmt.Sprintf("Latest (#%d)", latest.Index), stats.FormatNanos(latest.Nanoseconds())),
	}
	if s.Count > 0 {
		rows = append(rows,
			lipgloss.JoinHorizontal(lipgloss.Left,
				RenderKeyValue("Mean", stats.FormatNanos(s.Mean)),
				"  ",
				GetStabilityLabel(s.RelativeStdDev()),
			),
			RenderKeyValue("P50 (median)", stats.FormatNanos(s.P50)),
			RenderKeyValue("P95", stats.FormatNanos(s.P95)),
			RenderKeyValue("P99", stats.FormatNanos(s.P99)),
			RenderKeyValue("Min / Max", stats.FormatNanos(s.Min)+" / "+stats.FormatNanos(s.Max)),
			RenderKeyValue("Throughput", stats.FormatRate(s.OpsPerSecond())),
		)
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	left := dimStyle.Render("q: quit (stops the run)")

	right := ""
	if m.metricsAddr != "" {
		right = dimStyle.Render("Metrics: http://" + m.metricsAddr + "/metrics")
	}

	padding := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 1)

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}
