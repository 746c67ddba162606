package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-bench-engine/internal/engine"
	"github.com/randomizedcoder/go-bench-engine/internal/process"
	"github.com/randomizedcoder/go-bench-engine/internal/protocol"
	"github.com/randomizedcoder/go-bench-engine/internal/stats"
)

// tickInterval is how often the model polls its ProgressSource.
const tickInterval = 500 * time.Millisecond

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// ProgressMsg carries an updated progress snapshot.
type ProgressMsg struct {
	Progress Progress
}

// DoneMsg signals that the measurement process has finished.
type DoneMsg struct {
	Err error
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Progress
// =============================================================================

// Progress is a point-in-time view of a run as seen by the host.
type Progress struct {
	Benchmark    string
	Plan         engine.RunPlan
	ProcessState process.State

	// WarmupDone and TargetDone count measurements received per phase.
	// Warmup measurements only arrive when the plan emits them.
	WarmupDone int64
	TargetDone int64

	Latest    protocol.Entry
	HasLatest bool

	Summary stats.Summary

	// Lines is the number of stdout lines read from the process.
	Lines int64

	// Desync is set once a malformed measurement line was seen.
	Desync bool
}

// ProgressSource provides progress snapshots. Implementations must be safe
// for concurrent use.
type ProgressSource interface {
	Progress() Progress
}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	benchmark   string
	plan        engine.RunPlan
	metricsAddr string
	source      ProgressSource

	progress   Progress
	startTime  time.Time
	lastUpdate time.Time

	done    bool
	doneErr error

	width  int
	height int

	quitting bool
}

// Config holds TUI configuration.
type Config struct {
	Benchmark   string
	Plan        engine.RunPlan
	MetricsAddr string
	Source      ProgressSource
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		benchmark:   cfg.Benchmark,
		plan:        cfg.Plan,
		metricsAddr: cfg.MetricsAddr,
		source:      cfg.Source,
		progress:    Progress{Benchmark: cfg.Benchmark, Plan: cfg.Plan},
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.source != nil {
			m.progress = m.source.Progress()
		}
		m.lastUpdate = time.Now()
		return m, tickCmd()

	case ProgressMsg:
		m.progress = msg.Progress
		m.lastUpdate = time.Now()
		return m, nil

	case DoneMsg:
		if m.source != nil {
			m.progress = m.source.Progress()
		}
		m.done = true
		m.doneErr = msg.Err
		m.quitting = true
		return m, tea.Quit

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderSummaryView()
}

// =============================================================================
// Commands
// =============================================================================

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the run started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Done reports whether the run has finished, and its error.
func (m Model) Done() (bool, error) {
	return m.done, m.doneErr
}

// WarmupProgress returns the warmup progress (0.0 to 1.0).
func (m Model) WarmupProgress() float64 {
	return ratio(m.progress.WarmupDone, m.plan.EffectiveWarmupCount())
}

// TargetProgress returns the target progress (0.0 to 1.0).
func (m Model) TargetProgress() float64 {
	return ratio(m.progress.TargetDone, m.plan.TargetCount)
}

func ratio(done int64, total int) float64 {
	if total <= 0 {
		return 0
	}
	return min(float64(done)/float64(total), 1)
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendProgress sends a progress update to the TUI.
func SendProgress(p *tea.Program, progress Progress) {
	if p != nil {
		p.Send(ProgressMsg{Progress: progress})
	}
}

// SendDone tells the TUI the run has finished.
func SendDone(p *tea.Program, err error) {
	if p != nil {
		p.Send(DoneMsg{Err: err})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatCount formats done/total with thousand separators.
func formatCount(done int64, total int) string {
	return formatNumberWithCommas(done) + "/" + formatNumberWithCommas(int64(total))
}

// formatNumberWithCommas formats a number with thousand separators.
func formatNumberWithCommas(n int64) string {
	if n < 0 {
		return "0"
	}
	str := fmt.Sprintf("%d", n)
	if n < 1000 {
		return str
	}

	result := ""
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(c)
	}
	return result
}
