// Package tui renders a live benchmark dashboard with bubbletea: ops
// rate and latency sparklines, outcome counters, device count and a
// progress bar, then the final report once the run drains.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"oidbs/internal/bench"
	"oidbs/internal/metrics"
	"oidbs/internal/model"
)

const tickInterval = 200 * time.Millisecond

type tickMsg time.Time

type doneMsg struct {
	report *metrics.Report
	err    error
}

// Run executes the benchmark under a full-screen dashboard and blocks
// until the user quits the result view.
func Run(ctx context.Context, cfg bench.RunConfig, reg *model.Registry) (*metrics.Report, error) {
	o, err := bench.New(cfg, reg)
	if err != nil {
		return nil, err
	}
	if o.NeedsSchemaSetup() {
		if err := o.SetupSchema(ctx); err != nil {
			return nil, err
		}
	}

	m := newLiveModel(o, cfg)
	p := tea.NewProgram(m, tea.WithAltScreen())

	// Quitting the dashboard cancels the run; devices drain through the
	// normal shutdown path.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		report, err := o.Run(runCtx)
		p.Send(doneMsg{report: report, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	fm := final.(liveModel)
	return fm.report, fm.runErr
}

type liveModel struct {
	orch *bench.Orchestrator
	cfg  bench.RunConfig
	prog progress.Model

	rateLine sparkline
	latLine  sparkline

	snap       metrics.Snapshot
	lastUpdate time.Time
	startTime  time.Time

	report *metrics.Report
	runErr error

	width  int
	height int
}

func newLiveModel(o *bench.Orchestrator, cfg bench.RunConfig) liveModel {
	return liveModel{
		orch:       o,
		cfg:        cfg,
		prog:       progress.New(progress.WithDefaultGradient()),
		rateLine:   newSparkline(40, "Ops/s", styleActive),
		latLine:    newSparkline(40, "Latency P90 (ms)", styleWarn),
		startTime:  time.Now(),
		lastUpdate: time.Now(),
	}
}

func (m liveModel) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m liveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.report != nil {
			return m, nil
		}
		now := time.Now()
		snap := m.orch.Aggregator().Snapshot()
		m.rateLine.push(opsRate(m.snap, snap, now.Sub(m.lastUpdate).Seconds()))
		m.latLine.push(snap.P90Ms)
		m.snap = snap
		m.lastUpdate = now

		cmd := m.prog.SetPercent(m.pct())
		return m, tea.Batch(tick(), cmd)

	case doneMsg:
		m.report = msg.report
		m.runErr = msg.err
		if m.report == nil {
			return m, tea.Quit
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			if m.report != nil {
				return m, tea.Quit
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.prog.Width = msg.Width - 4
		half := (msg.Width / 2) - 4
		if half < 10 {
			half = 10
		}
		m.rateLine.width = half
		m.latLine.width = half
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.prog.Update(msg)
		m.prog = prog.(progress.Model)
		return m, cmd
	}

	return m, nil
}

// opsRate is the throughput over one tick window: operations added since
// the previous snapshot, not since the one before it.
func opsRate(prev, cur metrics.Snapshot, dt float64) float64 {
	if dt < 0.01 {
		dt = 0.01
	}
	return float64(cur.Total-prev.Total) / dt
}

// pct estimates run completion for the progress bar; unbounded runs just
// stay at zero.
func (m liveModel) pct() float64 {
	var pct float64
	switch {
	case m.cfg.Duration > 0:
		pct = time.Since(m.startTime).Seconds() / m.cfg.Duration.Seconds()
	case m.cfg.Records > 0 && m.cfg.RowsPerPublish > 0:
		expected := (m.cfg.Records + int64(m.cfg.RowsPerPublish) - 1) / int64(m.cfg.RowsPerPublish)
		pct = float64(m.snap.Publishes) / float64(expected)
	}
	if pct > 1.0 {
		pct = 1.0
	}
	return pct
}

func (m liveModel) View() string {
	if m.report != nil {
		return m.report.Render() + styleSubtle.Render("\n  press q to exit\n")
	}

	var s strings.Builder

	title := fmt.Sprintf("OIDBS  %s / %s  [%s]",
		m.orch.ModelName(), m.cfg.Workload, m.orch.RunID())
	s.WriteString(styleTitle.Render(title))
	s.WriteString("\n\n")

	errs := m.snap.Protocol + m.snap.Connection + m.snap.Fatal
	errRate := 0.0
	if m.snap.Total > 0 {
		errRate = float64(errs) / float64(m.snap.Total) * 100
	}
	errStyle := styleGood
	if errRate > 1.0 {
		errStyle = styleWarn
	}
	if errRate > 5.0 {
		errStyle = styleError
	}

	col1 := fmt.Sprintf("OPS: %d\nDEV: %d", m.snap.Total, m.orch.ActiveDevices())
	col2 := fmt.Sprintf("ERR: %.2f%%\nFAIL: %d", errRate, errs)
	col3 := fmt.Sprintf("STATE: %s\nELAPSED: %s",
		m.orch.State(), time.Since(m.startTime).Round(time.Second))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styleBox.Render(col1),
		styleBox.Render(errStyle.Render(col2)),
		styleBox.Render(col3),
	))
	s.WriteString("\n\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styleBox.Render(m.rateLine.view()),
		styleBox.Render(m.latLine.view()),
	))
	s.WriteString("\n\n")

	latencies := fmt.Sprintf(
		"P50: %.2f ms  |  P90: %.2f ms  |  P99: %.2f ms  |  Max: %.0f ms",
		m.snap.P50Ms, m.snap.P90Ms, m.snap.P99Ms, m.snap.MaxMs,
	)
	width := m.width - 4
	if width < 20 {
		width = 20
	}
	s.WriteString(styleBox.Width(width).Render(latencies))
	s.WriteString("\n\n")

	s.WriteString(m.prog.View())
	s.WriteString("\n\n")
	s.WriteString(styleSubtle.Render("  q: abort run"))

	return s.String()
}
