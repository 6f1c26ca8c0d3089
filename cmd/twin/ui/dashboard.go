package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"twinsim/internal/clinical"
	"twinsim/internal/logging"
	"twinsim/internal/scoring"
	"twinsim/internal/session"
	"twinsim/internal/simulation"
)

// Engine is the part of a session the dashboard drives.
type Engine interface {
	View() session.View
	SetDelta(f clinical.Field, value float64) (float64, bool)
	Nudge(f clinical.Field, steps int) (float64, bool)
	Reset() bool
	RequestNarrative(ctx context.Context) error
}

// ChangedMsg tells the dashboard to re-read the engine's view.
type ChangedMsg struct{}

// SwapMsg replaces the engine, e.g. after the baseline file changed.
type SwapMsg struct {
	Engine Engine
	Source string
}

// Notifier returns an OnChange callback that forwards changes to p.
func Notifier(p *tea.Program) func() {
	return func() { p.Send(ChangedMsg{}) }
}

const barWidth = 24

// Model is the bubbletea model for the simulation dashboard.
type Model struct {
	engine   Engine
	source   string
	styles   Styles
	keys     KeyMap
	help     help.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	view     session.View
	selected int
	status   string

	// markdown render cache keyed on the report it was rendered from
	renderedAt time.Time
	rendered   string

	width  int
	height int
}

// New creates a dashboard for engine. source names the baseline file.
func New(engine Engine, source string, styles Styles) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	m := Model{
		engine:  engine,
		source:  source,
		styles:  styles,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		spinner: sp,
		width:   80,
	}
	m.renderer = newRenderer(styles.Theme, 76)
	m.refresh()
	return m
}

func newRenderer(theme Theme, wrap int) *glamour.TermRenderer {
	var r *glamour.TermRenderer
	if theme.IsDark {
		r, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(wrap),
		)
	} else {
		r, _ = glamour.NewTermRenderer(
			glamour.WithStylePath("light"),
			glamour.WithWordWrap(wrap),
		)
	}
	return r
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles keys, engine changes and window resizes.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		if msg.Width > 20 {
			m.renderer = newRenderer(m.styles.Theme, msg.Width-8)
			m.renderedAt = time.Time{}
		}
		m.refresh()
		return m, nil

	case ChangedMsg:
		m.refresh()
		return m, nil

	case SwapMsg:
		m.engine = msg.Engine
		m.source = msg.Source
		m.status = fmt.Sprintf("Baseline reloaded from %s", msg.Source)
		m.renderedAt = time.Time{}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	field := m.selectedField()
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}
	case key.Matches(msg, m.keys.Down):
		if m.selected < len(m.view.Fields)-1 {
			m.selected++
		}
	case key.Matches(msg, m.keys.Lower):
		m.engine.Nudge(field, -1)
	case key.Matches(msg, m.keys.Raise):
		m.engine.Nudge(field, 1)
	case key.Matches(msg, m.keys.Zero):
		m.engine.SetDelta(field, 0)
	case key.Matches(msg, m.keys.Reset):
		if m.engine.Reset() {
			m.status = "All deltas reset"
		}
	case key.Matches(msg, m.keys.Analyze):
		m.status = ""
		if err := m.engine.RequestNarrative(context.Background()); err != nil {
			if errors.Is(err, session.ErrNoScenario) {
				m.status = "Wait for the projection before analyzing"
			} else {
				m.status = err.Error()
			}
			logging.UIDebug("analyze rejected: %v", err)
		}
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	m.refresh()
	return m, nil
}

func (m Model) selectedField() clinical.Field {
	if m.selected < len(m.view.Fields) {
		return m.view.Fields[m.selected].Bounds.Field
	}
	return clinical.Fields[0]
}

// refresh pulls a fresh view and re-renders the narrative when it changed.
func (m *Model) refresh() {
	m.view = m.engine.View()
	if m.selected >= len(m.view.Fields) {
		m.selected = 0
	}

	report := m.view.Narrative.Report
	switch {
	case report == nil:
		m.rendered = ""
		m.renderedAt = time.Time{}
	case !report.GeneratedAt.Equal(m.renderedAt):
		m.rendered = report.Text
		if m.renderer != nil {
			if out, err := m.renderer.Render(report.Text); err == nil {
				m.rendered = strings.TrimRight(out, "\n")
			}
		}
		m.renderedAt = report.GeneratedAt
	}
}

// View renders the dashboard.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Header.Render("Digital Twin · What-if Simulator"))
	b.WriteString("\n")
	b.WriteString(m.styles.Muted.Render(m.baselineLine()))
	b.WriteString("\n\n")

	b.WriteString(m.renderFields())
	b.WriteString("\n")
	b.WriteString(m.styles.RenderDivider(min(m.width, 60)))
	b.WriteString("\n")
	b.WriteString(m.renderProjection())
	b.WriteString("\n")

	if n := m.renderNarrative(); n != "" {
		b.WriteString("\n")
		b.WriteString(n)
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Info.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return m.styles.Content.Render(b.String())
}

func (m Model) baselineLine() string {
	bl := m.view.Baseline
	line := fmt.Sprintf("%s, %g y · smoking: %s · hypertension: %s · heart disease: %s",
		bl.Gender, bl.Age, bl.SmokingHistory, yesNo(bl.Hypertension), yesNo(bl.HeartDisease))
	if m.source != "" {
		line += " · " + m.source
	}
	return line
}

func (m Model) renderFields() string {
	var b strings.Builder
	for i, fv := range m.view.Fields {
		cursor := "  "
		label := fmt.Sprintf("%-22s", fv.Bounds.Label)
		if i == m.selected {
			cursor = m.styles.Selected.Render("▸ ")
			label = m.styles.Selected.Render(label)
		} else {
			label = m.styles.Bold.Render(label)
		}
		fmt.Fprintf(&b, "%s%s %s  %+6.1f  %s → %s\n",
			cursor, label,
			m.styles.RenderBar(Usage(fv.Bounds, fv.Delta), barWidth),
			fv.Delta,
			formatValue(fv.Baseline, fv.Bounds.Unit),
			m.styles.Bold.Render(formatValue(fv.Target, fv.Bounds.Unit)))
	}
	return b.String()
}

func (m Model) renderProjection() string {
	st := m.view.Simulation
	var phase string
	switch st.Phase {
	case simulation.PhaseDebouncing:
		phase = m.styles.Muted.Render("waiting for edits to settle…")
	case simulation.PhaseRequesting:
		phase = m.spinner.View() + " " + m.styles.Muted.Render("scoring…")
	case simulation.PhaseError:
		phase = m.styles.Error.Render("scoring failed: " + errString(st.LastError))
	}

	if st.Result == nil {
		out := m.styles.Muted.Render("Move a slider to project the risk.")
		if phase != "" {
			out += "  " + phase
		}
		return out
	}

	r := st.Result
	var b strings.Builder
	fmt.Fprintf(&b, "Current risk   %5.1f%% %s\n", r.OriginalRisk*100, m.styles.RiskBadge(clinical.LevelFor(r.OriginalRisk)))
	fmt.Fprintf(&b, "Projected risk %5.1f%% %s\n", r.NewRisk*100, m.styles.RiskBadge(clinical.LevelFor(r.NewRisk)))
	reduction := fmt.Sprintf("%+.1f pts", -r.RiskReduction*100)
	if r.RiskReduction > 0 {
		reduction = m.styles.Success.Render(reduction)
	} else if r.RiskReduction < 0 {
		reduction = m.styles.Warning.Render(reduction)
	}
	fmt.Fprintf(&b, "Change         %s", reduction)
	if m.view.Dirty() {
		b.WriteString("  " + m.styles.Muted.Render("(stale)"))
	}
	if phase != "" {
		b.WriteString("\n" + phase)
	}
	return b.String()
}

func (m Model) renderNarrative() string {
	ns := m.view.Narrative
	switch {
	case ns.Loading:
		return m.spinner.View() + " " + m.styles.Muted.Render("generating analysis…")
	case ns.LastError != nil:
		return m.styles.Error.Render("analysis failed: " + ns.LastError.Error())
	case m.rendered != "":
		return m.styles.Title.Render("Analysis") + "\n" + m.rendered
	}
	return ""
}

// Usage is how much of a field's range the delta uses, from 0 at Max to 1
// at Min.
func Usage(b clinical.Bounds, delta float64) float64 {
	span := b.Max - b.Min
	if span <= 0 {
		return 0
	}
	return (b.Max - delta) / span
}

func formatValue(v float64, unit string) string {
	if unit == "" {
		return fmt.Sprintf("%.1f", v)
	}
	return fmt.Sprintf("%.1f %s", v, unit)
}

func yesNo(v int) string {
	if v != 0 {
		return "yes"
	}
	return "no"
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	var svc *scoring.ServiceError
	if errors.As(err, &svc) {
		if svc.Temporary() {
			return err.Error() + " (service busy, edit a field to retry)"
		}
		return err.Error() + " (request rejected)"
	}
	return err.Error()
}
