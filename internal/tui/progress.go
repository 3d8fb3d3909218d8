package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/kinsens/internal/sensitivity"
)

const (
	barWidth        = 40
	historyCapacity = 120
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff4444")).Bold(true)

	sparkHigh = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff88"))
	sparkMid  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffcc00"))
	sparkLow  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff4444"))
)

// StepMsg carries one grid instant from the driver to the view.
type StepMsg sensitivity.StepRecord

// DoneMsg ends the view once the run has finished or failed.
type DoneMsg struct {
	Err error
}

// Sender is the part of tea.Program a Feed needs.
type Sender interface {
	Send(msg tea.Msg)
}

// Feed forwards driver steps into a running program.
type Feed struct {
	to Sender
}

func NewFeed(to Sender) *Feed { return &Feed{to: to} }

func (f *Feed) OnStep(rec sensitivity.StepRecord) { f.to.Send(StepMsg(rec)) }

// Model shows the progress of a sensitivity run.
type Model struct {
	title   string
	total   int
	last    sensitivity.StepRecord
	seen    int
	temps   []float64
	started time.Time
	done    bool
	err     error
	cancel  context.CancelFunc
}

// NewModel builds a view for a run of total grid instants. cancel aborts
// the run when the user quits early.
func NewModel(title string, total int, cancel context.CancelFunc) Model {
	return Model{
		title:   title,
		total:   total,
		temps:   make([]float64, 0, historyCapacity),
		started: time.Now(),
		cancel:  cancel,
	}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case StepMsg:
		m.last = sensitivity.StepRecord(msg)
		m.seen++
		if len(m.temps) == historyCapacity {
			m.temps = append(m.temps[:0], m.temps[1:]...)
		}
		m.temps = append(m.temps, msg.State.Temperature)
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

// Err is the failure reported by DoneMsg, if any.
func (m Model) Err() error { return m.err }

// Steps is the number of grid instants seen so far.
func (m Model) Steps() int { return m.seen }

func (m Model) fraction() float64 {
	if m.total <= 0 {
		return 0
	}
	return float64(m.seen) / float64(m.total)
}

func (m Model) View() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render(strings.ToUpper(m.title)) + "\n")

	s.WriteString(progressBar(m.fraction(), barWidth))
	s.WriteString(fmt.Sprintf(" %d/%d\n\n", m.seen, m.total))

	if len(m.temps) > 1 {
		chart := asciigraph.Plot(m.temps, asciigraph.Height(6), asciigraph.Width(50), asciigraph.Caption("Temperature [K]"))
		s.WriteString(graphStyle.Render(chart) + "\n\n")
	}

	s.WriteString(labelStyle.Render("Time") + valueStyle.Render(fmt.Sprintf("%.3e s", m.last.Time)) + "\n")
	s.WriteString(labelStyle.Render("Temperature") + valueStyle.Render(fmt.Sprintf("%.3f K", m.last.State.Temperature)) + "\n")
	s.WriteString(labelStyle.Render("Pressure") + valueStyle.Render(fmt.Sprintf("%.1f Pa", m.last.State.Pressure)) + "\n")
	s.WriteString(labelStyle.Render("Energy") + valueStyle.Render(fmt.Sprintf("%.6e J/kg", m.last.State.InternalEnergy)) + "\n")
	s.WriteString(labelStyle.Render("Last coeff") + valueStyle.Render(fmt.Sprintf("%.6e", m.last.Last)) + "\n")
	s.WriteString(labelStyle.Render("Elapsed") + valueStyle.Render(time.Since(m.started).Round(time.Millisecond).String()) + "\n")

	switch {
	case m.err != nil:
		s.WriteString("\n" + errorStyle.Render("failed: "+m.err.Error()) + "\n")
	case m.done:
		s.WriteString("\n" + sparkHigh.Render("done") + "\n")
	default:
		s.WriteString(helpStyle.Render("Q: abort") + "\n")
	}
	return s.String()
}

func progressBar(fraction float64, width int) string {
	filled := min(max(int(fraction*float64(width)), 0), width)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	if fraction > 0.8 {
		return sparkHigh.Render(bar)
	} else if fraction > 0.4 {
		return sparkMid.Render(bar)
	}
	return sparkLow.Render(bar)
}
