package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00ffff"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888899"))

	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00ff88"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00ccff")).
			Bold(true)

	conditionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4488ff"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444466")).
			Padding(0, 1)
)

const DefaultBarWidth = 40

// TerminalSink draws a horizontal bar chart as styled text.
type TerminalSink struct {
	Out      io.Writer
	BarWidth int
}

func NewTerminalSink(out io.Writer) *TerminalSink {
	return &TerminalSink{Out: out, BarWidth: DefaultBarWidth}
}

func (s *TerminalSink) Render(c Chart) error {
	_, err := io.WriteString(s.Out, RenderText(c, s.BarWidth)+"\n")
	return err
}

// RenderText draws c top-down, so the bar furthest from the origin comes
// first.
func RenderText(c Chart, barWidth int) string {
	if barWidth <= 0 {
		barWidth = DefaultBarWidth
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(c.Labels.Title))
	sb.WriteString("\n\n")

	if len(c.Bars) == 0 {
		sb.WriteString(labelStyle.Render("(no reactions selected)"))
		sb.WriteString("\n")
	}

	nameWidth := 0
	for _, b := range c.Bars {
		nameWidth = max(nameWidth, lipgloss.Width(b.Label))
	}

	peak := c.Max()
	for i := len(c.Bars) - 1; i >= 0; i-- {
		b := c.Bars[i]
		filled := 0
		if peak > 0 {
			filled = int(b.Value / peak * float64(barWidth))
		}
		filled = min(max(filled, 0), barWidth)

		name := b.Label + strings.Repeat(" ", nameWidth-lipgloss.Width(b.Label))
		sb.WriteString(labelStyle.Render(name))
		sb.WriteString(" │")
		sb.WriteString(barStyle.Render(strings.Repeat("█", filled)))
		sb.WriteString(strings.Repeat(" ", barWidth-filled))
		sb.WriteString(" ")
		sb.WriteString(valueStyle.Render(fmt.Sprintf("%.4e", b.Value)))
		sb.WriteString("\n")
	}

	sb.WriteString(strings.Repeat(" ", nameWidth+1))
	sb.WriteString("└")
	sb.WriteString(strings.Repeat("─", barWidth))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat(" ", nameWidth+2))
	sb.WriteString(labelStyle.Render(c.Labels.XLabel))
	sb.WriteString("\n\n")

	sb.WriteString(conditionStyle.Render(fmt.Sprintf("T = %d [K]   P = %d [Pa]",
		int(c.Conditions.Temperature), int(c.Conditions.Pressure))))

	return panelStyle.Render(sb.String())
}
