package report

import (
	"fmt"
	"html"
	"os"
	"strings"
)

const (
	DefaultSVGWidth  = 900
	DefaultSVGHeight = 480
)

// SVGSink writes the chart to an SVG file.
type SVGSink struct {
	Path          string
	Width, Height int
}

func NewSVGSink(path string) *SVGSink {
	return &SVGSink{Path: path, Width: DefaultSVGWidth, Height: DefaultSVGHeight}
}

func (s *SVGSink) Render(c Chart) error {
	return os.WriteFile(s.Path, []byte(ChartToSVG(c, s.Width, s.Height)), 0644)
}

// ChartToSVG draws a horizontal bar chart. Bar 0 sits on the x axis.
func ChartToSVG(c Chart, width, height int) string {
	if width <= 0 {
		width = DefaultSVGWidth
	}
	if height <= 0 {
		height = DefaultSVGHeight
	}

	const (
		marginTop    = 50.0
		marginBottom = 60.0
		marginRight  = 40.0
	)
	marginLeft := 20.0 + 7.0*float64(longestLabel(c.Bars))
	plotW := float64(width) - marginLeft - marginRight
	plotH := float64(height) - marginTop - marginBottom
	axisY := marginTop + plotH

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" font-family="monospace">
<rect width="100%%" height="100%%" fill="#ffffff"/>
<text x="%.1f" y="30" font-size="16" text-anchor="middle">%s</text>
`, width, height, width, height, float64(width)/2, html.EscapeString(c.Labels.Title)))

	peak := c.Max()
	if n := len(c.Bars); n > 0 {
		slot := plotH / float64(n)
		barH := slot * 0.8
		for i, b := range c.Bars {
			w := 0.0
			if peak > 0 {
				w = b.Value / peak * plotW
			}
			y := axisY - float64(i+1)*slot + (slot-barH)/2
			sb.WriteString(fmt.Sprintf(`<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="#1f77b4"/>
`, marginLeft, y, w, barH))
			sb.WriteString(fmt.Sprintf(`<text x="%.1f" y="%.1f" font-size="11" text-anchor="end" dominant-baseline="middle">%s</text>
`, marginLeft-6, y+barH/2, html.EscapeString(b.Label)))
		}
	}

	sb.WriteString(fmt.Sprintf(`<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#000000"/>
<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#000000"/>
`, marginLeft, axisY, marginLeft+plotW, axisY, marginLeft, marginTop, marginLeft, axisY))
	sb.WriteString(fmt.Sprintf(`<text x="%.1f" y="%.1f" font-size="11" text-anchor="end">%.3e</text>
`, marginLeft+plotW, axisY+16, peak))
	sb.WriteString(fmt.Sprintf(`<text x="%.1f" y="%.1f" font-size="13" text-anchor="middle">%s</text>
`, marginLeft+plotW/2, axisY+40, html.EscapeString(c.Labels.XLabel)))

	sb.WriteString(fmt.Sprintf(`<g fill="#0000ff" font-size="16">
<text x="%.1f" y="%.1f">T = %d [K]</text>
<text x="%.1f" y="%.1f">P = %d [Pa]</text>
</g>
`, marginLeft+plotW*0.65, axisY-plotH*0.30, int(c.Conditions.Temperature),
		marginLeft+plotW*0.65, axisY-plotH*0.10, int(c.Conditions.Pressure)))

	sb.WriteString("</svg>\n")
	return sb.String()
}

func longestLabel(bars []Bar) int {
	n := 0
	for _, b := range bars {
		n = max(n, len(b.Label))
	}
	return n
}
