package report

import (
	"errors"
	"fmt"

	"github.com/san-kum/kinsens/internal/sensitivity"
)

var ErrRender = errors.New("report: render failed")

const (
	DefaultTitle  = "Sensitivity Analysis on Temperature"
	DefaultXLabel = "Modulus of Sensitivity Co-efficient"
)

type Labels struct {
	Title  string `json:"title"`
	XLabel string `json:"x_label"`
}

func DefaultLabels() Labels {
	return Labels{Title: DefaultTitle, XLabel: DefaultXLabel}
}

// Conditions are the initial state annotated on a chart.
type Conditions struct {
	Temperature float64 `json:"temperature"`
	Pressure    float64 `json:"pressure"`
}

type Bar struct {
	Label string
	Value float64
}

type Chart struct {
	Labels     Labels
	Conditions Conditions
	Bars       []Bar
}

// Max returns the largest bar value, or 0 for an empty chart.
func (c Chart) Max() float64 {
	var max float64
	for _, b := range c.Bars {
		if b.Value > max {
			max = b.Value
		}
	}
	return max
}

// NewChart lays out top in reverse order, so the most important reaction
// sits furthest from the origin.
func NewChart(top sensitivity.RankedList, labels Labels, cond Conditions) Chart {
	bars := make([]Bar, len(top))
	for i, s := range top {
		bars[len(top)-1-i] = Bar{Label: s.Name, Value: s.Score}
	}
	return Chart{Labels: labels, Conditions: cond, Bars: bars}
}

type Sink interface {
	Render(c Chart) error
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(c Chart) error

func (f SinkFunc) Render(c Chart) error { return f(c) }

// Report builds the chart for top and hands it to sink. The ranked list is
// never modified.
func Report(sink Sink, top sensitivity.RankedList, labels Labels, cond Conditions) error {
	if err := sink.Render(NewChart(top, labels, cond)); err != nil {
		return fmt.Errorf("%w: %w", ErrRender, err)
	}
	return nil
}

// MultiSink renders to every sink and joins their failures.
type MultiSink []Sink

func (m MultiSink) Render(c Chart) error {
	var errs []error
	for _, s := range m {
		if err := s.Render(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
