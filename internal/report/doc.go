// Package report turns a ranked reaction list into charts.
//
// A Chart holds bars ordered from the axis origin outward: the lowest-ranked
// selected reaction first, the most important last. Sinks decide how to draw
// it (styled terminal bars or SVG). Time histories are drawn with asciigraph.
package report
