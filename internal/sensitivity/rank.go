package sensitivity

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// ReactionScore is the time-aggregated importance of one reaction.
type ReactionScore struct {
	Index int     `json:"index"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// RankedList is ordered by Score descending, then Index ascending.
type RankedList []ReactionScore

// Names returns the reaction names in list order.
func (l RankedList) Names() []string {
	names := make([]string, len(l))
	for i, s := range l {
		names[i] = s.Name
	}
	return names
}

// Scores returns the scores in list order.
func (l RankedList) Scores() []float64 {
	scores := make([]float64, len(l))
	for i, s := range l {
		scores[i] = s.Score
	}
	return scores
}

// Reduce scores each reaction by the largest absolute coefficient it reaches
// over the run. Results are in reaction index order.
func Reduce(m *Matrix, names []string) ([]ReactionScore, error) {
	if m == nil {
		return nil, ErrEmptyMatrix
	}
	rows, cols := m.Dims()
	if rows == 0 || cols == 0 {
		return nil, ErrEmptyMatrix
	}
	if !m.Complete() {
		return nil, ErrIncompleteMatrix
	}
	if len(names) != cols {
		return nil, fmt.Errorf("%w: %d columns, %d names", ErrLengthMismatch, cols, len(names))
	}

	out := make([]ReactionScore, cols)
	col := make([]float64, rows)
	for r := 0; r < cols; r++ {
		for t := 0; t < rows; t++ {
			col[t] = m.At(t, r)
		}
		out[r] = ReactionScore{Index: r, Name: names[r], Score: floats.Norm(col, math.Inf(1))}
	}
	return out, nil
}

// ScoresFromValues pairs precomputed scores with reaction names, as produced
// by a streaming run.
func ScoresFromValues(values []float64, names []string) ([]ReactionScore, error) {
	if len(values) == 0 {
		return nil, ErrEmptyMatrix
	}
	if len(values) != len(names) {
		return nil, fmt.Errorf("%w: %d scores, %d names", ErrLengthMismatch, len(values), len(names))
	}
	out := make([]ReactionScore, len(values))
	for r, v := range values {
		out[r] = ReactionScore{Index: r, Name: names[r], Score: v}
	}
	return out, nil
}

// Rank returns a reordered copy of scores. The input is not modified.
func Rank(scores []ReactionScore) RankedList {
	ranked := make(RankedList, len(scores))
	copy(ranked, scores)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Index < ranked[j].Index
	})
	return ranked
}

// SelectTop returns a copy of the first min(n, len(ranked)) entries.
func SelectTop(ranked RankedList, n int) (RankedList, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeTopN, n)
	}
	if n > len(ranked) {
		n = len(ranked)
	}
	top := make(RankedList, n)
	copy(top, ranked[:n])
	return top, nil
}

// ReactionNames resolves the name of every tracked reaction.
func ReactionNames(integ Integrator, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = integ.ReactionName(i)
	}
	return names
}
