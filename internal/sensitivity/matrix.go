package sensitivity

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Matrix is a dense (T, R) table of sensitivity coefficients. Cell (t, r) is
// the sensitivity of the observable to reaction r at grid instant t. A Matrix
// returned by a Driver is complete and is never modified again.
type Matrix struct {
	dense  *mat.Dense
	filled int
}

func newMatrix(rows, cols int) *Matrix {
	return &Matrix{dense: mat.NewDense(rows, cols, nil)}
}

// NewMatrix builds a complete matrix from row-major data. Every row must
// have the same non-zero length.
func NewMatrix(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmptyMatrix
	}
	cols := len(rows[0])
	m := newMatrix(len(rows), cols)
	for t, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrLengthMismatch, t, len(row), cols)
		}
		m.setRow(t, row)
	}
	return m, nil
}

func (m *Matrix) setRow(t int, row []float64) {
	m.dense.SetRow(t, row)
	m.filled = t + 1
}

// Dims returns (time steps, reactions).
func (m *Matrix) Dims() (int, int) {
	return m.dense.Dims()
}

// Complete reports whether every row has been written.
func (m *Matrix) Complete() bool {
	rows, _ := m.dense.Dims()
	return m.filled == rows
}

func (m *Matrix) At(t, r int) float64 {
	return m.dense.At(t, r)
}

// Row returns a copy of the coefficients at grid instant t.
func (m *Matrix) Row(t int) []float64 {
	return mat.Row(nil, t, m.dense)
}

// Col returns a copy of the coefficient history of reaction r.
func (m *Matrix) Col(r int) []float64 {
	return mat.Col(nil, r, m.dense)
}

// Rows returns a row-major copy of the matrix.
func (m *Matrix) Rows() [][]float64 {
	rows, _ := m.dense.Dims()
	out := make([][]float64, rows)
	for t := range out {
		out[t] = m.Row(t)
	}
	return out
}

// Equal reports whether two matrices have the same shape and bit-identical cells.
func (m *Matrix) Equal(other *Matrix) bool {
	if other == nil {
		return false
	}
	r1, c1 := m.Dims()
	r2, c2 := other.Dims()
	if r1 != r2 || c1 != c2 {
		return false
	}
	for t := 0; t < r1; t++ {
		for r := 0; r < c1; r++ {
			if math.Float64bits(m.At(t, r)) != math.Float64bits(other.At(t, r)) {
				return false
			}
		}
	}
	return true
}
