package model

// Matrix is a dense rows × columns array of doubles. It is the only format
// exchanged with the engine. A nil Matrix stands for a missing result.
type Matrix [][]float64

// NewMatrix allocates a zero-filled rows × cols matrix.
func NewMatrix(rows, cols int) Matrix {
	m := make(Matrix, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

// Rows returns the number of rows.
func (m Matrix) Rows() int { return len(m) }

// Cols returns the length of the first row, or 0 for a matrix without rows.
// It says nothing about whether the matrix is rectangular.
func (m Matrix) Cols() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Rectangular reports whether every row has the same length as its predecessor.
func (m Matrix) Rectangular() bool {
	for i := 0; i+1 < len(m); i++ {
		if len(m[i]) != len(m[i+1]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (m Matrix) Clone() Matrix {
	if m == nil {
		return nil
	}
	out := make(Matrix, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
