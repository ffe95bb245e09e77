package matrix

import (
	"errors"
	"fmt"
	"slices"
)

// ErrRaggedRows is returned when rows of differing lengths are combined
// into one matrix.
var ErrRaggedRows = errors.New("matrix: rows have differing lengths")

// Vector is a single data point of fixed dimensionality.
type Vector []float64

// Clone returns an independent copy of v.
func (v Vector) Clone() Vector {
	return slices.Clone(v)
}

// Dense is a dense row-major matrix. The zero value is an empty matrix;
// use NewDense or FromRows to create one with a defined shape.
type Dense struct {
	rows, cols int
	data       []float64
}

// NewDense creates a rows×cols matrix with all elements zero.
func NewDense(rows, cols int) *Dense {
	if rows < 0 {
		rows = 0
	}
	if cols < 0 {
		cols = 0
	}
	return &Dense{
		rows: rows,
		cols: cols,
		data: make([]float64, rows*cols),
	}
}

// FromRows builds a matrix from a slice of equally sized rows.
// The row data is copied.
func FromRows(rows []Vector) (*Dense, error) {
	if len(rows) == 0 {
		return &Dense{}, nil
	}

	cols := len(rows[0])
	m := NewDense(len(rows), cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("%w: row 0 has %d, row %d has %d", ErrRaggedRows, cols, i, len(r))
		}
		copy(m.data[i*cols:(i+1)*cols], r)
	}
	return m, nil
}

// FromData builds a matrix backed by a copy of the given row-major data.
// len(data) must equal rows*cols.
func FromData(rows, cols int, data []float64) (*Dense, error) {
	if len(data) != rows*cols {
		return nil, fmt.Errorf("matrix: data length %d does not match %dx%d", len(data), rows, cols)
	}
	return &Dense{
		rows: rows,
		cols: cols,
		data: slices.Clone(data),
	}, nil
}

// Rows returns the number of rows.
func (m *Dense) Rows() int {
	if m == nil {
		return 0
	}
	return m.rows
}

// Cols returns the number of columns (the dimensionality of each row).
func (m *Dense) Cols() int {
	if m == nil {
		return 0
	}
	return m.cols
}

// IsEmpty reports whether the matrix has no rows.
func (m *Dense) IsEmpty() bool {
	return m.Rows() == 0
}

// At returns the element at row i, column j.
func (m *Dense) At(i, j int) float64 {
	return m.data[i*m.cols+j]
}

// Set assigns the element at row i, column j.
func (m *Dense) Set(i, j int, v float64) {
	m.data[i*m.cols+j] = v
}

// Row returns row i as a Vector sharing the matrix's backing storage.
// Callers must not grow the returned slice.
func (m *Dense) Row(i int) Vector {
	return m.data[i*m.cols : (i+1)*m.cols : (i+1)*m.cols]
}

// Data returns the row-major backing slice. The slice is shared, not copied.
func (m *Dense) Data() []float64 {
	if m == nil {
		return nil
	}
	return m.data
}

// Clone returns an independent deep copy of m.
func (m *Dense) Clone() *Dense {
	if m == nil {
		return &Dense{}
	}
	return &Dense{
		rows: m.rows,
		cols: m.cols,
		data: slices.Clone(m.data),
	}
}

// AppendRow returns a new matrix consisting of m's rows followed by v.
// m is not modified. For an empty m the new matrix adopts v's length as
// its column count.
func (m *Dense) AppendRow(v Vector) (*Dense, error) {
	cols := m.Cols()
	if m.IsEmpty() {
		cols = len(v)
	}
	if len(v) != cols {
		return nil, fmt.Errorf("%w: matrix has %d columns, row has %d", ErrRaggedRows, cols, len(v))
	}

	out := &Dense{
		rows: m.Rows() + 1,
		cols: cols,
		data: make([]float64, 0, (m.Rows()+1)*cols),
	}
	out.data = append(out.data, m.Data()...)
	out.data = append(out.data, v...)
	return out, nil
}
