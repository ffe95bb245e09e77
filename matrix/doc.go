// Package matrix provides dense row-major matrices and vectors of float64
// scalars. Rows represent individual data points; the column count is the
// dimensionality shared by every row.
//
// Matrices are plain host-memory containers. Precision casting and device
// transfer are the responsibility of the evaluation backends.
package matrix
