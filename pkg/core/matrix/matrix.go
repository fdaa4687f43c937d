// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package matrix defines the dense, square, row-major float64 buffer used by the DGEMM kernels.
//
// Element (i, j) of a Matrix of dimension N lives at offset i*N+j of its flat slice.
// The kernels work directly on the flat slices and do their own bounds reasoning: At and
// Set are conveniences for tests and small inputs, not for hot loops.
package matrix

import (
	"fmt"
	"math"
	"strings"
	"unsafe"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

var (
	// ErrOutOfMemory is returned (wrapped) when a matrix buffer can't be allocated.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrInvalidDimension is returned (wrapped) for negative dimensions or flat data of the wrong length.
	ErrInvalidDimension = errors.New("invalid matrix dimension")

	// ErrDimensionMismatch is returned (wrapped) when operands of an operation have different dimensions.
	ErrDimensionMismatch = errors.New("matrix dimension mismatch")
)

// ElementSize is the size in bytes of one element.
const ElementSize = 8

// MaxElements is the largest number of elements New will try to allocate.
//
// Requests above it fail with ErrOutOfMemory without touching the Go allocator. It can be
// lowered to cap the memory used by a process.
var MaxElements = math.MaxInt / ElementSize

// Matrix is a dense square matrix of float64, stored in row-major order.
//
// The zero value is a valid empty (0x0) matrix.
type Matrix struct {
	dim  int
	flat []float64
}

// New allocates a zero-filled matrix of dimension dim x dim.
//
// It returns an error wrapping ErrInvalidDimension if dim < 0, and one wrapping ErrOutOfMemory
// if dim*dim elements can't be allocated. No partial buffer is ever returned.
func New(dim int) (*Matrix, error) {
	if dim < 0 {
		return nil, errors.Wrapf(ErrInvalidDimension, "matrix.New(%d)", dim)
	}
	flat, err := Allocate(dim)
	if err != nil {
		return nil, err
	}
	return &Matrix{dim: dim, flat: flat}, nil
}

// Allocate returns a zero-filled flat buffer for a dim x dim matrix.
//
// Overflowing or too large requests return ErrOutOfMemory; so does an allocation that panics (e.g.
// "makeslice: len out of range"). The Go runtime aborts the whole process on a real exhaustion of
// memory, so MaxElements is the effective guard against it.
func Allocate(dim int) (flat []float64, err error) {
	if dim < 0 {
		return nil, errors.Wrapf(ErrInvalidDimension, "allocating matrix of dimension %d", dim)
	}
	if dim > 0 && dim > MaxElements/dim {
		return nil, errors.Wrapf(ErrOutOfMemory, "matrix of dimension %d (%d elements) exceeds the limit of %d elements",
			dim, uint64(dim)*uint64(dim), MaxElements)
	}
	numElements := dim * dim
	panicErr := exceptions.TryCatch[error](func() {
		flat = make([]float64, numElements)
	})
	if panicErr != nil {
		return nil, errors.Wrapf(ErrOutOfMemory, "allocating %d elements for a matrix of dimension %d: %v",
			numElements, dim, panicErr)
	}
	return flat, nil
}

// FromFlat wraps the given flat slice (without copying) as a dim x dim matrix.
// The length of flat must be exactly dim*dim.
func FromFlat(dim int, flat []float64) (*Matrix, error) {
	if dim < 0 || len(flat) != dim*dim {
		return nil, errors.Wrapf(ErrInvalidDimension, "matrix.FromFlat(dim=%d) given %d elements", dim, len(flat))
	}
	return &Matrix{dim: dim, flat: flat}, nil
}

// FromRows creates a new matrix from the given rows, which must form a square.
// Values are copied.
func FromRows(rows [][]float64) (*Matrix, error) {
	dim := len(rows)
	m, err := New(dim)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		if len(row) != dim {
			return nil, errors.Wrapf(ErrInvalidDimension, "matrix.FromRows: row %d has %d elements, wanted %d (square matrix)",
				i, len(row), dim)
		}
		copy(m.flat[i*dim:], row)
	}
	return m, nil
}

// MustFromRows is like FromRows, but panics on error. Convenient for tests.
func MustFromRows(rows [][]float64) *Matrix {
	m, err := FromRows(rows)
	if err != nil {
		panic(err)
	}
	return m
}

// Identity returns a new dim x dim identity matrix.
func Identity(dim int) (*Matrix, error) {
	m, err := New(dim)
	if err != nil {
		return nil, err
	}
	for i := range dim {
		m.flat[i*dim+i] = 1
	}
	return m, nil
}

// Dim returns the dimension N of the N x N matrix.
func (m *Matrix) Dim() int {
	return m.dim
}

// Size returns the number of elements, N*N.
func (m *Matrix) Size() int {
	return len(m.flat)
}

// Memory returns the number of bytes used by the elements.
func (m *Matrix) Memory() uintptr {
	return uintptr(len(m.flat)) * ElementSize
}

// Flat returns the underlying row-major storage. It is shared, not copied.
func (m *Matrix) Flat() []float64 {
	return m.flat
}

// Overlaps returns whether the storage of m and other share any element.
// Empty or nil matrices overlap nothing.
func (m *Matrix) Overlaps(other *Matrix) bool {
	if m == nil || other == nil || len(m.flat) == 0 || len(other.flat) == 0 {
		return false
	}
	start, end := addressRange(m.flat)
	otherStart, otherEnd := addressRange(other.flat)
	return start <= otherEnd && otherStart <= end
}

// addressRange returns the addresses of the first and last elements of flat, which must not be empty.
func addressRange(flat []float64) (first, last uintptr) {
	first = uintptr(unsafe.Pointer(&flat[0]))
	last = uintptr(unsafe.Pointer(&flat[len(flat)-1]))
	return
}

// Offset of element (i, j) in the flat storage.
func (m *Matrix) Offset(i, j int) int {
	return i*m.dim + j
}

// At returns element (i, j).
func (m *Matrix) At(i, j int) float64 {
	return m.flat[i*m.dim+j]
}

// Set element (i, j) to v.
func (m *Matrix) Set(i, j int, v float64) {
	m.flat[i*m.dim+j] = v
}

// Row returns row i as a sub-slice of the flat storage (shared, not copied).
func (m *Matrix) Row(i int) []float64 {
	return m.flat[i*m.dim : (i+1)*m.dim]
}

// Fill sets every element to v.
func (m *Matrix) Fill(v float64) {
	for ii := range m.flat {
		m.flat[ii] = v
	}
}

// FillFunc sets every element (i, j) to fn(i, j), in row-major order.
func (m *Matrix) FillFunc(fn func(i, j int) float64) {
	for i := range m.dim {
		row := m.flat[i*m.dim : (i+1)*m.dim]
		for j := range row {
			row[j] = fn(i, j)
		}
	}
}

// Clone returns a deep copy of the matrix.
func (m *Matrix) Clone() (*Matrix, error) {
	c, err := New(m.dim)
	if err != nil {
		return nil, err
	}
	copy(c.flat, m.flat)
	return c, nil
}

// CopyFrom copies the contents of src into m. Both must have the same dimension.
func (m *Matrix) CopyFrom(src *Matrix) error {
	if err := CheckSameDim(m, src); err != nil {
		return err
	}
	copy(m.flat, src.flat)
	return nil
}

// Equal returns whether other has the same dimension and exactly the same values.
// NaN values are never equal.
func (m *Matrix) Equal(other *Matrix) bool {
	if m.dim != other.dim {
		return false
	}
	for ii, v := range m.flat {
		if v != other.flat[ii] {
			return false
		}
	}
	return true
}

// CheckSameDim returns an error wrapping ErrDimensionMismatch if any of the matrices has a
// dimension different from the first one. Nil matrices are also rejected.
func CheckSameDim(matrices ...*Matrix) error {
	for ii, m := range matrices {
		if m == nil {
			return errors.Wrapf(ErrDimensionMismatch, "operand #%d is nil", ii)
		}
	}
	if len(matrices) == 0 {
		return nil
	}
	dim := matrices[0].dim
	for ii, m := range matrices[1:] {
		if m.dim != dim {
			return errors.Wrapf(ErrDimensionMismatch, "operand #%d is %dx%d, operand #0 is %dx%d",
				ii+1, m.dim, m.dim, dim, dim)
		}
	}
	return nil
}

// maxPrintDim is the largest dimension for which String prints the values.
const maxPrintDim = 8

// String pretty-prints small matrices. Larger ones only show their dimension.
func (m *Matrix) String() string {
	if m == nil {
		return "Matrix(nil)"
	}
	if m.dim > maxPrintDim {
		return fmt.Sprintf("Matrix(%dx%d)", m.dim, m.dim)
	}
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "Matrix(%dx%d)[", m.dim, m.dim)
	for i := range m.dim {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("[")
		for j, v := range m.Row(i) {
			if j > 0 {
				sb.WriteString(" ")
			}
			_, _ = fmt.Fprintf(&sb, "%g", v)
		}
		sb.WriteString("]")
	}
	sb.WriteString("]")
	return sb.String()
}
