// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package validator compares the outputs of two kernels element by element, against an
// absolute tolerance.
package validator

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/gomlx/dgemm/pkg/core/matrix"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// DefaultTolerance is the default maximum absolute difference accepted per element.
const DefaultTolerance = 1e-6

var (
	// ErrDimensionMismatch is wrapped by Report.Err when the matrices have different dimensions.
	ErrDimensionMismatch = matrix.ErrDimensionMismatch

	// ErrValueMismatch is wrapped by Report.Err when some element differs by more than the tolerance.
	ErrValueMismatch = errors.New("matrix values mismatch")
)

// Verdict of a validation.
type Verdict int

const (
	// Passed means every element is within tolerance.
	Passed Verdict = iota

	// ValueMismatch means at least one element differs by more than the tolerance (or is NaN in only one of the matrices).
	ValueMismatch

	// DimensionMismatch means the matrices have different dimensions, so values were not compared.
	DimensionMismatch
)

// String implements fmt.Stringer.
func (v Verdict) String() string {
	switch v {
	case Passed:
		return "PASSED"
	case ValueMismatch:
		return "FAILED"
	case DimensionMismatch:
		return "DIMENSION_MISMATCH"
	}
	return fmt.Sprintf("Verdict(%d)", int(v))
}

// MarshalText implements encoding.TextMarshaler, so verdicts are saved by name.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Verdict) UnmarshalText(text []byte) error {
	for _, candidate := range []Verdict{Passed, ValueMismatch, DimensionMismatch} {
		if string(text) == candidate.String() {
			*v = candidate
			return nil
		}
	}
	return errors.Errorf("unknown validation verdict %q", text)
}

// Mismatch describes the first element, in row-major order, out of tolerance.
type Mismatch struct {
	Row, Col       int
	Value1, Value2 float64
	AbsDiff        float64
}

// mismatchJSON is the serialized form of Mismatch: float values are strings, since JSON
// numbers can't represent NaN or Inf.
type mismatchJSON struct {
	Row, Col                int
	Value1, Value2, AbsDiff string
}

// MarshalJSON implements json.Marshaler.
func (m *Mismatch) MarshalJSON() ([]byte, error) {
	return json.Marshal(mismatchJSON{
		Row:     m.Row,
		Col:     m.Col,
		Value1:  strconv.FormatFloat(m.Value1, 'g', -1, 64),
		Value2:  strconv.FormatFloat(m.Value2, 'g', -1, 64),
		AbsDiff: strconv.FormatFloat(m.AbsDiff, 'g', -1, 64),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Mismatch) UnmarshalJSON(data []byte) error {
	var mj mismatchJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return errors.Wrap(err, "failed to decode validator.Mismatch")
	}
	m.Row, m.Col = mj.Row, mj.Col
	var err error
	for _, field := range []struct {
		str string
		dst *float64
	}{{mj.Value1, &m.Value1}, {mj.Value2, &m.Value2}, {mj.AbsDiff, &m.AbsDiff}} {
		*field.dst, err = strconv.ParseFloat(field.str, 64)
		if err != nil {
			return errors.Wrapf(err, "failed to decode validator.Mismatch value %q", field.str)
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (m *Mismatch) String() string {
	return fmt.Sprintf("mismatch at (%d, %d): %g vs %g (|diff|=%g)", m.Row, m.Col, m.Value1, m.Value2, m.AbsDiff)
}

// Report is the outcome of Validate.
type Report struct {
	Verdict    Verdict
	Dim1, Dim2 int
	Tolerance  float64

	// MaxAbsDiff is the largest finite absolute difference among the elements compared.
	// If there is a mismatch, comparison stops there.
	MaxAbsDiff float64

	// Mismatch is set if Verdict is ValueMismatch.
	Mismatch *Mismatch `json:",omitempty"`
}

// Passed returns whether the validation passed.
func (r Report) Passed() bool {
	return r.Verdict == Passed
}

// Err returns nil if the validation passed, or an error wrapping ErrDimensionMismatch or
// ErrValueMismatch otherwise.
func (r Report) Err() error {
	switch r.Verdict {
	case Passed:
		return nil
	case DimensionMismatch:
		return errors.Wrapf(ErrDimensionMismatch, "validation: %dx%d vs %dx%d", r.Dim1, r.Dim1, r.Dim2, r.Dim2)
	default:
		return errors.Wrapf(ErrValueMismatch, "validation with tolerance %g: %s", r.Tolerance, r.Mismatch)
	}
}

// String implements fmt.Stringer.
func (r Report) String() string {
	switch r.Verdict {
	case Passed:
		return fmt.Sprintf("PASSED (max |diff|=%.3g)", r.MaxAbsDiff)
	case DimensionMismatch:
		return fmt.Sprintf("DIMENSION_MISMATCH (%dx%d vs %dx%d)", r.Dim1, r.Dim1, r.Dim2, r.Dim2)
	default:
		return fmt.Sprintf("FAILED (%s)", r.Mismatch)
	}
}

// Validate compares c1 and c2 element by element: it passes if they have the same dimension and
// |c1(i, j) - c2(i, j)| <= tolerance for every element.
//
// A NaN fails, unless the other matrix also holds a NaN at the same position.
// It panics if tolerance is negative or NaN, or if any of the matrices is nil.
func Validate(c1, c2 *matrix.Matrix, tolerance float64) Report {
	if c1 == nil || c2 == nil {
		exceptions.Panicf("validator.Validate(%s, %s): nil matrix", c1, c2)
	}
	if !(tolerance >= 0) {
		exceptions.Panicf("validator.Validate: invalid tolerance %g, it must be >= 0", tolerance)
	}
	report := Report{
		Dim1:      c1.Dim(),
		Dim2:      c2.Dim(),
		Tolerance: tolerance,
	}
	if report.Dim1 != report.Dim2 {
		report.Verdict = DimensionMismatch
		return report
	}
	dim := c1.Dim()
	flat1, flat2 := c1.Flat(), c2.Flat()
	for idx, v1 := range flat1 {
		v2 := flat2[idx]
		if v1 == v2 || (math.IsNaN(v1) && math.IsNaN(v2)) {
			// Also covers infinities of the same sign, whose difference is NaN.
			continue
		}
		diff := math.Abs(v1 - v2)
		if diff <= tolerance {
			report.MaxAbsDiff = max(report.MaxAbsDiff, diff)
			continue
		}
		// Also catches NaN diffs: NaN <= tolerance is false.
		report.Verdict = ValueMismatch
		report.Mismatch = &Mismatch{
			Row:     idx / dim,
			Col:     idx % dim,
			Value1:  v1,
			Value2:  v2,
			AbsDiff: diff,
		}
		if !math.IsNaN(diff) && !math.IsInf(diff, 0) {
			report.MaxAbsDiff = max(report.MaxAbsDiff, diff)
		}
		return report
	}
	return report
}
