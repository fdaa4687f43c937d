// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package validator

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/gomlx/dgemm/pkg/core/matrix"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func iotaMatrix(t *testing.T, dim int) *matrix.Matrix {
	m, err := matrix.New(dim)
	require.NoError(t, err)
	m.FillFunc(func(i, j int) float64 { return float64(i*dim+j) / 7 })
	return m
}

func TestValidate(t *testing.T) {
	t.Run("equal", func(t *testing.T) {
		c1 := iotaMatrix(t, 5)
		c2, err := c1.Clone()
		require.NoError(t, err)
		report := Validate(c1, c2, DefaultTolerance)
		assert.True(t, report.Passed())
		assert.Equal(t, Passed, report.Verdict)
		assert.NoError(t, report.Err())
		assert.Nil(t, report.Mismatch)
		assert.Zero(t, report.MaxAbsDiff)
	})

	t.Run("within-tolerance", func(t *testing.T) {
		c1 := iotaMatrix(t, 4)
		c2, _ := c1.Clone()
		c2.Set(1, 1, c2.At(1, 1)+5e-7)
		report := Validate(c1, c2, DefaultTolerance)
		assert.True(t, report.Passed())
		assert.InDelta(t, 5e-7, report.MaxAbsDiff, 1e-12)
	})

	t.Run("perturbed-element", func(t *testing.T) {
		c1 := iotaMatrix(t, 4)
		c2, _ := c1.Clone()
		c2.Set(2, 3, c2.At(2, 3)+1e-3)
		report := Validate(c1, c2, 1e-6)
		require.False(t, report.Passed())
		assert.Equal(t, ValueMismatch, report.Verdict)
		require.NotNil(t, report.Mismatch)
		assert.Equal(t, 2, report.Mismatch.Row)
		assert.Equal(t, 3, report.Mismatch.Col)
		assert.Equal(t, c1.At(2, 3), report.Mismatch.Value1)
		assert.Equal(t, c2.At(2, 3), report.Mismatch.Value2)
		assert.InDelta(t, 1e-3, report.Mismatch.AbsDiff, 1e-9)

		err := report.Err()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValueMismatch))
		assert.False(t, errors.Is(err, ErrDimensionMismatch))
		assert.Contains(t, report.String(), "(2, 3)")
	})

	t.Run("first-mismatch", func(t *testing.T) {
		c1 := iotaMatrix(t, 4)
		c2, _ := c1.Clone()
		c2.Set(3, 0, 100)
		c2.Set(1, 2, 100)
		report := Validate(c1, c2, 1e-6)
		require.NotNil(t, report.Mismatch)
		assert.Equal(t, 1, report.Mismatch.Row)
		assert.Equal(t, 2, report.Mismatch.Col)
	})

	t.Run("dimension-mismatch", func(t *testing.T) {
		report := Validate(iotaMatrix(t, 3), iotaMatrix(t, 4), DefaultTolerance)
		assert.Equal(t, DimensionMismatch, report.Verdict)
		assert.False(t, report.Passed())
		assert.Nil(t, report.Mismatch)
		assert.Equal(t, 3, report.Dim1)
		assert.Equal(t, 4, report.Dim2)
		err := report.Err()
		assert.True(t, errors.Is(err, ErrDimensionMismatch))
		assert.False(t, errors.Is(err, ErrValueMismatch))
	})

	t.Run("empty", func(t *testing.T) {
		report := Validate(iotaMatrix(t, 0), iotaMatrix(t, 0), DefaultTolerance)
		assert.True(t, report.Passed())
	})

	t.Run("nan", func(t *testing.T) {
		c1 := iotaMatrix(t, 2)
		c2, _ := c1.Clone()
		c2.Set(0, 1, math.NaN())
		report := Validate(c1, c2, DefaultTolerance)
		require.Equal(t, ValueMismatch, report.Verdict)
		assert.Equal(t, 1, report.Mismatch.Col)

		// NaN on both sides at the same position is accepted, as are equal infinities.
		c1.Set(0, 1, math.NaN())
		c1.Set(1, 1, math.Inf(1))
		c2.Set(1, 1, math.Inf(1))
		assert.True(t, Validate(c1, c2, DefaultTolerance).Passed())

		c2.Set(1, 1, math.Inf(-1))
		report = Validate(c1, c2, DefaultTolerance)
		require.Equal(t, ValueMismatch, report.Verdict)
		assert.Equal(t, 1, report.Mismatch.Row)
	})

	t.Run("invalid-tolerance", func(t *testing.T) {
		c := iotaMatrix(t, 2)
		assert.Panics(t, func() { Validate(c, c, -1) })
		assert.Panics(t, func() { Validate(c, c, math.NaN()) })
		assert.Panics(t, func() { Validate(nil, c, 1) })
	})
}

func TestReportJSON(t *testing.T) {
	c1 := iotaMatrix(t, 2)
	c2, _ := c1.Clone()
	c2.Set(1, 0, math.NaN())
	report := Validate(c1, c2, DefaultTolerance)

	data, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Verdict":"FAILED"`)

	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ValueMismatch, decoded.Verdict)
	require.NotNil(t, decoded.Mismatch)
	assert.Equal(t, 1, decoded.Mismatch.Row)
	assert.True(t, math.IsNaN(decoded.Mismatch.Value2))
	assert.Equal(t, c1.At(1, 0), decoded.Mismatch.Value1)
}
