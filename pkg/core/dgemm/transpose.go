// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dgemm

import (
	"github.com/gomlx/dgemm/pkg/core/matrix"
	"github.com/pkg/errors"
)

// Transpose returns a newly allocated Bᵗ, with Bᵗ(j, k) = B(k, j).
//
// Output rows are distributed over the workers. It only moves data, so transposing twice
// gives back exactly the original values.
func (e *Engine) Transpose(b *matrix.Matrix) (*matrix.Matrix, error) {
	if b == nil {
		return nil, errors.Wrap(matrix.ErrDimensionMismatch, "dgemm.Transpose(nil)")
	}
	bt, err := matrix.New(b.Dim())
	if err != nil {
		return nil, errors.WithMessage(err, "dgemm.Transpose")
	}
	e.transposeInto(bt, b)
	return bt, nil
}

// transposeInto writes srcᵗ into dst, which must have the same dimension and not share storage.
// Each output row is written by exactly one task.
func (e *Engine) transposeInto(dst, src *matrix.Matrix) {
	dim := src.Dim()
	srcFlat, dstFlat := src.Flat(), dst.Flat()
	e.pool.ParallelFor(dim, func(j int) {
		dstRow := dstFlat[j*dim : (j+1)*dim]
		for k := range dstRow {
			dstRow[k] = srcFlat[k*dim+j]
		}
	})
}
