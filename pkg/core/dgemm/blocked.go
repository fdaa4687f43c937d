// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dgemm

import (
	"github.com/gomlx/dgemm/pkg/core/matrix"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Multiply computes C = alpha*A*B + beta*C with the blocked kernel and the configured block size.
// See MultiplyBlocked.
func (e *Engine) Multiply(alpha float64, a, b *matrix.Matrix, beta float64, c *matrix.Matrix) error {
	return e.MultiplyBlocked(alpha, a, b, beta, c, e.config.BlockSize)
}

// MultiplyBlocked computes C = alpha*A*B + beta*C using cubic tiles of extent blockSize.
//
// Steps, each a parallel region ending in a barrier:
//
//  1. Scale C by beta.
//  2. Transpose B into a temporary Bᵗ, owned by this call.
//  3. For each tile (ii, jj, kk), for each (i, j) in the tile, sum A(i, k)*Bᵗ(j, k) over the
//     tile's k range from left to right, and add alpha*sum to C(i, j).
//
// Row tiles (ii) are the unit of work: each one owns a disjoint set of rows of C.
// Tiles are clamped at the matrix boundary, and a blockSize larger than the dimension gives one tile.
//
// Errors: dimension mismatch, aliased C, blockSize < 1 and failure to allocate Bᵗ are all
// reported before C is modified.
func (e *Engine) MultiplyBlocked(alpha float64, a, b *matrix.Matrix, beta float64, c *matrix.Matrix, blockSize int) error {
	if err := checkOperands("MultiplyBlocked", a, b, c); err != nil {
		return err
	}
	if blockSize < 1 {
		return errors.Wrapf(ErrInvalidBlockSize, "dgemm.MultiplyBlocked(blockSize=%d)", blockSize)
	}
	dim := a.Dim()
	if dim == 0 {
		return nil
	}

	// Allocate Bᵗ before touching C.
	bt, err := matrix.New(dim)
	if err != nil {
		return errors.WithMessagef(err, "dgemm.MultiplyBlocked: allocating transposed B (%dx%d)", dim, dim)
	}
	numTiles := (dim + blockSize - 1) / blockSize
	if klog.V(2).Enabled() {
		klog.Infof("dgemm.MultiplyBlocked: dim=%d, blockSize=%d, %d^3 tiles, %d workers",
			dim, blockSize, numTiles, e.pool.NumWorkers())
	}

	e.scale(beta, c)
	e.transposeInto(bt, b)

	aFlat, btFlat, cFlat := a.Flat(), bt.Flat(), c.Flat()
	e.pool.ParallelFor(numTiles, func(tileIdx int) {
		rowStart := tileIdx * blockSize
		rowEnd := min(rowStart+blockSize, dim)
		for colStart := 0; colStart < dim; colStart += blockSize {
			colEnd := min(colStart+blockSize, dim)
			for depthStart := 0; depthStart < dim; depthStart += blockSize {
				depthEnd := min(depthStart+blockSize, dim)
				blockedTile(aFlat, btFlat, cFlat, dim, alpha,
					rowStart, rowEnd, colStart, colEnd, depthStart, depthEnd)
			}
		}
	})
	return nil
}

// blockedTile accumulates alpha*A[rows, depth]*Bᵗ[cols, depth]ᵗ into C[rows, cols].
func blockedTile(aFlat, btFlat, cFlat []float64, dim int, alpha float64,
	rowStart, rowEnd, colStart, colEnd, depthStart, depthEnd int) {
	for i := rowStart; i < rowEnd; i++ {
		aRow := aFlat[i*dim+depthStart : i*dim+depthEnd]
		cRow := cFlat[i*dim : (i+1)*dim]
		for j := colStart; j < colEnd; j++ {
			btRow := btFlat[j*dim+depthStart : j*dim+depthEnd]
			btRow = btRow[:len(aRow)]
			var sum float64
			for k, aValue := range aRow {
				sum += aValue * btRow[k]
			}
			cRow[j] += alpha * sum
		}
	}
}
