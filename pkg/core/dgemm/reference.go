// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dgemm

import (
	"github.com/gomlx/dgemm/pkg/core/matrix"
)

// MultiplyReference computes C = alpha*A*B + beta*C with the direct triple loop:
//
//	C(i, j) = alpha * Σₖ A(i, k)*B(k, j) + beta * C(i, j)
//
// There is no transposition and no tiling: it is the oracle for the optimized kernels, so it
// should stay obvious rather than fast. Rows of C are distributed over the workers.
func (e *Engine) MultiplyReference(alpha float64, a, b *matrix.Matrix, beta float64, c *matrix.Matrix) error {
	if err := checkOperands("MultiplyReference", a, b, c); err != nil {
		return err
	}
	dim := a.Dim()
	aFlat, bFlat, cFlat := a.Flat(), b.Flat(), c.Flat()
	e.pool.ParallelFor(dim, func(i int) {
		for j := range dim {
			var sum float64
			for k := range dim {
				sum += aFlat[i*dim+k] * bFlat[k*dim+j]
			}
			if beta == 0 {
				cFlat[i*dim+j] = alpha * sum
			} else {
				cFlat[i*dim+j] = alpha*sum + beta*cFlat[i*dim+j]
			}
		}
	})
	return nil
}
