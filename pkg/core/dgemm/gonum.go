// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dgemm

import (
	"github.com/gomlx/dgemm/pkg/core/matrix"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

// MultiplyGonum computes C = alpha*A*B + beta*C with gonum's BLAS (blas64.Gemm).
//
// blas64 defaults to gonum's pure Go implementation, which has its own blocking and
// parallelism, so it is an independent cross-check of the kernels in this package.
func MultiplyGonum(alpha float64, a, b *matrix.Matrix, beta float64, c *matrix.Matrix) error {
	if err := checkOperands("MultiplyGonum", a, b, c); err != nil {
		return err
	}
	if a.Dim() == 0 {
		// gonum rejects leading dimensions < 1.
		return nil
	}
	blas64.Gemm(blas.NoTrans, blas.NoTrans, alpha, toGeneral(a), toGeneral(b), beta, toGeneral(c))
	return nil
}

// toGeneral wraps the matrix storage, without copying, as a row-major blas64.General.
func toGeneral(m *matrix.Matrix) blas64.General {
	return blas64.General{
		Rows:   m.Dim(),
		Cols:   m.Dim(),
		Stride: m.Dim(),
		Data:   m.Flat(),
	}
}
