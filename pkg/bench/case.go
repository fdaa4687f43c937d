// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package bench times the dgemm kernels on pseudo-random inputs, validates them against the
// reference kernel, and saves or plots the results.
package bench

import (
	"fmt"
	"time"

	"github.com/gomlx/dgemm/pkg/core/dgemm"
)

// Case is one benchmark configuration.
type Case struct {
	// Dim is the dimension N of the square matrices.
	Dim int

	// BlockSize used by the blocked kernel. If 0 the engine's configured block size is used.
	BlockSize int

	Alpha, Beta float64

	// Seed of the pseudo-random generator used for the inputs: the same seed gives the same inputs.
	Seed uint64
}

// DefaultCase returns N=1024, block size 64, alpha=1 and beta=0.
func DefaultCase() Case {
	return Case{
		Dim:       1024,
		BlockSize: dgemm.DefaultBlockSize,
		Alpha:     1,
		Beta:      0,
	}
}

// String implements fmt.Stringer.
func (c Case) String() string {
	return fmt.Sprintf("N=%d, block=%d, alpha=%g, beta=%g, seed=%d", c.Dim, c.BlockSize, c.Alpha, c.Beta, c.Seed)
}

// NumOps is the number of floating point operations of one multiplication of dimension dim,
// counting one multiply and one add per inner product term: 2*N³.
func NumOps(dim int) float64 {
	n := float64(dim)
	return 2 * n * n * n
}

// GFlops returns the throughput, in 10⁹ floating point operations per second, of a multiplication
// of dimension dim that took elapsed. It returns 0 if elapsed <= 0.
func GFlops(dim int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return NumOps(dim) / elapsed.Seconds() / 1e9
}
