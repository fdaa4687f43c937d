// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dgemm implements C = alpha*A*B + beta*C for square float64 matrices.
//
// Engine.Multiply is the optimized kernel: it transposes B, so the inner products walk both
// operands contiguously, and splits the (i, j, k) iteration space in cubic tiles, with row tiles
// distributed over a pool of workers. Engine.MultiplyReference is the plain triple loop used as
// an oracle, and MultiplyGonum delegates to gonum's BLAS for an independent cross-check.
//
// All kernels share the same contract:
//
//   - A, B and C must have the same dimension, and C can't share storage with A or B.
//   - A and B are only read. C is updated in place.
//   - If beta == 0, the previous contents of C are ignored (even NaN or Inf values).
//   - Kernels don't retain references to the matrices after they return.
//
// Floating point addition is not associative, so kernels that sum in different orders may
// differ in the lowest bits: compare results with package validator, not with ==.
package dgemm

import (
	"fmt"

	"github.com/gomlx/dgemm/internal/workerspool"
	"github.com/gomlx/dgemm/pkg/core/matrix"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	// ErrInvalidBlockSize is returned (wrapped) for block sizes < 1.
	ErrInvalidBlockSize = errors.New("invalid block size")

	// ErrAliasedOperands is returned (wrapped) if the output C shares storage with A or B.
	ErrAliasedOperands = errors.New("output matrix shares storage with an input")

	// ErrUnknownKernel is returned (wrapped) by Engine.Kernel for unknown kernel names.
	ErrUnknownKernel = errors.New("unknown kernel")
)

// Engine holds the configuration and the workers used by the kernels.
//
// It is safe for concurrent use: concurrent calls share the worker pool.
type Engine struct {
	config Config
	pool   *workerspool.Pool
}

// New creates an Engine with the given configuration.
func New(config Config) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		config: config,
		pool:   workerspool.NewWithParallelism(config.MaxParallelism),
	}
	klog.V(1).Infof("dgemm: new engine %s", e)
	return e, nil
}

// NewFromEnv creates an Engine configured with ConfigFromEnv.
func NewFromEnv() (*Engine, error) {
	config, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return New(config)
}

// MustNew is like New, but panics on error.
func MustNew(config Config) *Engine {
	e, err := New(config)
	if err != nil {
		panic(err)
	}
	return e
}

// Config returns the configuration of the engine.
func (e *Engine) Config() Config {
	return e.config
}

// BlockSize used by Engine.Multiply.
func (e *Engine) BlockSize() int {
	return e.config.BlockSize
}

// MaxParallelism of the worker pool.
func (e *Engine) MaxParallelism() int {
	return e.pool.MaxParallelism()
}

// String implements fmt.Stringer.
func (e *Engine) String() string {
	return fmt.Sprintf("Engine(block_size=%d, parallelism=%d, workers=%d)",
		e.config.BlockSize, e.pool.MaxParallelism(), e.pool.NumWorkers())
}

// checkOperands validates the preconditions shared by all kernels.
func checkOperands(kernel string, a, b, c *matrix.Matrix) error {
	if err := matrix.CheckSameDim(a, b, c); err != nil {
		return errors.WithMessagef(err, "dgemm.%s(A, B, C)", kernel)
	}
	if c.Overlaps(a) || c.Overlaps(b) {
		return errors.Wrapf(ErrAliasedOperands, "dgemm.%s(A, B, C)", kernel)
	}
	return nil
}

// scale multiplies every element of c by beta, row by row in parallel.
//
// beta == 0 writes zeros instead of multiplying, so NaN and Inf values are erased as well.
// It returns after all rows are done, so it can be followed by an accumulation into c.
func (e *Engine) scale(beta float64, c *matrix.Matrix) {
	if beta == 1 {
		return
	}
	dim := c.Dim()
	flat := c.Flat()
	e.pool.ParallelFor(dim, func(i int) {
		row := flat[i*dim : (i+1)*dim]
		if beta == 0 {
			clear(row)
			return
		}
		for j := range row {
			row[j] *= beta
		}
	})
}
