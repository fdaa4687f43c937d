// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dgemm

import (
	"github.com/gomlx/dgemm/pkg/core/matrix"
	"github.com/pkg/errors"
)

// KernelFn is the signature shared by the multiplication kernels: C = alpha*A*B + beta*C.
type KernelFn func(alpha float64, a, b *matrix.Matrix, beta float64, c *matrix.Matrix) error

// Names of the available kernels.
const (
	KernelBlocked   = "blocked"
	KernelReference = "reference"
	KernelGonum     = "gonum"
)

// KernelNames lists the kernels available with Engine.Kernel, in the order they are reported.
var KernelNames = []string{KernelBlocked, KernelReference, KernelGonum}

// Kernel returns the kernel with the given name, bound to the engine.
func (e *Engine) Kernel(name string) (KernelFn, error) {
	switch name {
	case KernelBlocked:
		return e.Multiply, nil
	case KernelReference:
		return e.MultiplyReference, nil
	case KernelGonum:
		return MultiplyGonum, nil
	}
	return nil, errors.Wrapf(ErrUnknownKernel, "kernel %q, valid kernels are %q", name, KernelNames)
}
