// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dgemm

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/gomlx/dgemm/pkg/core/matrix"
	"github.com/gomlx/dgemm/pkg/core/validator"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// randomMatrix returns a dim x dim matrix with values uniform in [0, 1).
func randomMatrix(t testing.TB, rng *rand.Rand, dim int) *matrix.Matrix {
	m, err := matrix.New(dim)
	require.NoError(t, err)
	m.FillFunc(func(_, _ int) float64 { return rng.Float64() })
	return m
}

// poisonedMatrix returns a dim x dim matrix filled with NaN.
func poisonedMatrix(t testing.TB, dim int) *matrix.Matrix {
	m, err := matrix.New(dim)
	require.NoError(t, err)
	m.Fill(math.NaN())
	return m
}

func testEngines(t *testing.T) map[string]*Engine {
	return map[string]*Engine{
		"sequential": MustNew(Config{BlockSize: 4, MaxParallelism: 0}),
		"parallel":   MustNew(Config{BlockSize: 4, MaxParallelism: 3}),
		"unlimited":  MustNew(Config{BlockSize: 4, MaxParallelism: -1}),
	}
}

func TestMultiplySmall(t *testing.T) {
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			for _, kernelName := range KernelNames {
				kernel, err := e.Kernel(kernelName)
				require.NoError(t, err)

				// B = I, alpha=1, beta=0 over a NaN-poisoned C gives back A exactly.
				a := matrix.MustFromRows([][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}})
				identity, err := matrix.Identity(3)
				require.NoError(t, err)
				c := poisonedMatrix(t, 3)
				require.NoError(t, kernel(1, a, identity, 0, c))
				assert.True(t, a.Equal(c), "kernel %s: got %s", kernelName, c)

				// A = I gives back B.
				c = poisonedMatrix(t, 3)
				require.NoError(t, kernel(1, identity, a, 0, c))
				assert.True(t, a.Equal(c), "kernel %s: got %s", kernelName, c)

				// alpha and beta, with values exactly representable.
				a = matrix.MustFromRows([][]float64{{1, 2}, {3, 4}})
				b := matrix.MustFromRows([][]float64{{5, 6}, {7, 8}})
				c = matrix.MustFromRows([][]float64{{1, 1}, {1, 1}})
				require.NoError(t, kernel(2, a, b, 3, c))
				want := matrix.MustFromRows([][]float64{{2*19 + 3, 2*22 + 3}, {2*43 + 3, 2*50 + 3}})
				assert.True(t, want.Equal(c), "kernel %s: got %s", kernelName, c)

				// alpha = 0, beta = 1 leaves C unchanged.
				require.NoError(t, kernel(0, a, b, 1, c))
				assert.True(t, want.Equal(c), "kernel %s: got %s", kernelName, c)

				// alpha = 0, beta = 0 clears C.
				require.NoError(t, kernel(0, a, b, 0, c))
				zeros, _ := matrix.New(2)
				assert.True(t, zeros.Equal(c), "kernel %s: got %s", kernelName, c)
			}
		})
	}
}

func TestMultiplyByIdentity(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	e := MustNew(Config{BlockSize: DefaultBlockSize, MaxParallelism: 4})
	for _, dim := range []int{1, 7, 33, 64, 65} {
		a := randomMatrix(t, rng, dim)
		identity, err := matrix.Identity(dim)
		require.NoError(t, err)
		for _, kernelName := range KernelNames {
			kernel, err := e.Kernel(kernelName)
			require.NoError(t, err)
			c := poisonedMatrix(t, dim)
			require.NoError(t, kernel(1, a, identity, 0, c))
			assert.True(t, a.Equal(c), "dim=%d, kernel %s: A*I != A", dim, kernelName)

			c = poisonedMatrix(t, dim)
			require.NoError(t, kernel(1, identity, a, 0, c))
			assert.True(t, a.Equal(c), "dim=%d, kernel %s: I*A != A", dim, kernelName)
		}
		for _, blockSize := range []int{1, 3, dim + 37} {
			c := poisonedMatrix(t, dim)
			require.NoError(t, e.MultiplyBlocked(1, a, identity, 0, c, blockSize))
			assert.True(t, a.Equal(c), "dim=%d, block=%d: A*I != A", dim, blockSize)
		}
	}
}

func TestMultiplyEmpty(t *testing.T) {
	e := MustNew(DefaultConfig())
	empty, err := matrix.New(0)
	require.NoError(t, err)
	for _, kernelName := range KernelNames {
		kernel, err := e.Kernel(kernelName)
		require.NoError(t, err)
		assert.NoError(t, kernel(1, empty, empty, 0, &matrix.Matrix{}), "kernel %s", kernelName)
	}
	bt, err := e.Transpose(empty)
	require.NoError(t, err)
	assert.Equal(t, 0, bt.Dim())
}

func TestMultiplyBlockedAgainstReference(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	e := MustNew(Config{BlockSize: DefaultBlockSize, MaxParallelism: 4})
	for _, dim := range []int{1, 7, 33, 64, 65} {
		a := randomMatrix(t, rng, dim)
		b := randomMatrix(t, rng, dim)
		c0 := randomMatrix(t, rng, dim)

		want, err := c0.Clone()
		require.NoError(t, err)
		require.NoError(t, e.MultiplyReference(1.5, a, b, -0.5, want))

		for _, blockSize := range []int{1, 3, dim, dim + 37} {
			t.Run(fmt.Sprintf("dim=%d/block=%d", dim, blockSize), func(t *testing.T) {
				got, err := c0.Clone()
				require.NoError(t, err)
				require.NoError(t, e.MultiplyBlocked(1.5, a, b, -0.5, got, blockSize))
				report := validator.Validate(want, got, validator.DefaultTolerance)
				assert.True(t, report.Passed(), "blocked vs reference: %s", report)

				gotGonum, err := c0.Clone()
				require.NoError(t, err)
				require.NoError(t, MultiplyGonum(1.5, a, b, -0.5, gotGonum))
				report = validator.Validate(want, gotGonum, validator.DefaultTolerance)
				assert.True(t, report.Passed(), "gonum vs reference: %s", report)
			})
		}
	}
}

func TestMultiplyBetaZeroIgnoresC(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	e := MustNew(Config{BlockSize: 16, MaxParallelism: 2})
	for _, dim := range []int{0, 1, 7, 33, 64} {
		t.Run(fmt.Sprintf("dim=%d", dim), func(t *testing.T) {
			a := randomMatrix(t, rng, dim)
			b := randomMatrix(t, rng, dim)
			for _, kernelName := range KernelNames {
				kernel, err := e.Kernel(kernelName)
				require.NoError(t, err)

				clean, err := matrix.New(dim)
				require.NoError(t, err)
				require.NoError(t, kernel(0.75, a, b, 0, clean))

				poisoned := poisonedMatrix(t, dim)
				if dim > 0 {
					poisoned.Set(0, 0, math.Inf(1))
				}
				require.NoError(t, kernel(0.75, a, b, 0, poisoned))
				assert.True(t, clean.Equal(poisoned), "kernel %s: result depends on the previous C", kernelName)
			}
		})
	}
}

func TestMultiplyDeterministic(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	dim := 50
	a := randomMatrix(t, rng, dim)
	b := randomMatrix(t, rng, dim)

	// The blocked kernel sums each tile in a fixed order, regardless of the number of workers.
	var results []*matrix.Matrix
	for _, parallelism := range []int{0, 1, 3, -1} {
		e := MustNew(Config{BlockSize: 8, MaxParallelism: parallelism})
		c, err := matrix.New(dim)
		require.NoError(t, err)
		require.NoError(t, e.Multiply(1, a, b, 0, c))
		results = append(results, c)
	}
	for _, c := range results[1:] {
		assert.True(t, results[0].Equal(c))
	}
}

func TestTranspose(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	e := MustNew(Config{BlockSize: 8, MaxParallelism: 3})
	for _, dim := range []int{1, 2, 9, 40} {
		b := randomMatrix(t, rng, dim)
		bt, err := e.Transpose(b)
		require.NoError(t, err)
		for i := range dim {
			for j := range dim {
				require.Equal(t, b.At(i, j), bt.At(j, i))
			}
		}
		btt, err := e.Transpose(bt)
		require.NoError(t, err)
		assert.True(t, b.Equal(btt), "transposing twice must give back the original")
	}
	_, err := e.Transpose(nil)
	assert.Error(t, err)
}

func TestMultiplyErrors(t *testing.T) {
	e := MustNew(Config{BlockSize: 4, MaxParallelism: 2})
	rng := rand.New(rand.NewPCG(8, 9))
	a := randomMatrix(t, rng, 4)
	b := randomMatrix(t, rng, 4)
	c := randomMatrix(t, rng, 4)
	original, err := c.Clone()
	require.NoError(t, err)

	t.Run("dimension-mismatch", func(t *testing.T) {
		small := randomMatrix(t, rng, 3)
		for _, kernelName := range KernelNames {
			kernel, err := e.Kernel(kernelName)
			require.NoError(t, err)
			err = kernel(1, a, small, 0, c)
			assert.True(t, errors.Is(err, matrix.ErrDimensionMismatch), "kernel %s: %v", kernelName, err)
			err = kernel(1, a, b, 0, small)
			assert.True(t, errors.Is(err, matrix.ErrDimensionMismatch), "kernel %s: %v", kernelName, err)
			err = kernel(1, nil, b, 0, c)
			assert.True(t, errors.Is(err, matrix.ErrDimensionMismatch), "kernel %s: %v", kernelName, err)
		}
		assert.True(t, original.Equal(c))
	})

	t.Run("aliased", func(t *testing.T) {
		for _, kernelName := range KernelNames {
			kernel, err := e.Kernel(kernelName)
			require.NoError(t, err)
			err = kernel(1, c, b, 0, c)
			assert.True(t, errors.Is(err, ErrAliasedOperands), "kernel %s: %v", kernelName, err)
			err = kernel(1, a, c, 0, c)
			assert.True(t, errors.Is(err, ErrAliasedOperands), "kernel %s: %v", kernelName, err)
		}
		assert.True(t, original.Equal(c))

		// C partially overlapping A or B, through views of a shared buffer.
		const n = 8
		buf := make([]float64, n*n+1)
		for ii := range buf {
			buf[ii] = float64(ii)
		}
		overlappedA, err := matrix.FromFlat(n, buf[:n*n])
		require.NoError(t, err)
		overlappingC, err := matrix.FromFlat(n, buf[1:n*n+1])
		require.NoError(t, err)
		identity, err := matrix.Identity(n)
		require.NoError(t, err)
		before := append([]float64(nil), buf...)
		for _, kernelName := range KernelNames {
			kernel, err := e.Kernel(kernelName)
			require.NoError(t, err)
			err = kernel(1, overlappedA, identity, 0, overlappingC)
			assert.True(t, errors.Is(err, ErrAliasedOperands), "kernel %s: %v", kernelName, err)
			err = kernel(1, identity, overlappedA, 0, overlappingC)
			assert.True(t, errors.Is(err, ErrAliasedOperands), "kernel %s: %v", kernelName, err)
		}
		assert.Equal(t, before, buf)

		// A and B may be the same matrix.
		square, err := matrix.New(4)
		require.NoError(t, err)
		require.NoError(t, e.Multiply(1, a, a, 0, square))
	})

	t.Run("block-size", func(t *testing.T) {
		for _, blockSize := range []int{0, -1} {
			err := e.MultiplyBlocked(1, a, b, 0, c, blockSize)
			assert.True(t, errors.Is(err, ErrInvalidBlockSize))
		}
		assert.True(t, original.Equal(c))
	})

	t.Run("out-of-memory", func(t *testing.T) {
		// Lower the limit after allocating the operands, so the transposed B can't be allocated.
		saved := matrix.MaxElements
		matrix.MaxElements = 15
		defer func() { matrix.MaxElements = saved }()
		err := e.Multiply(1, a, b, 0, c)
		assert.True(t, errors.Is(err, matrix.ErrOutOfMemory), "got %v", err)
		assert.True(t, original.Equal(c), "C must not be modified on failure")
	})

	t.Run("unknown-kernel", func(t *testing.T) {
		_, err := e.Kernel("strassen")
		assert.True(t, errors.Is(err, ErrUnknownKernel))
	})
}

func TestEngineString(t *testing.T) {
	e := MustNew(Config{BlockSize: 32, MaxParallelism: 2})
	assert.Equal(t, "Engine(block_size=32, parallelism=2, workers=2)", e.String())
	assert.Equal(t, Config{BlockSize: 32, MaxParallelism: 2}, e.Config())
}

func benchmarkKernel(b *testing.B, kernelName string, dim int) {
	e := MustNew(DefaultConfig())
	kernel, err := e.Kernel(kernelName)
	require.NoError(b, err)
	rng := rand.New(rand.NewPCG(0, 0))
	ma := randomMatrix(b, rng, dim)
	mb := randomMatrix(b, rng, dim)
	mc := randomMatrix(b, rng, dim)
	b.SetBytes(int64(3 * dim * dim * matrix.ElementSize))
	b.ResetTimer()
	for range b.N {
		if err := kernel(1, ma, mb, 1, mc); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMultiply(b *testing.B) {
	for _, dim := range []int{64, 256} {
		for _, kernelName := range KernelNames {
			b.Run(fmt.Sprintf("%s/%d", kernelName, dim), func(b *testing.B) {
				benchmarkKernel(b, kernelName, dim)
			})
		}
	}
}
