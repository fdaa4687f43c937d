// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bench

import (
	"context"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/gomlx/dgemm/pkg/core/dgemm"
	"github.com/gomlx/dgemm/pkg/core/matrix"
	"github.com/gomlx/dgemm/pkg/core/validator"
	"github.com/gomlx/dgemm/pkg/support/sets"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Timing of one kernel: the best of the repeats.
type Timing struct {
	Kernel  string
	Elapsed time.Duration
	GFlops  float64
}

// Validation of the output of Kernel against the output of kernel Against.
type Validation struct {
	Kernel  string
	Against string
	Report  validator.Report
}

// Result of running one Case.
type Result struct {
	RunID uuid.UUID
	Time  time.Time
	Host  Host
	Case  Case

	Timings     []Timing
	Validations []Validation
}

// Passed returns whether all validations passed.
func (r *Result) Passed() bool {
	for _, v := range r.Validations {
		if !v.Report.Passed() {
			return false
		}
	}
	return true
}

// Timing returns the timing of the given kernel, if it was run.
func (r *Result) Timing(kernel string) (Timing, bool) {
	for _, t := range r.Timings {
		if t.Kernel == kernel {
			return t, true
		}
	}
	return Timing{}, false
}

// Runner runs benchmark cases on an Engine.
type Runner struct {
	engine    *dgemm.Engine
	kernels   []string
	tolerance float64
	repeats   int
	warmup    int
	host      Host
}

// Option for NewRunner.
type Option func(r *Runner)

// WithKernels selects the kernels to run, in the given order. The reference kernel is always
// run, since the others are validated against it: it is appended if missing.
func WithKernels(kernels ...string) Option {
	return func(r *Runner) {
		r.kernels = slices.Clone(kernels)
	}
}

// WithTolerance sets the absolute tolerance of the validations. Default is validator.DefaultTolerance.
func WithTolerance(tolerance float64) Option {
	return func(r *Runner) {
		r.tolerance = tolerance
	}
}

// WithRepeats sets how many times each kernel is timed: the best time is reported. Default is 1.
func WithRepeats(repeats int) Option {
	return func(r *Runner) {
		r.repeats = repeats
	}
}

// WithWarmup sets how many untimed runs of each kernel precede the timed ones. Default is 0.
func WithWarmup(warmup int) Option {
	return func(r *Runner) {
		r.warmup = warmup
	}
}

// NewRunner creates a Runner that runs all kernels (dgemm.KernelNames) by default.
func NewRunner(engine *dgemm.Engine, options ...Option) (*Runner, error) {
	r := &Runner{
		engine:    engine,
		kernels:   slices.Clone(dgemm.KernelNames),
		tolerance: validator.DefaultTolerance,
		repeats:   1,
	}
	for _, option := range options {
		option(r)
	}
	if engine == nil {
		return nil, errors.New("bench.NewRunner: nil engine")
	}
	if !(r.tolerance >= 0) {
		return nil, errors.Errorf("bench.NewRunner: invalid tolerance %g, it must be >= 0", r.tolerance)
	}
	if r.repeats < 1 || r.warmup < 0 {
		return nil, errors.Errorf("bench.NewRunner: invalid repeats=%d / warmup=%d, repeats must be >= 1 and warmup >= 0",
			r.repeats, r.warmup)
	}

	if unknown := sets.MakeWith(r.kernels...).Sub(sets.MakeWith(dgemm.KernelNames...)); len(unknown) > 0 {
		return nil, errors.Wrapf(dgemm.ErrUnknownKernel, "bench.NewRunner: kernels %q, valid kernels are %q",
			sets.Sorted(unknown), dgemm.KernelNames)
	}
	seen := sets.Make[string](len(r.kernels) + 1)
	kernels := make([]string, 0, len(r.kernels)+1)
	for _, name := range r.kernels {
		if seen.Has(name) {
			continue
		}
		seen.Insert(name)
		kernels = append(kernels, name)
	}
	if !seen.Has(dgemm.KernelReference) {
		kernels = append(kernels, dgemm.KernelReference)
	}
	r.kernels = kernels
	r.host = HostInfo()
	return r, nil
}

// Kernels returns the names of the kernels run, in order.
func (r *Runner) Kernels() []string {
	return slices.Clone(r.kernels)
}

// kernel returns the kernel function to benchmark for the given case.
func (r *Runner) kernel(name string, c Case) (dgemm.KernelFn, error) {
	if name == dgemm.KernelBlocked && c.BlockSize != 0 {
		blockSize := c.BlockSize
		return func(alpha float64, a, b *matrix.Matrix, beta float64, out *matrix.Matrix) error {
			return r.engine.MultiplyBlocked(alpha, a, b, beta, out, blockSize)
		}, nil
	}
	return r.engine.Kernel(name)
}

// randomInputs returns A, B and the initial C, filled with values uniform in [0, 1) generated from seed.
func randomInputs(dim int, seed uint64) (a, b, c0 *matrix.Matrix, err error) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	mats := make([]*matrix.Matrix, 3)
	for ii := range mats {
		mats[ii], err = matrix.New(dim)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	for _, m := range mats {
		m.FillFunc(func(_, _ int) float64 { return rng.Float64() })
	}
	return mats[0], mats[1], mats[2], nil
}

// Run allocates the inputs for the case, times each kernel and validates them against the
// reference kernel.
//
// Each kernel gets its own output matrix, reset to the same initial contents before every run.
// Allocation and precondition errors (e.g. invalid dimension or block size) are returned.
// Validation failures are only recorded in the Result: see Result.Passed.
func (r *Runner) Run(c Case) (*Result, error) {
	if c.BlockSize < 0 {
		return nil, errors.Wrapf(dgemm.ErrInvalidBlockSize, "bench case %s", c)
	}
	a, b, c0, err := randomInputs(c.Dim, c.Seed)
	if err != nil {
		return nil, errors.WithMessagef(err, "bench case %s: allocating inputs", c)
	}
	result := &Result{
		RunID: uuid.New(),
		Time:  time.Now(),
		Host:  r.host,
		Case:  c,
	}

	outputs := make(map[string]*matrix.Matrix, len(r.kernels))
	for _, name := range r.kernels {
		kernel, err := r.kernel(name, c)
		if err != nil {
			return nil, err
		}
		out, err := c0.Clone()
		if err != nil {
			return nil, errors.WithMessagef(err, "bench case %s: allocating output of kernel %q", c, name)
		}
		var best time.Duration
		for rep := range r.warmup + r.repeats {
			if err := out.CopyFrom(c0); err != nil {
				return nil, err
			}
			start := time.Now()
			if err := kernel(c.Alpha, a, b, c.Beta, out); err != nil {
				return nil, errors.WithMessagef(err, "bench case %s: kernel %q", c, name)
			}
			elapsed := time.Since(start)
			if rep < r.warmup {
				continue
			}
			if rep == r.warmup || elapsed < best {
				best = elapsed
			}
		}
		timing := Timing{Kernel: name, Elapsed: best, GFlops: GFlops(c.Dim, best)}
		klog.V(1).Infof("bench: %s: kernel %s took %s (%.2f GFLOP/s)", c, name, best, timing.GFlops)
		result.Timings = append(result.Timings, timing)
		outputs[name] = out
	}

	reference := outputs[dgemm.KernelReference]
	for _, name := range r.kernels {
		if name == dgemm.KernelReference {
			continue
		}
		report := validator.Validate(outputs[name], reference, r.tolerance)
		if !report.Passed() {
			klog.Warningf("bench: %s: kernel %s vs %s: %s", c, name, dgemm.KernelReference, report)
		}
		result.Validations = append(result.Validations, Validation{
			Kernel:  name,
			Against: dgemm.KernelReference,
			Report:  report,
		})
	}
	return result, nil
}

// Sweep runs the cases in order, calling onDone (if not nil) after each one.
//
// The context is checked between cases: if it is cancelled, Sweep returns the results so far
// and the context error. It also stops at the first error returned by Run.
func (r *Runner) Sweep(ctx context.Context, cases []Case, onDone func(result *Result)) ([]*Result, error) {
	results := make([]*Result, 0, len(cases))
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return results, errors.Wrapf(err, "bench sweep interrupted after %d of %d cases", len(results), len(cases))
		}
		result, err := r.Run(c)
		if err != nil {
			return results, err
		}
		results = append(results, result)
		if onDone != nil {
			onDone(result)
		}
	}
	return results, nil
}
