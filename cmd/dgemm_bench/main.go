// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// dgemm_bench times the DGEMM kernels (C = alpha*A*B + beta*C) on pseudo-random square matrices,
// validates them against the reference kernel and reports the throughput in GFLOP/s.
//
// Examples:
//
//	dgemm_bench                                  # N=1024, block size 64, all kernels.
//	dgemm_bench -n=256,512,1024 -block=32,64,128 -plot=~/tmp/dgemm.png
//	dgemm_bench -kernels=blocked -parallelism=4 -results=~/tmp/dgemm.jsonl -strict
//
// Engine settings can also be given with $DGEMM_CONFIG (e.g. "block_size=128;parallelism=8"), and
// are overridden by -config and then by -parallelism.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/gomlx/dgemm/pkg/bench"
	"github.com/gomlx/dgemm/pkg/core/dgemm"
	"github.com/gomlx/dgemm/pkg/core/validator"
	"github.com/gomlx/dgemm/pkg/support/fsutil"
	"github.com/gomlx/dgemm/pkg/support/xslices"
	"github.com/gomlx/dgemm/ui/commandline"
	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagDims = xslices.Flag("n", []int{bench.DefaultCase().Dim},
		"Comma-separated list of matrix dimensions N to benchmark.", xslices.ParseInt)
	flagBlocks = xslices.Flag("block", nil,
		"Comma-separated list of block sizes for the blocked kernel. Defaults to the engine's block size "+
			"(see -config).", xslices.ParseInt)
	flagKernels = xslices.Flag("kernels", dgemm.KernelNames,
		fmt.Sprintf("Comma-separated list of kernels to run, among %q. The reference kernel is always run, "+
			"since the others are validated against it.", dgemm.KernelNames),
		func(valueStr string) (string, error) { return strings.TrimSpace(valueStr), nil })

	flagAlpha       = flag.Float64("alpha", bench.DefaultCase().Alpha, "Scalar alpha in C = alpha*A*B + beta*C.")
	flagBeta        = flag.Float64("beta", bench.DefaultCase().Beta, "Scalar beta in C = alpha*A*B + beta*C.")
	flagTolerance   = flag.Float64("tolerance", validator.DefaultTolerance, "Absolute tolerance of the validation.")
	flagParallelism = flag.Int("parallelism", 0,
		"Number of workers: 0 runs sequentially, -1 is unlimited. If not set, the engine configuration is used "+
			"(one worker per CPU by default).")
	flagConfig = flag.String("config", "",
		fmt.Sprintf("Engine settings, e.g. \"block_size=128;parallelism=8\" or \"file:<path>\". "+
			"Applied on top of $%s.", dgemm.ConfigEnvVar))
	flagRepeats  = flag.Int("repeats", 1, "Number of timed runs of each kernel: the best time is reported.")
	flagWarmup   = flag.Int("warmup", 0, "Number of untimed runs of each kernel before the timed ones.")
	flagSeed     = flag.Uint64("seed", 0, "Seed for the pseudo-random inputs.")
	flagResults  = flag.String("results", "", "If set, appends the results to this file, one JSON object per line.")
	flagPlot     = flag.String("plot", "", "If set, saves a plot of GFLOP/s vs N to this file (e.g. \"dgemm.png\").")
	flagProgress = flag.Bool("progress", false, "Display a progress bar while running the cases.")
	flagStrict   = flag.Bool("strict", false, "Exit with status 1 if any validation failed.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if flag.NArg() > 0 {
		klog.Errorf("Unexpected arguments %q. See 'dgemm_bench -help'.", flag.Args())
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var passed bool
	err := exceptions.TryCatch[error](func() {
		passed = run(ctx)
	})
	if err != nil {
		klog.Errorf("Error:\n%+v", err)
		cancel()
		os.Exit(1)
	}
	if !passed {
		klog.Warningf("Some validations FAILED.")
		if *flagStrict {
			cancel()
			os.Exit(1)
		}
	}
}

// isFlagSet returns whether the flag was given in the command line.
func isFlagSet(name string) (found bool) {
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return
}

// newEngine creates the engine from $DGEMM_CONFIG, -config and -parallelism, in this order.
func newEngine() *dgemm.Engine {
	config := must.M1(dgemm.ConfigFromEnv())
	if *flagConfig != "" {
		must.M(errors.WithMessage(config.Apply(*flagConfig), "invalid -config"))
	}
	if isFlagSet("parallelism") {
		config.MaxParallelism = *flagParallelism
	}
	return must.M1(dgemm.New(config))
}

// benchCases returns the cartesian product of -n and -block.
func benchCases(engine *dgemm.Engine) []bench.Case {
	blocks := *flagBlocks
	if len(blocks) == 0 {
		blocks = []int{engine.BlockSize()}
	}
	var cases []bench.Case
	for _, dim := range *flagDims {
		for _, block := range blocks {
			cases = append(cases, bench.Case{
				Dim:       dim,
				BlockSize: block,
				Alpha:     *flagAlpha,
				Beta:      *flagBeta,
				Seed:      *flagSeed,
			})
		}
	}
	return cases
}

// run the benchmarks, print the reports, and return whether all validations passed.
// Errors are thrown as panics with must.
func run(ctx context.Context) bool {
	engine := newEngine()
	runner := must.M1(bench.NewRunner(engine,
		bench.WithKernels(*flagKernels...),
		bench.WithTolerance(*flagTolerance),
		bench.WithRepeats(*flagRepeats),
		bench.WithWarmup(*flagWarmup)))
	cases := benchCases(engine)

	fmt.Println(commandline.TitleStyle.Render("Host"))
	fmt.Println(commandline.HostTable(bench.HostInfo(), engine))

	var listeners []func(result *bench.Result)
	var progress *commandline.SweepProgress
	if *flagProgress {
		progress = commandline.NewSweepProgress(os.Stdout, len(cases))
		listeners = append(listeners, progress.Update)
	}
	var resultsWriter chan<- bench.Result
	var resultsErr <-chan error
	if *flagResults != "" {
		resultsPath := must.M1(fsutil.ReplaceTildeInDir(*flagResults))
		if must.M1(fsutil.FileExists(resultsPath)) {
			klog.Infof("Appending results to existing file %q", resultsPath)
		}
		resultsWriter, resultsErr = bench.CreateResultsWriter(resultsPath)
		listeners = append(listeners, func(result *bench.Result) { resultsWriter <- *result })
	}
	if !*flagProgress {
		listeners = append(listeners, func(result *bench.Result) {
			klog.Infof("%s: %s", result.Case, commandline.Verdict(result))
		})
	}

	results, sweepErr := runner.Sweep(ctx, cases, func(result *bench.Result) {
		for _, listener := range listeners {
			listener(result)
		}
	})
	if progress != nil {
		progress.Done()
	}
	if resultsWriter != nil {
		close(resultsWriter)
		if err := <-resultsErr; err != nil {
			klog.Errorf("Failed to save results to %q: %+v", *flagResults, err)
		} else {
			klog.V(1).Infof("Results appended to %q", *flagResults)
		}
	}

	if len(results) > 0 {
		fmt.Println(commandline.TitleStyle.Render("Results"))
		fmt.Println(commandline.ResultsTable(results, runner.Kernels()))
	}
	if *flagPlot != "" && len(results) > 0 {
		plotResults := xslices.Map(results, func(result *bench.Result) bench.Result { return *result })
		must.M(bench.SavePlot(plotResults, *flagPlot))
		klog.Infof("Plot saved to %q", *flagPlot)
	}
	must.M(sweepErr)

	passed := true
	for _, result := range results {
		passed = passed && result.Passed()
	}
	return passed
}
