// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bench

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/gomlx/dgemm/pkg/core/dgemm"
	"github.com/gomlx/dgemm/pkg/support/fsutil"
	"github.com/gomlx/dgemm/pkg/support/sets"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PlotSeries returns the GFLOP/s points per series, with X = matrix dimension, sorted by X.
//
// There is one series per kernel. If results have more than one block size, the blocked kernel
// gets one series per block size, named "blocked/b=<block size>".
func PlotSeries(results []Result) map[string]plotter.XYs {
	blockSizes := sets.Make[int]()
	for _, r := range results {
		blockSizes.Insert(r.Case.BlockSize)
	}
	series := make(map[string]plotter.XYs)
	for _, r := range results {
		for _, t := range r.Timings {
			name := t.Kernel
			if name == dgemm.KernelBlocked && len(blockSizes) > 1 {
				name = fmt.Sprintf("%s/b=%d", name, r.Case.BlockSize)
			}
			series[name] = append(series[name], plotter.XY{X: float64(r.Case.Dim), Y: t.GFlops})
		}
	}
	for _, xys := range series {
		slices.SortStableFunc(xys, func(a, b plotter.XY) int { return cmp.Compare(a.X, b.X) })
	}
	return series
}

// SavePlot saves a plot of GFLOP/s vs matrix dimension, one line per series (see PlotSeries),
// to filePath. The format is given by the extension, e.g. ".png" or ".svg".
func SavePlot(results []Result, filePath string) error {
	if len(results) == 0 {
		return errors.New("bench.SavePlot: no results to plot")
	}
	filePath, err := fsutil.PrepareOutputFile(filePath)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = "DGEMM throughput"
	p.X.Label.Text = "N"
	p.Y.Label.Text = "GFLOP/s"
	p.Y.Min = 0
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	series := PlotSeries(results)
	var lines []any
	for _, name := range slices.Sorted(maps.Keys(series)) {
		lines = append(lines, name, series[name])
	}
	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return errors.Wrap(err, "bench.SavePlot: failed to add lines")
	}
	if err := p.Save(10*vg.Inch, 6*vg.Inch, filePath); err != nil {
		return errors.Wrapf(err, "bench.SavePlot: failed to save plot to %q", filePath)
	}
	return nil
}
