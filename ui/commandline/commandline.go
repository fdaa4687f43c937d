// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package commandline contains the command-line presentation of benchmark results: report
// tables and a progress bar for sweeps.
package commandline

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/dgemm/pkg/bench"
	"github.com/gomlx/dgemm/pkg/core/matrix"
	"github.com/gomlx/dgemm/pkg/support/xslices"
)

// HostTable renders the description of the host, plus the engine configuration.
func HostTable(host bench.Host, engine fmt.Stringer) string {
	table := NewPlainTable(lipgloss.Right, lipgloss.Left)
	if host.Hostname != "" {
		table.Row(false, "Host", host.Hostname)
	}
	table.Row(false, "Platform", fmt.Sprintf("%s/%s (%s)", host.GOOS, host.GOARCH, host.GoVersion))
	table.Row(false, "CPUs", fmt.Sprintf("%d (GOMAXPROCS=%d)", host.NumCPU, host.GOMAXPROCS))
	features := "-"
	if len(host.CPUFeatures) > 0 {
		features = strings.Join(host.CPUFeatures, " ")
	}
	table.Row(false, "CPU features", features)
	if engine != nil {
		table.Row(false, "Engine", engine.String())
	}
	return table.String()
}

// Verdict summarizes the validations of a result: "PASSED", or "FAILED" followed by the
// first failed validation.
func Verdict(result *bench.Result) string {
	for _, v := range result.Validations {
		if !v.Report.Passed() {
			return fmt.Sprintf("FAILED: %s vs %s %s", v.Kernel, v.Against, v.Report)
		}
	}
	return "PASSED"
}

// ResultsTable renders one row per result: dimension, block size, memory used by the three
// operands, time and GFLOP/s for each of the given kernels, and the verdict.
// Rows of results that failed validation are highlighted.
func ResultsTable(results []*bench.Result, kernels []string) string {
	headers := []string{"N", "Block", "Memory"}
	for _, kernel := range kernels {
		headers = append(headers, kernel, "GFLOP/s")
	}
	headers = append(headers, "Validation")
	alignments := append(xslices.SliceWithValue(len(headers)-1, lipgloss.Right), lipgloss.Left)
	table := NewPlainTable(alignments...)
	table.Table.Headers(headers...)

	for _, result := range results {
		dim := result.Case.Dim
		row := []string{
			humanize.Comma(int64(dim)),
			humanize.Comma(int64(result.Case.BlockSize)),
			humanize.IBytes(3 * uint64(dim) * uint64(dim) * matrix.ElementSize),
		}
		for _, kernel := range kernels {
			timing, found := result.Timing(kernel)
			if !found {
				row = append(row, "-", "-")
				continue
			}
			row = append(row, FormatDuration(timing.Elapsed), fmt.Sprintf("%.2f", timing.GFlops))
		}
		row = append(row, Verdict(result))
		table.Row(!result.Passed(), row...)
	}
	return table.String()
}
