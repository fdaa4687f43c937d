// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bench

import (
	"os"
	"runtime"

	"golang.org/x/sys/cpu"
)

// Host describes the machine a benchmark ran on.
type Host struct {
	Hostname   string `json:",omitempty"`
	GOOS       string
	GOARCH     string
	GoVersion  string
	NumCPU     int
	GOMAXPROCS int

	// CPUFeatures lists the vector extensions relevant to float64 throughput.
	CPUFeatures []string `json:",omitempty"`
}

// HostInfo returns the description of the current machine.
func HostInfo() Host {
	hostname, _ := os.Hostname()
	return Host{
		Hostname:    hostname,
		GOOS:        runtime.GOOS,
		GOARCH:      runtime.GOARCH,
		GoVersion:   runtime.Version(),
		NumCPU:      runtime.NumCPU(),
		GOMAXPROCS:  runtime.GOMAXPROCS(0),
		CPUFeatures: cpuFeatures(),
	}
}

func cpuFeatures() []string {
	var features []string
	for _, f := range []struct {
		name    string
		enabled bool
	}{
		{"SSE4.1", cpu.X86.HasSSE41},
		{"SSE4.2", cpu.X86.HasSSE42},
		{"AVX", cpu.X86.HasAVX},
		{"AVX2", cpu.X86.HasAVX2},
		{"FMA", cpu.X86.HasFMA},
		{"AVX512F", cpu.X86.HasAVX512F},
		{"AVX512DQ", cpu.X86.HasAVX512DQ},
		{"ASIMD", cpu.ARM64.HasASIMD},
		{"FPHP", cpu.ARM64.HasFPHP},
		{"SVE", cpu.ARM64.HasSVE},
	} {
		if f.enabled {
			features = append(features, f.name)
		}
	}
	return features
}
