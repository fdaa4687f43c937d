// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool implements a soft-limited pool of goroutines used to run the
// data-parallel regions of the DGEMM kernels in a fork-join fashion.
package workerspool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool tracks the goroutines running tasks, against a soft limit on parallelism.
// It is safe for concurrent use.
type Pool struct {
	// maxParallelism is a soft target on the limit of parallel work to do.
	// The actual number of goroutines is higher than that -- because of waits and such.
	maxParallelism int
	mu             sync.Mutex
	numRunning     int

	// extraParallelism is temporarily increased when a worker goes to sleep.
	extraParallelism atomic.Int32
}

// NewWithParallelism returns a new Pool with the given maxParallelism.
// 0 disables parallelism (everything runs inline in the caller) and -1 makes it unlimited.
func NewWithParallelism(maxParallelism int) *Pool {
	return &Pool{maxParallelism: maxParallelism}
}

// IsUnlimited returns whether parallelism is unlimited (maxParallelism < 0)
func (w *Pool) IsUnlimited() bool {
	return w.maxParallelism < 0
}

// MaxParallelism is a soft-target for parallelism (the limit of goroutines is higher that this).
// If set to 0 parallelism is disabled.
// If set to -1 parallelism is unlimited.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// NumWorkers is the number of tasks a parallel region is split into.
// It is 1 if parallelism is disabled, and runtime.NumCPU() if it is unlimited.
func (w *Pool) NumWorkers() int {
	switch {
	case w.maxParallelism == 0:
		return 1
	case w.maxParallelism < 0:
		return runtime.NumCPU()
	default:
		return w.maxParallelism
	}
}

const goroutineToParallelismRatio = 2

// lockedIsFull returns whether all available workers are in use.
//
// It must be called with workerPool.mu acquired.
func (w *Pool) lockedIsFull() bool {
	if w.maxParallelism == 0 {
		return true
	} else if w.maxParallelism < 0 {
		return false
	}
	return w.numRunning >= goroutineToParallelismRatio*w.maxParallelism+int(w.extraParallelism.Load())
}

// lockedRunTaskInGoroutine and keep tabs on w.numRunning.
//
// It must be called with workerPool.mu acquired.
func (w *Pool) lockedRunTaskInGoroutine(task func()) {
	w.numRunning++
	go func() {
		task()
		w.mu.Lock()
		w.numRunning--
		w.mu.Unlock()
	}()
}

// StartIfAvailable runs the task in a separate goroutine, if there are enough workers left.
// It returns true if it found workers to run the function, false otherwise.
//
// It's up to the client to synchronize the end of the function execution.
func (w *Pool) StartIfAvailable(task func()) bool {
	if w.IsUnlimited() {
		go task()
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lockedIsFull() {
		return false
	}
	w.lockedRunTaskInGoroutine(task)
	return true
}

// workerIsAsleep indicates the worker (the one that called the method) is going to sleep waiting
// for other workers, and temporarily increases the available number of workers.
//
// Call workerRestarted when the worker is ready to run again.
func (w *Pool) workerIsAsleep() {
	w.extraParallelism.Add(1)
}

// workerRestarted indicates the worker (the one that called the method) is ready to run again.
// It should only be called after workerIsAsleep.
func (w *Pool) workerRestarted() {
	w.extraParallelism.Add(-1)
}

// ParallelFor calls fn(idx) for every idx in [0, numTasks) and returns only after all calls
// returned: it is the barrier at the end of a parallel region.
//
// The index range is split into at most Pool.NumWorkers contiguous chunks. Chunks are started
// with StartIfAvailable, and the ones that find no free worker run inline in the caller, so it
// never deadlocks, even when called from within another task. The order in which indices are
// processed across chunks is unspecified: fn must only write state owned by idx.
func (w *Pool) ParallelFor(numTasks int, fn func(idx int)) {
	if numTasks <= 0 {
		return
	}
	numChunks := min(w.NumWorkers(), numTasks)
	if numChunks <= 1 {
		for idx := range numTasks {
			fn(idx)
		}
		return
	}

	chunkSize := (numTasks + numChunks - 1) / numChunks
	var wg sync.WaitGroup
	for start := 0; start < numTasks; start += chunkSize {
		end := min(start+chunkSize, numTasks)
		task := func() {
			for idx := start; idx < end; idx++ {
				fn(idx)
			}
		}
		wg.Add(1)
		wrapped := func() {
			defer wg.Done()
			task()
		}
		if end == numTasks || !w.StartIfAvailable(wrapped) {
			// The last chunk (or one without a free worker) runs in the calling goroutine.
			wrapped()
		}
	}
	w.workerIsAsleep()
	wg.Wait()
	w.workerRestarted()
}
