// Package parallel splits index ranges across worker goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Workers normalises a requested worker count: values below one mean
// "use every available core".
func Workers(n int) int {
	if n < 1 {
		return runtime.NumCPU()
	}
	return n
}

// For calls fn once per worker with a contiguous, non-overlapping range
// [start, end) covering [0, n). The worker index is passed so callers can
// keep per-worker state without locking. For returns once every call has
// finished.
func For(n, workers int, fn func(worker, start, end int)) {
	if n <= 0 {
		return
	}
	workers = Workers(workers)
	if workers > n {
		workers = n
	}
	if workers == 1 {
		fn(0, 0, n)
		return
	}

	// Divide the work among available cores
	perWorker := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * perWorker
		end := start + perWorker
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(worker, start, end int) {
			defer wg.Done()
			fn(worker, start, end)
		}(w, start, end)
	}
	wg.Wait()
}
