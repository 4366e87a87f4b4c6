// Package parallel runs index-partitioned work on a bounded errgroup.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// chunksPerWorker oversubscribes workers so uneven chunks still balance.
const chunksPerWorker = 4

// Workers resolves a requested worker count; non-positive means GOMAXPROCS.
func Workers(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// ForEach runs fn(i) for every i in [0, n) with at most workers goroutines.
// The first error returned by fn is returned after all tasks finish.
func ForEach(n, workers int, fn func(i int) error) error {
	if n <= 0 {
		return nil
	}
	var g errgroup.Group
	g.SetLimit(Workers(workers))
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return fn(i)
		})
	}
	return g.Wait()
}

// ForEachChunk splits [0, n) into contiguous half-open ranges and runs
// fn(lo, hi) on each with at most workers goroutines. Each call owns its
// range exclusively, so fn may write to disjoint slice regions without locks.
func ForEachChunk(n, workers int, fn func(lo, hi int) error) error {
	if n <= 0 {
		return nil
	}
	w := Workers(workers)
	chunks := w * chunksPerWorker
	if chunks > n {
		chunks = n
	}
	size := (n + chunks - 1) / chunks

	var g errgroup.Group
	g.SetLimit(w)
	for lo := 0; lo < n; lo += size {
		hi := min(lo+size, n)
		g.Go(func() error {
			return fn(lo, hi)
		})
	}
	return g.Wait()
}
