// Copyright 2025 The go-clops Authors. SPDX-License-Identifier: Apache-2.0

// Package workerpool runs batches of independent tasks on a fixed set of
// goroutines. The CPU device uses one Pool per context to execute the
// work-groups of every kernel dispatch, so dispatches never pay for goroutine
// spawning.
//
// Usage:
//
//	pool := workerpool.New(0)
//	defer pool.Close()
//
//	err := pool.Run(numGroups, func(g int) error {
//	    return runGroup(g)
//	})
package workerpool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a persistent set of workers shared by many batches.
type Pool struct {
	numWorkers int
	tasks      chan task
	closeOnce  sync.Once
	closed     atomic.Bool
}

// task is one worker's share of a batch.
type task struct {
	run  func()
	done *sync.WaitGroup
}

// New starts a pool with numWorkers workers. If numWorkers <= 0, it uses
// GOMAXPROCS.
func New(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		numWorkers: numWorkers,
		tasks:      make(chan task, numWorkers*2),
	}
	for range numWorkers {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for t := range p.tasks {
		t.run()
		t.done.Done()
	}
}

// NumWorkers returns the number of workers in the pool.
func (p *Pool) NumWorkers() int {
	return p.numWorkers
}

// Close stops the workers once queued batches drain. Batches submitted after
// Close run on the calling goroutine. Calling Close more than once is safe.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.tasks)
	})
}

// spread hands one copy of run to each of workers workers and waits for all
// of them.
func (p *Pool) spread(workers int, run func()) {
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		p.tasks <- task{run: run, done: &wg}
	}
	wg.Wait()
}

// ParallelFor splits [0, n) into one contiguous chunk per worker and calls fn
// on each chunk. It blocks until every chunk is done.
func (p *Pool) ParallelFor(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	workers := min(p.numWorkers, n)
	if workers == 1 || p.closed.Load() {
		fn(0, n)
		return
	}
	chunk := (n + workers - 1) / workers
	var next atomic.Int64
	p.spread(workers, func() {
		start := int(next.Add(1)-1) * chunk
		if start >= n {
			return
		}
		fn(start, min(start+chunk, n))
	})
}

// Run calls fn for every index in [0, n), handing indices to workers one at
// a time. After the first failure no new indices are started; Run returns
// that first error once running calls finish.
func (p *Pool) Run(n int, fn func(i int) error) error {
	if n <= 0 {
		return nil
	}
	workers := min(p.numWorkers, n)
	if workers == 1 || p.closed.Load() {
		for i := range n {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}

	var (
		next     atomic.Int64
		failed   atomic.Bool
		errOnce  sync.Once
		firstErr error
	)
	p.spread(workers, func() {
		for !failed.Load() {
			i := int(next.Add(1) - 1)
			if i >= n {
				return
			}
			if err := fn(i); err != nil {
				errOnce.Do(func() {
					firstErr = err
					failed.Store(true)
				})
				return
			}
		}
	})
	return firstErr
}
