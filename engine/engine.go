// Package engine holds the process-wide state a simulation run needs
// outside any single unit or flowsheet: a structured logger, a bounded
// worker pool for per-partition parallel unit execution, the materials
// database, and a cooperative cancellation flag (spec §9 "Global state",
// spec §5 cancellation).
//
// This is an explicit Context value threaded through the simulator
// rather than package-level globals, the same snapshot/compute/apply
// phasing game.go's Game + WorkerPool use (game.go, parallel.go)
// adapted from per-tick entity batches to per-window unit batches.
package engine

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/pthm-cable/dyssol-go/materials"
)

// WorkerPool runs a fixed number of independent unit-simulation jobs
// concurrently, matching the GOMAXPROCS-sized goroutine fan-out
// parallel.go uses for per-tick organism batches
// (newParallelState/updateBehaviorAndPhysicsParallel).
type WorkerPool struct {
	numWorkers int
}

// NewWorkerPool creates a pool sized to GOMAXPROCS. Pass an explicit n
// greater than zero to override (used by tests for deterministic chunk
// counts).
func NewWorkerPool(n int) *WorkerPool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return &WorkerPool{numWorkers: n}
}

// Size returns the pool's worker count.
func (p *WorkerPool) Size() int { return p.numWorkers }

// RunEach runs fn(i) for every i in [0, n) across the pool, blocking
// until every job has completed. jobs are independent: no attempt is
// made to serialize access to shared state beyond what fn does itself
// (the partition-parallel units of spec §4.7.3 write to disjoint
// stream/holdup state by construction).
func (p *WorkerPool) RunEach(n int, fn func(i int)) {
	if n == 0 {
		return
	}
	numWorkers := p.numWorkers
	if numWorkers > n {
		numWorkers = n
	}
	chunkSize := (n + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(i0, i1 int) {
			defer wg.Done()
			for i := i0; i < i1; i++ {
				fn(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// RunEachErr is RunEach for jobs that can fail; the first non-nil error
// observed (in index order) is returned once every job has finished.
// Matches spec §4.7.3's "if any unit within the partition's iteration
// returns a UnitError, the partition (and the whole run) aborts".
func (p *WorkerPool) RunEachErr(n int, fn func(i int) error) error {
	if n == 0 {
		return nil
	}
	errs := make([]error, n)
	p.RunEach(n, func(i int) {
		errs[i] = fn(i)
	})
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// Context bundles the process-wide resources a Simulator needs instead
// of package-level globals, the same way *Game is carried through
// method receivers rather than package globals (Design Notes §9: "no
// shared mutable globals outside an explicit context value").
type Context struct {
	Log       *slog.Logger
	Pool      *WorkerPool
	Materials *materials.DB

	cancelled atomic.Bool
}

// New builds a Context. log may be nil, in which case slog.Default() is
// used (matching logging.go's SetLogWriter fallback-to-stdout default).
func New(log *slog.Logger, pool *WorkerPool, db *materials.DB) *Context {
	if log == nil {
		log = slog.Default()
	}
	if pool == nil {
		pool = NewWorkerPool(0)
	}
	return &Context{Log: log, Pool: pool, Materials: db}
}

// Cancel requests cooperative cancellation (spec §5). The Simulator
// polls the flag only at the start of each time window: a window already
// in progress runs to completion, all of its partition iterations
// included, then the run stops with a result reflecting progress up to
// the last completed time window.
func (c *Context) Cancel() { c.cancelled.Store(true) }

// Cancelled reports whether Cancel has been called.
func (c *Context) Cancelled() bool { return c.cancelled.Load() }

// CheckCancelled returns context.Canceled if Cancel has been called,
// letting callers use the same early-return idiom as a real
// context.Context without requiring one end-to-end (cancellation is
// cooperative polling between time windows, not preemptive; it is not
// checked between partitions, units or iterations).
func (c *Context) CheckCancelled() error {
	if c.cancelled.Load() {
		return context.Canceled
	}
	return nil
}
