package propagation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/komasaru/iss-sgp4-json/internal/epoch"
	"github.com/komasaru/iss-sgp4-json/internal/tle"
	"github.com/komasaru/iss-sgp4-json/internal/transform"
)

// Job is a unit of work for the worker pool: one element set at one instant.
type Job struct {
	Entry tle.Entry
	UT1   epoch.Instant
}

// Result is the output of a single propagation.
type Result struct {
	State transform.StateVector
	Err   error
}

// indexedResult carries a result back to its job's slot.
type indexedResult struct {
	index int
	Result
}

// WorkerPool manages a fixed number of goroutines for parallel SGP4 propagation.
type WorkerPool struct {
	workers int
	prop    *Propagator
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, prop *Propagator, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		prop:    prop,
		logger:  logger,
	}
}

// PropagateBatch propagates every job using the worker pool. results[i]
// belongs to jobs[i]; per-job failures are reported in Result.Err. If ctx is
// cancelled the partial results are discarded and ctx.Err() is returned.
func (wp *WorkerPool) PropagateBatch(ctx context.Context, jobs []Job) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	work := make(chan int, wp.workers*2)
	results := make(chan indexedResult, wp.workers*2)

	// Start workers.
	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				r := indexedResult{index: idx, Result: wp.propagateSingle(jobs[idx])}
				select {
				case results <- r:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Feed jobs in a goroutine.
	go func() {
		defer close(work)
		for i := range jobs {
			select {
			case work <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Close results when all workers are done.
	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results.
	out := make([]Result, len(jobs))
	var errorCount int
	for r := range results {
		if r.Err != nil {
			errorCount++
		}
		out[r.index] = r.Result
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wp.logger.Debug("propagation batch complete",
		"jobs", len(jobs),
		"errors", errorCount,
		"workers", wp.workers,
		"element_sets", wp.prop.Len(),
	)
	return out, nil
}

// propagateSingle performs SGP4 propagation for one job.
func (wp *WorkerPool) propagateSingle(job Job) Result {
	sp, err := wp.prop.For(job.Entry)
	if err != nil {
		return Result{Err: err}
	}
	sv, err := sp.Propagate(job.UT1)
	return Result{State: sv, Err: err}
}
