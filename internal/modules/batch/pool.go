// Package batch binds many circuits concurrently.
package batch

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/aristath/qpubinder/internal/domain"
	"github.com/rs/zerolog"
)

// Binder is the binding operation each worker runs
type Binder interface {
	Bind(ctx context.Context, circuit *domain.Circuit, qpus []*domain.QPU, weights domain.Weights, constraints ...domain.Constraint) (*domain.BindingResult, error)
}

// Job is one binding request in a batch
type Job struct {
	Circuit     *domain.Circuit
	QPUs        []*domain.QPU
	Weights     domain.Weights
	Constraints []domain.Constraint
}

// Result is the outcome of one job; exactly one of Result and Err is set
type Result struct {
	Result *domain.BindingResult
	Err    error
}

// WorkerPool runs binding jobs on a fixed number of goroutines
type WorkerPool struct {
	binder     Binder
	numWorkers int
	log        zerolog.Logger
}

// NewWorkerPool creates a pool; non-positive numWorkers uses one per CPU
func NewWorkerPool(binder Binder, numWorkers int, log zerolog.Logger) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &WorkerPool{
		binder:     binder,
		numWorkers: numWorkers,
		log:        log.With().Str("component", "batch_pool").Logger(),
	}
}

// Workers returns the configured worker count
func (wp *WorkerPool) Workers() int {
	return wp.numWorkers
}

// BindBatch runs every job and returns results in input order. Jobs share
// only read-only inputs. Once ctx is done, jobs not yet started fail with
// the context error.
func (wp *WorkerPool) BindBatch(ctx context.Context, jobs []Job) []Result {
	numJobs := len(jobs)
	if numJobs == 0 {
		return []Result{}
	}

	start := time.Now()
	work := make(chan jobItem, numJobs)
	results := make(chan resultItem, numJobs)

	var wg sync.WaitGroup
	numActualWorkers := wp.numWorkers
	if numJobs < numActualWorkers {
		numActualWorkers = numJobs // Don't spawn more workers than jobs
	}

	for i := 0; i < numActualWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wp.worker(ctx, work, results)
		}()
	}

	for idx, job := range jobs {
		work <- jobItem{index: idx, job: job}
	}
	close(work)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]Result, numJobs)
	failed := 0
	for r := range results {
		out[r.index] = r.result
		if r.result.Err != nil {
			failed++
		}
	}

	wp.log.Debug().
		Int("jobs", numJobs).
		Int("workers", numActualWorkers).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Batch completed")

	return out
}

type jobItem struct {
	index int
	job   Job
}

type resultItem struct {
	index  int
	result Result
}

func (wp *WorkerPool) worker(ctx context.Context, jobs <-chan jobItem, results chan<- resultItem) {
	for item := range jobs {
		if err := ctx.Err(); err != nil {
			results <- resultItem{index: item.index, result: Result{Err: err}}
			continue
		}

		res, err := wp.binder.Bind(ctx, item.job.Circuit, item.job.QPUs, item.job.Weights, item.job.Constraints...)
		results <- resultItem{index: item.index, result: Result{Result: res, Err: err}}
	}
}
