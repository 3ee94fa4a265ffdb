// Package workers runs forecast jobs across a fixed pool of goroutines.
package workers

import (
	"fmt"
	"sync"

	"github.com/aristath/opportunity-forecast/internal/domain"
)

// ForecastFunc scores one opportunity
type ForecastFunc[T any] func(opp domain.Opportunity) (T, error)

// ProgressFunc is called after each completed job
type ProgressFunc func(current, total int, message string)

// Outcome is the result of one job. Index is the position in the input batch.
type Outcome[T any] struct {
	Index  int
	Result T
	Err    error
}

// WorkerPool manages a pool of worker goroutines for parallel scoring
type WorkerPool struct {
	numWorkers int
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 10 // Default to 10 workers
	}
	return &WorkerPool{
		numWorkers: numWorkers,
	}
}

// Size returns the number of workers
func (wp *WorkerPool) Size() int {
	return wp.numWorkers
}

// EvaluateBatch scores opportunities in parallel. Outcomes come back in input order.
// A panic inside fn is recovered into that job's error so the rest of the batch completes.
func EvaluateBatch[T any](wp *WorkerPool, opps []domain.Opportunity, fn ForecastFunc[T], progress ProgressFunc) []Outcome[T] {
	total := len(opps)
	if total == 0 {
		return []Outcome[T]{}
	}

	jobs := make(chan int, total)
	results := make(chan Outcome[T], total)

	numActualWorkers := wp.numWorkers
	if total < numActualWorkers {
		numActualWorkers = total // Don't spawn more workers than jobs
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
	)

	for i := 0; i < numActualWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				out := run(idx, opps[idx], fn)
				results <- out

				if progress != nil {
					mu.Lock()
					completed++
					progress(completed, total, fmt.Sprintf("Forecasting %s", opps[idx].ID))
					mu.Unlock()
				}
			}
		}()
	}

	for idx := range opps {
		jobs <- idx
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]Outcome[T], total)
	for out := range results {
		outcomes[out.Index] = out
	}
	return outcomes
}

func run[T any](idx int, opp domain.Opportunity, fn ForecastFunc[T]) (out Outcome[T]) {
	out.Index = idx
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("panic while forecasting %q: %v", opp.ID, r)
		}
	}()
	out.Result, out.Err = fn(opp)
	return out
}
