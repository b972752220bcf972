package tasks

import (
	"context"
	"sync"
)

const (
	defaultWorkers = 3
	maxWorkers     = 8
)

// BulkFetchOpts contains configuration for bulk fetches.
type BulkFetchOpts struct {
	NumWorkers int // Concurrent workers (default: 3, max: 8)
}

// FetchOutcome is the result of one request in a bulk fetch.
type FetchOutcome struct {
	Index   int
	Request Request
	Result  *FetchResult
	Err     error
}

// BulkFetchResult summarises a bulk fetch. Outcomes are in request order.
type BulkFetchResult struct {
	Total     int
	Succeeded int
	Failed    int
	Cached    int
	Outcomes  []FetchOutcome
}

type fetchJob struct {
	index int
	req   Request
}

// FetchAll fetches every request through a worker pool.
//
// Failures are collected per request. The returned error is non-nil only when ctx ends before every
// request was attempted; the partial result is still returned.
func (e *FetchEngine) FetchAll(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	reqs []Request,
	opts BulkFetchOpts,
) (*BulkFetchResult, error) {
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = defaultWorkers
	}
	if opts.NumWorkers > maxWorkers {
		opts.NumWorkers = maxWorkers
	}

	result := &BulkFetchResult{
		Total:    len(reqs),
		Outcomes: make([]FetchOutcome, len(reqs)),
	}

	jobs := make(chan fetchJob, len(reqs))
	results := make(chan FetchOutcome, len(reqs))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go e.fetchWorker(ctx, &wg, jobs, results)
	}

	for i, req := range reqs {
		jobs <- fetchJob{index: i, req: req}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	attempted := make([]bool, len(reqs))
	completed := 0
	for res := range results {
		completed++
		attempted[res.Index] = true
		result.Outcomes[res.Index] = res

		if res.Err != nil {
			result.Failed++
			e.logger.Warn("fetch failed", "request", res.Request.String(), "error", res.Err)
			e.sendProgress(prog, failedUpdate(completed, len(reqs), res.Request, res.Err))
			continue
		}

		result.Succeeded++
		if res.Result.Cached {
			result.Cached++
		}
		e.sendProgress(prog, doneUpdate(completed, len(reqs), res.Result))
	}

	var err error
	for i, ok := range attempted {
		if !ok {
			err = ctx.Err()
			result.Outcomes[i] = FetchOutcome{Index: i, Request: reqs[i], Err: err}
			result.Failed++
		}
	}

	return result, err
}

// fetchWorker is a worker goroutine that fetches requests from the jobs channel.
func (e *FetchEngine) fetchWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan fetchJob,
	results chan<- FetchOutcome,
) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := e.Fetch(ctx, job.req, nil)
		results <- FetchOutcome{Index: job.index, Request: job.req, Result: res, Err: err}
	}
}
