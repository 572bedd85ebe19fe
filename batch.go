package outbound

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// BatchRequest describes one call inside a batch. The zero Service falls
// back to the client's default bucket.
type BatchRequest struct {
	Method  string
	URL     string
	Headers http.Header
	Query   url.Values
	Body    []byte
	Service string
}

// BatchResult pairs a batch entry's outcome with its input position.
// Exactly one of Response and Err is set. Non-2xx statuses are reported as
// typed errors so callers can count failures without inspecting responses.
type BatchResult struct {
	Index    int
	Response *http.Response
	Err      error
}

// BatchOptions shapes batch execution.
type BatchOptions struct {
	// MaxConcurrency bounds how many requests are in flight at once.
	// Values < 1 mean unbounded (one goroutine per request).
	MaxConcurrency int
	// FailFast aborts unscheduled work on the first failure and returns
	// that failure instead of collecting per-item errors.
	FailFast bool
}

// Batch executes the requests with bounded concurrency and returns exactly
// one result per input, in input order, regardless of completion order.
// Without FailFast the returned error is always nil and failures are
// captured per item; with FailFast the first failure cancels the remaining
// unscheduled requests and is returned alongside the partial results.
func (c *Client) Batch(ctx context.Context, requests []BatchRequest, opts BatchOptions) ([]BatchResult, error) {
	results := make([]BatchResult, len(requests))
	if len(requests) == 0 {
		return results, nil
	}

	if opts.FailFast {
		return results, c.batchFailFast(ctx, requests, results, opts.MaxConcurrency)
	}

	var sem *semaphore.Weighted
	if opts.MaxConcurrency > 0 {
		sem = semaphore.NewWeighted(int64(opts.MaxConcurrency))
	}

	var wg sync.WaitGroup
	for i, req := range requests {
		if sem != nil {
			if err := sem.Acquire(ctx, 1); err != nil {
				// Context ended while queued; record the cancellation and
				// keep the one-result-per-input contract.
				results[i] = BatchResult{Index: i, Err: err}
				continue
			}
		}

		wg.Add(1)
		go func(i int, req BatchRequest) {
			defer wg.Done()
			if sem != nil {
				defer sem.Release(1)
			}
			resp, err := c.batchOne(ctx, req)
			results[i] = BatchResult{Index: i, Response: resp, Err: err}
		}(i, req)
	}
	wg.Wait()

	return results, nil
}

func (c *Client) batchFailFast(ctx context.Context, requests []BatchRequest, results []BatchResult, maxConcurrency int) error {
	g, gctx := errgroup.WithContext(ctx)
	if maxConcurrency > 0 {
		g.SetLimit(maxConcurrency)
	}

	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = BatchResult{Index: i, Err: err}
				return nil
			}
			resp, err := c.batchOne(gctx, req)
			results[i] = BatchResult{Index: i, Response: resp, Err: err}
			return err
		})
	}

	return g.Wait()
}

// batchOne executes a single batch entry through the normal call path and
// folds non-2xx statuses into typed errors.
func (c *Client) batchOne(ctx context.Context, req BatchRequest) (*http.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var opts []RequestOption
	if len(req.Headers) > 0 {
		opts = append(opts, WithHeaders(req.Headers))
	}
	if len(req.Query) > 0 {
		opts = append(opts, WithQueryParams(req.Query))
	}
	if req.Body != nil {
		opts = append(opts, WithBody(req.Body))
	}
	if req.Service != "" {
		opts = append(opts, WithService(req.Service))
	}

	resp, err := c.Request(ctx, method, req.URL, opts...)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		statusErr := c.statusError(resp)
		drainAndClose(resp)
		return nil, statusErr
	}
	return resp, nil
}
