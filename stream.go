package outbound

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"
)

// Stream is a lazy, finite, non-restartable view over a response body. It
// must be closed; Close releases the underlying connection back to the pool
// whether the consumer read to EOF or abandoned the body early.
type Stream struct {
	resp      *http.Response
	closeOnce sync.Once
	closeErr  error
}

// Read implements io.Reader over the response body.
func (s *Stream) Read(p []byte) (int, error) {
	return s.resp.Body.Read(p)
}

// Close releases the stream's connection. Idempotent.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		// Drain a bounded amount so a nearly-finished body still lets the
		// connection be reused instead of torn down.
		_, _ = io.CopyN(io.Discard, s.resp.Body, 64<<10)
		s.closeErr = s.resp.Body.Close()
	})
	return s.closeErr
}

// StatusCode returns the response status.
func (s *Stream) StatusCode() int {
	return s.resp.StatusCode
}

// Header returns the response headers.
func (s *Stream) Header() http.Header {
	return s.resp.Header
}

// Stream issues a request whose body is consumed incrementally, for large
// provider payloads that should not be buffered. Retries and the breaker
// apply up to the arrival of response headers; once the stream is handed
// out the body is read on the caller's schedule, unbounded by the client's
// per-request deadline (cancel ctx to abort). Non-2xx statuses are returned
// as typed errors, never as streams.
func (c *Client) Stream(ctx context.Context, method, rawURL string, opts ...RequestOption) (*Stream, error) {
	o, err := buildRequestOptions(opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	service := o.service
	if service == "" {
		service = c.service
	}

	target, err := o.targetURL(rawURL)
	if err != nil {
		return nil, &ClientError{
			Type:      ErrorTypeValidation,
			Message:   "invalid request URL",
			Cause:     err,
			Method:    method,
			URL:       rawURL,
			Service:   service,
			Timestamp: time.Now(),
		}
	}

	c.metrics.RecordRequestStart(service, method)
	defer c.metrics.RecordRequestEnd(service, method)

	if c.rateLimiter != nil && !c.rateLimiter.Allow() {
		c.metrics.RecordError(ErrorTypeRateLimit, service, method)
		c.stats.recordOutcome(time.Since(start), false, false)
		return nil, c.newError(ErrorTypeRateLimit, "rate limit exceeded", ErrRateLimited, "", method, target, service, 0, time.Since(start))
	}

	breaker := c.breakers.get(service)
	if !breaker.Allow() {
		c.metrics.RecordError(ErrorTypeCircuitOpen, service, method)
		c.stats.recordOutcome(time.Since(start), false, false)
		return nil, c.newError(ErrorTypeCircuitOpen, "circuit breaker is open", ErrCircuitOpen, "", method, target, service, 0, time.Since(start))
	}

	resp, err := c.retry.Do(ctx, func(attempt int) (*http.Response, error) {
		if attempt > 1 {
			c.stats.recordRetry()
			c.metrics.RecordRetry(service, method, attempt)
		}
		return c.streamAttempt(ctx, method, target, o)
	})

	failed := err != nil || (resp != nil && c.retryCondition(resp, nil))
	if failed {
		breaker.RecordFailure()
	} else {
		breaker.RecordSuccess()
	}
	c.metrics.RecordCircuitBreakerState(service, breaker.State())

	// The outcome is settled once headers arrive; body transfer time is the
	// consumer's, not the call's.
	duration := time.Since(start)
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	success := err == nil && resp != nil && resp.StatusCode < 400
	c.stats.recordOutcome(duration, success, isTimeoutError(err))
	c.metrics.RecordRequest(service, method, statusCode, duration)

	if err != nil {
		errType := classifyTransportError(err)
		c.metrics.RecordError(errType, service, method)
		return nil, c.newError(errType, "stream request failed", err, "", method, target, service, statusCode, duration)
	}

	if resp.StatusCode >= 400 {
		statusErr := c.statusError(resp)
		drainAndClose(resp)
		if resp.StatusCode >= 500 {
			c.metrics.RecordError(ErrorTypeServer, service, method)
		} else {
			c.metrics.RecordError(ErrorTypeClient, service, method)
		}
		return nil, statusErr
	}

	return &Stream{resp: resp}, nil
}

func (c *Client) streamAttempt(ctx context.Context, method, target string, o *requestOptions) (*http.Response, error) {
	var req *http.Request
	var err error
	if o.body != nil {
		req, err = http.NewRequestWithContext(ctx, method, target, bytes.NewReader(o.body))
	} else {
		req, err = http.NewRequestWithContext(ctx, method, target, nil)
	}
	if err != nil {
		return nil, err
	}

	for key, values := range o.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	if len(c.middleware) == 0 {
		return c.streamClient.Do(req)
	}

	current := RoundTripper(RoundTripperFunc(c.streamClient.Do))
	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}
	return current.RoundTrip(req)
}
