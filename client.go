package outbound

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultService is the breaker/metrics bucket used for calls that carry no
// explicit service tag.
const DefaultService = "default"

// Client is the request orchestrator: a resilient outbound HTTP client that
// composes a circuit breaker around a retry scheduler around a pooled
// transport, feeding a metrics aggregator on every completed call. It is
// safe for concurrent use.
//
// Composition order matters: the breaker wraps the retry run, so a fully
// exhausted set of retries counts as exactly one failure against the
// breaker, recorded with the last error.
type Client struct {
	httpClient   *http.Client
	streamClient *http.Client
	transport    *http.Transport
	roundTripper http.RoundTripper

	pool     PoolConfig
	timeouts TimeoutConfig

	retryConfig     RetryConfig
	backoffStrategy BackoffStrategy
	retryCondition  RetryCondition
	retry           *retryScheduler

	breakerConfig CircuitBreakerConfig
	breakers      *breakerSet

	rateLimiter *RateLimiter
	middleware  []Middleware

	service string

	stats   *statsCollector
	metrics *MetricsCollector

	debug  *DebugConfig
	logger Logger

	closeOnce       sync.Once
	validationError error
}

// New constructs a Client from functional options. Configuration is
// validated best effort; call IsValid / ValidationError to inspect the
// result.
func New(options ...Option) *Client {
	client := &Client{
		retryConfig: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    10 * time.Second,
			Multiplier:  2.0,
			Jitter:      0.1,
		},
		backoffStrategy: ExponentialJitter,
		retryCondition:  DefaultRetryCondition,
		breakerConfig: CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  60 * time.Second,
			SuccessThreshold: 2,
		},
		timeouts: TimeoutConfig{
			Connect: defaultConnectTimeout,
			Read:    defaultReadTimeout,
			Request: defaultRequestTimeout,
		},
		service: DefaultService,
		stats:   newStatsCollector(),
		debug:   DefaultDebugConfig(),
	}

	for _, option := range options {
		option(client)
	}

	client.transport = newTransport(client.pool, client.timeouts)
	rt := http.RoundTripper(client.transport)
	if client.roundTripper != nil {
		rt = client.roundTripper
	}
	client.httpClient = &http.Client{
		Transport: rt,
		Timeout:   client.timeouts.Request,
	}
	// Streams outlive the per-request deadline; headers are still bounded
	// by the transport's ResponseHeaderTimeout.
	client.streamClient = &http.Client{Transport: rt}

	client.retry = newRetryScheduler(client.retryConfig, client.backoffStrategy, client.retryCondition)
	client.breakers = newBreakerSet(client.breakerConfig)

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Request performs an HTTP call with the full reliability stack. The
// returned response may carry any status code; JSON helpers and Batch
// convert non-2xx statuses into typed errors, plain Request leaves the
// response to the caller after retries are exhausted. Callers that want an
// error for every non-2xx outcome should use those helpers rather than
// inspecting the status themselves; the breaker and metrics record the
// failure either way.
func (c *Client) Request(ctx context.Context, method, rawURL string, opts ...RequestOption) (*http.Response, error) {
	o, err := buildRequestOptions(opts)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, method, rawURL, o)
}

// Get performs an HTTP GET.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (*http.Response, error) {
	return c.Request(ctx, http.MethodGet, url, opts...)
}

// Post performs an HTTP POST.
func (c *Client) Post(ctx context.Context, url string, opts ...RequestOption) (*http.Response, error) {
	return c.Request(ctx, http.MethodPost, url, opts...)
}

// Put performs an HTTP PUT.
func (c *Client) Put(ctx context.Context, url string, opts ...RequestOption) (*http.Response, error) {
	return c.Request(ctx, http.MethodPut, url, opts...)
}

// Patch performs an HTTP PATCH.
func (c *Client) Patch(ctx context.Context, url string, opts ...RequestOption) (*http.Response, error) {
	return c.Request(ctx, http.MethodPatch, url, opts...)
}

// Delete performs an HTTP DELETE.
func (c *Client) Delete(ctx context.Context, url string, opts ...RequestOption) (*http.Response, error) {
	return c.Request(ctx, http.MethodDelete, url, opts...)
}

// execute is the single call path every verb funnels through. The latency
// timer starts before any breaker or retry work and stops only once the
// final outcome is known.
func (c *Client) execute(ctx context.Context, method, rawURL string, o *requestOptions) (*http.Response, error) {
	start := time.Now()

	service := o.service
	if service == "" {
		service = c.service
	}

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("starting request", "requestID", requestID, "method", method, "url", rawURL, "service", service)
	}

	target, err := o.targetURL(rawURL)
	if err != nil {
		return nil, &ClientError{
			Type:      ErrorTypeValidation,
			Message:   "invalid request URL",
			Cause:     err,
			RequestID: requestID,
			Method:    method,
			URL:       rawURL,
			Service:   service,
			Timestamp: time.Now(),
		}
	}

	c.metrics.RecordRequestStart(service, method)
	defer c.metrics.RecordRequestEnd(service, method)

	if c.rateLimiter != nil && !c.rateLimiter.Allow() {
		if c.debug != nil && c.debug.Enabled && c.debug.LogRateLimit && c.logger != nil {
			c.logger.Warn("rate limit exceeded", "requestID", requestID, "service", service)
		}
		c.metrics.RecordError(ErrorTypeRateLimit, service, method)
		c.stats.recordOutcome(time.Since(start), false, false)
		return nil, c.newError(ErrorTypeRateLimit, "rate limit exceeded", ErrRateLimited, requestID, method, target, service, 0, time.Since(start))
	}
	if c.rateLimiter != nil {
		c.metrics.RecordRateLimiterTokens(service, c.rateLimiter.Tokens())
	}

	breaker := c.breakers.get(service)
	if !breaker.Allow() {
		if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
			c.logger.Warn("circuit breaker open", "requestID", requestID, "service", service)
		}
		c.metrics.RecordError(ErrorTypeCircuitOpen, service, method)
		c.stats.recordOutcome(time.Since(start), false, false)
		return nil, c.newError(ErrorTypeCircuitOpen, "circuit breaker is open", ErrCircuitOpen, requestID, method, target, service, 0, time.Since(start))
	}

	resp, err := c.retry.Do(ctx, func(attempt int) (*http.Response, error) {
		if attempt > 1 {
			if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
				c.logger.Info("retry attempt", "requestID", requestID, "attempt", attempt, "maxAttempts", c.retryConfig.MaxAttempts, "service", service)
			}
			c.stats.recordRetry()
			c.metrics.RecordRetry(service, method, attempt)
		}
		return c.attempt(ctx, method, target, o)
	})

	// One breaker verdict per retry run: the run failed if it ended in an
	// error or a status the retry condition classifies as retryable.
	failed := err != nil || (resp != nil && c.retryCondition(resp, nil))
	if failed {
		breaker.RecordFailure()
		if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
			c.logger.Warn("breaker failure recorded", "requestID", requestID, "service", service, "state", breaker.State().String())
		}
	} else {
		breaker.RecordSuccess()
	}
	c.metrics.RecordCircuitBreakerState(service, breaker.State())

	duration := time.Since(start)
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}

	success := err == nil && resp != nil && resp.StatusCode < 400
	timeout := isTimeoutError(err)
	c.stats.recordOutcome(duration, success, timeout)
	c.metrics.RecordRequest(service, method, statusCode, duration)

	if err != nil {
		errType := classifyTransportError(err)
		c.metrics.RecordError(errType, service, method)
		return nil, c.newError(errType, "request failed", err, requestID, method, target, service, statusCode, duration)
	}

	if resp.StatusCode >= 500 {
		c.metrics.RecordError(ErrorTypeServer, service, method)
	} else if resp.StatusCode >= 400 {
		c.metrics.RecordError(ErrorTypeClient, service, method)
	}

	return resp, nil
}

// attempt issues one transport call with a fresh request so retried attempts
// re-read the body from the start.
func (c *Client) attempt(ctx context.Context, method, target string, o *requestOptions) (*http.Response, error) {
	var body *bytes.Reader
	if o.body != nil {
		body = bytes.NewReader(o.body)
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, target, body)
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

	return c.executeMiddleware(req)
}

func (c *Client) executeMiddleware(req *http.Request) (*http.Response, error) {
	if len(c.middleware) == 0 {
		return c.httpClient.Do(req)
	}

	current := RoundTripper(RoundTripperFunc(c.httpClient.Do))

	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}

	return current.RoundTrip(req)
}

// GetJSON performs a GET and decodes the 2xx response body into out.
// Non-2xx statuses and malformed bodies surface as typed errors; decode
// failures are never retried.
func (c *Client) GetJSON(ctx context.Context, url string, out interface{}, opts ...RequestOption) error {
	resp, err := c.Get(ctx, url, opts...)
	if err != nil {
		return err
	}
	return c.decodeJSON(resp, out)
}

// PostJSON performs a POST with in marshaled as the JSON body and decodes
// the 2xx response body into out. Pass a nil out to discard the body.
func (c *Client) PostJSON(ctx context.Context, url string, in, out interface{}, opts ...RequestOption) error {
	opts = append(opts, WithJSONBody(in))
	resp, err := c.Post(ctx, url, opts...)
	if err != nil {
		return err
	}
	return c.decodeJSON(resp, out)
}

func (c *Client) decodeJSON(resp *http.Response, out interface{}) error {
	defer drainAndClose(resp)

	if resp.StatusCode >= 400 {
		return c.statusError(resp)
	}

	if out == nil {
		return nil
	}

	if err := decodeBody(resp, out); err != nil {
		return &ClientError{
			Type:       ErrorTypeDecode,
			Message:    "malformed response body",
			Cause:      err,
			Method:     resp.Request.Method,
			URL:        resp.Request.URL.String(),
			Endpoint:   endpointFromRequest(resp.Request),
			StatusCode: resp.StatusCode,
			Timestamp:  time.Now(),
		}
	}
	return nil
}

// statusError converts a non-2xx response into a typed error.
func (c *Client) statusError(resp *http.Response) *ClientError {
	errType := ErrorTypeClient
	if resp.StatusCode >= 500 {
		errType = ErrorTypeServer
	}
	return &ClientError{
		Type:       errType,
		Message:    fmt.Sprintf("upstream returned status %d", resp.StatusCode),
		Method:     resp.Request.Method,
		URL:        resp.Request.URL.String(),
		Endpoint:   endpointFromRequest(resp.Request),
		StatusCode: resp.StatusCode,
		Timestamp:  time.Now(),
	}
}

// Stats returns a snapshot of the client's aggregated call outcomes.
func (c *Client) Stats() Stats {
	return c.stats.snapshot()
}

// ResetStats zeroes the aggregated counters.
func (c *Client) ResetStats() {
	c.stats.reset()
}

// BreakerStates snapshots the circuit breaker state per service bucket.
func (c *Client) BreakerStates() map[string]CircuitState {
	return c.breakers.states()
}

// Close releases pooled connections. Safe to call multiple times; in-flight
// requests finish on their existing connections.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.transport != nil {
			c.transport.CloseIdleConnections()
		}
	})
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

func (c *Client) newError(errType, message string, cause error, requestID, method, url, service string, statusCode int, duration time.Duration) *ClientError {
	return &ClientError{
		Type:        errType,
		Message:     message,
		Cause:       cause,
		RequestID:   requestID,
		Method:      method,
		URL:         url,
		Endpoint:    endpointFromURL(url),
		Service:     service,
		StatusCode:  statusCode,
		Attempt:     c.retryConfig.MaxAttempts,
		MaxAttempts: c.retryConfig.MaxAttempts,
		Timestamp:   time.Now(),
		Duration:    duration,
	}
}

// classifyTransportError maps a transport error onto the failure taxonomy.
func classifyTransportError(err error) string {
	if err == nil {
		return ""
	}
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type
	}
	if isTimeoutError(err) {
		return ErrorTypeTimeout
	}
	return ErrorTypeNetwork
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func endpointFromRequest(req *http.Request) string {
	if req == nil || req.URL == nil {
		return "unknown"
	}

	host := req.URL.Host
	path := req.URL.Path

	var builder strings.Builder
	builder.WriteString(host)

	if path != "" && path != "/" {
		builder.WriteString(path)
	} else {
		builder.WriteByte('/')
	}

	return builder.String()
}

func endpointFromURL(rawURL string) string {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return "unknown"
	}
	return endpointFromRequest(req)
}
