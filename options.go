package outbound

import (
	"fmt"
	"net/http"
	"time"
)

// WithPoolConfig sizes the shared connection pool.
func WithPoolConfig(pool PoolConfig) Option {
	return func(c *Client) {
		c.pool = pool
	}
}

// WithTimeouts sets the per-phase deadlines.
func WithTimeouts(timeouts TimeoutConfig) Option {
	return func(c *Client) {
		if timeouts.Connect > 0 {
			c.timeouts.Connect = timeouts.Connect
		}
		if timeouts.Read > 0 {
			c.timeouts.Read = timeouts.Read
		}
		if timeouts.Request > 0 {
			c.timeouts.Request = timeouts.Request
		}
	}
}

// WithRetryConfig sets the retry schedule.
func WithRetryConfig(retry RetryConfig) Option {
	return func(c *Client) {
		c.retryConfig = retry
	}
}

// WithMaxAttempts sets the total number of transport attempts per call.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		c.retryConfig.MaxAttempts = n
	}
}

// WithBackoffStrategy selects the delay distribution between retries.
func WithBackoffStrategy(strategy BackoffStrategy) Option {
	return func(c *Client) {
		c.backoffStrategy = strategy
	}
}

// WithRetryCondition replaces the default retry eligibility decision. See
// DefaultRetryCondition for the default and RetryOnServerErrors for the
// stricter 5xx-only variant.
func WithRetryCondition(fn RetryCondition) Option {
	return func(c *Client) {
		c.retryCondition = fn
	}
}

// WithCircuitBreaker sets the per-service circuit breaker shape.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.breakerConfig = config
	}
}

// WithRateLimiter installs a token bucket of maxTokens refilling one token
// every refillRate.
func WithRateLimiter(maxTokens int, refillRate time.Duration) Option {
	return func(c *Client) {
		c.rateLimiter = NewRateLimiter(maxTokens, refillRate)
	}
}

// WithMiddleware appends middleware to the chain.
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithServiceName sets the default breaker/metrics bucket for calls without
// an explicit WithService tag.
func WithServiceName(name string) Option {
	return func(c *Client) {
		c.service = name
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging through a stderr console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithDebug enables debug logging with the default gate configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets a custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithRequestIDGenerator sets a custom request ID generator for log
// correlation.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// WithTransport replaces the built transport, primarily for tests. Pool and
// timeout options that shape the built transport are ignored when set.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.roundTripper = rt
	}
}

// ValidateConfiguration validates the client configuration and returns an
// error describing every violation found.
func (c *Client) ValidateConfiguration() error {
	var errs []string

	errs = append(errs, c.validateRetryConfig()...)
	errs = append(errs, c.validateTimeoutConfig()...)
	errs = append(errs, c.validatePoolConfig()...)
	errs = append(errs, c.validateCircuitBreakerConfig()...)
	errs = append(errs, c.validateRateLimiterConfig()...)
	errs = append(errs, c.validateDebugConfig()...)
	errs = append(errs, c.validateMiddlewareConfig()...)

	if len(errs) > 0 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errs),
		}
	}

	return nil
}

func (c *Client) validateRetryConfig() []string {
	var errs []string

	if c.retryConfig.MaxAttempts < 1 {
		errs = append(errs, "retry MaxAttempts must be at least 1")
	}
	if c.retryConfig.MaxAttempts > 100 {
		errs = append(errs, "retry MaxAttempts > 100 may cause excessive resource usage")
	}
	if c.retryConfig.BaseDelay < 0 {
		errs = append(errs, "retry BaseDelay must be non-negative")
	}
	if c.retryConfig.MaxDelay < c.retryConfig.BaseDelay {
		errs = append(errs, "retry MaxDelay must be greater than or equal to BaseDelay")
	}
	if c.retryConfig.Multiplier <= 0 {
		errs = append(errs, "retry Multiplier must be positive")
	}
	if c.retryConfig.Jitter < 0 || c.retryConfig.Jitter > 1 {
		errs = append(errs, "retry Jitter must be between 0 and 1")
	}
	if c.retryConfig.MaxDelay > time.Hour {
		errs = append(errs, "retry MaxDelay > 1h may cause extremely long delays")
	}

	return errs
}

func (c *Client) validateTimeoutConfig() []string {
	var errs []string

	if c.timeouts.Request <= 0 {
		errs = append(errs, "request timeout must be positive")
	}
	if c.timeouts.Request > 10*time.Minute {
		errs = append(errs, "request timeout > 10m may cause requests to hang for too long")
	}
	if c.timeouts.Connect < 0 {
		errs = append(errs, "connect timeout must be non-negative")
	}
	if c.timeouts.Read < 0 {
		errs = append(errs, "read timeout must be non-negative")
	}

	return errs
}

func (c *Client) validatePoolConfig() []string {
	var errs []string

	if c.pool.MaxConnections < 0 {
		errs = append(errs, "pool MaxConnections must be non-negative")
	}
	if c.pool.MaxKeepaliveConnections > c.pool.MaxConnections && c.pool.MaxConnections > 0 {
		errs = append(errs, "pool MaxKeepaliveConnections must not exceed MaxConnections")
	}

	return errs
}

func (c *Client) validateCircuitBreakerConfig() []string {
	var errs []string

	if c.breakerConfig.FailureThreshold <= 0 {
		errs = append(errs, "circuit breaker FailureThreshold must be positive")
	}
	if c.breakerConfig.RecoveryTimeout <= 0 {
		errs = append(errs, "circuit breaker RecoveryTimeout must be positive")
	}
	if c.breakerConfig.SuccessThreshold <= 0 {
		errs = append(errs, "circuit breaker SuccessThreshold must be positive")
	}

	return errs
}

func (c *Client) validateRateLimiterConfig() []string {
	var errs []string

	if c.rateLimiter != nil {
		if c.rateLimiter.maxTokens <= 0 {
			errs = append(errs, "rate limiter maxTokens must be positive")
		}
		if c.rateLimiter.refillRate < time.Millisecond {
			errs = append(errs, "rate limiter refillRate < 1ms may cause excessive CPU usage")
		}
	}

	return errs
}

func (c *Client) validateDebugConfig() []string {
	var errs []string

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			errs = append(errs, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			errs = append(errs, "logger must be set when debug is enabled")
		}
	}

	return errs
}

func (c *Client) validateMiddlewareConfig() []string {
	var errs []string

	for i, middleware := range c.middleware {
		if middleware == nil {
			errs = append(errs, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}

	return errs
}
