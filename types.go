package outbound

import (
	"net/http"
	"time"
)

// RetryCondition decides whether an attempt's outcome warrants another try.
type RetryCondition func(resp *http.Response, err error) bool

// Middleware wraps the transport call for cross-cutting concerns (auth,
// tracing, request mutation). The last middleware added runs closest to the
// network.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper is the minimal transport interface middleware composes over.
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc adapts a function to the RoundTripper interface.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// PoolConfig sizes the shared connection pool. Zero values fall back to the
// defaults applied in newTransport.
type PoolConfig struct {
	// MaxConnections bounds total connections per upstream host. Requests
	// beyond the bound wait for a pooled connection.
	MaxConnections int
	// MaxKeepaliveConnections bounds idle connections retained for reuse.
	MaxKeepaliveConnections int
	// KeepaliveExpiry evicts idle connections after this duration.
	KeepaliveExpiry time.Duration
}

// TimeoutConfig holds the per-phase deadlines enforced on every attempt.
// Connect bounds dialing, Read bounds the wait for response headers, and
// Request bounds the whole attempt including writing the body and reading
// the response; pool acquisition is bounded by the same request deadline
// because the transport blocks on MaxConnections.
type TimeoutConfig struct {
	Connect time.Duration
	Read    time.Duration
	Request time.Duration
}

// RetryConfig shapes the retry schedule. Immutable once the client is built;
// shared read-only across calls.
type RetryConfig struct {
	// MaxAttempts is the total number of transport attempts, including the
	// first one. Must be >= 1.
	MaxAttempts int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the computed delay.
	MaxDelay time.Duration
	// Multiplier is the exponential growth factor between retries.
	Multiplier float64
	// Jitter is the fraction of the computed delay added as random noise,
	// clamped to [0, 1]. Zero disables jitter.
	Jitter float64
}

// CircuitBreakerConfig shapes the per-service failure-detection state
// machine. Immutable after construction.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive recorded failures that
	// trips the breaker from closed to open.
	FailureThreshold int
	// RecoveryTimeout is how long the breaker stays open before the next
	// call is let through as a half-open trial.
	RecoveryTimeout time.Duration
	// SuccessThreshold is the number of half-open trial successes required
	// to close the breaker again.
	SuccessThreshold int
}

// CircuitState is the observable state of a circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// String returns the lowercase state name used in logs and health output.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BackoffStrategy selects the delay distribution used between retries.
type BackoffStrategy int

const (
	// ExponentialJitter grows the delay exponentially and adds a uniform
	// jitter fraction. The default.
	ExponentialJitter BackoffStrategy = iota
	// DecorrelatedJitter implements AWS-style decorrelated jitter for
	// smoother tail latencies under heavy retry load.
	DecorrelatedJitter
)

// DebugConfig gates per-concern debug logging.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogRetries   bool
	LogCircuit   bool
	LogRateLimit bool
	RequestIDGen func() string
}

// DefaultDebugConfig returns a DebugConfig with all log gates on (but
// Enabled false) and a random request ID generator.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogRetries:   true,
		LogCircuit:   true,
		LogRateLimit: true,
		RequestIDGen: defaultRequestID,
	}
}

// Option configures a Client at construction time.
type Option func(*Client)
