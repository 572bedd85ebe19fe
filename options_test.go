package outbound

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWithTimeoutsPartialOverride(t *testing.T) {
	client := New(WithTimeouts(TimeoutConfig{Request: 7 * time.Second}))
	defer client.Close()

	if client.timeouts.Request != 7*time.Second {
		t.Errorf("Expected request timeout=7s, got %v", client.timeouts.Request)
	}
	// Unset phases keep their defaults.
	if client.timeouts.Connect != 5*time.Second {
		t.Errorf("Expected connect timeout=5s, got %v", client.timeouts.Connect)
	}
	if client.timeouts.Read != 10*time.Second {
		t.Errorf("Expected read timeout=10s, got %v", client.timeouts.Read)
	}
}

func TestWithPoolConfig(t *testing.T) {
	client := New(WithPoolConfig(PoolConfig{
		MaxConnections:          40,
		MaxKeepaliveConnections: 10,
		KeepaliveExpiry:         time.Minute,
	}))
	defer client.Close()

	if client.transport.MaxConnsPerHost != 40 {
		t.Errorf("Expected MaxConnsPerHost=40, got %d", client.transport.MaxConnsPerHost)
	}
	if client.transport.MaxIdleConnsPerHost != 10 {
		t.Errorf("Expected MaxIdleConnsPerHost=10, got %d", client.transport.MaxIdleConnsPerHost)
	}
	if client.transport.IdleConnTimeout != time.Minute {
		t.Errorf("Expected IdleConnTimeout=1m, got %v", client.transport.IdleConnTimeout)
	}
}

func TestTransportDefaults(t *testing.T) {
	transport := newTransport(PoolConfig{}, TimeoutConfig{})

	if transport.MaxConnsPerHost != defaultMaxConnections {
		t.Errorf("Expected MaxConnsPerHost=%d, got %d", defaultMaxConnections, transport.MaxConnsPerHost)
	}
	if transport.MaxIdleConnsPerHost != defaultMaxKeepaliveConnections {
		t.Errorf("Expected MaxIdleConnsPerHost=%d, got %d", defaultMaxKeepaliveConnections, transport.MaxIdleConnsPerHost)
	}
	if transport.IdleConnTimeout != defaultKeepaliveExpiry {
		t.Errorf("Expected IdleConnTimeout=%v, got %v", defaultKeepaliveExpiry, transport.IdleConnTimeout)
	}
	if transport.ResponseHeaderTimeout != defaultReadTimeout {
		t.Errorf("Expected ResponseHeaderTimeout=%v, got %v", defaultReadTimeout, transport.ResponseHeaderTimeout)
	}
	if !transport.ForceAttemptHTTP2 {
		t.Error("Expected HTTP/2 enabled")
	}
}

func TestWithBackoffStrategy(t *testing.T) {
	client := New(WithBackoffStrategy(DecorrelatedJitter))
	defer client.Close()

	if client.backoffStrategy != DecorrelatedJitter {
		t.Errorf("Expected DecorrelatedJitter, got %v", client.backoffStrategy)
	}
}

func TestWithRetryCondition(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := New(
		WithRetryConfig(testRetryConfig(3)),
		WithRetryCondition(RetryOnServerErrors),
	)
	defer client.Close()

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected response, got %v", err)
	}
	resp.Body.Close()

	if calls != 1 {
		t.Errorf("Expected 404 not to be retried under RetryOnServerErrors, got %d attempts", calls)
	}
}

func TestWithServiceName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(WithServiceName("market_data"))
	defer client.Close()

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	resp.Body.Close()

	if _, ok := client.BreakerStates()["market_data"]; !ok {
		t.Error("Expected calls to count against the configured default service bucket")
	}
}

func TestWithTransportOverride(t *testing.T) {
	var intercepted bool
	rt := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		intercepted = true
		rec := httptest.NewRecorder()
		rec.WriteHeader(http.StatusOK)
		resp := rec.Result()
		resp.Request = req
		return resp, nil
	})

	client := New(WithTransport(rt))
	defer client.Close()

	resp, err := client.Get(context.Background(), "http://upstream.internal/quote")
	if err != nil {
		t.Fatalf("Expected stubbed response, got %v", err)
	}
	resp.Body.Close()

	if !intercepted {
		t.Error("Expected the custom round tripper to serve the request")
	}
}

func TestWithDebugConfigGates(t *testing.T) {
	cfg := &DebugConfig{
		Enabled:      true,
		LogRequests:  false,
		LogRetries:   true,
		LogCircuit:   true,
		LogRateLimit: true,
		RequestIDGen: func() string { return "fixed" },
	}

	client := New(WithDebugConfig(cfg), WithLogger(NewSimpleLogger()))
	defer client.Close()

	if !client.IsValid() {
		t.Fatalf("Expected valid config, got %v", client.ValidationError())
	}
	if client.debug.RequestIDGen() != "fixed" {
		t.Error("Expected custom request ID generator")
	}
}

func TestWithRequestIDGenerator(t *testing.T) {
	client := New(WithRequestIDGenerator(func() string { return "req-1" }))
	defer client.Close()

	if client.debug.RequestIDGen() != "req-1" {
		t.Error("Expected custom generator installed")
	}
}

func TestValidateConfigurationCollectsAllViolations(t *testing.T) {
	client := New(
		WithMaxAttempts(0),
		WithCircuitBreaker(CircuitBreakerConfig{}),
		WithMiddleware(nil),
	)
	defer client.Close()

	err := client.ValidationError()
	if err == nil {
		t.Fatal("Expected validation failure")
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("Expected ClientError, got %T", err)
	}
	if clientErr.Type != ErrorTypeValidation {
		t.Errorf("Expected Validation type, got %s", clientErr.Type)
	}
}

func TestDefaultDebugConfig(t *testing.T) {
	cfg := DefaultDebugConfig()

	if cfg.Enabled {
		t.Error("Expected debug disabled by default")
	}
	if !cfg.LogRequests || !cfg.LogRetries || !cfg.LogCircuit || !cfg.LogRateLimit {
		t.Error("Expected all log gates on by default")
	}
	if cfg.RequestIDGen == nil {
		t.Error("Expected a default request ID generator")
	}
}
