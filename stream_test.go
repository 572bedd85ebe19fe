package outbound

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestStreamReadsFullBody(t *testing.T) {
	payload := make([]byte, 256<<10)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(payload)
	}))
	defer server.Close()

	client := New()
	defer client.Close()

	stream, err := client.Stream(context.Background(), http.MethodGet, server.URL)
	if err != nil {
		t.Fatalf("Expected stream, got %v", err)
	}
	defer stream.Close()

	if stream.StatusCode() != http.StatusOK {
		t.Errorf("Expected status 200, got %d", stream.StatusCode())
	}

	got, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("Expected full read, got %v", err)
	}
	if len(got) != len(payload) {
		t.Errorf("Expected %d bytes, got %d", len(payload), len(got))
	}
}

func TestStreamCloseIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("partial body left unread"))
	}))
	defer server.Close()

	client := New()
	defer client.Close()

	stream, err := client.Stream(context.Background(), http.MethodGet, server.URL)
	if err != nil {
		t.Fatalf("Expected stream, got %v", err)
	}

	if err := stream.Close(); err != nil {
		t.Errorf("Expected clean close, got %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Errorf("Expected idempotent close, got %v", err)
	}
}

func TestStreamNon2xxReturnsTypedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(WithMaxAttempts(1))
	defer client.Close()

	stream, err := client.Stream(context.Background(), http.MethodGet, server.URL)
	if stream != nil {
		t.Error("Expected no stream for 502")
	}
	if err == nil {
		t.Fatal("Expected error for 502")
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.Type != ErrorTypeServer {
		t.Errorf("Expected Server typed error, got %v", err)
	}
}

func TestStreamRetriesBeforeHeaders(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("streamed"))
	}))
	defer server.Close()

	client := New(WithRetryConfig(testRetryConfig(3)))
	defer client.Close()

	stream, err := client.Stream(context.Background(), http.MethodGet, server.URL)
	if err != nil {
		t.Fatalf("Expected stream after retry, got %v", err)
	}
	defer stream.Close()

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("Expected 2 attempts, got %d", got)
	}

	body, _ := io.ReadAll(stream)
	if string(body) != "streamed" {
		t.Errorf("Expected streamed body, got %q", body)
	}
}

func TestStreamRespectsCircuitBreaker(t *testing.T) {
	client := New(
		WithMaxAttempts(1),
		WithCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: 1,
			RecoveryTimeout:  time.Minute,
			SuccessThreshold: 1,
		}),
	)
	defer client.Close()

	client.Get(context.Background(), "http://192.0.2.1:1/")

	_, err := client.Stream(context.Background(), http.MethodGet, "http://192.0.2.1:1/")
	if !IsCircuitOpen(err) {
		t.Errorf("Expected circuit-open error for stream, got %v", err)
	}
}

func TestStreamNotBoundByRequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
		// Trickle the body well past the client's per-request deadline.
		for i := 0; i < 5; i++ {
			w.Write([]byte("chunk"))
			flusher.Flush()
			time.Sleep(30 * time.Millisecond)
		}
	}))
	defer server.Close()

	client := New(WithTimeouts(TimeoutConfig{Request: 50 * time.Millisecond}))
	defer client.Close()

	stream, err := client.Stream(context.Background(), http.MethodGet, server.URL)
	if err != nil {
		t.Fatalf("Expected stream, got %v", err)
	}
	defer stream.Close()

	body, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("Expected slow body to read past the request deadline, got %v", err)
	}
	if string(body) != "chunkchunkchunkchunkchunk" {
		t.Errorf("Unexpected body %q", body)
	}
}

func TestStreamContextCancelAbortsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("first"))
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	client := New()
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := client.Stream(ctx, http.MethodGet, server.URL)
	if err != nil {
		t.Fatalf("Expected stream, got %v", err)
	}
	defer stream.Close()

	buf := make([]byte, 5)
	if _, err := io.ReadFull(stream, buf); err != nil {
		t.Fatalf("Expected first chunk, got %v", err)
	}

	cancel()

	if _, err := stream.Read(buf); err == nil {
		t.Error("Expected read to fail after context cancellation")
	}
}
