// Package outbound is the resilient call layer every external integration
// goes through. It wraps a pooled HTTP transport with:
//
//   - Retries with exponential backoff + jitter (Retry-After aware)
//   - Per-service circuit breakers (closed / open / half-open)
//   - Local token-bucket rate limiting
//   - Bounded-concurrency batch execution with order-preserving results
//   - Streaming responses that release their connection on abandonment
//   - Rolling latency/outcome stats and Prometheus metrics
//   - Middleware chain for cross-cutting concerns (auth, tracing)
//
// Composition is explicit rather than decorator-driven: the orchestrator
// checks the breaker, runs the retry scheduler, and the scheduler drives the
// transport, so the call path reads end to end. A full retry run counts as
// one breaker failure.
//
// Typical usage:
//
//	client := outbound.New(
//	    outbound.WithMaxAttempts(3),
//	    outbound.WithCircuitBreaker(outbound.CircuitBreakerConfig{FailureThreshold: 5}),
//	    outbound.WithRateLimiter(120, 500*time.Millisecond),
//	    outbound.WithMetrics(),
//	)
//	defer client.Close()
//	resp, err := client.Get(ctx, "https://api.example.com/quotes",
//	    outbound.WithService("market_data"))
//
// Services with different latency profiles get their own tuned clients
// through a Registry:
//
//	cfg, _ := outbound.LoadConfig()
//	reg := outbound.NewRegistry(cfg)
//	defer reg.Cleanup()
//	md := reg.Client(outbound.ServiceMarketData)
package outbound
