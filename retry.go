package outbound

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/virhanali/outbound/internal/backoff"
)

// retryScheduler re-attempts a failing operation with bounded, backed-off
// delay. It knows nothing about circuit breakers; the client composes the
// two so a full retry run counts as one breaker failure.
type retryScheduler struct {
	config    RetryConfig
	calc      *backoff.Calculator
	condition RetryCondition
}

func newRetryScheduler(config RetryConfig, strategy BackoffStrategy, condition RetryCondition) *retryScheduler {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.MaxDelay < config.BaseDelay {
		config.MaxDelay = config.BaseDelay
	}

	calc := backoff.ExponentialJitterCalculator()
	if strategy == DecorrelatedJitter {
		calc = backoff.DecorrelatedJitterCalculator()
	}

	return &retryScheduler{
		config:    config,
		calc:      calc,
		condition: condition,
	}
}

// Do runs op up to MaxAttempts times. Outcomes the condition rejects
// propagate immediately without consuming further attempts; the last
// attempt's outcome is returned as-is when the budget is exhausted.
func (s *retryScheduler) Do(ctx context.Context, op func(attempt int) (*http.Response, error)) (*http.Response, error) {
	var resp *http.Response
	var err error

	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		resp, err = op(attempt)

		if attempt == s.config.MaxAttempts || !s.condition(resp, err) {
			return resp, err
		}

		delay := s.delayFor(resp, attempt)

		// The retried response is never handed to the caller; release its
		// connection back to the pool before sleeping.
		drainAndClose(resp)

		if sleepErr := sleepContext(ctx, delay); sleepErr != nil {
			if err == nil {
				err = sleepErr
			}
			return nil, err
		}
	}

	return resp, err
}

// delayFor computes the pause before the next attempt. A Retry-After header
// on 429/503 responses overrides the computed backoff.
func (s *retryScheduler) delayFor(resp *http.Response, attempt int) time.Duration {
	if resp != nil && (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable) {
		if d := parseRetryAfter(resp.Header.Get("Retry-After")); d > 0 {
			if d > s.config.MaxDelay {
				d = s.config.MaxDelay
			}
			return d
		}
	}
	return s.calc.Calculate(attempt-1, s.config.BaseDelay, s.config.MaxDelay, s.config.Multiplier, s.config.Jitter)
}

// DefaultRetryCondition retries transport errors and any non-2xx upstream
// status. The providers this layer fronts are known to return transient 4xx
// responses during failover, so status retries default to the broad class;
// use RetryOnServerErrors (or a custom condition) to restrict to 5xx.
func DefaultRetryCondition(resp *http.Response, err error) bool {
	if err != nil {
		return !IsCircuitOpen(err)
	}
	if resp == nil {
		return true
	}
	return resp.StatusCode >= 400
}

// RetryOnServerErrors retries transport errors, 5xx responses and 429s only,
// leaving other client errors to surface immediately.
func RetryOnServerErrors(resp *http.Response, err error) bool {
	if err != nil {
		return !IsCircuitOpen(err)
	}
	if resp == nil {
		return true
	}
	return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
}

// parseRetryAfter parses a Retry-After header in either delay-seconds or
// HTTP-date form. Unparseable values yield zero.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}

// sleepContext pauses for d unless the context ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// drainAndClose discards up to a small bound of the body so the connection
// can be reused, then closes it.
func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, resp.Body, 64<<10)
	_ = resp.Body.Close()
}
