// Package backoff centralizes retry delay calculation for the outbound
// client so the scheduler and any custom retry policies share one
// implementation.
package backoff

import (
	"time"
)

// Calculator computes retry delays using a configurable strategy.
type Calculator struct {
	strategy Strategy
}

// NewCalculator creates a calculator with the given strategy.
func NewCalculator(strategy Strategy) *Calculator {
	return &Calculator{strategy: strategy}
}

// Calculate returns the delay before retry number attempt (0-based).
func (c *Calculator) Calculate(attempt int, baseDelay, maxDelay time.Duration, multiplier, jitter float64) time.Duration {
	return c.strategy.Calculate(attempt, baseDelay, maxDelay, multiplier, jitter)
}

// ExponentialJitterCalculator returns a calculator using exponential backoff
// with uniform jitter, the default schedule.
func ExponentialJitterCalculator() *Calculator {
	return NewCalculator(ExponentialJitterStrategy{})
}

// DecorrelatedJitterCalculator returns a calculator using AWS-style
// decorrelated jitter.
func DecorrelatedJitterCalculator() *Calculator {
	return NewCalculator(DecorrelatedJitterStrategy{})
}
