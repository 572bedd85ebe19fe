package outbound

import (
	"sync"
	"time"
)

// RateLimiter is a token bucket guarding outbound quota. The upstream
// market-data providers meter requests, so exhausting the local bucket fails
// fast instead of burning a remote quota violation.
//
// State lives behind one mutex so refill and consume are a single atomic
// step; the critical section is a few integer operations.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     int64
	maxTokens  int64
	refillRate time.Duration
	lastRefill time.Time
}

// NewRateLimiter creates a bucket holding maxTokens, refilling one token
// every refillRate.
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	return &RateLimiter{
		maxTokens:  int64(maxTokens),
		tokens:     int64(maxTokens),
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow consumes a token if one is available.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked(time.Now())
	if rl.tokens <= 0 {
		return false
	}
	rl.tokens--
	return true
}

// Tokens returns the current token count after applying any pending refill,
// for metrics.
func (rl *RateLimiter) Tokens() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked(time.Now())
	return int(rl.tokens)
}

func (rl *RateLimiter) refillLocked(now time.Time) {
	if rl.refillRate <= 0 {
		return
	}

	elapsed := now.Sub(rl.lastRefill)
	tokensToAdd := int64(elapsed / rl.refillRate)
	if tokensToAdd == 0 {
		return
	}

	rl.tokens += tokensToAdd
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}

	// Advance lastRefill by whole refill intervals so fractional elapsed
	// time is not lost.
	rl.lastRefill = rl.lastRefill.Add(time.Duration(tokensToAdd) * rl.refillRate)
}
