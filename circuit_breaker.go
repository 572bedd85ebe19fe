package outbound

import (
	"sync"
	"time"
)

// CircuitBreaker is a per-service failure-detection state machine. All state
// lives behind one mutex; the critical sections only touch in-memory
// counters, never the network, so the lock is held briefly.
//
// Transitions: consecutive failures >= FailureThreshold trip closed -> open.
// After RecoveryTimeout the next Allow lets a bounded number of trial calls
// through (half-open); SuccessThreshold trial successes close the breaker
// and reset the failure count, any trial failure reopens it.
type CircuitBreaker struct {
	mu sync.Mutex

	config        CircuitBreakerConfig
	state         CircuitState
	failures      int
	successes     int
	halfOpenProbe int
	lastFailure   time.Time
	openedAt      time.Time
}

// NewCircuitBreaker creates a circuit breaker, applying defaults for zero
// config values.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 2
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}
}

// Allow reports whether a call may proceed. The open -> half-open transition
// is lazy: it happens here, on the first call after the recovery timeout has
// elapsed, not on a background timer. In half-open, at most SuccessThreshold
// trial calls are admitted until the breaker settles.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.config.RecoveryTimeout {
			cb.state = StateHalfOpen
			cb.successes = 0
			cb.halfOpenProbe = 1
			return true
		}
		return false
	case StateHalfOpen:
		if cb.halfOpenProbe < cb.config.SuccessThreshold {
			cb.halfOpenProbe++
			return true
		}
		return false
	default:
		return false
	}
}

// RecordFailure feeds one failed call into the state machine. The
// orchestrator calls this once per exhausted retry run, so a full run of
// retries counts as a single failure here.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = time.Now()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.openedAt = time.Now()
		}
	case StateOpen:
		// Already open, nothing to trip.
	case StateHalfOpen:
		cb.state = StateOpen
		cb.openedAt = time.Now()
		cb.successes = 0
		cb.halfOpenProbe = 0
	}
}

// RecordSuccess feeds one successful call into the state machine.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateOpen:
		// Stale success from a call admitted before the trip; ignore.
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.state = StateClosed
			cb.failures = 0
			cb.successes = 0
			cb.halfOpenProbe = 0
		}
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count while closed.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// LastFailure returns when the most recent failure was recorded, zero if none
// has been.
func (cb *CircuitBreaker) LastFailure() time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastFailure
}

// breakerSet owns the per-service breakers of one Client. Creation is
// double-checked so concurrent first calls for a service construct exactly
// one breaker.
type breakerSet struct {
	mu       sync.RWMutex
	config   CircuitBreakerConfig
	breakers map[string]*CircuitBreaker
}

func newBreakerSet(config CircuitBreakerConfig) *breakerSet {
	return &breakerSet{
		config:   config,
		breakers: make(map[string]*CircuitBreaker),
	}
}

func (bs *breakerSet) get(service string) *CircuitBreaker {
	bs.mu.RLock()
	cb, ok := bs.breakers[service]
	bs.mu.RUnlock()
	if ok {
		return cb
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()
	if cb, ok = bs.breakers[service]; ok {
		return cb
	}
	cb = NewCircuitBreaker(bs.config)
	bs.breakers[service] = cb
	return cb
}

// states snapshots the state of every breaker created so far.
func (bs *breakerSet) states() map[string]CircuitState {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	out := make(map[string]CircuitState, len(bs.breakers))
	for name, cb := range bs.breakers {
		out[name] = cb.State()
	}
	return out
}
