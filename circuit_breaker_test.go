package outbound

import (
	"sync"
	"testing"
	"time"
)

func TestNewCircuitBreaker(t *testing.T) {
	config := CircuitBreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
	}

	cb := NewCircuitBreaker(config)

	if cb == nil {
		t.Fatal("NewCircuitBreaker() returned nil")
	}

	if cb.config.FailureThreshold != 3 {
		t.Errorf("Expected FailureThreshold=3, got %d", cb.config.FailureThreshold)
	}

	if cb.config.RecoveryTimeout != 30*time.Second {
		t.Errorf("Expected RecoveryTimeout=30s, got %v", cb.config.RecoveryTimeout)
	}

	if cb.State() != StateClosed {
		t.Errorf("Expected initial state=closed, got %v", cb.State())
	}
}

func TestNewCircuitBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	if cb.config.FailureThreshold != 5 {
		t.Errorf("Expected default FailureThreshold=5, got %d", cb.config.FailureThreshold)
	}

	if cb.config.RecoveryTimeout != 60*time.Second {
		t.Errorf("Expected default RecoveryTimeout=60s, got %v", cb.config.RecoveryTimeout)
	}

	if cb.config.SuccessThreshold != 2 {
		t.Errorf("Expected default SuccessThreshold=2, got %d", cb.config.SuccessThreshold)
	}
}

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  10 * time.Second,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Errorf("Expected state=closed below threshold, got %v", cb.State())
	}

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Errorf("Expected state=open at threshold, got %v", cb.State())
	}

	if cb.Allow() {
		t.Error("Expected Allow()=false when open")
	}
}

func TestCircuitBreakerSuccessResetsFailuresWhileClosed(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	if cb.Failures() != 0 {
		t.Errorf("Expected failures=0 after success while closed, got %d", cb.Failures())
	}

	// The counter tracks consecutive failures, so the breaker should need a
	// full fresh run to trip.
	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Errorf("Expected state=closed, got %v", cb.State())
	}
}

func TestCircuitBreakerLastFailure(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3})

	if !cb.LastFailure().IsZero() {
		t.Error("Expected zero LastFailure before any failure")
	}

	before := time.Now()
	cb.RecordFailure()
	after := time.Now()

	got := cb.LastFailure()
	if got.Before(before) || got.After(after) {
		t.Errorf("Expected LastFailure within [%v, %v], got %v", before, after, got)
	}

	// Successes do not touch the failure timestamp.
	cb.RecordSuccess()
	if !cb.LastFailure().Equal(got) {
		t.Error("Expected LastFailure unchanged by success")
	}
}

func TestCircuitBreakerLazyHalfOpenTransition(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  50 * time.Millisecond,
		SuccessThreshold: 1,
	})

	cb.RecordFailure()
	cb.RecordFailure()

	if cb.Allow() {
		t.Error("Expected Allow()=false immediately after opening")
	}

	time.Sleep(60 * time.Millisecond)

	// The transition happens at call time, not on a timer.
	if cb.State() != StateOpen {
		t.Errorf("Expected state=open before next Allow, got %v", cb.State())
	}

	if !cb.Allow() {
		t.Error("Expected Allow()=true after recovery timeout")
	}

	if cb.State() != StateHalfOpen {
		t.Errorf("Expected state=half_open, got %v", cb.State())
	}
}

func TestCircuitBreakerHalfOpenBoundedTrials(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
		SuccessThreshold: 2,
	})

	cb.RecordFailure()
	time.Sleep(15 * time.Millisecond)

	// The first Allow transitions and admits the first trial; one more
	// trial fits under SuccessThreshold=2, further calls are held back
	// until the breaker settles.
	if !cb.Allow() {
		t.Error("Expected first trial to be admitted")
	}
	if !cb.Allow() {
		t.Error("Expected second trial to be admitted")
	}
	if cb.Allow() {
		t.Error("Expected third call to be rejected while trials are pending")
	}
}

func TestCircuitBreakerClosesAfterSuccessThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  10 * time.Millisecond,
		SuccessThreshold: 2,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	cb.Allow()

	cb.RecordSuccess()
	if cb.State() != StateHalfOpen {
		t.Errorf("Expected state=half_open after 1 success, got %v", cb.State())
	}

	cb.RecordSuccess()
	if cb.State() != StateClosed {
		t.Errorf("Expected state=closed after 2 successes, got %v", cb.State())
	}

	if cb.Failures() != 0 {
		t.Errorf("Expected failures=0 after closing, got %d", cb.Failures())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  10 * time.Millisecond,
		SuccessThreshold: 2,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	cb.Allow()
	cb.RecordSuccess()

	cb.RecordFailure()

	if cb.State() != StateOpen {
		t.Errorf("Expected state=open after half-open failure, got %v", cb.State())
	}

	if cb.Allow() {
		t.Error("Expected Allow()=false after reopening")
	}
}

// The scenario from the reliability runbook: threshold 3, recovery 10ms
// scaled down, single-success close.
func TestCircuitBreakerRecoveryScenario(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  100 * time.Millisecond,
		SuccessThreshold: 1,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.Allow() {
		t.Error("Expected 4th call to be rejected")
	}

	time.Sleep(110 * time.Millisecond)

	if !cb.Allow() {
		t.Error("Expected trial call after recovery timeout")
	}
	cb.RecordSuccess()

	if cb.State() != StateClosed {
		t.Errorf("Expected state=closed after trial success, got %v", cb.State())
	}
	if !cb.Allow() {
		t.Error("Expected Allow()=true once closed again")
	}
}

func TestCircuitBreakerConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  10 * time.Millisecond,
		SuccessThreshold: 2,
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cb.Allow()
				if j%2 == 0 {
					cb.RecordSuccess()
				} else {
					cb.RecordFailure()
				}
			}
		}()
	}
	wg.Wait()

	state := cb.State()
	if state != StateClosed && state != StateOpen && state != StateHalfOpen {
		t.Errorf("Invalid circuit breaker state after concurrent access: %v", state)
	}
}

func TestBreakerSetDoubleCheckedCreation(t *testing.T) {
	bs := newBreakerSet(CircuitBreakerConfig{FailureThreshold: 2})

	var wg sync.WaitGroup
	breakers := make([]*CircuitBreaker, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			breakers[i] = bs.get("alpha")
		}(i)
	}
	wg.Wait()

	for i := 1; i < 20; i++ {
		if breakers[i] != breakers[0] {
			t.Fatal("Expected a single breaker instance per service")
		}
	}

	if bs.get("beta") == breakers[0] {
		t.Error("Expected distinct breakers per service")
	}

	states := bs.states()
	if len(states) != 2 {
		t.Errorf("Expected 2 breaker states, got %d", len(states))
	}
	if states["alpha"] != StateClosed {
		t.Errorf("Expected alpha=closed, got %v", states["alpha"])
	}
}

func TestCircuitStateString(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{CircuitState(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("CircuitState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
