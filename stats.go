package outbound

import (
	"sync"
	"time"
)

// ewmaWeight is the fixed weight of the exponentially weighted moving
// average latency: avg = avg*(1-w) + sample*w after the first sample.
const ewmaWeight = 0.1

// Stats is a point-in-time snapshot of one client's call outcomes. Timeouts
// are counted in both TimeoutRequests and FailedRequests, so SuccessRate and
// ErrorRate sum to ~100 once traffic has flowed.
type Stats struct {
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	TimeoutRequests int64
	Retries         int64
	AvgLatency      time.Duration
	LastLatency     time.Duration
}

// SuccessRate returns successes as a percentage of total, 0 when idle.
func (s Stats) SuccessRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.SuccessRequests) / float64(s.TotalRequests) * 100
}

// ErrorRate returns failures as a percentage of total, 0 when idle.
func (s Stats) ErrorRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.FailedRequests) / float64(s.TotalRequests) * 100
}

// statsCollector aggregates outcomes for one client. Updates arrive from
// concurrent call completions and are serialized under one short-held mutex;
// readers get copies and never mutate shared state.
type statsCollector struct {
	mu sync.Mutex

	total    int64
	success  int64
	failed   int64
	timeouts int64
	retries  int64

	avgLatency  time.Duration
	lastLatency time.Duration
	sampled     bool
}

func newStatsCollector() *statsCollector {
	return &statsCollector{}
}

// recordOutcome folds one completed call (after all retries) into the
// counters. timeout implies failure.
func (sc *statsCollector) recordOutcome(duration time.Duration, success, timeout bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.total++
	if success {
		sc.success++
	} else {
		sc.failed++
		if timeout {
			sc.timeouts++
		}
	}

	sc.lastLatency = duration
	if !sc.sampled {
		sc.avgLatency = duration
		sc.sampled = true
	} else {
		sc.avgLatency = time.Duration(float64(sc.avgLatency)*(1-ewmaWeight) + float64(duration)*ewmaWeight)
	}
}

// recordRetry counts one re-attempt.
func (sc *statsCollector) recordRetry() {
	sc.mu.Lock()
	sc.retries++
	sc.mu.Unlock()
}

// snapshot returns a copy of the current counters.
func (sc *statsCollector) snapshot() Stats {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return Stats{
		TotalRequests:   sc.total,
		SuccessRequests: sc.success,
		FailedRequests:  sc.failed,
		TimeoutRequests: sc.timeouts,
		Retries:         sc.retries,
		AvgLatency:      sc.avgLatency,
		LastLatency:     sc.lastLatency,
	}
}

// reset zeroes every counter.
func (sc *statsCollector) reset() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.total = 0
	sc.success = 0
	sc.failed = 0
	sc.timeouts = 0
	sc.retries = 0
	sc.avgLatency = 0
	sc.lastLatency = 0
	sc.sampled = false
}
