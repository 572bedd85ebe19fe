package outbound

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the probe regardless of the client's own
// request deadline, so liveness checks never hang on a slow provider.
const healthCheckTimeout = 5 * time.Second

// HealthStatus is the structured result of a health probe, consumed by the
// surrounding system's liveness and readiness checks.
type HealthStatus struct {
	Healthy    bool                    `json:"healthy"`
	StatusCode int                     `json:"status_code,omitempty"`
	Latency    time.Duration           `json:"latency"`
	CheckedAt  time.Time               `json:"checked_at"`
	Error      string                  `json:"error,omitempty"`
	Breakers   map[string]CircuitState `json:"breakers"`
}

// HealthCheck probes a known-good endpoint with a bounded timeout and
// reports the result together with the breaker state of every service
// bucket this client has talked to. The probe bypasses retries and the
// breaker: a health check should observe the upstream as it is right now,
// not after the reliability stack has smoothed it over.
func (c *Client) HealthCheck(ctx context.Context, probeURL string) HealthStatus {
	status := HealthStatus{
		CheckedAt: time.Now(),
		Breakers:  c.breakers.states(),
	}

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		status.Error = err.Error()
		return status
	}

	resp, err := c.httpClient.Do(req)
	status.Latency = time.Since(start)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	drainAndClose(resp)

	status.StatusCode = resp.StatusCode
	status.Healthy = resp.StatusCode >= 200 && resp.StatusCode < 300
	return status
}
