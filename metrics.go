package outbound

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exports the request lifecycle and reliability layers to
// Prometheus. All Record methods are safe on a nil receiver so callers never
// have to guard the disabled case.
//
// The metric names are fixed, so two collectors on the same registerer
// describe the same series; registration reuses the existing collectors in
// that case. Clients built for different services can therefore share one
// registerer (the service is a label, not part of the name).
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec

	rateLimiterTokens *prometheus.GaugeVec

	errorsTotal *prometheus.CounterVec

	registry prometheus.Registerer
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer, for tests or scoped registries. If the metrics are already
// registered there (a second metrics-enabled client on the same registerer)
// the existing collectors are reused instead of failing registration.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: registerCounterVec(registry, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outbound_requests_total",
				Help: "Total number of outbound HTTP requests made",
			},
			[]string{"service", "method", "status_code"},
		)),
		requestDuration: registerHistogramVec(registry, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "outbound_request_duration_seconds",
				Help:    "Duration of outbound HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "method", "status_code"},
		)),
		requestsInFlight: registerGaugeVec(registry, prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "outbound_requests_in_flight",
				Help: "Number of outbound HTTP requests currently in flight",
			},
			[]string{"service", "method"},
		)),
		retriesTotal: registerCounterVec(registry, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outbound_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"service", "method", "attempt"},
		)),
		circuitBreakerState: registerGaugeVec(registry, prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "outbound_circuit_breaker_state",
				Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"service"},
		)),
		rateLimiterTokens: registerGaugeVec(registry, prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "outbound_rate_limiter_tokens",
				Help: "Current number of available rate limiter tokens",
			},
			[]string{"service"},
		)),
		errorsTotal: registerCounterVec(registry, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outbound_errors_total",
				Help: "Total number of errors encountered by type",
			},
			[]string{"type", "service", "method"},
		)),
		registry: registry,
	}
}

func registerCounterVec(registry prometheus.Registerer, vec *prometheus.CounterVec) *prometheus.CounterVec {
	if registry == nil {
		return vec
	}
	if err := registry.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
		panic(err)
	}
	return vec
}

func registerHistogramVec(registry prometheus.Registerer, vec *prometheus.HistogramVec) *prometheus.HistogramVec {
	if registry == nil {
		return vec
	}
	if err := registry.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(*prometheus.HistogramVec)
		}
		panic(err)
	}
	return vec
}

func registerGaugeVec(registry prometheus.Registerer, vec *prometheus.GaugeVec) *prometheus.GaugeVec {
	if registry == nil {
		return vec
	}
	if err := registry.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(*prometheus.GaugeVec)
		}
		panic(err)
	}
	return vec
}

// RecordRequest records the final outcome of a call.
func (mc *MetricsCollector) RecordRequest(service, method string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	code := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(service, method, code).Inc()
	mc.requestDuration.WithLabelValues(service, method, code).Observe(duration.Seconds())
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(service, method string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(service, method).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(service, method string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(service, method).Dec()
}

// RecordRetry increments the retry counter for an attempt number.
func (mc *MetricsCollector) RecordRetry(service, method string, attempt int) {
	if mc == nil {
		return
	}

	mc.retriesTotal.WithLabelValues(service, method, strconv.Itoa(attempt)).Inc()
}

// RecordCircuitBreakerState sets the breaker state gauge for a service.
func (mc *MetricsCollector) RecordCircuitBreakerState(service string, state CircuitState) {
	if mc == nil {
		return
	}

	mc.circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// RecordRateLimiterTokens sets the available-token gauge for a service.
func (mc *MetricsCollector) RecordRateLimiterTokens(service string, tokens int) {
	if mc == nil {
		return
	}

	mc.rateLimiterTokens.WithLabelValues(service).Set(float64(tokens))
}

// RecordError increments the error counter for a taxonomy type.
func (mc *MetricsCollector) RecordError(errorType, service, method string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType, service, method).Inc()
}
