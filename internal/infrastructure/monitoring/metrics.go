package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/turtacn/renewguard/internal/domain/service"
	"github.com/turtacn/renewguard/pkg/constants"
)

var _ service.Metrics = (*Metrics)(nil)

// Metrics manages the Prometheus metrics.
type Metrics struct {
	Checks          *prometheus.CounterVec
	CheckLatency    *prometheus.HistogramVec
	Blocks          *prometheus.CounterVec
	StoreFailures   prometheus.Counter
	CircuitState    prometheus.Gauge
	BypassActive    prometheus.Gauge
	CleanupRemoved  *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPLatency     *prometheus.HistogramVec
	HTTPActiveConns prometheus.Gauge
}

// NewMetrics creates and registers the Prometheus metrics on reg. Passing
// prometheus.DefaultRegisterer exposes them on the default /metrics handler;
// tests pass a fresh prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	ns := constants.ServiceName

	return &Metrics{
		Checks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "checks_total",
				Help:      "Total number of limit checks by outcome.",
			},
			[]string{"limit_type", "outcome"},
		),
		CheckLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "check_duration_seconds",
				Help:      "Latency of limit checks.",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"limit_type"},
		),
		Blocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "blocks_total",
				Help:      "Total number of blocks set.",
			},
			[]string{"limit_type"},
		),
		StoreFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "store_failures_total",
				Help:      "Total number of failed shared store calls, including calls rejected by the open circuit.",
			},
		),
		CircuitState: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "circuit_state",
				Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
			},
		),
		BypassActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "bypass_active",
				Help:      "1 when the emergency bypass is active in this process.",
			},
		),
		CleanupRemoved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "cleanup_removed_total",
				Help:      "Entries and keys removed by the maintenance sweep.",
			},
			[]string{"kind"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"path", "method", "status"},
		),
		HTTPLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "http_request_duration_seconds",
				Help:      "Latency of HTTP requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
		HTTPActiveConns: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "http_active_requests",
				Help:      "Requests currently in flight.",
			},
		),
	}
}

// RecordCheck records one limit check outcome and its latency.
func (m *Metrics) RecordCheck(limitType, outcome string, duration time.Duration) {
	m.Checks.WithLabelValues(limitType, outcome).Inc()
	m.CheckLatency.WithLabelValues(limitType).Observe(duration.Seconds())
}

// RecordBlock records a block being set.
func (m *Metrics) RecordBlock(limitType string) {
	m.Blocks.WithLabelValues(limitType).Inc()
}

// RecordStoreFailure records a failed store call.
func (m *Metrics) RecordStoreFailure() {
	m.StoreFailures.Inc()
}

// RecordCircuitState records the breaker state.
func (m *Metrics) RecordCircuitState(state int) {
	m.CircuitState.Set(float64(state))
}

// RecordBypass records whether the emergency bypass is active.
func (m *Metrics) RecordBypass(active bool) {
	if active {
		m.BypassActive.Set(1)
		return
	}
	m.BypassActive.Set(0)
}

// RecordCleanup records entries trimmed and keys deleted by a sweep.
func (m *Metrics) RecordCleanup(trimmed int64, deleted int) {
	m.CleanupRemoved.WithLabelValues("entries").Add(float64(trimmed))
	m.CleanupRemoved.WithLabelValues("keys").Add(float64(deleted))
}

// ActiveRequestsInc marks a request as in flight.
func (m *Metrics) ActiveRequestsInc() {
	m.HTTPActiveConns.Inc()
}

// ActiveRequestsDec marks a request as finished.
func (m *Metrics) ActiveRequestsDec() {
	m.HTTPActiveConns.Dec()
}

// ObserveRequest records a finished HTTP request. path is the route template.
func (m *Metrics) ObserveRequest(path, method string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(path, method).Observe(duration.Seconds())
}

//Personal.AI order the ending
