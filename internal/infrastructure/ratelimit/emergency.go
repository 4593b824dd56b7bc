package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/turtacn/renewguard/internal/domain/models"
	"github.com/turtacn/renewguard/internal/domain/service"
	"github.com/turtacn/renewguard/pkg/constants"
	"github.com/turtacn/renewguard/pkg/logger"
)

// MetricsTracker holds the process-wide operation counters. Counters only
// reset with the process.
type MetricsTracker struct {
	total       atomic.Int64
	failed      atomic.Int64
	consecutive atomic.Int64
}

// NewMetricsTracker creates a zeroed tracker.
func NewMetricsTracker() *MetricsTracker {
	return &MetricsTracker{}
}

// RecordSuccess counts a successful store-backed check.
func (t *MetricsTracker) RecordSuccess() {
	t.total.Add(1)
	t.consecutive.Store(0)
}

// RecordFailure counts a failed store-backed check and returns the new snapshot.
func (t *MetricsTracker) RecordFailure() models.SystemMetrics {
	t.total.Add(1)
	t.failed.Add(1)
	t.consecutive.Add(1)
	return t.Snapshot()
}

// Snapshot returns a copy of the counters with the derived failure rate.
func (t *MetricsTracker) Snapshot() models.SystemMetrics {
	total := t.total.Load()
	failed := t.failed.Load()
	return models.SystemMetrics{
		TotalOperations:     total,
		FailedOperations:    failed,
		ConsecutiveFailures: t.consecutive.Load(),
		RedisFailureRate:    FailureRate(failed, total),
	}
}

// FailureRate returns failed/total, or 0 when nothing was counted.
func FailureRate(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}

// EmergencyConfig holds the bypass thresholds.
type EmergencyConfig struct {
	FailureRateThreshold float64
	ConsecutiveFailures  int64
}

// DefaultEmergencyConfig returns the production thresholds.
func DefaultEmergencyConfig() EmergencyConfig {
	return EmergencyConfig{
		FailureRateThreshold: constants.EmergencyFailureRateThreshold,
		ConsecutiveFailures:  constants.EmergencyConsecutiveFailures,
	}
}

// EmergencyController decides when enforcement is switched off because the
// store is unhealthy. Once active the bypass stays on until the process
// restarts.
type EmergencyController struct {
	cfg     EmergencyConfig
	logger  logger.Logger
	metrics service.Metrics

	active      atomic.Bool
	mu          sync.Mutex
	reason      string
	activatedAt time.Time
}

// NewEmergencyController creates a controller in the disarmed state.
func NewEmergencyController(cfg EmergencyConfig, log logger.Logger, metrics service.Metrics) *EmergencyController {
	def := DefaultEmergencyConfig()
	if cfg.FailureRateThreshold <= 0 {
		cfg.FailureRateThreshold = def.FailureRateThreshold
	}
	if cfg.ConsecutiveFailures <= 0 {
		cfg.ConsecutiveFailures = def.ConsecutiveFailures
	}
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	return &EmergencyController{
		cfg:     cfg,
		logger:  log.WithComponent("emergency"),
		metrics: metrics,
	}
}

// ShouldBypass reports whether m crosses either threshold. It is pure.
func (e *EmergencyController) ShouldBypass(m models.SystemMetrics) bool {
	return m.RedisFailureRate >= e.cfg.FailureRateThreshold ||
		m.ConsecutiveFailures >= e.cfg.ConsecutiveFailures
}

// Evaluate activates the bypass when m crosses a threshold. It returns true
// only for the call that activated it.
func (e *EmergencyController) Evaluate(ctx context.Context, m models.SystemMetrics) bool {
	if !e.ShouldBypass(m) {
		return false
	}
	return e.Activate(ctx, fmt.Sprintf("failure_rate=%.3f consecutive_failures=%d", m.RedisFailureRate, m.ConsecutiveFailures))
}

// Activate switches the bypass on. It returns false if it was already on.
func (e *EmergencyController) Activate(ctx context.Context, reason string) bool {
	e.mu.Lock()
	if e.active.Load() {
		e.mu.Unlock()
		return false
	}
	e.reason = reason
	e.activatedAt = time.Now()
	e.active.Store(true)
	e.mu.Unlock()

	e.metrics.RecordBypass(true)
	e.logger.Error(ctx, "Emergency bypass activated, rate limiting disabled for this process", nil, logger.Fields{
		"reason": reason,
	})
	return true
}

// Active reports whether the bypass is on.
func (e *EmergencyController) Active() bool {
	return e.active.Load()
}

// Reason returns why the bypass was activated and when.
func (e *EmergencyController) Reason() (string, time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reason, e.activatedAt
}

//Personal.AI order the ending
