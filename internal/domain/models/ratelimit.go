package models

import (
	"math"
	"time"

	"github.com/turtacn/renewguard/pkg/constants"
)

// LimitPolicy is the base admission budget per window.
type LimitPolicy struct {
	// Points is the maximum number of admitted events per window
	Points int64 `json:"points"`
	// Duration is the sliding window length
	Duration time.Duration `json:"duration"`
	// BlockDuration is the penalty applied once the window overflows
	BlockDuration time.Duration `json:"block_duration"`
}

// TierPolicy holds the multiplier and special limits of one user tier.
type TierPolicy struct {
	Multiplier float64
	// SpecialLimits replace the base policy for the listed limit types
	SpecialLimits map[constants.LimitType]LimitPolicy
}

// TimeMultipliers configures the time-of-day and weekend multipliers.
// PeakStart and PeakEnd are hours in [0,24), PeakStart inclusive, PeakEnd exclusive.
type TimeMultipliers struct {
	PeakStart int
	PeakEnd   int
	Peak      float64
	OffPeak   float64
	Weekend   float64
}

// GeoMultipliers configures the geographic multipliers.
type GeoMultipliers struct {
	Domestic      float64
	International float64
}

// PolicySet is the validated, typed policy configuration shared by the
// resolver and the status/reset paths.
type PolicySet struct {
	Base         map[constants.LimitType]LimitPolicy
	Environments map[constants.Environment]float64
	Tiers        map[constants.UserTier]TierPolicy
	Time         TimeMultipliers
	Geo          GeoMultipliers
}

// MultiplierContext is the immutable per-request input to policy resolution.
type MultiplierContext struct {
	Environment     constants.Environment `json:"environment"`
	UserType        constants.UserTier    `json:"user_type"`
	IsWeekend       bool                  `json:"is_weekend"`
	CurrentHour     int                   `json:"current_hour"`
	IsInternational bool                  `json:"is_international"`
}

// NewMultiplierContext derives the time fields from now (UTC).
func NewMultiplierContext(env constants.Environment, tier constants.UserTier, now time.Time, international bool) MultiplierContext {
	now = now.UTC()
	wd := now.Weekday()
	return MultiplierContext{
		Environment:     env,
		UserType:        tier,
		IsWeekend:       wd == time.Saturday || wd == time.Sunday,
		CurrentHour:     now.Hour(),
		IsInternational: international,
	}
}

// AppliedMultipliers records every factor that went into an EffectivePolicy.
type AppliedMultipliers struct {
	Environment float64            `json:"environment"`
	UserType    float64            `json:"user_type"`
	Time        float64            `json:"time"`
	TimeBand    constants.TimeBand `json:"time_band"`
	Geographic  float64            `json:"geographic"`
	Total       float64            `json:"total"`
}

// EffectivePolicy is a LimitPolicy after multiplier composition. Only Points
// is scaled; Duration and BlockDuration come straight from the base or
// special limit.
type EffectivePolicy struct {
	LimitPolicy
	LimitType    constants.LimitType   `json:"limit_type"`
	BasePoints   int64                 `json:"base_points"`
	SpecialLimit bool                  `json:"special_limit"`
	Multipliers  AppliedMultipliers    `json:"multipliers"`
	ResolvedTier constants.UserTier    `json:"resolved_tier"`
	ResolvedEnv  constants.Environment `json:"resolved_environment"`
}

// ================================================================================
// Check Results
// ================================================================================

// Outcome is the typed variant of a single limit check.
type Outcome int

const (
	// OutcomeAllowed means the event was admitted and counted
	OutcomeAllowed Outcome = iota
	// OutcomeDenied means the key is rate limited or blocked
	OutcomeDenied
	// OutcomeStoreError means the shared store or its breaker failed
	OutcomeStoreError
	// OutcomeBypassed means enforcement is disabled and the store was not touched
	OutcomeBypassed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllowed:
		return "allowed"
	case OutcomeDenied:
		return "denied"
	case OutcomeStoreError:
		return "store_error"
	case OutcomeBypassed:
		return "bypassed"
	default:
		return "unknown"
	}
}

// DenialReason explains an OutcomeDenied result.
type DenialReason string

const (
	ReasonNone        DenialReason = ""
	ReasonRateLimited DenialReason = DenialReason(constants.DenialCodeRateLimited)
	ReasonBlocked     DenialReason = DenialReason(constants.DenialCodeBlocked)
)

// CheckResult is the outcome of one (key, limitType) check.
type CheckResult struct {
	Outcome   Outcome             `json:"-"`
	Allowed   bool                `json:"allowed"`
	Bypassed  bool                `json:"bypassed,omitempty"`
	Reason    DenialReason        `json:"reason,omitempty"`
	LimitType constants.LimitType `json:"limit_type"`
	Key       string              `json:"key"`
	Current   int64               `json:"current,omitempty"`
	Limit     int64               `json:"limit,omitempty"`
	Remaining int64               `json:"remaining"`
	ResetTime time.Time           `json:"reset_time"`
	Policy    *EffectivePolicy    `json:"policy,omitempty"`
	Err       error               `json:"-"`
}

// RetryAfter returns ceil((resetTime-now)/1s), never negative.
func (r *CheckResult) RetryAfter(now time.Time) int64 {
	return RetryAfterSeconds(r.ResetTime, now)
}

// RetryAfterSeconds returns ceil((reset-now)/1s), never negative.
func RetryAfterSeconds(reset, now time.Time) int64 {
	ms := reset.Sub(now).Milliseconds()
	if ms <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(ms) / 1000))
}

// LimitCheck describes one check requested by a caller.
type LimitCheck struct {
	Key       string              `json:"key"`
	LimitType constants.LimitType `json:"limit_type"`
	Context   MultiplierContext   `json:"context"`
}

// CheckFailure pairs a failing result with the check that produced it.
type CheckFailure struct {
	Check  LimitCheck  `json:"check"`
	Result CheckResult `json:"result"`
}

// MultiCheckResult aggregates checkMultipleLimits; Failures keeps input order.
type MultiCheckResult struct {
	Allowed  bool           `json:"allowed"`
	Results  []CheckResult  `json:"results"`
	Failures []CheckFailure `json:"failures"`
}

// FirstFailure returns the first failing check in input order.
func (m *MultiCheckResult) FirstFailure() (*CheckFailure, bool) {
	if len(m.Failures) == 0 {
		return nil, false
	}
	return &m.Failures[0], true
}

// ================================================================================
// Monitoring Snapshots
// ================================================================================

// Status is a read-only snapshot of one (key, limitType) pair.
type Status struct {
	Key            string              `json:"key"`
	LimitType      constants.LimitType `json:"limit_type"`
	Current        int64               `json:"current"`
	Limit          int64               `json:"limit"`
	Remaining      int64               `json:"remaining"`
	Blocked        bool                `json:"blocked"`
	BlockTTL       int64               `json:"block_ttl_seconds"`
	WindowTTL      int64               `json:"window_ttl_seconds"`
	WindowDuration int64               `json:"window_duration_seconds"`
}

// BlockDescriptor describes an active block parsed from its key.
type BlockDescriptor struct {
	Key           string `json:"key"`
	LimitType     string `json:"limit_type"`
	Identifier    string `json:"identifier"`
	TimeRemaining int64  `json:"time_remaining"`
}

// SystemMetrics is a point-in-time copy of the process-local counters.
type SystemMetrics struct {
	TotalOperations     int64   `json:"total_operations"`
	FailedOperations    int64   `json:"failed_operations"`
	ConsecutiveFailures int64   `json:"consecutive_failures"`
	RedisFailureRate    float64 `json:"redis_failure_rate"`
}

// SystemStatus is the admin view of the local process guard state.
type SystemStatus struct {
	CircuitState    string        `json:"circuit_state"`
	CircuitFailures uint32        `json:"circuit_failures"`
	Metrics         SystemMetrics `json:"metrics"`
	BypassActive    bool          `json:"bypass_active"`
	BypassReason    string        `json:"bypass_reason,omitempty"`
}

// CleanupReport summarizes a maintenance sweep.
type CleanupReport struct {
	Scanned int   `json:"scanned"`
	Trimmed int64 `json:"trimmed"`
	Deleted int   `json:"deleted"`
}

// BlockEvent is published when a block is set.
type BlockEvent struct {
	LimitType    string    `json:"limit_type"`
	Key          string    `json:"key"`
	Reason       string    `json:"reason"`
	BlockSeconds int64     `json:"block_seconds"`
	Count        int64     `json:"count"`
	OccurredAt   time.Time `json:"occurred_at"`
}

//Personal.AI order the ending
