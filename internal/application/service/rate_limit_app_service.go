// Package service provides application-level services that orchestrate domain services and infrastructure
package service

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/renewguard/internal/config"
	"github.com/turtacn/renewguard/internal/domain/models"
	domainService "github.com/turtacn/renewguard/internal/domain/service"
	"github.com/turtacn/renewguard/internal/infrastructure/ratelimit"
	"github.com/turtacn/renewguard/pkg/constants"
	"github.com/turtacn/renewguard/pkg/logger"
)

var _ domainService.RateLimitService = (*RateLimitAppService)(nil)

const (
	bypassReasonConfigured = "configured"
	bypassReasonGlobal     = "global_flag"
	globalBypassCacheKey   = "global"
	publishTimeout         = 5 * time.Second
)

// RateLimiterOptions controls the facade's degradation behavior.
type RateLimiterOptions struct {
	// FailOpen admits requests whose check failed on the store or breaker.
	FailOpen bool
	// Bypass disables enforcement entirely.
	Bypass bool
	// GlobalBypass publishes an emergency bypass to the shared store and
	// honors flags published by other instances.
	GlobalBypass     bool
	GlobalBypassTTL  time.Duration
	GlobalBypassPoll time.Duration
	// StoreTimeout bounds the store work of a single check. Checks run on a
	// context detached from the request, so a client disconnect cannot abort them.
	StoreTimeout time.Duration
}

// DefaultRateLimiterOptions fails open with no fleet-wide coordination.
func DefaultRateLimiterOptions() RateLimiterOptions {
	return RateLimiterOptions{
		FailOpen:         true,
		GlobalBypassTTL:  constants.GlobalBypassTTL,
		GlobalBypassPoll: constants.GlobalBypassPollInterval,
		StoreTimeout:     constants.StoreOperationTimeout,
	}
}

// OptionsFromConfig maps the rate_limit section onto facade options.
func OptionsFromConfig(cfg config.RateLimitConfig) RateLimiterOptions {
	return RateLimiterOptions{
		FailOpen:         cfg.FailOpen,
		Bypass:           cfg.Bypass,
		GlobalBypass:     cfg.Emergency.PublishGlobal,
		GlobalBypassTTL:  cfg.Emergency.GlobalTTL,
		GlobalBypassPoll: cfg.Emergency.GlobalPoll,
	}
}

// RateLimiterDeps are the collaborators of the facade. Resolver, Store and
// Logger are required; the rest default to production or no-op values.
type RateLimiterDeps struct {
	Resolver  *domainService.ConfigResolver
	Store     domainService.CounterStore
	Breaker   *ratelimit.CircuitBreaker
	Emergency *ratelimit.EmergencyController
	Tracker   *ratelimit.MetricsTracker
	Publisher domainService.BlockEventPublisher
	Metrics   domainService.Metrics
	Clock     domainService.Clock
	Tracer    trace.Tracer
	Logger    logger.Logger
}

// RateLimitAppService is the rate limiter facade. Breaker, emergency state
// and operation counters belong to this instance and are never shared.
type RateLimitAppService struct {
	resolver  *domainService.ConfigResolver
	store     domainService.CounterStore
	breaker   *ratelimit.CircuitBreaker
	emergency *ratelimit.EmergencyController
	tracker   *ratelimit.MetricsTracker
	publisher domainService.BlockEventPublisher
	metrics   domainService.Metrics
	clock     domainService.Clock
	tracer    trace.Tracer
	logger    logger.Logger
	opts      RateLimiterOptions

	globalFlag *cache.Cache
	pending    sync.WaitGroup
}

// NewRateLimitAppService creates the facade.
func NewRateLimitAppService(deps RateLimiterDeps, opts RateLimiterOptions) *RateLimitAppService {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoopLogger()
	}
	log = log.WithComponent("rate_limiter")

	metrics := deps.Metrics
	if metrics == nil {
		metrics = domainService.NoopMetrics{}
	}
	if deps.Breaker == nil {
		deps.Breaker = ratelimit.NewCircuitBreaker(ratelimit.DefaultCircuitBreakerConfig(), log, metrics)
	}
	if deps.Emergency == nil {
		deps.Emergency = ratelimit.NewEmergencyController(ratelimit.DefaultEmergencyConfig(), log, metrics)
	}
	if deps.Tracker == nil {
		deps.Tracker = ratelimit.NewMetricsTracker()
	}
	if deps.Publisher == nil {
		deps.Publisher = noopPublisher{}
	}
	if deps.Clock == nil {
		deps.Clock = domainService.SystemClock{}
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(constants.ServiceName)
	}

	def := DefaultRateLimiterOptions()
	if opts.GlobalBypassTTL <= 0 {
		opts.GlobalBypassTTL = def.GlobalBypassTTL
	}
	if opts.GlobalBypassPoll <= 0 {
		opts.GlobalBypassPoll = def.GlobalBypassPoll
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = def.StoreTimeout
	}

	return &RateLimitAppService{
		resolver:   deps.Resolver,
		store:      deps.Store,
		breaker:    deps.Breaker,
		emergency:  deps.Emergency,
		tracker:    deps.Tracker,
		publisher:  deps.Publisher,
		metrics:    metrics,
		clock:      deps.Clock,
		tracer:     deps.Tracer,
		logger:     log,
		opts:       opts,
		globalFlag: cache.New(opts.GlobalBypassPoll, 2*opts.GlobalBypassPoll),
	}
}

// CheckLimit runs the sliding-window check for (key, limitType).
func (s *RateLimitAppService) CheckLimit(ctx context.Context, key string, limitType constants.LimitType, mctx models.MultiplierContext) (models.CheckResult, error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "ratelimit.CheckLimit", trace.WithAttributes(
		attribute.String("limit_type", string(limitType)),
	))
	defer span.End()
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	if active, _ := s.bypassState(ctx); active {
		result := models.CheckResult{
			Outcome:   models.OutcomeBypassed,
			Allowed:   true,
			Bypassed:  true,
			LimitType: limitType,
			Key:       key,
		}
		s.observe(span, result, started)
		return result, nil
	}

	policy, err := s.resolver.Resolve(limitType, mctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown limit type")
		return models.CheckResult{}, err
	}

	now := s.clock.Now()
	res, err := s.breaker.Execute(func() (interface{}, error) {
		return s.evaluateWindow(ctx, key, policy, now)
	})
	if err != nil {
		s.onStoreFailure(ctx, err, limitType)
		result := models.CheckResult{
			Outcome:   models.OutcomeStoreError,
			Allowed:   s.opts.FailOpen,
			LimitType: limitType,
			Key:       key,
			Limit:     policy.Points,
			Remaining: policy.Points,
			ResetTime: now,
			Policy:    policy,
			Err:       err,
		}
		span.RecordError(err)
		s.observe(span, result, started)
		return result, nil
	}

	s.tracker.RecordSuccess()
	result := res.(models.CheckResult)
	s.observe(span, result, started)
	return result, nil
}

// evaluateWindow is the block check, the atomic record-and-count and the
// threshold comparison. It runs inside the circuit breaker.
func (s *RateLimitAppService) evaluateWindow(ctx context.Context, key string, policy *models.EffectivePolicy, now time.Time) (models.CheckResult, error) {
	windowKey := WindowKey(policy.LimitType, key)
	blockKey := BlockKey(string(policy.LimitType), key)

	blocked, err := s.store.IsBlocked(ctx, blockKey)
	if err != nil {
		return models.CheckResult{}, err
	}
	if blocked {
		ttl, err := s.store.RemainingBlockSeconds(ctx, blockKey)
		if err != nil {
			return models.CheckResult{}, err
		}
		if ttl < 0 {
			ttl = 0
		}
		return models.CheckResult{
			Outcome:   models.OutcomeDenied,
			Reason:    models.ReasonBlocked,
			LimitType: policy.LimitType,
			Key:       key,
			Limit:     policy.Points,
			ResetTime: now.Add(time.Duration(ttl) * time.Second),
			Policy:    policy,
		}, nil
	}

	count, err := s.store.RecordAndCount(ctx, windowKey, now, policy.Duration)
	if err != nil {
		return models.CheckResult{}, err
	}

	if count > policy.Points {
		if err := s.store.SetBlock(ctx, blockKey, policy.BlockDuration); err != nil {
			return models.CheckResult{}, err
		}
		s.onBlockSet(ctx, models.BlockEvent{
			LimitType:    string(policy.LimitType),
			Key:          key,
			Reason:       string(constants.DenialCodeRateLimited),
			BlockSeconds: int64(policy.BlockDuration / time.Second),
			Count:        count,
			OccurredAt:   now,
		})
		return models.CheckResult{
			Outcome:   models.OutcomeDenied,
			Reason:    models.ReasonRateLimited,
			LimitType: policy.LimitType,
			Key:       key,
			Current:   count,
			Limit:     policy.Points,
			ResetTime: now.Add(policy.BlockDuration),
			Policy:    policy,
		}, nil
	}

	remaining := policy.Points - count
	if remaining < 0 {
		remaining = 0
	}
	return models.CheckResult{
		Outcome:   models.OutcomeAllowed,
		Allowed:   true,
		LimitType: policy.LimitType,
		Key:       key,
		Current:   count,
		Limit:     policy.Points,
		Remaining: remaining,
		ResetTime: now.Add(policy.Duration),
		Policy:    policy,
	}, nil
}

// CheckMultipleLimits evaluates every check concurrently. Failures keep input order.
func (s *RateLimitAppService) CheckMultipleLimits(ctx context.Context, checks []models.LimitCheck) (models.MultiCheckResult, error) {
	results := make([]models.CheckResult, len(checks))

	// A plain group: one unknown limit type must not cancel sibling store
	// calls, which would be counted as store failures.
	var g errgroup.Group
	for i, check := range checks {
		i, check := i, check
		g.Go(func() error {
			res, err := s.CheckLimit(ctx, check.Key, check.LimitType, check.Context)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.MultiCheckResult{}, err
	}

	out := models.MultiCheckResult{Allowed: true, Results: results, Failures: []models.CheckFailure{}}
	for i, res := range results {
		if !res.Allowed {
			out.Allowed = false
			out.Failures = append(out.Failures, models.CheckFailure{Check: checks[i], Result: res})
		}
	}
	return out, nil
}

// CheckFailureBlock reports whether a failure-pattern block is active for key.
// Store errors fail open.
func (s *RateLimitAppService) CheckFailureBlock(ctx context.Context, key string) (bool, time.Time) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	now := s.clock.Now()
	if active, _ := s.bypassState(ctx); active {
		return false, now
	}

	blockKey := BlockKey(constants.FailureBlockType, key)
	res, err := s.breaker.Execute(func() (interface{}, error) {
		blocked, err := s.store.IsBlocked(ctx, blockKey)
		if err != nil || !blocked {
			return int64(0), err
		}
		return s.store.RemainingBlockSeconds(ctx, blockKey)
	})
	if err != nil {
		s.metrics.RecordStoreFailure()
		s.logger.Warn(ctx, "Failure block lookup failed, allowing request", logger.Fields{
			"key":   key,
			"error": err.Error(),
		})
		return false, now
	}

	ttl := res.(int64)
	if ttl <= 0 {
		return false, now
	}
	return true, now.Add(time.Duration(ttl) * time.Second)
}

// RecordFailure appends to the failure log of (operation, key) and blocks key
// once the failedOperations threshold is reached. Errors are logged, never returned.
func (s *RateLimitAppService) RecordFailure(ctx context.Context, key string, operation constants.Operation, reason string) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	if active, _ := s.bypassState(ctx); active {
		return
	}

	policy, err := s.resolver.BasePolicy(constants.LimitTypeFailedOperations)
	if err != nil {
		s.logger.Error(ctx, "No failedOperations policy configured", err)
		return
	}

	now := s.clock.Now()
	failKey := FailureKey(operation, key)
	res, err := s.breaker.Execute(func() (interface{}, error) {
		count, err := s.store.RecordAndCount(ctx, failKey, now, constants.FailureLogRetention)
		if err != nil {
			return nil, err
		}
		if count >= policy.Points {
			if err := s.store.SetBlock(ctx, BlockKey(constants.FailureBlockType, key), policy.BlockDuration); err != nil {
				return nil, err
			}
		}
		return count, nil
	})
	if err != nil {
		s.metrics.RecordStoreFailure()
		s.logger.Warn(ctx, "Failed to record operation failure", logger.Fields{
			"key":       key,
			"operation": string(operation),
			"reason":    reason,
			"error":     err.Error(),
		})
		return
	}

	count := res.(int64)
	fields := logger.Fields{"key": key, "operation": string(operation), "reason": reason, "count": count}
	if count < policy.Points {
		s.logger.Debug(ctx, "Operation failure recorded", fields)
		return
	}

	s.logger.Warn(ctx, "Failure threshold reached, identifier blocked", fields)
	s.onBlockSet(ctx, models.BlockEvent{
		LimitType:    constants.FailureBlockType,
		Key:          key,
		Reason:       string(constants.DenialCodeSuspiciousActivity),
		BlockSeconds: int64(policy.BlockDuration / time.Second),
		Count:        count,
		OccurredAt:   now,
	})
}

// GetStatus returns a read-only snapshot of (key, limitType) under the base policy.
func (s *RateLimitAppService) GetStatus(ctx context.Context, key string, limitType constants.LimitType) (*models.Status, error) {
	policy, err := s.resolver.BasePolicy(limitType)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	windowKey := WindowKey(limitType, key)
	blockKey := BlockKey(string(limitType), key)

	count, err := s.store.CountWindow(ctx, windowKey, now, policy.Duration)
	if err != nil {
		return nil, err
	}
	blocked, err := s.store.IsBlocked(ctx, blockKey)
	if err != nil {
		return nil, err
	}
	status := &models.Status{
		Key:            key,
		LimitType:      limitType,
		Current:        count,
		Limit:          policy.Points,
		Remaining:      max(0, policy.Points-count),
		Blocked:        blocked,
		WindowDuration: int64(policy.Duration / time.Second),
	}
	if blocked {
		if status.BlockTTL, err = s.store.RemainingBlockSeconds(ctx, blockKey); err != nil {
			return nil, err
		}
	}
	if status.WindowTTL, err = s.store.RemainingBlockSeconds(ctx, windowKey); err != nil {
		return nil, err
	}
	return status, nil
}

// ResetLimit deletes the window and block keys of (key, limitType). The
// "failures" type clears the failure block and every failure log of key.
func (s *RateLimitAppService) ResetLimit(ctx context.Context, key string, limitType constants.LimitType) bool {
	var keys []string
	switch {
	case string(limitType) == constants.FailureBlockType:
		keys = append(keys, BlockKey(constants.FailureBlockType, key))
		for _, op := range []constants.Operation{constants.OperationRenewal, constants.OperationPaymentVerification} {
			keys = append(keys, FailureKey(op, key))
		}
	case limitType.IsValid():
		keys = append(keys, WindowKey(limitType, key), BlockKey(string(limitType), key))
	default:
		s.logger.Warn(ctx, "Reset requested for unknown limit type", logger.Fields{"limit_type": string(limitType)})
		return false
	}

	if err := s.store.DeleteKeys(ctx, keys...); err != nil {
		s.logger.Error(ctx, "Failed to reset rate limit", err, logger.Fields{"key": key, "limit_type": string(limitType)})
		return false
	}
	s.logger.Info(ctx, "Rate limit reset", logger.Fields{"key": key, "limit_type": string(limitType)})
	return true
}

// GetActiveBlocks lists every block with a positive remaining TTL, sorted by key.
func (s *RateLimitAppService) GetActiveBlocks(ctx context.Context) ([]models.BlockDescriptor, error) {
	keys, err := s.store.ListKeysByPrefix(ctx, constants.KeyPrefixBlocked)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)

	blocks := make([]models.BlockDescriptor, 0, len(keys))
	for _, k := range keys {
		limitType, identifier, ok := ParseBlockKey(k)
		if !ok {
			continue
		}
		ttl, err := s.store.RemainingBlockSeconds(ctx, k)
		if err != nil {
			return nil, err
		}
		if ttl <= 0 {
			continue
		}
		blocks = append(blocks, models.BlockDescriptor{
			Key:           k,
			LimitType:     limitType,
			Identifier:    identifier,
			TimeRemaining: ttl,
		})
	}
	return blocks, nil
}

// Cleanup trims window and failure-log entries older than the retention, or
// than the longest configured window if that is longer, and counts the sets
// that became empty.
func (s *RateLimitAppService) Cleanup(ctx context.Context) (models.CleanupReport, error) {
	var report models.CleanupReport

	windows, err := s.store.ListKeysByPrefix(ctx, constants.KeyPrefixRateLimit)
	if err != nil {
		return report, err
	}
	failures, err := s.store.ListKeysByPrefix(ctx, constants.KeyPrefixFailures)
	if err != nil {
		return report, err
	}

	retention := max(constants.CleanupRetention, s.resolver.LongestWindow())
	cutoff := s.clock.Now().Add(-retention)
	var firstErr error
	for _, k := range append(windows, failures...) {
		if strings.HasPrefix(k, constants.KeyPrefixBlocked) || strings.HasPrefix(k, constants.KeyPrefixBypass) {
			continue
		}
		report.Scanned++
		removed, remaining, err := s.store.TrimBefore(ctx, k, cutoff)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.logger.Warn(ctx, "Cleanup failed for key", logger.Fields{"key": k, "error": err.Error()})
			continue
		}
		report.Trimmed += removed
		if removed > 0 && remaining == 0 {
			report.Deleted++
		}
	}

	s.metrics.RecordCleanup(report.Trimmed, report.Deleted)
	s.logger.Info(ctx, "Rate limit cleanup finished", logger.Fields{
		"scanned": report.Scanned,
		"trimmed": report.Trimmed,
		"deleted": report.Deleted,
	})
	return report, firstErr
}

// SystemStatus reports the process-local guard state.
func (s *RateLimitAppService) SystemStatus(ctx context.Context) models.SystemStatus {
	active, reason := s.bypassState(ctx)
	return models.SystemStatus{
		CircuitState:    s.breaker.StateName(),
		CircuitFailures: s.breaker.Failures(),
		Metrics:         s.tracker.Snapshot(),
		BypassActive:    active,
		BypassReason:    reason,
	}
}

// Close waits for in-flight block events and closes the publisher.
func (s *RateLimitAppService) Close() error {
	s.pending.Wait()
	return s.publisher.Close()
}

// storeContext detaches ctx from the caller's cancellation and bounds it by
// StoreTimeout. Trace and request values are kept.
func (s *RateLimitAppService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.opts.StoreTimeout)
}

// bypassState reports whether enforcement is off and why.
func (s *RateLimitAppService) bypassState(ctx context.Context) (bool, string) {
	if s.opts.Bypass {
		return true, bypassReasonConfigured
	}
	if s.emergency.Active() {
		reason, _ := s.emergency.Reason()
		return true, reason
	}
	if s.opts.GlobalBypass && s.globalBypassSet(ctx) {
		return true, bypassReasonGlobal
	}
	return false, ""
}

// globalBypassSet reads the fleet-wide flag at most once per poll interval.
// Read errors count as "not set".
func (s *RateLimitAppService) globalBypassSet(ctx context.Context) bool {
	if v, ok := s.globalFlag.Get(globalBypassCacheKey); ok {
		return v.(bool)
	}
	_, found, err := s.store.GetFlag(ctx, constants.KeyGlobalBypass)
	if err != nil {
		s.logger.Debug(ctx, "Global bypass flag unreadable", logger.Fields{"error": err.Error()})
		found = false
	}
	s.globalFlag.Set(globalBypassCacheKey, found, cache.DefaultExpiration)
	return found
}

// onStoreFailure updates the process counters and may trip the emergency bypass.
func (s *RateLimitAppService) onStoreFailure(ctx context.Context, err error, limitType constants.LimitType) {
	if stderrors.Is(err, context.Canceled) {
		s.logger.Debug(ctx, "Rate limit check cancelled", logger.Fields{"limit_type": string(limitType)})
		return
	}
	s.metrics.RecordStoreFailure()
	snapshot := s.tracker.RecordFailure()
	s.logger.Warn(ctx, "Rate limit check failed on shared store", logger.Fields{
		"limit_type":           string(limitType),
		"error":                err.Error(),
		"consecutive_failures": snapshot.ConsecutiveFailures,
		"failure_rate":         snapshot.RedisFailureRate,
		"fail_open":            s.opts.FailOpen,
	})

	if !s.emergency.Evaluate(ctx, snapshot) || !s.opts.GlobalBypass {
		return
	}
	reason, _ := s.emergency.Reason()
	s.globalFlag.Set(globalBypassCacheKey, true, s.opts.GlobalBypassTTL)
	if err := s.store.SetFlag(ctx, constants.KeyGlobalBypass, reason, s.opts.GlobalBypassTTL); err != nil {
		s.logger.Warn(ctx, "Could not publish global bypass flag", logger.Fields{"error": err.Error()})
	}
}

// onBlockSet records and asynchronously publishes a block event.
func (s *RateLimitAppService) onBlockSet(ctx context.Context, event models.BlockEvent) {
	s.metrics.RecordBlock(event.LimitType)
	s.logger.Info(ctx, "Block set", logger.Fields{
		"limit_type":    event.LimitType,
		"key":           event.Key,
		"reason":        event.Reason,
		"block_seconds": event.BlockSeconds,
	})

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := s.publisher.Publish(pctx, event); err != nil {
			s.logger.Warn(pctx, "Block event not published", logger.Fields{"error": err.Error()})
		}
	}()
}

func (s *RateLimitAppService) observe(span trace.Span, result models.CheckResult, started time.Time) {
	outcome := result.Outcome.String()
	span.SetAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("allowed", result.Allowed),
	)
	s.metrics.RecordCheck(string(result.LimitType), outcome, time.Since(started))
}

// ================================================================================
// Key Schema
// ================================================================================

// WindowKey returns ratelimit:{limitType}:{key}.
func WindowKey(limitType constants.LimitType, key string) string {
	return constants.KeyPrefixRateLimit + string(limitType) + ":" + key
}

// BlockKey returns ratelimit:blocked:{limitType}:{key}.
func BlockKey(limitType, key string) string {
	return constants.KeyPrefixBlocked + limitType + ":" + key
}

// FailureKey returns failures:{operation}:{key}.
func FailureKey(operation constants.Operation, key string) string {
	return constants.KeyPrefixFailures + string(operation) + ":" + key
}

// ParseBlockKey splits ratelimit:blocked:{limitType}:{identifier}. The
// identifier may itself contain colons.
func ParseBlockKey(k string) (limitType, identifier string, ok bool) {
	rest, found := strings.CutPrefix(k, constants.KeyPrefixBlocked)
	if !found {
		return "", "", false
	}
	limitType, identifier, found = strings.Cut(rest, ":")
	if !found || limitType == "" || identifier == "" {
		return "", "", false
	}
	return limitType, identifier, true
}

// noopPublisher is used when no publisher is wired.
type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, models.BlockEvent) error { return nil }
func (noopPublisher) Close() error                                     { return nil }

//Personal.AI order the ending
