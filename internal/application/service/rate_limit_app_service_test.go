package service_test

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/renewguard/internal/application/service"
	"github.com/turtacn/renewguard/internal/domain/models"
	domainService "github.com/turtacn/renewguard/internal/domain/service"
	"github.com/turtacn/renewguard/internal/infrastructure/ratelimit"
	"github.com/turtacn/renewguard/pkg/constants"
	"github.com/turtacn/renewguard/pkg/errors"
	"github.com/turtacn/renewguard/pkg/logger"
)

// ================================================================================
// Fixtures
// ================================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []models.BlockEvent
}

func (p *capturingPublisher) Publish(_ context.Context, e models.BlockEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func (p *capturingPublisher) Events() []models.BlockEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.BlockEvent(nil), p.events...)
}

// failingStore fails every call and counts invocations.
type failingStore struct {
	calls atomic.Int64
}

func (f *failingStore) fail(op string) error {
	f.calls.Add(1)
	return errors.ErrStoreUnavailable(op, stderrors.New("connection refused"))
}

func (f *failingStore) RecordAndCount(context.Context, string, time.Time, time.Duration) (int64, error) {
	return 0, f.fail("record")
}
func (f *failingStore) CountWindow(context.Context, string, time.Time, time.Duration) (int64, error) {
	return 0, f.fail("count")
}
func (f *failingStore) SetBlock(context.Context, string, time.Duration) error { return f.fail("block") }
func (f *failingStore) IsBlocked(context.Context, string) (bool, error)      { return false, f.fail("exists") }
func (f *failingStore) RemainingBlockSeconds(context.Context, string) (int64, error) {
	return 0, f.fail("ttl")
}
func (f *failingStore) DeleteKeys(context.Context, ...string) error { return f.fail("del") }
func (f *failingStore) ListKeysByPrefix(context.Context, string) ([]string, error) {
	return nil, f.fail("scan")
}
func (f *failingStore) TrimBefore(context.Context, string, time.Time) (int64, int64, error) {
	return 0, 0, f.fail("trim")
}
func (f *failingStore) SetFlag(context.Context, string, string, time.Duration) error {
	return f.fail("set")
}
func (f *failingStore) GetFlag(context.Context, string) (string, bool, error) {
	return "", false, f.fail("get")
}

func testPolicies() models.PolicySet {
	return models.PolicySet{
		Base: map[constants.LimitType]models.LimitPolicy{
			constants.LimitTypeRenewal:               {Points: 3, Duration: 5 * time.Second, BlockDuration: time.Minute},
			constants.LimitTypeRenewalIP:             {Points: 10, Duration: time.Hour, BlockDuration: 30 * time.Minute},
			constants.LimitTypePaymentVerification:   {Points: 5, Duration: 15 * time.Minute, BlockDuration: 30 * time.Minute},
			constants.LimitTypePaymentVerificationIP: {Points: 20, Duration: 15 * time.Minute, BlockDuration: 15 * time.Minute},
			constants.LimitTypeFailedOperations:      {Points: 5, Duration: time.Hour, BlockDuration: 2 * time.Minute},
		},
		Environments: map[constants.Environment]float64{constants.EnvironmentProduction: 1},
		Tiers: map[constants.UserTier]models.TierPolicy{
			constants.UserTierStandard: {Multiplier: 1},
		},
		Time: models.TimeMultipliers{PeakStart: 9, PeakEnd: 18, Peak: 1, OffPeak: 1, Weekend: 1},
		Geo:  models.GeoMultipliers{Domestic: 1, International: 1},
	}
}

var standardCtx = models.MultiplierContext{
	Environment: constants.EnvironmentProduction,
	UserType:    constants.UserTierStandard,
	CurrentHour: 12,
}

type fixture struct {
	svc       *service.RateLimitAppService
	store     *ratelimit.RedisCounterStore
	mr        *miniredis.Miniredis
	clock     *fakeClock
	publisher *capturingPublisher
}

// advance moves both the limiter clock and the store's TTL clock.
func (f *fixture) advance(d time.Duration) {
	f.clock.Advance(d)
	f.mr.FastForward(d)
}

func newFixture(t *testing.T, opts service.RateLimiterOptions) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	log := logger.NewNoopLogger()
	store := ratelimit.NewRedisCounterStore(client, log)
	clock := &fakeClock{now: time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)}
	pub := &capturingPublisher{}

	svc := service.NewRateLimitAppService(service.RateLimiterDeps{
		Resolver:  domainService.NewConfigResolver(testPolicies()),
		Store:     store,
		Publisher: pub,
		Clock:     clock,
		Logger:    log,
	}, opts)
	t.Cleanup(func() { _ = svc.Close() })

	return &fixture{svc: svc, store: store, mr: mr, clock: clock, publisher: pub}
}

func check(t *testing.T, f *fixture, key string) models.CheckResult {
	t.Helper()
	res, err := f.svc.CheckLimit(context.Background(), key, constants.LimitTypeRenewal, standardCtx)
	require.NoError(t, err)
	return res
}

// ================================================================================
// CheckLimit
// ================================================================================

func TestCheckLimit_SlidingWindowThenBlock(t *testing.T) {
	f := newFixture(t, service.DefaultRateLimiterOptions())

	for i := int64(1); i <= 3; i++ {
		res := check(t, f, "hospital-1")
		assert.True(t, res.Allowed)
		assert.Equal(t, models.OutcomeAllowed, res.Outcome)
		assert.Equal(t, i, res.Current)
		assert.Equal(t, 3-i, res.Remaining)
		assert.Equal(t, int64(3), res.Limit)
	}

	res := check(t, f, "hospital-1")
	assert.False(t, res.Allowed)
	assert.Equal(t, models.ReasonRateLimited, res.Reason)
	assert.Equal(t, int64(4), res.Current)
	assert.Equal(t, int64(60), res.RetryAfter(f.clock.Now()))
	assert.True(t, f.mr.Exists(service.BlockKey("renewal", "hospital-1")))

	// the block outlives the window entries
	f.advance(6 * time.Second)
	assert.False(t, f.mr.Exists(service.WindowKey(constants.LimitTypeRenewal, "hospital-1")))
	res = check(t, f, "hospital-1")
	assert.False(t, res.Allowed)
	assert.Equal(t, models.ReasonBlocked, res.Reason)
	assert.Equal(t, int64(54), res.RetryAfter(f.clock.Now()))

	f.advance(55 * time.Second)
	res = check(t, f, "hospital-1")
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(1), res.Current)
}

func TestCheckLimit_BlockedChecksDoNotCount(t *testing.T) {
	f := newFixture(t, service.DefaultRateLimiterOptions())
	windowKey := service.WindowKey(constants.LimitTypeRenewal, "hospital-2")

	for i := 0; i < 4; i++ {
		check(t, f, "hospital-2")
	}
	before, err := f.mr.ZMembers(windowKey)
	require.NoError(t, err)
	require.Len(t, before, 4)

	for i := 0; i < 5; i++ {
		res := check(t, f, "hospital-2")
		assert.Equal(t, models.ReasonBlocked, res.Reason)
	}
	after, err := f.mr.ZMembers(windowKey)
	require.NoError(t, err)
	assert.Len(t, after, 4)
}

func TestCheckLimit_ConcurrentRequestsAdmitExactlyPoints(t *testing.T) {
	f := newFixture(t, service.DefaultRateLimiterOptions())
	const n = 25

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.CheckLimit(context.Background(), "hospital-3", constants.LimitTypeRenewal, standardCtx)
			if err == nil && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3), allowed.Load())
}

func TestCheckLimit_PublishesBlockEvent(t *testing.T) {
	f := newFixture(t, service.DefaultRateLimiterOptions())

	for i := 0; i < 4; i++ {
		check(t, f, "hospital-4")
	}
	require.NoError(t, f.svc.Close())

	events := f.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "renewal", events[0].LimitType)
	assert.Equal(t, "hospital-4", events[0].Key)
	assert.Equal(t, "RATE_LIMITED", events[0].Reason)
	assert.Equal(t, int64(60), events[0].BlockSeconds)
	assert.Equal(t, int64(4), events[0].Count)
}

func TestCheckLimit_UnknownLimitType(t *testing.T) {
	f := newFixture(t, service.DefaultRateLimiterOptions())

	_, err := f.svc.CheckLimit(context.Background(), "k", constants.LimitType("bogus"), standardCtx)
	require.Error(t, err)
	assert.True(t, errors.IsUnknownLimitType(err))
}

func TestCheckLimit_ConfiguredBypassSkipsStore(t *testing.T) {
	opts := service.DefaultRateLimiterOptions()
	opts.Bypass = true
	f := newFixture(t, opts)

	for i := 0; i < 10; i++ {
		res := check(t, f, "hospital-5")
		assert.True(t, res.Allowed)
		assert.True(t, res.Bypassed)
		assert.Equal(t, models.OutcomeBypassed, res.Outcome)
	}
	assert.Empty(t, f.mr.Keys())

	status := f.svc.SystemStatus(context.Background())
	assert.True(t, status.BypassActive)
	assert.Equal(t, "configured", status.BypassReason)
}

func TestCheckLimit_GlobalBypassFlag(t *testing.T) {
	opts := service.DefaultRateLimiterOptions()
	opts.GlobalBypass = true
	f := newFixture(t, opts)

	require.NoError(t, f.mr.Set(constants.KeyGlobalBypass, "published by another instance"))

	res := check(t, f, "hospital-6")
	assert.True(t, res.Bypassed)
	assert.False(t, f.mr.Exists(service.WindowKey(constants.LimitTypeRenewal, "hospital-6")))
}

func TestCheckLimit_StoreFailureFailsOpenAndTripsBypass(t *testing.T) {
	store := &failingStore{}
	svc := service.NewRateLimitAppService(service.RateLimiterDeps{
		Resolver: domainService.NewConfigResolver(testPolicies()),
		Store:    store,
		Logger:   logger.NewNoopLogger(),
	}, service.DefaultRateLimiterOptions())
	ctx := context.Background()

	res, err := svc.CheckLimit(ctx, "hospital-7", constants.LimitTypeRenewal, standardCtx)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, models.OutcomeStoreError, res.Outcome)
	assert.True(t, errors.IsStoreFailure(res.Err))
	calls := store.calls.Load()

	// a single failure in a fresh process is a 100% failure rate
	status := svc.SystemStatus(ctx)
	assert.True(t, status.BypassActive)
	assert.Equal(t, int64(1), status.Metrics.FailedOperations)
	assert.Equal(t, 1.0, status.Metrics.RedisFailureRate)

	res, err = svc.CheckLimit(ctx, "hospital-7", constants.LimitTypeRenewal, standardCtx)
	require.NoError(t, err)
	assert.True(t, res.Bypassed)
	assert.Equal(t, calls, store.calls.Load(), "bypass must not touch the store")
}

func TestCheckLimit_CancelledCallerDoesNotTripBypass(t *testing.T) {
	f := newFixture(t, service.DefaultRateLimiterOptions())
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.svc.CheckLimit(cancelled, "hospital-c", constants.LimitTypeRenewal, standardCtx)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAllowed, res.Outcome)
	assert.Equal(t, int64(1), res.Current, "a disconnected client still consumes a point")

	f.svc.RecordFailure(cancelled, "10.0.0.9", constants.OperationRenewal, "http_402")
	failures, err := f.store.CountWindow(context.Background(),
		service.FailureKey(constants.OperationRenewal, "10.0.0.9"), f.clock.Now(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), failures)

	status := f.svc.SystemStatus(context.Background())
	assert.False(t, status.BypassActive)
	assert.Zero(t, status.Metrics.FailedOperations)
	assert.Equal(t, "CLOSED", status.CircuitState)

	check(t, f, "hospital-c")
	check(t, f, "hospital-c")
	res = check(t, f, "hospital-c")
	assert.False(t, res.Allowed)
	assert.False(t, res.Bypassed)
	assert.Equal(t, models.ReasonRateLimited, res.Reason)
}

func TestCheckLimit_FailClosedAndCircuitOpen(t *testing.T) {
	store := &failingStore{}
	log := logger.NewNoopLogger()
	opts := service.DefaultRateLimiterOptions()
	opts.FailOpen = false
	svc := service.NewRateLimitAppService(service.RateLimiterDeps{
		Resolver:  domainService.NewConfigResolver(testPolicies()),
		Store:     store,
		Emergency: ratelimit.NewEmergencyController(ratelimit.EmergencyConfig{FailureRateThreshold: 2, ConsecutiveFailures: 1000}, log, nil),
		Logger:    log,
	}, opts)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := svc.CheckLimit(ctx, "hospital-8", constants.LimitTypeRenewal, standardCtx)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, models.OutcomeStoreError, res.Outcome)
	}
	assert.Equal(t, "OPEN", svc.SystemStatus(ctx).CircuitState)

	calls := store.calls.Load()
	res, err := svc.CheckLimit(ctx, "hospital-8", constants.LimitTypeRenewal, standardCtx)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeStoreError, res.Outcome)
	assert.True(t, errors.IsStoreFailure(res.Err), "an open circuit is handled like a store failure")
	assert.Equal(t, calls, store.calls.Load())
	assert.Equal(t, int64(6), svc.SystemStatus(ctx).Metrics.ConsecutiveFailures)
}

// ================================================================================
// CheckMultipleLimits
// ================================================================================

func TestCheckMultipleLimits_FailuresInInputOrder(t *testing.T) {
	f := newFixture(t, service.DefaultRateLimiterOptions())
	ctx := context.Background()

	require.NoError(t, f.store.SetBlock(ctx, service.BlockKey("renewalIP", "10.0.0.2"), time.Minute))

	checks := []models.LimitCheck{
		{Key: "hospital-9", LimitType: constants.LimitTypeRenewal, Context: standardCtx},
		{Key: "10.0.0.2", LimitType: constants.LimitTypeRenewalIP, Context: standardCtx},
		{Key: "order-1", LimitType: constants.LimitTypePaymentVerification, Context: standardCtx},
	}
	out, err := f.svc.CheckMultipleLimits(ctx, checks)
	require.NoError(t, err)

	assert.False(t, out.Allowed)
	require.Len(t, out.Results, 3)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, checks[1], out.Failures[0].Check)
	assert.Equal(t, models.ReasonBlocked, out.Failures[0].Result.Reason)

	first, ok := out.FirstFailure()
	require.True(t, ok)
	assert.Equal(t, constants.LimitTypeRenewalIP, first.Result.LimitType)
}

func TestCheckMultipleLimits_AllPass(t *testing.T) {
	f := newFixture(t, service.DefaultRateLimiterOptions())

	out, err := f.svc.CheckMultipleLimits(context.Background(), []models.LimitCheck{
		{Key: "hospital-10", LimitType: constants.LimitTypeRenewal, Context: standardCtx},
		{Key: "10.0.0.3", LimitType: constants.LimitTypeRenewalIP, Context: standardCtx},
	})
	require.NoError(t, err)
	assert.True(t, out.Allowed)
	assert.Empty(t, out.Failures)
}

func TestCheckMultipleLimits_UnknownLimitType(t *testing.T) {
	f := newFixture(t, service.DefaultRateLimiterOptions())

	_, err := f.svc.CheckMultipleLimits(context.Background(), []models.LimitCheck{
		{Key: "hospital-11", LimitType: constants.LimitTypeRenewal, Context: standardCtx},
		{Key: "x", LimitType: "bogus", Context: standardCtx},
	})
	assert.True(t, errors.IsUnknownLimitType(err))
}

// ================================================================================
// Failure Tracking
// ================================================================================

func TestRecordFailure_BlocksAtThreshold(t *testing.T) {
	f := newFixture(t, service.DefaultRateLimiterOptions())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		f.svc.RecordFailure(ctx, "10.0.0.9", constants.OperationPaymentVerification, "status 402")
	}
	blocked, _ := f.svc.CheckFailureBlock(ctx, "10.0.0.9")
	assert.False(t, blocked)

	f.svc.RecordFailure(ctx, "10.0.0.9", constants.OperationPaymentVerification, "status 402")
	blocked, reset := f.svc.CheckFailureBlock(ctx, "10.0.0.9")
	assert.True(t, blocked)
	assert.Equal(t, int64(120), models.RetryAfterSeconds(reset, f.clock.Now()))

	members, err := f.mr.ZMembers(service.FailureKey(constants.OperationPaymentVerification, "10.0.0.9"))
	require.NoError(t, err)
	assert.Len(t, members, 5)

	require.NoError(t, f.svc.Close())
	events := f.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "failures", events[0].LimitType)
	assert.Equal(t, "SUSPICIOUS_ACTIVITY_BLOCKED", events[0].Reason)
}

func TestRecordFailure_OldFailuresExpire(t *testing.T) {
	f := newFixture(t, service.DefaultRateLimiterOptions())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		f.svc.RecordFailure(ctx, "10.0.0.10", constants.OperationRenewal, "status 403")
	}
	f.clock.Advance(time.Hour + time.Second)
	f.svc.RecordFailure(ctx, "10.0.0.10", constants.OperationRenewal, "status 403")

	blocked, _ := f.svc.CheckFailureBlock(ctx, "10.0.0.10")
	assert.False(t, blocked)
}

func TestCheckFailureBlock_StoreErrorFailsOpen(t *testing.T) {
	svc := service.NewRateLimitAppService(service.RateLimiterDeps{
		Resolver: domainService.NewConfigResolver(testPolicies()),
		Store:    &failingStore{},
		Logger:   logger.NewNoopLogger(),
	}, service.DefaultRateLimiterOptions())

	blocked, _ := svc.CheckFailureBlock(context.Background(), "10.0.0.11")
	assert.False(t, blocked)
}

// ================================================================================
// Administration
// ================================================================================

func TestGetStatus(t *testing.T) {
	f := newFixture(t, service.DefaultRateLimiterOptions())
	ctx := context.Background()

	check(t, f, "hospital-12")
	check(t, f, "hospital-12")

	status, err := f.svc.GetStatus(ctx, "hospital-12", constants.LimitTypeRenewal)
	require.NoError(t, err)
	assert.Equal(t, int64(2), status.Current)
	assert.Equal(t, int64(3), status.Limit)
	assert.Equal(t, int64(1), status.Remaining)
	assert.False(t, status.Blocked)
	assert.Equal(t, int64(5), status.WindowTTL)
	assert.Equal(t, int64(5), status.WindowDuration)

	check(t, f, "hospital-12")
	check(t, f, "hospital-12")
	status, err = f.svc.GetStatus(ctx, "hospital-12", constants.LimitTypeRenewal)
	require.NoError(t, err)
	assert.True(t, status.Blocked)
	assert.Equal(t, int64(60), status.BlockTTL)
	assert.Equal(t, int64(0), status.Remaining)

	_, err = f.svc.GetStatus(ctx, "hospital-12", "bogus")
	assert.True(t, errors.IsUnknownLimitType(err))
}

func TestResetLimit_ForgetsKey(t *testing.T) {
	f := newFixture(t, service.DefaultRateLimiterOptions())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		check(t, f, "hospital-13")
	}
	require.False(t, check(t, f, "hospital-13").Allowed)

	assert.True(t, f.svc.ResetLimit(ctx, "hospital-13", constants.LimitTypeRenewal))
	res := check(t, f, "hospital-13")
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(1), res.Current)

	assert.False(t, f.svc.ResetLimit(ctx, "hospital-13", "bogus"))
}

func TestResetLimit_FailureBlock(t *testing.T) {
	f := newFixture(t, service.DefaultRateLimiterOptions())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.svc.RecordFailure(ctx, "10.0.0.12", constants.OperationRenewal, "status 400")
	}
	blocked, _ := f.svc.CheckFailureBlock(ctx, "10.0.0.12")
	require.True(t, blocked)

	assert.True(t, f.svc.ResetLimit(ctx, "10.0.0.12", constants.FailureBlockType))
	blocked, _ = f.svc.CheckFailureBlock(ctx, "10.0.0.12")
	assert.False(t, blocked)
	assert.False(t, f.mr.Exists(service.FailureKey(constants.OperationRenewal, "10.0.0.12")))
}

func TestGetActiveBlocks(t *testing.T) {
	f := newFixture(t, service.DefaultRateLimiterOptions())
	ctx := context.Background()

	require.NoError(t, f.store.SetBlock(ctx, service.BlockKey("renewal", "hospital-14"), 30*time.Second))
	require.NoError(t, f.store.SetBlock(ctx, service.BlockKey("renewalIP", "2001:db8::1"), 2*time.Minute))
	require.NoError(t, f.mr.Set(service.BlockKey("renewal", "no-ttl"), "1"))

	f.advance(31 * time.Second)

	blocks, err := f.svc.GetActiveBlocks(ctx)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "renewalIP", blocks[0].LimitType)
	assert.Equal(t, "2001:db8::1", blocks[0].Identifier)
	assert.Equal(t, int64(89), blocks[0].TimeRemaining)
	for _, b := range blocks {
		assert.Positive(t, b.TimeRemaining)
	}
}

func TestCleanup_TrimsStaleEntries(t *testing.T) {
	f := newFixture(t, service.DefaultRateLimiterOptions())
	ctx := context.Background()

	_, err := f.svc.CheckLimit(ctx, "10.0.0.20", constants.LimitTypeRenewalIP, standardCtx)
	require.NoError(t, err)
	f.svc.RecordFailure(ctx, "10.0.0.20", constants.OperationRenewal, "status 401")

	// store TTLs are not advanced, so only the trim can remove the entries
	f.clock.Advance(2 * time.Hour)
	_, err = f.svc.CheckLimit(ctx, "10.0.0.21", constants.LimitTypeRenewalIP, standardCtx)
	require.NoError(t, err)
	require.NoError(t, f.store.SetBlock(ctx, service.BlockKey("renewal", "hospital-15"), time.Hour))

	report, err := f.svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, int64(2), report.Trimmed)
	assert.Equal(t, 2, report.Deleted)

	assert.False(t, f.mr.Exists(service.WindowKey(constants.LimitTypeRenewalIP, "10.0.0.20")))
	assert.True(t, f.mr.Exists(service.WindowKey(constants.LimitTypeRenewalIP, "10.0.0.21")))
	assert.True(t, f.mr.Exists(service.BlockKey("renewal", "hospital-15")))
}

func TestCleanup_KeepsEntriesOfLongWindows(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	policies := testPolicies()
	policies.Base[constants.LimitTypeRenewalIP] = models.LimitPolicy{Points: 10, Duration: 3 * time.Hour, BlockDuration: time.Hour}
	clock := &fakeClock{now: time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)}
	store := ratelimit.NewRedisCounterStore(client, logger.NewNoopLogger())
	svc := service.NewRateLimitAppService(service.RateLimiterDeps{
		Resolver: domainService.NewConfigResolver(policies),
		Store:    store,
		Clock:    clock,
		Logger:   logger.NewNoopLogger(),
	}, service.DefaultRateLimiterOptions())
	ctx := context.Background()

	_, err := svc.CheckLimit(ctx, "10.0.0.30", constants.LimitTypeRenewalIP, standardCtx)
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)

	report, err := svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Trimmed)

	status, err := svc.GetStatus(ctx, "10.0.0.30", constants.LimitTypeRenewalIP)
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.Current, "the entry is still inside the 3h window")
}

func TestCleanup_StoreError(t *testing.T) {
	svc := service.NewRateLimitAppService(service.RateLimiterDeps{
		Resolver: domainService.NewConfigResolver(testPolicies()),
		Store:    &failingStore{},
		Logger:   logger.NewNoopLogger(),
	}, service.DefaultRateLimiterOptions())

	_, err := svc.Cleanup(context.Background())
	assert.True(t, errors.IsStoreFailure(err))
}

func TestParseBlockKey(t *testing.T) {
	tests := []struct {
		key        string
		limitType  string
		identifier string
		ok         bool
	}{
		{"ratelimit:blocked:renewal:h1", "renewal", "h1", true},
		{"ratelimit:blocked:failures:10.0.0.1", "failures", "10.0.0.1", true},
		{"ratelimit:blocked:renewalIP:2001:db8::1", "renewalIP", "2001:db8::1", true},
		{"ratelimit:blocked:renewal", "", "", false},
		{"ratelimit:renewal:h1", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			lt, id, ok := service.ParseBlockKey(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.limitType, lt)
			assert.Equal(t, tt.identifier, id)
		})
	}
}

//Personal.AI order the ending
