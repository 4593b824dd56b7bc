package service

import (
	"context"
	"time"

	"github.com/turtacn/renewguard/internal/domain/models"
)

// CounterStore is the shared key-value store holding every sliding window, block flag and failure log.
// It is the only component performing network I/O for limit state; implementations must make
// RecordAndCount a single atomic unit and must not retry internally.
// CounterStore 是保存所有滑动窗口、封禁标记和失败日志的共享键值存储。
// 它是唯一进行限流状态网络 I/O 的组件；RecordAndCount 必须是原子操作，且不得在内部重试。
type CounterStore interface {
	// RecordAndCount prunes entries older than now-window, inserts a unique entry for now,
	// counts the remaining entries and refreshes the key TTL to window, atomically.
	// RecordAndCount 原子地清理过期条目、插入新条目、计数并刷新 TTL。
	RecordAndCount(ctx context.Context, windowKey string, now time.Time, window time.Duration) (int64, error)

	// CountWindow counts entries newer than now-window without recording anything.
	// CountWindow 只读地统计窗口内的条目数量。
	CountWindow(ctx context.Context, windowKey string, now time.Time, window time.Duration) (int64, error)

	// SetBlock sets a block flag that expires after ttl.
	// SetBlock 设置一个在 ttl 后过期的封禁标记。
	SetBlock(ctx context.Context, blockKey string, ttl time.Duration) error

	// IsBlocked reports whether the block flag exists.
	// IsBlocked 判断封禁标记是否存在。
	IsBlocked(ctx context.Context, blockKey string) (bool, error)

	// RemainingBlockSeconds returns the remaining TTL of a key in seconds, or a value <= 0
	// when the key is missing or has no expiry.
	// RemainingBlockSeconds 返回键剩余的 TTL 秒数。
	RemainingBlockSeconds(ctx context.Context, blockKey string) (int64, error)

	// DeleteKeys removes the given keys.
	// DeleteKeys 删除给定的键。
	DeleteKeys(ctx context.Context, keys ...string) error

	// ListKeysByPrefix returns every key starting with prefix.
	// ListKeysByPrefix 返回所有以 prefix 开头的键。
	ListKeysByPrefix(ctx context.Context, prefix string) ([]string, error)

	// TrimBefore removes entries older than cutoff and returns how many were removed and remain.
	// TrimBefore 删除早于 cutoff 的条目，并返回删除数量和剩余数量。
	TrimBefore(ctx context.Context, key string, cutoff time.Time) (removed int64, remaining int64, err error)

	// SetFlag stores a plain flag value with a TTL.
	// SetFlag 写入带 TTL 的标记值。
	SetFlag(ctx context.Context, key, value string, ttl time.Duration) error

	// GetFlag reads a flag value; found is false when the key is absent.
	// GetFlag 读取标记值；键不存在时 found 为 false。
	GetFlag(ctx context.Context, key string) (value string, found bool, err error)
}

// Clock provides an abstraction for time operations to enable testing.
type Clock interface {
	Now() time.Time
}

// SystemClock is a Clock implementation that uses the system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

//go:generate mockery --name BlockEventPublisher --output mocks --outpkg mocks
// BlockEventPublisher emits block events to monitoring consumers. Publishing is
// best-effort and must never influence an admission decision.
// BlockEventPublisher 将封禁事件发送给监控消费者，发送失败不得影响准入决策。
type BlockEventPublisher interface {
	Publish(ctx context.Context, event models.BlockEvent) error
	Close() error
}

// Metrics defines the interface for collecting admission metrics.
// This abstraction allows the application layer to remain independent of the specific monitoring implementation (e.g., Prometheus).
// Metrics 定义了收集准入指标的接口。
type Metrics interface {
	// RecordCheck records one limit check outcome and its latency.
	RecordCheck(limitType, outcome string, duration time.Duration)

	// RecordBlock records a block being set.
	RecordBlock(limitType string)

	// RecordStoreFailure records a failed store or breaker call.
	RecordStoreFailure()

	// RecordCircuitState records the current breaker state (0 closed, 1 half-open, 2 open).
	RecordCircuitState(state int)

	// RecordBypass records whether the emergency bypass is active.
	RecordBypass(active bool)

	// RecordCleanup records entries removed by a maintenance sweep.
	RecordCleanup(trimmed int64, deleted int)
}

// NoopMetrics discards every observation.
type NoopMetrics struct{}

func (NoopMetrics) RecordCheck(string, string, time.Duration) {}
func (NoopMetrics) RecordBlock(string)                        {}
func (NoopMetrics) RecordStoreFailure()                       {}
func (NoopMetrics) RecordCircuitState(int)                    {}
func (NoopMetrics) RecordBypass(bool)                         {}
func (NoopMetrics) RecordCleanup(int64, int)                  {}

//Personal.AI order the ending
