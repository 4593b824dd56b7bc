package service

import (
	"context"
	"time"

	"github.com/turtacn/renewguard/internal/domain/models"
	"github.com/turtacn/renewguard/pkg/constants"
)

//go:generate mockery --name RateLimitService --output mocks --outpkg mocks
// RateLimitService defines the admission-control facade consumed by the HTTP
// middleware, the admin handler and the CLI.
type RateLimitService interface {
	// CheckLimit runs one sliding-window check. The error is non-nil only for an
	// unknown limit type; store failures are reported through the result outcome.
	CheckLimit(ctx context.Context, key string, limitType constants.LimitType, mctx models.MultiplierContext) (models.CheckResult, error)

	// CheckMultipleLimits evaluates checks concurrently; failures keep input order.
	CheckMultipleLimits(ctx context.Context, checks []models.LimitCheck) (models.MultiCheckResult, error)

	// CheckFailureBlock reports whether a failure-pattern block is active for key.
	CheckFailureBlock(ctx context.Context, key string) (blocked bool, resetTime time.Time)

	// RecordFailure appends to the failure log and may set a failure block. Never fails.
	RecordFailure(ctx context.Context, key string, operation constants.Operation, reason string)

	// GetStatus returns a read-only snapshot using the base policy table.
	GetStatus(ctx context.Context, key string, limitType constants.LimitType) (*models.Status, error)

	// ResetLimit deletes the window and block keys; false on store error.
	ResetLimit(ctx context.Context, key string, limitType constants.LimitType) bool

	// GetActiveBlocks lists all blocks with positive remaining TTL.
	GetActiveBlocks(ctx context.Context) ([]models.BlockDescriptor, error)

	// Cleanup prunes stale window entries and deletes emptied windows.
	Cleanup(ctx context.Context) (models.CleanupReport, error)

	// SystemStatus reports the process-local breaker and bypass state.
	SystemStatus(ctx context.Context) models.SystemStatus
}

//Personal.AI order the ending
