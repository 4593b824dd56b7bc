package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/renewguard/internal/domain/models"
	"github.com/turtacn/renewguard/internal/domain/service"
	"github.com/turtacn/renewguard/pkg/constants"
)

var _ service.RateLimitService = (*MockRateLimitService)(nil)

// MockRateLimitService is a mock implementation of RateLimitService
type MockRateLimitService struct {
	mock.Mock
}

func (m *MockRateLimitService) CheckLimit(ctx context.Context, key string, limitType constants.LimitType, mctx models.MultiplierContext) (models.CheckResult, error) {
	args := m.Called(ctx, key, limitType, mctx)
	return args.Get(0).(models.CheckResult), args.Error(1)
}

func (m *MockRateLimitService) CheckMultipleLimits(ctx context.Context, checks []models.LimitCheck) (models.MultiCheckResult, error) {
	args := m.Called(ctx, checks)
	return args.Get(0).(models.MultiCheckResult), args.Error(1)
}

func (m *MockRateLimitService) CheckFailureBlock(ctx context.Context, key string) (bool, time.Time) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Get(1).(time.Time)
}

func (m *MockRateLimitService) RecordFailure(ctx context.Context, key string, operation constants.Operation, reason string) {
	m.Called(ctx, key, operation, reason)
}

func (m *MockRateLimitService) GetStatus(ctx context.Context, key string, limitType constants.LimitType) (*models.Status, error) {
	args := m.Called(ctx, key, limitType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Status), args.Error(1)
}

func (m *MockRateLimitService) ResetLimit(ctx context.Context, key string, limitType constants.LimitType) bool {
	args := m.Called(ctx, key, limitType)
	return args.Bool(0)
}

func (m *MockRateLimitService) GetActiveBlocks(ctx context.Context) ([]models.BlockDescriptor, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.BlockDescriptor), args.Error(1)
}

func (m *MockRateLimitService) Cleanup(ctx context.Context) (models.CleanupReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.CleanupReport), args.Error(1)
}

func (m *MockRateLimitService) SystemStatus(ctx context.Context) models.SystemStatus {
	args := m.Called(ctx)
	return args.Get(0).(models.SystemStatus)
}

// MockBlockEventPublisher is a mock implementation of BlockEventPublisher
type MockBlockEventPublisher struct {
	mock.Mock
}

func (m *MockBlockEventPublisher) Publish(ctx context.Context, event models.BlockEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockBlockEventPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}
