package service

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/turtacn/renewguard/internal/domain/models"
	"github.com/turtacn/renewguard/pkg/constants"
	"github.com/turtacn/renewguard/pkg/logger"
)

// Cleaner is the maintenance operation run by the scheduler.
type Cleaner interface {
	Cleanup(ctx context.Context) (models.CleanupReport, error)
}

// CleanupScheduler runs Cleanup on a cron schedule. Runs never overlap.
type CleanupScheduler struct {
	cleaner  Cleaner
	schedule string
	timeout  time.Duration
	logger   logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewCleanupScheduler creates a scheduler. An empty schedule uses the default.
func NewCleanupScheduler(cleaner Cleaner, schedule string, log logger.Logger) *CleanupScheduler {
	if schedule == "" {
		schedule = constants.DefaultCleanupSchedule
	}
	return &CleanupScheduler{
		cleaner:  cleaner,
		schedule: schedule,
		timeout:  time.Minute,
		logger:   log.WithComponent("cleanup_scheduler"),
	}
}

// Start registers the job and starts the cron runner. Calling Start on a
// running scheduler is a no-op.
func (s *CleanupScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, s.RunOnce); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.running = true

	s.logger.Info(context.Background(), "Cleanup scheduler started", logger.Fields{"schedule": s.schedule})
	return nil
}

// Stop halts the runner and waits for an in-flight sweep. It is idempotent.
func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info(context.Background(), "Cleanup scheduler stopped")
}

// RunOnce performs a single sweep bounded by the scheduler timeout.
func (s *CleanupScheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.cleaner.Cleanup(ctx); err != nil {
		s.logger.Error(ctx, "Scheduled cleanup failed", err)
	}
}

//Personal.AI order the ending
