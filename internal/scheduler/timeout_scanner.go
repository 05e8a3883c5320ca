package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/edplatform/grading-service/internal/services"
)

// TimeoutScanner periodically closes quiz attempts whose time limit has
// elapsed without a submission.
type TimeoutScanner struct {
	attempts services.AttemptService
	logger   *slog.Logger
	schedule string
	cron     *cron.Cron
}

func NewTimeoutScanner(attempts services.AttemptService, logger *slog.Logger, schedule string) *TimeoutScanner {
	return &TimeoutScanner{
		attempts: attempts,
		logger:   logger,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start registers the scan job and begins the cron loop.
func (s *TimeoutScanner) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.runScan); err != nil {
		return fmt.Errorf("failed to schedule timeout scan: %w", err)
	}
	s.cron.Start()
	s.logger.Info("timeout scanner started", "schedule", s.schedule)
	return nil
}

// Stop halts scheduling and waits for a running scan to finish.
func (s *TimeoutScanner) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("timeout scanner stopped")
}

func (s *TimeoutScanner) runScan() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	count, err := s.attempts.TimeoutExpiredAttempts(ctx)
	if err != nil {
		s.logger.Error("timeout scan failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("timed out expired attempts", "count", count)
	}
}
