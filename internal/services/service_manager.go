package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/edplatform/grading-service/internal/events"
	"github.com/edplatform/grading-service/internal/repositories"
	"github.com/edplatform/grading-service/internal/validator"
	"gorm.io/gorm"
)

// serviceManager wires the service layer together and owns its lifecycle.
type serviceManager struct {
	db        *gorm.DB
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	clock     Clock
	publisher events.EventPublisher

	attemptService    AttemptService
	gradingService    GradingService
	submissionService SubmissionService
	enrollmentService EnrollmentService
	ratingService     RatingService
	gradebookService  GradebookService

	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

func NewServiceManager(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, clock Clock, publisher events.EventPublisher) ServiceManager {
	if clock == nil {
		clock = SystemClock()
	}
	return &serviceManager{
		db:        db,
		repo:      repo,
		logger:    logger,
		validator: validator,
		clock:     clock,
		publisher: publisher,
	}
}

// Initialize constructs all services. Safe to call more than once.
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	sm.attemptService = NewAttemptService(sm.repo, sm.db, sm.logger, sm.validator, sm.clock, sm.publisher)
	sm.gradingService = NewGradingService(sm.repo, sm.db, sm.logger, sm.validator, sm.clock, sm.publisher)
	sm.submissionService = NewSubmissionService(sm.repo, sm.db, sm.logger, sm.validator, sm.clock, sm.publisher)
	sm.enrollmentService = NewEnrollmentService(sm.repo, sm.db, sm.logger, sm.validator, sm.clock, sm.publisher)
	sm.ratingService = NewRatingService(sm.repo, sm.db, sm.logger, sm.validator, sm.clock, sm.publisher)
	sm.gradebookService = NewGradebookService(sm.repo, sm.db, sm.logger, sm.clock)

	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository ping failed: %w", err)
	}

	sm.initialized = true
	sm.logger.Info("Service manager initialized")

	return nil
}

// ===== SERVICE GETTERS =====

func (sm *serviceManager) Attempt() AttemptService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.attemptService
}

func (sm *serviceManager) Grading() GradingService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.gradingService
}

func (sm *serviceManager) Submission() SubmissionService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.submissionService
}

func (sm *serviceManager) Enrollment() EnrollmentService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.enrollmentService
}

func (sm *serviceManager) Rating() RatingService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.ratingService
}

func (sm *serviceManager) Gradebook() GradebookService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.gradebookService
}

func (sm *serviceManager) mustBeInitialized() {
	if !sm.initialized {
		panic("service manager not initialized")
	}
}

// ===== LIFECYCLE =====

func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}
	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if sm.publisher != nil {
		if err := sm.publisher.Close(); err != nil {
			sm.logger.Error("Failed to close event publisher", "error", err)
		}
	}
	if err := sm.repo.Close(); err != nil {
		sm.logger.Error("Failed to close repository", "error", err)
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down")

	return nil
}
