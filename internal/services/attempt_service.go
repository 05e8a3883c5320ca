package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edplatform/grading-service/internal/events"
	"github.com/edplatform/grading-service/internal/models"
	"github.com/edplatform/grading-service/internal/repositories"
	"github.com/edplatform/grading-service/internal/validator"
	"gorm.io/gorm"
)

type attemptService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	clock     Clock
	publisher events.EventPublisher
}

func NewAttemptService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, clock Clock, publisher events.EventPublisher) AttemptService {
	if clock == nil {
		clock = SystemClock()
	}
	return &attemptService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		clock:     clock,
		publisher: publisher,
	}
}

// ===== LIFECYCLE =====

func (s *attemptService) Start(ctx context.Context, req *StartAttemptRequest, studentID string) (*AttemptResponse, error) {
	s.logger.Info("Starting quiz attempt",
		"quiz_id", req.QuizID,
		"student_id", studentID)

	// Validate request
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	// Get quiz with questions for availability and scoring policy
	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, s.db, req.QuizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	now := s.clock.Now()
	if !quiz.IsAvailableAt(now) {
		return nil, ErrQuizNotAvailable
	}

	// An open attempt blocks a new one
	hasActive, err := s.repo.Attempt().HasActiveAttempt(ctx, s.db, studentID, req.QuizID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active attempt: %w", err)
	}
	if hasActive {
		return nil, ErrAttemptAlreadyInProgress
	}

	// Enforce the attempt limit
	if quiz.HasAttemptLimit() {
		count, err := s.GetAttemptCount(ctx, req.QuizID, studentID)
		if err != nil {
			return nil, err
		}
		if count >= *quiz.MaxAttempts {
			return nil, ErrAttemptLimitExceeded
		}
	}

	var attempt *models.QuizAttempt
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		attemptNumber, err := txRepo.Attempt().GetNextAttemptNumber(ctx, nil, studentID, req.QuizID)
		if err != nil {
			return fmt.Errorf("failed to get next attempt number: %w", err)
		}

		startedAt := now
		attempt = &models.QuizAttempt{
			QuizID:        req.QuizID,
			StudentID:     studentID,
			AttemptNumber: attemptNumber,
			Status:        models.AttemptInProgress,
			StartedAt:     &startedAt,
		}

		if err := txRepo.Attempt().Create(ctx, nil, attempt); err != nil {
			return fmt.Errorf("failed to create attempt: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start attempt transaction: %w", err)
	}

	s.logger.Info("Quiz attempt started",
		"attempt_id", attempt.ID,
		"quiz_id", req.QuizID,
		"student_id", studentID,
		"attempt_number", attempt.AttemptNumber)

	return s.buildAttemptResponse(ctx, attempt, quiz, studentID, true), nil
}

func (s *attemptService) Resume(ctx context.Context, attemptID uint, studentID string) (*AttemptResponse, error) {
	s.logger.Info("Resuming quiz attempt",
		"attempt_id", attemptID,
		"student_id", studentID)

	attempt, err := s.repo.Attempt().GetByID(ctx, s.db, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.StudentID != studentID {
		return nil, NewPermissionError(studentID, attemptID, "attempt", "resume", "not owned by student")
	}

	if !attempt.IsInProgress() {
		return nil, ErrAttemptNotActive
	}

	quiz, err := s.getQuizForAttempt(ctx, attempt)
	if err != nil {
		return nil, err
	}

	// An expired attempt is timed out on touch, then rejected
	if attempt.IsTimeExceededAt(quiz, s.clock.Now()) {
		if err := s.HandleTimeout(ctx, attemptID); err != nil {
			s.logger.Error("Failed to time out expired attempt", "attempt_id", attemptID, "error", err)
		}
		return nil, ErrAttemptExpired
	}

	return s.buildAttemptResponse(ctx, attempt, quiz, studentID, true), nil
}

func (s *attemptService) RecordAnswer(ctx context.Context, attemptID uint, req *RecordAnswerRequest, studentID string) error {
	if err := s.validator.Validate(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, s.db, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAttemptNotFound
		}
		return fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.StudentID != studentID {
		return NewPermissionError(studentID, attemptID, "attempt", "record_answer", "not owned by student")
	}

	if !attempt.IsInProgress() {
		return ErrAttemptNotActive
	}

	quiz, err := s.getQuizForAttempt(ctx, attempt)
	if err != nil {
		return err
	}

	if attempt.IsTimeExceededAt(quiz, s.clock.Now()) {
		if err := s.HandleTimeout(ctx, attemptID); err != nil {
			s.logger.Error("Failed to time out expired attempt", "attempt_id", attemptID, "error", err)
		}
		return ErrAttemptExpired
	}

	if err := s.upsertAttemptAnswer(ctx, s.repo, attemptID, req); err != nil {
		return fmt.Errorf("failed to record answer: %w", err)
	}

	s.logger.Info("Answer recorded",
		"attempt_id", attemptID,
		"question_id", req.QuestionID)

	return nil
}

func (s *attemptService) Complete(ctx context.Context, req *CompleteAttemptRequest, studentID string) (*AttemptResponse, error) {
	s.logger.Info("Completing quiz attempt",
		"attempt_id", req.AttemptID,
		"student_id", studentID,
		"answers_count", len(req.Answers))

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, s.db, req.AttemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.StudentID != studentID {
		return nil, NewPermissionError(studentID, req.AttemptID, "attempt", "complete", "not owned by student")
	}

	quiz, err := s.getQuizForAttempt(ctx, attempt)
	if err != nil {
		return nil, err
	}

	// Completing a finished attempt is a no-op
	if attempt.IsTerminal() {
		s.logger.Info("Attempt already finished, complete is a no-op",
			"attempt_id", attempt.ID,
			"status", attempt.Status)
		return s.buildAttemptResponse(ctx, attempt, quiz, studentID, false), nil
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		for i := range req.Answers {
			if err := s.upsertAttemptAnswer(ctx, txRepo, req.AttemptID, &req.Answers[i]); err != nil {
				return fmt.Errorf("failed to record answer for question %d: %w", req.Answers[i].QuestionID, err)
			}
		}
		return s.finalizeAttempt(ctx, txRepo, attempt, quiz, models.AttemptEndReasonSubmitted)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to complete attempt transaction: %w", err)
	}

	s.logger.Info("Quiz attempt completed",
		"attempt_id", attempt.ID,
		"status", attempt.Status,
		"score", attempt.Score,
		"percentage", attempt.Percentage)

	s.publishAttemptEvent(ctx, events.EventAttemptCompleted, attempt)

	return s.buildAttemptResponse(ctx, attempt, quiz, studentID, false), nil
}

func (s *attemptService) Abandon(ctx context.Context, attemptID uint, studentID string) error {
	s.logger.Info("Abandoning quiz attempt",
		"attempt_id", attemptID,
		"student_id", studentID)

	attempt, err := s.repo.Attempt().GetByID(ctx, s.db, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAttemptNotFound
		}
		return fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.StudentID != studentID {
		return NewPermissionError(studentID, attemptID, "attempt", "abandon", "not owned by student")
	}

	// Abandoning a finished attempt is a no-op
	if attempt.IsTerminal() {
		return nil
	}

	// No scoring on abandon, only the end stamp
	now := s.clock.Now()
	attempt.Status = models.AttemptAbandoned
	attempt.EndedAt = &now
	reason := models.AttemptEndReasonAbandoned
	attempt.EndReason = &reason
	if attempt.StartedAt != nil {
		attempt.TimeTakenMinutes = int(now.Sub(*attempt.StartedAt).Minutes())
	}

	if err := s.repo.Attempt().Update(ctx, s.db, attempt); err != nil {
		return fmt.Errorf("failed to abandon attempt: %w", err)
	}

	s.logger.Info("Quiz attempt abandoned", "attempt_id", attemptID)

	return nil
}

func (s *attemptService) HandleTimeout(ctx context.Context, attemptID uint) error {
	s.logger.Info("Handling attempt timeout", "attempt_id", attemptID)

	attempt, err := s.repo.Attempt().GetByID(ctx, s.db, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAttemptNotFound
		}
		return fmt.Errorf("failed to get attempt: %w", err)
	}

	// Already handled
	if attempt.IsTerminal() {
		return nil
	}

	quiz, err := s.getQuizForAttempt(ctx, attempt)
	if err != nil {
		return err
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		return s.finalizeAttempt(ctx, txRepo, attempt, quiz, models.AttemptEndReasonTimeout)
	})
	if err != nil {
		return fmt.Errorf("failed to time out attempt: %w", err)
	}

	s.logger.Info("Attempt timed out",
		"attempt_id", attemptID,
		"score", attempt.Score)

	s.publishAttemptEvent(ctx, events.EventAttemptTimedOut, attempt)

	return nil
}
