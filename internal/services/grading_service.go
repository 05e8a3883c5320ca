package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edplatform/grading-service/internal/events"
	"github.com/edplatform/grading-service/internal/models"
	"github.com/edplatform/grading-service/internal/repositories"
	"github.com/edplatform/grading-service/internal/validator"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type gradingService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	clock     Clock
	publisher events.EventPublisher
}

func NewGradingService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, clock Clock, publisher events.EventPublisher) GradingService {
	if clock == nil {
		clock = SystemClock()
	}
	return &gradingService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		clock:     clock,
		publisher: publisher,
	}
}

// ===== MANUAL GRADING =====

func (s *gradingService) GradeAnswer(ctx context.Context, answerID uint, req *GradeAnswerRequest, graderID string) (*AnswerGradingResult, error) {
	s.logger.Info("Manually grading answer",
		"answer_id", answerID,
		"points", req.PointsEarned,
		"grader_id", graderID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if err := s.checkGraderRole(ctx, graderID, answerID, "answer"); err != nil {
		return nil, err
	}

	answer, err := s.repo.Answer().GetByIDWithDetails(ctx, s.db, answerID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAnswerNotFound
		}
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}

	if !answer.RequiresManualGrading() {
		return nil, ErrAnswerNotPendingGrading
	}

	maxPoints := decimal.NewFromInt(int64(answer.Question.Points))
	if req.PointsEarned.IsNegative() || req.PointsEarned.GreaterThan(maxPoints) {
		return nil, NewValidationError("points_earned",
			fmt.Sprintf("must be between 0 and %s", maxPoints), req.PointsEarned)
	}

	isCorrect := req.PointsEarned.Equal(maxPoints)
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Answer().UpdateGrade(ctx, nil, answerID, req.PointsEarned, &isCorrect, req.Feedback, &graderID); err != nil {
			return fmt.Errorf("failed to store grade: %w", err)
		}
		// When the last pending answer lands, the whole attempt settles.
		return s.settleAttemptIfFullyGraded(ctx, txRepo, answer.AttemptID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to grade answer: %w", err)
	}

	s.logger.Info("Answer graded",
		"answer_id", answerID,
		"attempt_id", answer.AttemptID,
		"points", req.PointsEarned,
		"max_points", maxPoints)

	gradedAt := s.clock.Now()
	return &AnswerGradingResult{
		AnswerID:     answerID,
		QuestionID:   answer.QuestionID,
		PointsEarned: req.PointsEarned,
		MaxPoints:    maxPoints,
		IsCorrect:    &isCorrect,
		AutoGraded:   false,
		Feedback:     req.Feedback,
		GradedAt:     gradedAt,
		GradedBy:     &graderID,
	}, nil
}

func (s *gradingService) GetPendingAnswers(ctx context.Context, attemptID uint, graderID string) ([]*models.QuizAnswer, error) {
	if err := s.checkGraderRole(ctx, graderID, attemptID, "attempt"); err != nil {
		return nil, err
	}

	if _, err := s.repo.Attempt().GetByID(ctx, s.db, attemptID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	pending, err := s.repo.Answer().GetPendingManual(ctx, s.db, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending answers: %w", err)
	}
	return pending, nil
}

// ===== FINALIZATION =====

func (s *gradingService) FinalizeAttempt(ctx context.Context, attemptID uint, graderID string) (*AttemptGradingResult, error) {
	s.logger.Info("Finalizing attempt after manual grading",
		"attempt_id", attemptID,
		"grader_id", graderID)

	if err := s.checkGraderRole(ctx, graderID, attemptID, "attempt"); err != nil {
		return nil, err
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, s.db, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.IsInProgress() {
		return nil, ErrAttemptNotActive
	}

	pending, err := s.repo.Answer().HasPendingManual(ctx, s.db, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to check pending answers: %w", err)
	}
	if pending {
		return nil, NewValidationError("attempt", "answers are still pending manual grading", attemptID)
	}

	quiz, err := s.getQuiz(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		return s.recomputeAttemptTotals(ctx, txRepo, attempt, quiz)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to finalize attempt: %w", err)
	}

	s.publishGraded(ctx, attempt)

	return s.buildAttemptGradingResult(ctx, attempt, quiz)
}
