package services

import (
	"context"
	"fmt"

	"github.com/edplatform/grading-service/internal/events"
	"github.com/edplatform/grading-service/internal/models"
	"github.com/edplatform/grading-service/internal/repositories"
	"github.com/shopspring/decimal"
)

// ===== REGRADING =====

// RegradeAttempt re-runs the evaluator over a finished attempt, typically
// after an answer key fix. Manually graded answers are left untouched.
func (s *gradingService) RegradeAttempt(ctx context.Context, attemptID uint, graderID string) (*AttemptGradingResult, error) {
	s.logger.Info("Regrading attempt",
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

	quiz, err := s.getQuiz(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		return s.regradeAttemptTx(ctx, txRepo, attempt, quiz)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to regrade attempt: %w", err)
	}

	s.logger.Info("Attempt regraded",
		"attempt_id", attemptID,
		"score", attempt.Score,
		"status", attempt.Status)

	return s.buildAttemptGradingResult(ctx, attempt, quiz)
}

// RegradeQuiz re-runs the evaluator over every finished attempt of a quiz.
func (s *gradingService) RegradeQuiz(ctx context.Context, quizID uint, graderID string) (map[uint]*AttemptGradingResult, error) {
	s.logger.Info("Regrading all attempts for quiz",
		"quiz_id", quizID,
		"grader_id", graderID)

	if err := s.checkGraderRole(ctx, graderID, quizID, "quiz"); err != nil {
		return nil, err
	}

	quiz, err := s.getQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	attempts, _, err := s.repo.Attempt().GetByQuiz(ctx, s.db, quizID, repositories.AttemptFilters{})
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	results := make(map[uint]*AttemptGradingResult, len(attempts))
	for _, attempt := range attempts {
		if attempt.IsInProgress() || attempt.Status == models.AttemptAbandoned {
			continue
		}

		err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
			return s.regradeAttemptTx(ctx, txRepo, attempt, quiz)
		})
		if err != nil {
			s.logger.Error("Failed to regrade attempt, skipping",
				"attempt_id", attempt.ID,
				"error", err)
			continue
		}

		result, err := s.buildAttemptGradingResult(ctx, attempt, quiz)
		if err != nil {
			return nil, err
		}
		results[attempt.ID] = result
	}

	s.logger.Info("Quiz regraded",
		"quiz_id", quizID,
		"attempts_regraded", len(results))

	return results, nil
}

// regradeAttemptTx re-evaluates every auto-gradable answer and recomputes
// the attempt totals. Manual grades survive; answers whose key disappeared
// fall back to pending manual.
func (s *gradingService) regradeAttemptTx(ctx context.Context, repo repositories.Repository, attempt *models.QuizAttempt, quiz *models.Quiz) error {
	now := s.clock.Now()

	answers, err := repo.Answer().GetByAttempt(ctx, nil, attempt.ID)
	if err != nil {
		return fmt.Errorf("failed to get answers: %w", err)
	}

	questions := questionIndex(quiz)
	for _, answer := range answers {
		if manuallyGraded(answer) {
			continue
		}
		question, ok := questions[answer.QuestionID]
		if !ok {
			continue
		}

		result := EvaluateAnswer(question, answer)
		if result.PendingManual {
			answer.PointsEarned = nil
			answer.IsCorrect = nil
			answer.AutoGraded = false
			answer.GradedAt = nil
		} else {
			points := result.PointsEarned
			correct := result.IsCorrect
			gradedAt := now
			answer.PointsEarned = &points
			answer.IsCorrect = &correct
			answer.AutoGraded = true
			answer.GradedAt = &gradedAt
		}

		if err := repo.Answer().Update(ctx, nil, answer); err != nil {
			return fmt.Errorf("failed to save regraded answer %d: %w", answer.ID, err)
		}
	}

	return s.recomputeAttemptTotals(ctx, repo, attempt, quiz)
}

// ===== TOTALS =====

// recomputeAttemptTotals re-sums the stored answer grades and updates the
// attempt score, pass flag and grading state. An attempt waiting in
// SUBMITTED_FOR_GRADING is promoted to COMPLETED once nothing is pending;
// a timed-out attempt keeps its status either way.
func (s *gradingService) recomputeAttemptTotals(ctx context.Context, repo repositories.Repository, attempt *models.QuizAttempt, quiz *models.Quiz) error {
	answers, err := repo.Answer().GetByAttempt(ctx, nil, attempt.ID)
	if err != nil {
		return fmt.Errorf("failed to get answers: %w", err)
	}

	score := decimal.Zero
	pendingCount := 0
	for _, answer := range answers {
		if answer.PointsEarned != nil {
			score = score.Add(*answer.PointsEarned)
		}
		if answer.RequiresManualGrading() {
			pendingCount++
		}
	}

	maxScore := quiz.MaxScore()
	percentage := percentageOf(score, maxScore)

	attempt.Score = &score
	attempt.MaxScore = &maxScore
	attempt.Percentage = &percentage
	attempt.IsGraded = pendingCount == 0

	switch attempt.Status {
	case models.AttemptSubmittedForGrading:
		if pendingCount == 0 {
			attempt.Status = models.AttemptCompleted
		}
	case models.AttemptCompleted:
		if pendingCount > 0 {
			attempt.Status = models.AttemptSubmittedForGrading
		}
	}
	attempt.Passed = attempt.IsGraded && attempt.IsPassedAgainst(quiz)

	if err := repo.Attempt().Update(ctx, nil, attempt); err != nil {
		return fmt.Errorf("failed to update attempt: %w", err)
	}
	return nil
}

// settleAttemptIfFullyGraded recomputes the attempt once its last pending
// answer has been graded; a no-op while anything is still waiting.
func (s *gradingService) settleAttemptIfFullyGraded(ctx context.Context, repo repositories.Repository, attemptID uint) error {
	pending, err := repo.Answer().HasPendingManual(ctx, nil, attemptID)
	if err != nil {
		return fmt.Errorf("failed to check pending answers: %w", err)
	}
	if pending {
		return nil
	}

	attempt, err := repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		return fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.IsInProgress() {
		return nil
	}

	quiz, err := repo.Quiz().GetByIDWithQuestions(ctx, nil, attempt.QuizID)
	if err != nil {
		return fmt.Errorf("failed to get quiz: %w", err)
	}

	if err := s.recomputeAttemptTotals(ctx, repo, attempt, quiz); err != nil {
		return err
	}

	s.publishGraded(ctx, attempt)
	return nil
}

// ===== HELPER FUNCTIONS =====

func (s *gradingService) checkGraderRole(ctx context.Context, graderID string, resourceID uint, resource string) error {
	user, err := s.repo.User().GetByID(ctx, graderID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get grader: %w", err)
	}
	if user.Role != models.RoleInstructor && user.Role != models.RoleAdmin {
		return NewPermissionError(graderID, resourceID, resource, "grade", "grading requires instructor or admin role")
	}
	return nil
}

func (s *gradingService) getQuiz(ctx context.Context, quizID uint) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, s.db, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return quiz, nil
}

func (s *gradingService) buildAttemptGradingResult(ctx context.Context, attempt *models.QuizAttempt, quiz *models.Quiz) (*AttemptGradingResult, error) {
	answers, err := s.repo.Answer().GetByAttempt(ctx, s.db, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get answers: %w", err)
	}

	questions := questionIndex(quiz)
	result := &AttemptGradingResult{
		AttemptID: attempt.ID,
		Status:    attempt.Status,
		GradedAt:  s.clock.Now(),
	}
	if attempt.Score != nil {
		result.Score = *attempt.Score
	}
	if attempt.MaxScore != nil {
		result.MaxScore = *attempt.MaxScore
	}
	if attempt.Percentage != nil {
		result.Percentage = *attempt.Percentage
	}
	if attempt.IsGraded {
		passed := attempt.Passed
		result.Passed = &passed
	}

	for _, answer := range answers {
		entry := AnswerGradingResult{
			AnswerID:   answer.ID,
			QuestionID: answer.QuestionID,
			AutoGraded: answer.AutoGraded,
			Feedback:   answer.InstructorFeedback,
			GradedBy:   answer.GradedBy,
			IsCorrect:  answer.IsCorrect,
		}
		if answer.PointsEarned != nil {
			entry.PointsEarned = *answer.PointsEarned
		}
		if question, ok := questions[answer.QuestionID]; ok {
			entry.MaxPoints = decimal.NewFromInt(int64(question.Points))
		}
		if answer.GradedAt != nil {
			entry.GradedAt = *answer.GradedAt
		}
		result.Answers = append(result.Answers, entry)
	}

	return result, nil
}

func (s *gradingService) publishGraded(ctx context.Context, attempt *models.QuizAttempt) {
	if s.publisher == nil {
		return
	}

	payload := events.AttemptCompletedEvent{
		AttemptID:  attempt.ID,
		QuizID:     attempt.QuizID,
		StudentID:  attempt.StudentID,
		Status:     string(attempt.Status),
		Score:      decimalStringPtr(attempt.Score),
		Percentage: decimalStringPtr(attempt.Percentage),
		Passed:     attempt.Passed,
	}

	if err := s.publisher.Publish(ctx, events.TopicAttemptEvents, events.NewEvent(events.EventAttemptCompleted, payload)); err != nil {
		s.logger.Error("Failed to publish grading event",
			"attempt_id", attempt.ID,
			"error", err)
	}
}

func questionIndex(quiz *models.Quiz) map[uint]*models.Question {
	index := make(map[uint]*models.Question, len(quiz.Questions))
	for i := range quiz.Questions {
		index[quiz.Questions[i].ID] = &quiz.Questions[i]
	}
	return index
}

// manuallyGraded reports whether an instructor grade is present.
func manuallyGraded(answer *models.QuizAnswer) bool {
	return answer.IsGradedAnswer() && !answer.AutoGraded
}
