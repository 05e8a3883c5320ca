package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/edplatform/grading-service/internal/events"
	"github.com/edplatform/grading-service/internal/models"
	"github.com/edplatform/grading-service/internal/repositories"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ===== GET OPERATIONS =====

func (s *attemptService) GetByID(ctx context.Context, id uint, userID string) (*AttemptResponse, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	canAccess, err := s.canAccessAttempt(ctx, attempt, userID)
	if err != nil {
		return nil, err
	}
	if !canAccess {
		return nil, NewPermissionError(userID, id, "attempt", "read", "not owner or insufficient permissions")
	}

	quiz, err := s.getQuizForAttempt(ctx, attempt)
	if err != nil {
		return nil, err
	}

	return s.buildAttemptResponse(ctx, attempt, quiz, userID, false), nil
}

func (s *attemptService) GetByIDWithDetails(ctx context.Context, id uint, userID string) (*AttemptResponse, error) {
	attempt, err := s.repo.Attempt().GetByIDWithDetails(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt with details: %w", err)
	}

	canAccess, err := s.canAccessAttempt(ctx, attempt, userID)
	if err != nil {
		return nil, err
	}
	if !canAccess {
		return nil, NewPermissionError(userID, id, "attempt", "read", "not owner or insufficient permissions")
	}

	quiz, err := s.getQuizForAttempt(ctx, attempt)
	if err != nil {
		return nil, err
	}

	return s.buildAttemptResponse(ctx, attempt, quiz, userID, true), nil
}

func (s *attemptService) GetCurrentAttempt(ctx context.Context, quizID uint, studentID string) (*AttemptResponse, error) {
	attempt, err := s.repo.Attempt().GetActiveAttempt(ctx, s.db, studentID, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get current attempt: %w", err)
	}

	quiz, err := s.getQuizForAttempt(ctx, attempt)
	if err != nil {
		return nil, err
	}

	return s.buildAttemptResponse(ctx, attempt, quiz, studentID, false), nil
}

// ===== LIST OPERATIONS =====

func (s *attemptService) GetByStudent(ctx context.Context, studentID string, filters repositories.AttemptFilters) (*AttemptListResponse, error) {
	filters.StudentID = &studentID

	attempts, total, err := s.repo.Attempt().GetByStudent(ctx, s.db, studentID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempts by student: %w", err)
	}

	return s.buildAttemptListResponse(ctx, attempts, studentID, total, filters), nil
}

func (s *attemptService) GetByQuiz(ctx context.Context, quizID uint, filters repositories.AttemptFilters, userID string) (*AttemptListResponse, error) {
	userRole, err := s.getUserRole(ctx, userID)
	if err != nil {
		return nil, err
	}
	if userRole == models.RoleStudent {
		filters.StudentID = &userID
	}

	attempts, total, err := s.repo.Attempt().GetByQuiz(ctx, s.db, quizID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempts by quiz: %w", err)
	}

	return s.buildAttemptListResponse(ctx, attempts, userID, total, filters), nil
}

// ===== TIME MANAGEMENT =====

func (s *attemptService) GetTimeRemaining(ctx context.Context, attemptID uint, studentID string) (int, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, s.db, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return 0, ErrAttemptNotFound
		}
		return 0, fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.StudentID != studentID {
		return 0, NewPermissionError(studentID, attemptID, "attempt", "get_time_remaining", "not owned by student")
	}

	if !attempt.IsInProgress() {
		return 0, ErrAttemptNotActive
	}

	quiz, err := s.getQuizForAttempt(ctx, attempt)
	if err != nil {
		return 0, err
	}

	remaining := s.timeRemainingSeconds(attempt, quiz)
	if remaining == nil {
		return 0, nil // No time limit
	}
	return *remaining, nil
}

// TimeoutExpiredAttempts finishes every open attempt whose deadline has
// passed. The scheduler calls this periodically; returns the number timed out.
func (s *attemptService) TimeoutExpiredAttempts(ctx context.Context) (int, error) {
	expired, err := s.repo.Attempt().GetExpiredAttempts(ctx, s.db, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to scan expired attempts: %w", err)
	}

	timedOut := 0
	for _, attempt := range expired {
		if err := s.HandleTimeout(ctx, attempt.ID); err != nil {
			s.logger.Error("Failed to time out attempt",
				"attempt_id", attempt.ID,
				"error", err)
			continue
		}
		timedOut++
	}

	if timedOut > 0 {
		s.logger.Info("Expired attempts timed out", "count", timedOut)
	}

	return timedOut, nil
}

// ===== VALIDATION =====

func (s *attemptService) CanStart(ctx context.Context, quizID uint, studentID string) (bool, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, s.db, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return false, ErrQuizNotFound
		}
		return false, fmt.Errorf("failed to get quiz: %w", err)
	}

	if !quiz.IsAvailableAt(s.clock.Now()) {
		return false, nil
	}

	hasActive, err := s.repo.Attempt().HasActiveAttempt(ctx, s.db, studentID, quizID)
	if err != nil {
		return false, fmt.Errorf("failed to check active attempt: %w", err)
	}
	if hasActive {
		return false, nil
	}

	if quiz.HasAttemptLimit() {
		count, err := s.GetAttemptCount(ctx, quizID, studentID)
		if err != nil {
			return false, err
		}
		if count >= *quiz.MaxAttempts {
			return false, nil
		}
	}

	return true, nil
}

func (s *attemptService) GetAttemptCount(ctx context.Context, quizID uint, studentID string) (int, error) {
	count, err := s.repo.Attempt().GetAttemptCount(ctx, s.db, studentID, quizID)
	if err != nil {
		return 0, fmt.Errorf("failed to get attempt count: %w", err)
	}
	return count, nil
}

// ===== STATISTICS =====

func (s *attemptService) GetStats(ctx context.Context, quizID uint, userID string) (*repositories.AttemptStats, error) {
	userRole, err := s.getUserRole(ctx, userID)
	if err != nil {
		return nil, err
	}
	if userRole == models.RoleStudent {
		return nil, NewPermissionError(userID, quizID, "quiz", "view_stats", "insufficient permissions")
	}

	stats, err := s.repo.Attempt().GetQuizAttemptStats(ctx, s.db, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt stats: %w", err)
	}

	return stats, nil
}

// ===== SCORING =====

// finalizeAttempt runs the evaluator over every un-graded answer, totals the
// score and stamps the terminal state. Timeouts always land in TIMED_OUT;
// submissions land in COMPLETED, or SUBMITTED_FOR_GRADING while any answer
// still needs an instructor.
func (s *attemptService) finalizeAttempt(ctx context.Context, repo repositories.Repository, attempt *models.QuizAttempt, quiz *models.Quiz, endReason string) error {
	now := s.clock.Now()

	answers, err := repo.Answer().GetByAttempt(ctx, nil, attempt.ID)
	if err != nil {
		return fmt.Errorf("failed to get answers: %w", err)
	}

	questions := questionIndex(quiz)

	score := decimal.Zero
	pendingManualCount := 0
	for _, answer := range answers {
		if !answer.IsGradedAnswer() {
			question, ok := questions[answer.QuestionID]
			if !ok {
				s.logger.Warn("Answer references unknown question, skipping",
					"attempt_id", attempt.ID,
					"question_id", answer.QuestionID)
				continue
			}

			result := EvaluateAnswer(question, answer)
			if result.PendingManual {
				answer.AutoGraded = false
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
				return fmt.Errorf("failed to save graded answer %d: %w", answer.ID, err)
			}
		}

		if answer.PointsEarned != nil {
			score = score.Add(*answer.PointsEarned)
		}
		if answer.RequiresManualGrading() {
			pendingManualCount++
		}
	}

	maxScore := quiz.MaxScore()
	percentage := percentageOf(score, maxScore)

	attempt.Score = &score
	attempt.MaxScore = &maxScore
	attempt.Percentage = &percentage
	attempt.EndedAt = &now
	if attempt.StartedAt != nil {
		attempt.TimeTakenMinutes = int(now.Sub(*attempt.StartedAt).Minutes())
	}
	reason := endReason
	attempt.EndReason = &reason

	switch {
	case endReason == models.AttemptEndReasonTimeout:
		attempt.Status = models.AttemptTimedOut
	case pendingManualCount > 0:
		attempt.Status = models.AttemptSubmittedForGrading
	default:
		attempt.Status = models.AttemptCompleted
	}
	attempt.IsGraded = pendingManualCount == 0
	attempt.Passed = attempt.IsGraded && attempt.IsPassedAgainst(quiz)

	if err := repo.Attempt().Update(ctx, nil, attempt); err != nil {
		return fmt.Errorf("failed to update attempt: %w", err)
	}

	return nil
}

// percentageOf divides with half-up rounding at 4 places before scaling to
// a 2-place percentage. Zero max score yields zero rather than an error.
func percentageOf(score, maxScore decimal.Decimal) decimal.Decimal {
	if maxScore.IsZero() {
		return decimal.Zero
	}
	return score.DivRound(maxScore, 4).Mul(hundred).Round(2)
}

// ===== HELPER FUNCTIONS =====

func (s *attemptService) getQuizForAttempt(ctx context.Context, attempt *models.QuizAttempt) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, s.db, attempt.QuizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return quiz, nil
}

func (s *attemptService) getUserRole(ctx context.Context, userID string) (models.UserRole, error) {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to get user: %w", err)
	}
	return user.Role, nil
}

func (s *attemptService) canAccessAttempt(ctx context.Context, attempt *models.QuizAttempt, userID string) (bool, error) {
	if attempt.StudentID == userID {
		return true, nil
	}

	userRole, err := s.getUserRole(ctx, userID)
	if err != nil {
		return false, err
	}

	// Instructors and admins can read any attempt for grading
	return userRole == models.RoleInstructor || userRole == models.RoleAdmin, nil
}

func (s *attemptService) upsertAttemptAnswer(ctx context.Context, repo repositories.Repository, attemptID uint, req *RecordAnswerRequest) error {
	answer, err := repo.Answer().GetByAttemptAndQuestion(ctx, nil, attemptID, req.QuestionID)
	if err != nil {
		if !repositories.IsNotFoundError(err) {
			return fmt.Errorf("failed to get existing answer: %w", err)
		}
		answer = &models.QuizAnswer{
			AttemptID:  attemptID,
			QuestionID: req.QuestionID,
		}
	}

	answer.AnswerText = req.AnswerText
	answer.SelectedOptionID = req.SelectedOptionID
	if req.SelectedOptionIDs != nil {
		raw, err := json.Marshal(req.SelectedOptionIDs)
		if err != nil {
			return fmt.Errorf("failed to marshal selected options: %w", err)
		}
		answer.SelectedOptionIDs = raw
	} else {
		answer.SelectedOptionIDs = nil
	}

	// A changed answer invalidates any earlier grade
	answer.PointsEarned = nil
	answer.IsCorrect = nil
	answer.AutoGraded = false
	answer.GradedAt = nil
	answer.GradedBy = nil

	if answer.ID == 0 {
		if err := repo.Answer().Create(ctx, nil, answer); err != nil {
			return fmt.Errorf("failed to create answer: %w", err)
		}
		return nil
	}
	if err := repo.Answer().Update(ctx, nil, answer); err != nil {
		return fmt.Errorf("failed to update answer: %w", err)
	}
	return nil
}

// timeRemainingSeconds returns nil when the quiz has no time limit.
func (s *attemptService) timeRemainingSeconds(attempt *models.QuizAttempt, quiz *models.Quiz) *int {
	if !quiz.HasTimeLimit() || attempt.StartedAt == nil {
		return nil
	}
	deadline := attempt.StartedAt.Add(minutesToDuration(*quiz.TimeLimitMinutes))
	remaining := int(deadline.Sub(s.clock.Now()).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

func (s *attemptService) buildAttemptResponse(ctx context.Context, attempt *models.QuizAttempt, quiz *models.Quiz, userID string, includeQuestions bool) *AttemptResponse {
	response := &AttemptResponse{
		QuizAttempt:    attempt,
		IsPendingGrade: attempt.Status == models.AttemptSubmittedForGrading,
	}

	if attempt.IsInProgress() && attempt.StudentID == userID {
		response.CanResume = !attempt.IsTimeExceededAt(quiz, s.clock.Now())
		response.TimeRemainingSeconds = s.timeRemainingSeconds(attempt, quiz)
	}

	if includeQuestions && attempt.StudentID == userID {
		response.Questions = s.questionsForAttempt(attempt, quiz)
	}

	return response
}

func (s *attemptService) buildAttemptListResponse(ctx context.Context, attempts []*models.QuizAttempt, userID string, total int64, filters repositories.AttemptFilters) *AttemptListResponse {
	responses := make([]*AttemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		responses = append(responses, &AttemptResponse{
			QuizAttempt:    attempt,
			IsPendingGrade: attempt.Status == models.AttemptSubmittedForGrading,
		})
	}

	page := 1
	if filters.Limit > 0 {
		page = filters.Offset/filters.Limit + 1
	}

	return &AttemptListResponse{
		Attempts: responses,
		Total:    total,
		Page:     page,
		Size:     len(responses),
	}
}

// questionsForAttempt returns the quiz questions in display order. Correct
// answers are stripped while the attempt is open, and stay hidden afterwards
// unless the quiz allows revealing them.
func (s *attemptService) questionsForAttempt(attempt *models.QuizAttempt, quiz *models.Quiz) []QuestionForAttempt {
	ordered := make([]models.Question, len(quiz.Questions))
	copy(ordered, quiz.Questions)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	reveal := s.shouldShowCorrectAnswers(attempt, quiz)

	questions := make([]QuestionForAttempt, len(ordered))
	for i := range ordered {
		question := &ordered[i]
		if !reveal {
			question = sanitizeQuestion(question)
		}
		questions[i] = QuestionForAttempt{
			Question: question,
			IsFirst:  i == 0,
			IsLast:   i == len(ordered)-1,
		}
	}
	return questions
}

// shouldShowCorrectAnswers: never during an open attempt, and only for
// finished attempts when the quiz opts in.
func (s *attemptService) shouldShowCorrectAnswers(attempt *models.QuizAttempt, quiz *models.Quiz) bool {
	if attempt.IsInProgress() {
		return false
	}
	switch attempt.Status {
	case models.AttemptCompleted, models.AttemptTimedOut:
		return quiz.ShowCorrectAnswers
	}
	return false
}

// sanitizeQuestion returns a copy with all answer-key material removed.
func sanitizeQuestion(question *models.Question) *models.Question {
	sanitized := *question
	sanitized.CorrectAnswer = nil
	sanitized.Explanation = nil

	options := make([]models.QuestionOption, len(question.Options))
	copy(options, question.Options)
	for i := range options {
		options[i].IsCorrect = false
		options[i].MatchTarget = nil
	}
	sanitized.Options = options

	return &sanitized
}

func (s *attemptService) publishAttemptEvent(ctx context.Context, eventType string, attempt *models.QuizAttempt) {
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

	if err := s.publisher.Publish(ctx, events.TopicAttemptEvents, events.NewEvent(eventType, payload)); err != nil {
		s.logger.Error("Failed to publish attempt event",
			"attempt_id", attempt.ID,
			"event_type", eventType,
			"error", err)
	}
}

func minutesToDuration(minutes int) time.Duration {
	return time.Duration(minutes) * time.Minute
}

func decimalStringPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
