package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/edplatform/grading-service/internal/events"
	"github.com/edplatform/grading-service/internal/models"
	"github.com/edplatform/grading-service/internal/validator"
	"github.com/shopspring/decimal"
)

type gradingTestEnv struct {
	repo      *mockRepository
	clock     *fixedClock
	publisher *events.MockEventPublisher
	attempts  AttemptService
	svc       GradingService
}

func newGradingTestEnv(t *testing.T) *gradingTestEnv {
	t.Helper()

	repo := newMockRepository()
	repo.addUser("student-1", models.RoleStudent)
	repo.addUser("instructor-1", models.RoleInstructor)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &fixedClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	publisher := events.NewMockEventPublisher(logger)
	v := validator.New()

	return &gradingTestEnv{
		repo:      repo,
		clock:     clock,
		publisher: publisher,
		attempts:  NewAttemptService(repo, nil, logger, v, clock, publisher),
		svc:       NewGradingService(repo, nil, logger, v, clock, publisher),
	}
}

// submitEssayAttempt starts and submits an attempt on the essay quiz with a
// correct choice answer and a pending essay. Returns the attempt ID.
func submitEssayAttempt(t *testing.T, env *gradingTestEnv) uint {
	t.Helper()
	ctx := context.Background()

	quiz := essayQuiz(env.repo)
	started, err := env.attempts.Start(ctx, &StartAttemptRequest{QuizID: quiz.ID}, "student-1")
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	_, err = env.attempts.Complete(ctx, &CompleteAttemptRequest{
		AttemptID: started.ID,
		Answers: []RecordAnswerRequest{
			{QuestionID: 201, SelectedOptionID: uintPtr(2011)},
			{QuestionID: 202, AnswerText: strPtr("An essay about the topic.")},
		},
	}, "student-1")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	env.publisher.ClearEvents()
	return started.ID
}

func pendingEssayAnswer(t *testing.T, env *gradingTestEnv, attemptID uint) *models.QuizAnswer {
	t.Helper()
	pending, err := env.svc.GetPendingAnswers(context.Background(), attemptID, "instructor-1")
	if err != nil {
		t.Fatalf("GetPendingAnswers returned error: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending answers = %d, want 1", len(pending))
	}
	return pending[0]
}

func TestGradingService_GradeAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("grades the pending essay and settles the attempt", func(t *testing.T) {
		env := newGradingTestEnv(t)
		attemptID := submitEssayAttempt(t, env)
		essay := pendingEssayAnswer(t, env, attemptID)

		result, err := env.svc.GradeAnswer(ctx, essay.ID, &GradeAnswerRequest{
			PointsEarned: decimal.NewFromInt(15),
			Feedback:     strPtr("Good argument, weak conclusion."),
		}, "instructor-1")
		if err != nil {
			t.Fatalf("GradeAnswer returned error: %v", err)
		}
		if !result.PointsEarned.Equal(decimal.NewFromInt(15)) {
			t.Errorf("PointsEarned = %v, want 15", result.PointsEarned)
		}
		if result.IsCorrect == nil || *result.IsCorrect {
			t.Errorf("IsCorrect = %v, want false for partial credit", result.IsCorrect)
		}

		// 10 auto + 15 manual out of 30 = 83.33%, passing score 50.
		attempt, _ := env.repo.Attempt().GetByID(ctx, nil, attemptID)
		if attempt.Status != models.AttemptCompleted {
			t.Errorf("Status = %v, want %v", attempt.Status, models.AttemptCompleted)
		}
		if !attempt.IsGraded {
			t.Error("IsGraded = false, want true")
		}
		if attempt.Score == nil || !attempt.Score.Equal(decimal.NewFromInt(25)) {
			t.Errorf("Score = %v, want 25", attempt.Score)
		}
		want := decimal.RequireFromString("83.33")
		if attempt.Percentage == nil || !attempt.Percentage.Equal(want) {
			t.Errorf("Percentage = %v, want %v", attempt.Percentage, want)
		}
		if !attempt.Passed {
			t.Error("Passed = false, want true")
		}

		published := env.publisher.GetPublishedEvents()
		if len(published) != 1 || published[0].Type != events.EventAttemptCompleted {
			t.Errorf("expected one %q event, got %d events", events.EventAttemptCompleted, len(published))
		}
	})

	t.Run("rejects points above the question maximum", func(t *testing.T) {
		env := newGradingTestEnv(t)
		attemptID := submitEssayAttempt(t, env)
		essay := pendingEssayAnswer(t, env, attemptID)

		_, err := env.svc.GradeAnswer(ctx, essay.ID, &GradeAnswerRequest{
			PointsEarned: decimal.NewFromInt(25),
		}, "instructor-1")
		if !errors.Is(err, ErrValidationFailed) {
			t.Errorf("err = %v, want ErrValidationFailed", err)
		}
	})

	t.Run("rejects an already graded answer", func(t *testing.T) {
		env := newGradingTestEnv(t)
		attemptID := submitEssayAttempt(t, env)
		essay := pendingEssayAnswer(t, env, attemptID)

		if _, err := env.svc.GradeAnswer(ctx, essay.ID, &GradeAnswerRequest{PointsEarned: decimal.NewFromInt(10)}, "instructor-1"); err != nil {
			t.Fatalf("GradeAnswer returned error: %v", err)
		}
		_, err := env.svc.GradeAnswer(ctx, essay.ID, &GradeAnswerRequest{PointsEarned: decimal.NewFromInt(20)}, "instructor-1")
		if !errors.Is(err, ErrAnswerNotPendingGrading) {
			t.Errorf("err = %v, want ErrAnswerNotPendingGrading", err)
		}
	})

	t.Run("rejects a student grader", func(t *testing.T) {
		env := newGradingTestEnv(t)
		attemptID := submitEssayAttempt(t, env)
		essay := pendingEssayAnswer(t, env, attemptID)

		_, err := env.svc.GradeAnswer(ctx, essay.ID, &GradeAnswerRequest{PointsEarned: decimal.NewFromInt(5)}, "student-1")
		if !errors.Is(err, ErrForbidden) {
			t.Errorf("err = %v, want ErrForbidden", err)
		}
	})

	t.Run("zero points is a valid grade", func(t *testing.T) {
		env := newGradingTestEnv(t)
		attemptID := submitEssayAttempt(t, env)
		essay := pendingEssayAnswer(t, env, attemptID)

		result, err := env.svc.GradeAnswer(ctx, essay.ID, &GradeAnswerRequest{PointsEarned: decimal.Zero}, "instructor-1")
		if err != nil {
			t.Fatalf("GradeAnswer returned error: %v", err)
		}
		if !result.PointsEarned.IsZero() {
			t.Errorf("PointsEarned = %v, want 0", result.PointsEarned)
		}

		attempt, _ := env.repo.Attempt().GetByID(ctx, nil, attemptID)
		if attempt.Score == nil || !attempt.Score.Equal(decimal.NewFromInt(10)) {
			t.Errorf("Score = %v, want 10", attempt.Score)
		}
	})
}

func TestGradingService_FinalizeAttempt(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects finalize while answers are pending", func(t *testing.T) {
		env := newGradingTestEnv(t)
		attemptID := submitEssayAttempt(t, env)

		_, err := env.svc.FinalizeAttempt(ctx, attemptID, "instructor-1")
		if !errors.Is(err, ErrValidationFailed) {
			t.Errorf("err = %v, want ErrValidationFailed", err)
		}
	})

	t.Run("returns the settled totals once graded", func(t *testing.T) {
		env := newGradingTestEnv(t)
		attemptID := submitEssayAttempt(t, env)
		essay := pendingEssayAnswer(t, env, attemptID)

		if _, err := env.svc.GradeAnswer(ctx, essay.ID, &GradeAnswerRequest{PointsEarned: decimal.NewFromInt(20)}, "instructor-1"); err != nil {
			t.Fatalf("GradeAnswer returned error: %v", err)
		}

		result, err := env.svc.FinalizeAttempt(ctx, attemptID, "instructor-1")
		if err != nil {
			t.Fatalf("FinalizeAttempt returned error: %v", err)
		}
		if !result.Score.Equal(decimal.NewFromInt(30)) {
			t.Errorf("Score = %v, want 30", result.Score)
		}
		if !result.Percentage.Equal(decimal.NewFromInt(100)) {
			t.Errorf("Percentage = %v, want 100", result.Percentage)
		}
		if result.Passed == nil || !*result.Passed {
			t.Errorf("Passed = %v, want true", result.Passed)
		}
		if len(result.Answers) != 2 {
			t.Errorf("Answers = %d, want 2", len(result.Answers))
		}
	})

	t.Run("unknown attempt", func(t *testing.T) {
		env := newGradingTestEnv(t)
		_, err := env.svc.FinalizeAttempt(ctx, 999, "instructor-1")
		if !errors.Is(err, ErrAttemptNotFound) {
			t.Errorf("err = %v, want ErrAttemptNotFound", err)
		}
	})
}

func TestGradingService_RegradeAttempt(t *testing.T) {
	ctx := context.Background()

	t.Run("picks up an answer key fix", func(t *testing.T) {
		env := newGradingTestEnv(t)
		quiz := autoGradableQuiz(env.repo, nil)

		started, err := env.attempts.Start(ctx, &StartAttemptRequest{QuizID: quiz.ID}, "student-1")
		if err != nil {
			t.Fatalf("Start returned error: %v", err)
		}
		completed, err := env.attempts.Complete(ctx, &CompleteAttemptRequest{
			AttemptID: started.ID,
			Answers: []RecordAnswerRequest{
				{QuestionID: 101, SelectedOptionID: uintPtr(1011)},
				{QuestionID: 102, AnswerText: strPtr("grace hopper")},
			},
		}, "student-1")
		if err != nil {
			t.Fatalf("Complete returned error: %v", err)
		}
		if !completed.Score.Equal(decimal.NewFromInt(5)) {
			t.Fatalf("Score = %v, want 5 before the key fix", completed.Score)
		}

		// The instructor flips the key: option 1011 was right all along.
		quiz.Questions[0].Options[0].IsCorrect = true
		quiz.Questions[0].Options[1].IsCorrect = false

		result, err := env.svc.RegradeAttempt(ctx, started.ID, "instructor-1")
		if err != nil {
			t.Fatalf("RegradeAttempt returned error: %v", err)
		}
		if !result.Score.Equal(decimal.NewFromInt(15)) {
			t.Errorf("Score = %v, want 15 after the key fix", result.Score)
		}

		attempt, _ := env.repo.Attempt().GetByID(ctx, nil, started.ID)
		if !attempt.Passed {
			t.Error("Passed = false, want true after the key fix")
		}
	})

	t.Run("preserves manual grades", func(t *testing.T) {
		env := newGradingTestEnv(t)
		attemptID := submitEssayAttempt(t, env)
		essay := pendingEssayAnswer(t, env, attemptID)

		if _, err := env.svc.GradeAnswer(ctx, essay.ID, &GradeAnswerRequest{PointsEarned: decimal.NewFromInt(12)}, "instructor-1"); err != nil {
			t.Fatalf("GradeAnswer returned error: %v", err)
		}

		result, err := env.svc.RegradeAttempt(ctx, attemptID, "instructor-1")
		if err != nil {
			t.Fatalf("RegradeAttempt returned error: %v", err)
		}
		// 10 auto + 12 manual, the manual grade untouched by the regrade.
		if !result.Score.Equal(decimal.NewFromInt(22)) {
			t.Errorf("Score = %v, want 22", result.Score)
		}
	})

	t.Run("open attempt is rejected", func(t *testing.T) {
		env := newGradingTestEnv(t)
		quiz := autoGradableQuiz(env.repo, nil)
		started, err := env.attempts.Start(ctx, &StartAttemptRequest{QuizID: quiz.ID}, "student-1")
		if err != nil {
			t.Fatalf("Start returned error: %v", err)
		}

		_, err = env.svc.RegradeAttempt(ctx, started.ID, "instructor-1")
		if !errors.Is(err, ErrAttemptNotActive) {
			t.Errorf("err = %v, want ErrAttemptNotActive", err)
		}
	})
}

func TestGradingService_RegradeQuiz(t *testing.T) {
	ctx := context.Background()
	env := newGradingTestEnv(t)
	env.repo.addUser("student-2", models.RoleStudent)
	quiz := autoGradableQuiz(env.repo, nil)

	for _, student := range []string{"student-1", "student-2"} {
		started, err := env.attempts.Start(ctx, &StartAttemptRequest{QuizID: quiz.ID}, student)
		if err != nil {
			t.Fatalf("Start returned error: %v", err)
		}
		_, err = env.attempts.Complete(ctx, &CompleteAttemptRequest{
			AttemptID: started.ID,
			Answers:   []RecordAnswerRequest{{QuestionID: 101, SelectedOptionID: uintPtr(1011)}},
		}, student)
		if err != nil {
			t.Fatalf("Complete returned error: %v", err)
		}
	}
	// A still-open attempt must be skipped.
	open, err := env.attempts.Start(ctx, &StartAttemptRequest{QuizID: quiz.ID}, "instructor-1")
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	quiz.Questions[0].Options[0].IsCorrect = true
	quiz.Questions[0].Options[1].IsCorrect = false

	results, err := env.svc.RegradeQuiz(ctx, quiz.ID, "instructor-1")
	if err != nil {
		t.Fatalf("RegradeQuiz returned error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	for id, result := range results {
		if !result.Score.Equal(decimal.NewFromInt(10)) {
			t.Errorf("attempt %d score = %v, want 10", id, result.Score)
		}
	}
	if _, ok := results[open.ID]; ok {
		t.Error("open attempt was regraded")
	}
}
