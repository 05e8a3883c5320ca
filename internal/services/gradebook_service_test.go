package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/edplatform/grading-service/internal/models"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func TestGradebookService_ExportQuizResults(t *testing.T) {
	ctx := context.Background()

	newEnv := func(t *testing.T) (*mockRepository, GradebookService) {
		t.Helper()
		repo := newMockRepository()
		repo.addUser("student-1", models.RoleStudent).FullName = "Ada Lovelace"
		repo.addUser("student-2", models.RoleStudent).FullName = "Alan Turing"
		repo.addUser("instructor-1", models.RoleInstructor)

		autoGradableQuiz(repo, nil)

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		clock := &fixedClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
		svc := NewGradebookService(repo, nil, logger, clock)
		return repo, svc
	}

	addAttempt := func(repo *mockRepository, id uint, studentID string, score, percentage string, passed bool) {
		started := time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC)
		ended := started.Add(20 * time.Minute)
		scoreDec, _ := decimal.NewFromString(score)
		pctDec, _ := decimal.NewFromString(percentage)
		repo.attempts[id] = &models.QuizAttempt{
			ID:               id,
			QuizID:           10,
			StudentID:        studentID,
			AttemptNumber:    1,
			Status:           models.AttemptCompleted,
			StartedAt:        &started,
			EndedAt:          &ended,
			TimeTakenMinutes: 20,
			Score:            &scoreDec,
			Percentage:       &pctDec,
			Passed:           passed,
			IsGraded:         true,
		}
	}

	t.Run("renders one row per attempt", func(t *testing.T) {
		repo, svc := newEnv(t)
		addAttempt(repo, 500, "student-1", "15", "100", true)
		addAttempt(repo, 501, "student-2", "5", "33.33", false)

		data, filename, err := svc.ExportQuizResults(ctx, 10, "instructor-1")
		if err != nil {
			t.Fatalf("ExportQuizResults() error = %v", err)
		}
		if !strings.HasPrefix(filename, "quiz-10-results-") || !strings.HasSuffix(filename, ".xlsx") {
			t.Errorf("filename = %q, want quiz-10-results-*.xlsx", filename)
		}

		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("OpenReader() error = %v", err)
		}
		defer f.Close()

		rows, err := f.GetRows("Results")
		if err != nil {
			t.Fatalf("GetRows() error = %v", err)
		}
		if len(rows) != 3 {
			t.Fatalf("got %d rows, want header + 2 attempts", len(rows))
		}
		if rows[0][0] != "Attempt ID" || rows[0][1] != "Student" {
			t.Errorf("header = %v, want gradebook columns", rows[0])
		}
		if rows[1][1] != "Ada Lovelace" {
			t.Errorf("row 1 student = %q, want Ada Lovelace", rows[1][1])
		}
		if rows[2][3] != string(models.AttemptCompleted) {
			t.Errorf("row 2 status = %q, want completed", rows[2][3])
		}
	})

	t.Run("exports empty sheet when quiz has no attempts", func(t *testing.T) {
		_, svc := newEnv(t)

		data, _, err := svc.ExportQuizResults(ctx, 10, "instructor-1")
		if err != nil {
			t.Fatalf("ExportQuizResults() error = %v", err)
		}

		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("OpenReader() error = %v", err)
		}
		defer f.Close()

		rows, err := f.GetRows("Results")
		if err != nil {
			t.Fatalf("GetRows() error = %v", err)
		}
		if len(rows) != 1 {
			t.Errorf("got %d rows, want header only", len(rows))
		}
	})

	t.Run("rejects students", func(t *testing.T) {
		_, svc := newEnv(t)

		_, _, err := svc.ExportQuizResults(ctx, 10, "student-1")
		if !errors.Is(err, ErrForbidden) {
			t.Errorf("ExportQuizResults() error = %v, want ErrForbidden", err)
		}
	})

	t.Run("unknown quiz", func(t *testing.T) {
		_, svc := newEnv(t)

		_, _, err := svc.ExportQuizResults(ctx, 999, "instructor-1")
		if !errors.Is(err, ErrQuizNotFound) {
			t.Errorf("ExportQuizResults() error = %v, want ErrQuizNotFound", err)
		}
	})
}
