package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/edplatform/grading-service/internal/models"
	"github.com/edplatform/grading-service/internal/repositories"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type gradebookService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
	clock  Clock
}

func NewGradebookService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, clock Clock) GradebookService {
	if clock == nil {
		clock = SystemClock()
	}
	return &gradebookService{
		repo:   repo,
		db:     db,
		logger: logger,
		clock:  clock,
	}
}

var gradebookColumns = []string{
	"Attempt ID",
	"Student",
	"Attempt #",
	"Status",
	"Started At",
	"Ended At",
	"Time Taken (min)",
	"Score",
	"Max Score",
	"Percentage",
	"Passed",
	"Fully Graded",
}

// ===== EXPORT =====

// ExportQuizResults renders every attempt for a quiz into an xlsx
// workbook and returns the file bytes with a suggested filename.
func (s *gradebookService) ExportQuizResults(ctx context.Context, quizID uint, userID string) ([]byte, string, error) {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, "", ErrUserNotFound
		}
		return nil, "", fmt.Errorf("failed to get user: %w", err)
	}
	if user.Role != models.RoleInstructor && user.Role != models.RoleAdmin {
		return nil, "", NewPermissionError(userID, quizID, "quiz", "export_results", "export requires instructor or admin role")
	}

	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, s.db, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, "", ErrQuizNotFound
		}
		return nil, "", fmt.Errorf("failed to get quiz: %w", err)
	}

	attempts, _, err := s.repo.Attempt().GetByQuiz(ctx, s.db, quizID, repositories.AttemptFilters{})
	if err != nil {
		return nil, "", fmt.Errorf("failed to get attempts: %w", err)
	}

	students, err := s.studentNames(ctx, attempts)
	if err != nil {
		return nil, "", err
	}

	data, err := s.renderWorkbook(quiz, attempts, students)
	if err != nil {
		return nil, "", fmt.Errorf("failed to render workbook: %w", err)
	}

	filename := fmt.Sprintf("quiz-%d-results-%s.xlsx", quizID, s.clock.Now().Format("2006-01-02"))
	s.logger.Info("Exported quiz results",
		"quiz_id", quizID,
		"attempts", len(attempts),
		"user_id", userID)

	return data, filename, nil
}

func (s *gradebookService) renderWorkbook(quiz *models.Quiz, attempts []*models.QuizAttempt, students map[string]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Results"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	for col, title := range gradebookColumns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return nil, err
		}
	}

	maxScore := quiz.MaxScore()
	for i, attempt := range attempts {
		row := i + 2
		values := []interface{}{
			attempt.ID,
			studentLabel(students, attempt.StudentID),
			attempt.AttemptNumber,
			string(attempt.Status),
			formatTimePtr(attempt.StartedAt),
			formatTimePtr(attempt.EndedAt),
			attempt.TimeTakenMinutes,
			decimalPtrValue(attempt.Score),
			maxScore.InexactFloat64(),
			decimalPtrValue(attempt.Percentage),
			attempt.Passed,
			attempt.IsGraded,
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ===== HELPER FUNCTIONS =====

func (s *gradebookService) studentNames(ctx context.Context, attempts []*models.QuizAttempt) (map[string]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, attempt := range attempts {
		if !seen[attempt.StudentID] {
			seen[attempt.StudentID] = true
			ids = append(ids, attempt.StudentID)
		}
	}
	if len(ids) == 0 {
		return map[string]string{}, nil
	}

	users, err := s.repo.User().GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get students: %w", err)
	}

	names := make(map[string]string, len(users))
	for _, user := range users {
		names[user.ID] = user.FullName
	}
	return names, nil
}

func studentLabel(names map[string]string, studentID string) string {
	if name, ok := names[studentID]; ok && name != "" {
		return name
	}
	return studentID
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func decimalPtrValue(v *decimal.Decimal) interface{} {
	if v == nil {
		return ""
	}
	return v.InexactFloat64()
}
