package repositories

import (
	"context"
	"time"

	"github.com/edplatform/grading-service/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AttemptRepository interface for quiz attempt operations
type AttemptRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error)
	GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) // Include quiz, student, answers
	Update(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// Query operations
	List(ctx context.Context, tx *gorm.DB, filters AttemptFilters) ([]*models.QuizAttempt, int64, error)
	GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters AttemptFilters) ([]*models.QuizAttempt, int64, error)
	GetByQuiz(ctx context.Context, tx *gorm.DB, quizID uint, filters AttemptFilters) ([]*models.QuizAttempt, int64, error)
	GetByStudentAndQuiz(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) ([]*models.QuizAttempt, error)

	// Active attempt tracking
	GetActiveAttempt(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (*models.QuizAttempt, error)
	HasActiveAttempt(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (bool, error)

	// Timeout scanning: IN_PROGRESS attempts on time-limited quizzes whose
	// deadline passed before the given instant
	GetExpiredAttempts(ctx context.Context, tx *gorm.DB, now time.Time) ([]*models.QuizAttempt, error)

	// Attempt numbering
	GetAttemptCount(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (int, error)
	GetNextAttemptNumber(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (int, error)

	// Statistics
	GetQuizAttemptStats(ctx context.Context, tx *gorm.DB, quizID uint) (*AttemptStats, error)
}

// AnswerRepository interface for quiz answer operations
type AnswerRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, answer *models.QuizAnswer) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAnswer, error)
	GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAnswer, error) // Include question with options
	Update(ctx context.Context, tx *gorm.DB, answer *models.QuizAnswer) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// Upsert by (attempt, question)
	UpsertAnswer(ctx context.Context, tx *gorm.DB, answer *models.QuizAnswer) error

	// Query operations
	GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.QuizAnswer, error)
	GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.QuizAnswer, error)

	// Grading operations
	UpdateGrade(ctx context.Context, tx *gorm.DB, id uint, points decimal.Decimal, isCorrect *bool, feedback *string, graderID *string) error
	GetPendingManual(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.QuizAnswer, error)
	HasPendingManual(ctx context.Context, tx *gorm.DB, attemptID uint) (bool, error)

	// Statistics
	GetGradingStats(ctx context.Context, tx *gorm.DB, quizID uint) (*GradingStats, error)
}
