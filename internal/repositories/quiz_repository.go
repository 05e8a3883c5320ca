package repositories

import (
	"context"

	"github.com/edplatform/grading-service/internal/models"
	"gorm.io/gorm"
)

// QuizRepository interface for quiz read/write operations
type QuizRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error)
	GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) // Include questions and options
	Update(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// Query operations
	GetByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.Quiz, error)

	// Validation and checks
	Exists(ctx context.Context, tx *gorm.DB, id uint) (bool, error)
}

// QuestionRepository interface for question operations
type QuestionRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, question *models.Question) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error)
	Update(ctx context.Context, tx *gorm.DB, question *models.Question) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// Bulk operations
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error)

	// Quiz-scoped queries; options are always preloaded
	GetByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) ([]*models.Question, error)
	CountByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) (int, error)
	SumPointsByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) (int, error)
}
