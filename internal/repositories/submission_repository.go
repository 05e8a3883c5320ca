package repositories

import (
	"context"

	"github.com/edplatform/grading-service/internal/models"
	"gorm.io/gorm"
)

// AssignmentRepository interface for assignment read operations. The grading
// service does not own assignment authoring; it only reads the late policy
// and due dates.
type AssignmentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, assignment *models.Assignment) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Assignment, error)
	Update(ctx context.Context, tx *gorm.DB, assignment *models.Assignment) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	GetByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.Assignment, error)
	Exists(ctx context.Context, tx *gorm.DB, id uint) (bool, error)
}

// SubmissionRepository interface for assignment submission operations
type SubmissionRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, submission *models.AssignmentSubmission) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AssignmentSubmission, error)
	GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.AssignmentSubmission, error) // Include assignment
	Update(ctx context.Context, tx *gorm.DB, submission *models.AssignmentSubmission) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// Query operations
	GetByAssignment(ctx context.Context, tx *gorm.DB, assignmentID uint, filters SubmissionFilters) ([]*models.AssignmentSubmission, int64, error)
	GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters SubmissionFilters) ([]*models.AssignmentSubmission, int64, error)
	GetByAssignmentAndStudent(ctx context.Context, tx *gorm.DB, assignmentID uint, studentID string) ([]*models.AssignmentSubmission, error)

	// Validation
	CountByAssignmentAndStudent(ctx context.Context, tx *gorm.DB, assignmentID uint, studentID string) (int, error)

	// Grading queue
	GetNeedingGrading(ctx context.Context, tx *gorm.DB, assignmentID uint) ([]*models.AssignmentSubmission, error)

	// Statistics
	GetAssignmentSubmissionStats(ctx context.Context, tx *gorm.DB, assignmentID uint) (*SubmissionStats, error)
}
