package repositories

import (
	"context"

	"github.com/edplatform/grading-service/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EnrollmentRepository interface for enrollment progress operations
type EnrollmentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Enrollment, error)
	GetByIDWithCourse(ctx context.Context, tx *gorm.DB, id uint) (*models.Enrollment, error)
	Update(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters EnrollmentFilters) ([]*models.Enrollment, int64, error)
	GetByCourseAndStudent(ctx context.Context, tx *gorm.DB, courseID uint, studentID string) (*models.Enrollment, error)
}

// CourseRepository interface for course read and rating operations
type CourseRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error)
	Exists(ctx context.Context, tx *gorm.DB, id uint) (bool, error)

	// UpdateRating writes the running aggregate in one statement
	UpdateRating(ctx context.Context, tx *gorm.DB, id uint, rating decimal.Decimal, totalRatings int) error
}

// ReviewRepository interface for course review operations
type ReviewRepository interface {
	Create(ctx context.Context, tx *gorm.DB, review *models.CourseReview) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.CourseReview, error)
	GetByCourseAndStudent(ctx context.Context, tx *gorm.DB, courseID uint, studentID string) (*models.CourseReview, error)
	ExistsByCourseAndStudent(ctx context.Context, tx *gorm.DB, courseID uint, studentID string) (bool, error)
	CountByCourse(ctx context.Context, tx *gorm.DB, courseID uint) (int64, error)
}
