package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Repository aggregates all repository interfaces.
type Repository interface {
	// Quiz domain
	Quiz() QuizRepository
	Question() QuestionRepository

	// Attempt domain
	Attempt() AttemptRepository
	Answer() AnswerRepository

	// Assignment domain
	Assignment() AssignmentRepository
	Submission() SubmissionRepository

	// Course domain
	Enrollment() EnrollmentRepository
	Course() CourseRepository
	Review() ReviewRepository

	// User domain (read-only for the grading service)
	User() UserRepository

	// Transaction support
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager manages repository lifecycle.
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// IsNotFoundError reports whether err means a missing row.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
