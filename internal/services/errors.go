package services

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to handlers; mapped to transport status codes
// there via errors.Is. Everything here is per-request and recoverable.
var (
	// Quiz availability
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrQuizNotPublished = errors.New("quiz is not published")
	ErrQuizNotAvailable = errors.New("quiz is outside its availability window")

	// Attempt lifecycle
	ErrAttemptNotFound          = errors.New("attempt not found")
	ErrAttemptAlreadyInProgress = errors.New("an in-progress attempt already exists")
	ErrAttemptLimitExceeded     = errors.New("maximum attempts exceeded")
	ErrAttemptExpired           = errors.New("attempt time limit has elapsed")
	ErrAttemptNotActive         = errors.New("attempt is not in progress")
	ErrAnswerNotFound           = errors.New("answer not found")
	ErrAnswerNotPendingGrading  = errors.New("answer is not pending manual grading")

	// Assignment submissions
	ErrAssignmentNotFound      = errors.New("assignment not found")
	ErrSubmissionNotFound      = errors.New("submission not found")
	ErrSubmissionWindowClosed  = errors.New("submission window is closed")
	ErrSubmissionEmpty         = errors.New("submission has no content")
	ErrSubmissionNotGraded     = errors.New("submission has not been graded")
	ErrSubmissionAlreadyGraded = errors.New("submission is already graded")

	// Enrollment / course
	ErrEnrollmentNotFound  = errors.New("enrollment not found")
	ErrCourseNotFound      = errors.New("course not found")
	ErrReviewAlreadyExists = errors.New("review already exists for this course")

	// Generic
	ErrUserNotFound     = errors.New("user not found")
	ErrValidationFailed = errors.New("validation failed")
	ErrForbidden        = errors.New("forbidden")
)

// ValidationError reports a single malformed or out-of-range input field.
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

func NewValidationError(field, message string, value interface{}) error {
	return &ValidationError{Field: field, Message: message, Value: value}
}

// PermissionError reports a denied action on a resource.
type PermissionError struct {
	UserID     string
	ResourceID uint
	Resource   string
	Action     string
	Reason     string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %d: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func (e *PermissionError) Is(target error) bool {
	return target == ErrForbidden
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) error {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}
