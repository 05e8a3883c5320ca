package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edplatform/grading-service/internal/events"
	"github.com/edplatform/grading-service/internal/models"
	"github.com/edplatform/grading-service/internal/repositories"
	"github.com/edplatform/grading-service/internal/validator"
	"gorm.io/gorm"
)

type enrollmentService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	clock     Clock
	publisher events.EventPublisher
}

func NewEnrollmentService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, clock Clock, publisher events.EventPublisher) EnrollmentService {
	if clock == nil {
		clock = SystemClock()
	}
	return &enrollmentService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		clock:     clock,
		publisher: publisher,
	}
}

// ===== PROGRESS =====

// UpdateProgress clamps the reported progress into [0, 100] and promotes
// the enrollment to COMPLETED exactly once when 100 is reached. Completion
// is sticky: later lower progress values never demote it.
func (s *enrollmentService) UpdateProgress(ctx context.Context, enrollmentID uint, req *UpdateProgressRequest, userID string) (*EnrollmentResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	enrollment, err := s.getOwnedEnrollment(ctx, enrollmentID, userID, "update_progress")
	if err != nil {
		return nil, err
	}

	progress := clampProgress(req.ProgressPercentage)
	justCompleted := false
	now := s.clock.Now()

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		// Every progress report counts as course activity.
		enrollment.LastAccessed = &now

		if enrollment.IsCompleted() {
			// Only forward movement is recorded after completion.
			if progress > enrollment.ProgressPercentage {
				enrollment.ProgressPercentage = progress
			}
			return txRepo.Enrollment().Update(ctx, nil, enrollment)
		}

		enrollment.ProgressPercentage = progress
		if progress >= 100 {
			course, err := txRepo.Course().GetByID(ctx, nil, enrollment.CourseID)
			if err != nil {
				return fmt.Errorf("failed to get course: %w", err)
			}

			enrollment.Status = models.EnrollmentCompleted
			enrollment.CompletionDate = &now
			enrollment.CertificateEligible = course.CertificateEnabled
			justCompleted = true
		}
		return txRepo.Enrollment().Update(ctx, nil, enrollment)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update progress: %w", err)
	}

	if justCompleted {
		s.logger.Info("Enrollment completed",
			"enrollment_id", enrollment.ID,
			"course_id", enrollment.CourseID,
			"student_id", enrollment.StudentID,
			"certificate_eligible", enrollment.CertificateEligible)
		s.publishCompleted(ctx, enrollment)
	}

	return &EnrollmentResponse{Enrollment: enrollment, JustCompleted: justCompleted}, nil
}

// RecordAccess stamps the last-accessed time, used for engagement tracking.
func (s *enrollmentService) RecordAccess(ctx context.Context, enrollmentID uint, studentID string) error {
	enrollment, err := s.getOwnedEnrollment(ctx, enrollmentID, studentID, "record_access")
	if err != nil {
		return err
	}

	now := s.clock.Now()
	enrollment.LastAccessed = &now
	if err := s.repo.Enrollment().Update(ctx, s.db, enrollment); err != nil {
		return fmt.Errorf("failed to record access: %w", err)
	}
	return nil
}

// ===== CERTIFICATES =====

func (s *enrollmentService) IssueCertificate(ctx context.Context, enrollmentID uint, certificateURL string, userID string) (*EnrollmentResponse, error) {
	s.logger.Info("Issuing certificate",
		"enrollment_id", enrollmentID,
		"user_id", userID)

	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user.Role != models.RoleInstructor && user.Role != models.RoleAdmin {
		return nil, NewPermissionError(userID, enrollmentID, "enrollment", "issue_certificate", "requires instructor or admin role")
	}

	enrollment, err := s.getEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	if !enrollment.CertificateEligible {
		return nil, NewValidationError("enrollment", "not eligible for a certificate", enrollmentID)
	}
	if enrollment.CertificateIssued {
		return nil, NewValidationError("enrollment", "certificate already issued", enrollmentID)
	}

	enrollment.CertificateIssued = true
	enrollment.CertificateURL = &certificateURL
	if err := s.repo.Enrollment().Update(ctx, s.db, enrollment); err != nil {
		return nil, fmt.Errorf("failed to issue certificate: %w", err)
	}

	s.logger.Info("Certificate issued",
		"enrollment_id", enrollmentID,
		"student_id", enrollment.StudentID)

	return &EnrollmentResponse{Enrollment: enrollment}, nil
}

// ===== GET OPERATIONS =====

func (s *enrollmentService) GetByID(ctx context.Context, id uint, userID string) (*EnrollmentResponse, error) {
	enrollment, err := s.getEnrollment(ctx, id)
	if err != nil {
		return nil, err
	}

	if enrollment.StudentID != userID {
		user, err := s.repo.User().GetByID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to get user: %w", err)
		}
		if user.Role != models.RoleInstructor && user.Role != models.RoleAdmin {
			return nil, NewPermissionError(userID, id, "enrollment", "read", "not owner or insufficient permissions")
		}
	}

	return &EnrollmentResponse{Enrollment: enrollment}, nil
}

func (s *enrollmentService) GetByStudent(ctx context.Context, studentID string, filters repositories.EnrollmentFilters) ([]*EnrollmentResponse, int64, error) {
	enrollments, total, err := s.repo.Enrollment().GetByStudent(ctx, s.db, studentID, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get enrollments: %w", err)
	}

	responses := make([]*EnrollmentResponse, 0, len(enrollments))
	for _, enrollment := range enrollments {
		responses = append(responses, &EnrollmentResponse{Enrollment: enrollment})
	}
	return responses, total, nil
}

// ===== HELPER FUNCTIONS =====

func (s *enrollmentService) getEnrollment(ctx context.Context, id uint) (*models.Enrollment, error) {
	enrollment, err := s.repo.Enrollment().GetByID(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return enrollment, nil
}

func (s *enrollmentService) getOwnedEnrollment(ctx context.Context, id uint, userID, action string) (*models.Enrollment, error) {
	enrollment, err := s.getEnrollment(ctx, id)
	if err != nil {
		return nil, err
	}
	if enrollment.StudentID != userID {
		return nil, NewPermissionError(userID, id, "enrollment", action, "not owned by student")
	}
	return enrollment, nil
}

func (s *enrollmentService) publishCompleted(ctx context.Context, enrollment *models.Enrollment) {
	if s.publisher == nil {
		return
	}

	payload := events.EnrollmentCompletedEvent{
		EnrollmentID:        enrollment.ID,
		CourseID:            enrollment.CourseID,
		StudentID:           enrollment.StudentID,
		CertificateEligible: enrollment.CertificateEligible,
	}

	if err := s.publisher.Publish(ctx, events.TopicEnrollmentEvents, events.NewEvent(events.EventEnrollmentCompleted, payload)); err != nil {
		s.logger.Error("Failed to publish enrollment event",
			"enrollment_id", enrollment.ID,
			"error", err)
	}
}

func clampProgress(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}
