package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edplatform/grading-service/internal/events"
	"github.com/edplatform/grading-service/internal/models"
	"github.com/edplatform/grading-service/internal/repositories"
	"github.com/edplatform/grading-service/internal/validator"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type submissionService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	clock     Clock
	publisher events.EventPublisher
}

func NewSubmissionService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, clock Clock, publisher events.EventPublisher) SubmissionService {
	if clock == nil {
		clock = SystemClock()
	}
	return &submissionService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		clock:     clock,
		publisher: publisher,
	}
}

// ===== SUBMISSION =====

func (s *submissionService) Submit(ctx context.Context, req *SubmitAssignmentRequest, studentID string) (*SubmissionResponse, error) {
	s.logger.Info("Submitting assignment",
		"assignment_id", req.AssignmentID,
		"student_id", studentID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	assignment, err := s.getAssignment(ctx, req.AssignmentID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if !assignment.IsAvailableAt(now) {
		return nil, ErrSubmissionWindowClosed
	}
	if assignment.IsPastDueAt(now) {
		if !assignment.LateSubmissionAllowed {
			return nil, ErrSubmissionWindowClosed
		}
		if assignment.MaxLateDays != nil && assignment.DaysLateAt(now) > *assignment.MaxLateDays {
			return nil, ErrSubmissionWindowClosed
		}
	}

	count, err := s.repo.Submission().CountByAssignmentAndStudent(ctx, s.db, assignment.ID, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to count submissions: %w", err)
	}
	if assignment.MaxAttempts != nil && count >= *assignment.MaxAttempts {
		return nil, ErrAttemptLimitExceeded
	}

	// Lateness is stamped once at submission time. A later change to the
	// due date does not rewrite history.
	latePenalty := assignment.LatePenaltyAt(now)
	submission := &models.AssignmentSubmission{
		AssignmentID:    assignment.ID,
		StudentID:       studentID,
		AttemptNumber:   count + 1,
		Status:          models.SubmissionSubmitted,
		SubmissionText:  req.SubmissionText,
		FileURL:         req.FileURL,
		FileName:        req.FileName,
		FileSizeBytes:   req.FileSizeBytes,
		ExternalURL:     req.ExternalURL,
		StudentComments: req.Comments,
		SubmissionDate:  now,
		IsLate:          assignment.IsPastDueAt(now),
		DaysLate:        assignment.DaysLateAt(now),
		NeedsGrading:    true,
	}
	if latePenalty.IsPositive() {
		submission.LatePenalty = &latePenalty
	}

	if !submission.HasContent() {
		return nil, ErrSubmissionEmpty
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		return txRepo.Submission().Create(ctx, nil, submission)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	s.logger.Info("Assignment submitted",
		"submission_id", submission.ID,
		"assignment_id", assignment.ID,
		"student_id", studentID,
		"attempt_number", submission.AttemptNumber,
		"is_late", submission.IsLate)

	return s.buildSubmissionResponse(ctx, submission, assignment, studentID), nil
}

// ===== GET OPERATIONS =====

func (s *submissionService) GetByID(ctx context.Context, id uint, userID string) (*SubmissionResponse, error) {
	submission, err := s.repo.Submission().GetByID(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	if submission.StudentID != userID {
		isStaff, err := s.isStaff(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !isStaff {
			return nil, NewPermissionError(userID, id, "submission", "read", "not owner or insufficient permissions")
		}
	}

	assignment, err := s.getAssignment(ctx, submission.AssignmentID)
	if err != nil {
		return nil, err
	}
	return s.buildSubmissionResponse(ctx, submission, assignment, userID), nil
}

func (s *submissionService) GetByAssignment(ctx context.Context, assignmentID uint, filters repositories.SubmissionFilters, userID string) (*SubmissionListResponse, error) {
	assignment, err := s.getAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	isStaff, err := s.isStaff(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !isStaff {
		filters.StudentID = &userID
	}

	submissions, total, err := s.repo.Submission().GetByAssignment(ctx, s.db, assignmentID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to get submissions: %w", err)
	}

	return s.buildSubmissionListResponse(ctx, submissions, assignment, userID, total, filters), nil
}

func (s *submissionService) GetByStudent(ctx context.Context, studentID string, filters repositories.SubmissionFilters) (*SubmissionListResponse, error) {
	filters.StudentID = &studentID

	submissions, total, err := s.repo.Submission().GetByStudent(ctx, s.db, studentID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to get submissions by student: %w", err)
	}

	return s.buildSubmissionListResponse(ctx, submissions, nil, studentID, total, filters), nil
}

// ===== GRADING =====

func (s *submissionService) Grade(ctx context.Context, submissionID uint, req *GradeSubmissionRequest, graderID string) (*SubmissionResponse, error) {
	s.logger.Info("Grading submission",
		"submission_id", submissionID,
		"grade", req.Grade,
		"grader_id", graderID)

	submission, assignment, err := s.gradeableSubmission(ctx, submissionID, req, graderID)
	if err != nil {
		return nil, err
	}
	if submission.Status == models.SubmissionGraded {
		return nil, ErrSubmissionAlreadyGraded
	}

	if err := s.applyGrade(ctx, submission, req, graderID); err != nil {
		return nil, err
	}

	s.publishSubmissionEvent(ctx, events.EventSubmissionGraded, submission)

	return s.buildSubmissionResponse(ctx, submission, assignment, graderID), nil
}

// Regrade overwrites an existing grade. Unlike Grade it requires the
// submission to have been graded before.
func (s *submissionService) Regrade(ctx context.Context, submissionID uint, req *GradeSubmissionRequest, graderID string) (*SubmissionResponse, error) {
	s.logger.Info("Regrading submission",
		"submission_id", submissionID,
		"grade", req.Grade,
		"grader_id", graderID)

	submission, assignment, err := s.gradeableSubmission(ctx, submissionID, req, graderID)
	if err != nil {
		return nil, err
	}
	if submission.Status != models.SubmissionGraded {
		return nil, ErrSubmissionNotGraded
	}

	if err := s.applyGrade(ctx, submission, req, graderID); err != nil {
		return nil, err
	}

	s.publishSubmissionEvent(ctx, events.EventSubmissionGraded, submission)

	return s.buildSubmissionResponse(ctx, submission, assignment, graderID), nil
}

// ReturnToStudent sends the submission back for rework with mandatory
// feedback. The submission re-enters the grading queue when resubmitted.
func (s *submissionService) ReturnToStudent(ctx context.Context, submissionID uint, req *ReturnSubmissionRequest, graderID string) (*SubmissionResponse, error) {
	s.logger.Info("Returning submission to student",
		"submission_id", submissionID,
		"grader_id", graderID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if err := s.checkGraderRole(ctx, graderID, submissionID); err != nil {
		return nil, err
	}

	submission, err := s.repo.Submission().GetByID(ctx, s.db, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	now := s.clock.Now()
	submission.Status = models.SubmissionReturned
	submission.Feedback = &req.Feedback
	submission.GradedBy = &graderID
	submission.GradedDate = &now
	submission.NeedsGrading = true

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		return txRepo.Submission().Update(ctx, nil, submission)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to return submission: %w", err)
	}

	s.publishSubmissionEvent(ctx, events.EventSubmissionReturned, submission)

	assignment, err := s.getAssignment(ctx, submission.AssignmentID)
	if err != nil {
		return nil, err
	}
	return s.buildSubmissionResponse(ctx, submission, assignment, graderID), nil
}

// ===== HELPER FUNCTIONS =====

func (s *submissionService) gradeableSubmission(ctx context.Context, submissionID uint, req *GradeSubmissionRequest, graderID string) (*models.AssignmentSubmission, *models.Assignment, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, nil, fmt.Errorf("validation failed: %w", err)
	}
	if err := s.checkGraderRole(ctx, graderID, submissionID); err != nil {
		return nil, nil, err
	}

	submission, err := s.repo.Submission().GetByID(ctx, s.db, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, ErrSubmissionNotFound
		}
		return nil, nil, fmt.Errorf("failed to get submission: %w", err)
	}

	assignment, err := s.getAssignment(ctx, submission.AssignmentID)
	if err != nil {
		return nil, nil, err
	}

	if req.Grade.IsNegative() {
		return nil, nil, NewValidationError("grade", "must not be negative", req.Grade)
	}
	if assignment.MaxPoints != nil {
		maxPoints := decimal.NewFromInt(int64(*assignment.MaxPoints))
		if req.Grade.GreaterThan(maxPoints) {
			return nil, nil, NewValidationError("grade",
				fmt.Sprintf("must be between 0 and %s", maxPoints), req.Grade)
		}
	}

	return submission, assignment, nil
}

func (s *submissionService) applyGrade(ctx context.Context, submission *models.AssignmentSubmission, req *GradeSubmissionRequest, graderID string) error {
	now := s.clock.Now()
	grade := req.Grade
	submission.Grade = &grade
	submission.Feedback = req.Feedback
	submission.GradedBy = &graderID
	submission.GradedDate = &now
	submission.Status = models.SubmissionGraded
	submission.NeedsGrading = false

	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		return txRepo.Submission().Update(ctx, nil, submission)
	})
	if err != nil {
		return fmt.Errorf("failed to store grade: %w", err)
	}

	s.logger.Info("Submission graded",
		"submission_id", submission.ID,
		"grade", grade,
		"final_grade", submission.FinalGrade())

	return nil
}

func (s *submissionService) checkGraderRole(ctx context.Context, graderID string, submissionID uint) error {
	isStaff, err := s.isStaff(ctx, graderID)
	if err != nil {
		return err
	}
	if !isStaff {
		return NewPermissionError(graderID, submissionID, "submission", "grade", "grading requires instructor or admin role")
	}
	return nil
}

func (s *submissionService) isStaff(ctx context.Context, userID string) (bool, error) {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return false, ErrUserNotFound
		}
		return false, fmt.Errorf("failed to get user: %w", err)
	}
	return user.Role == models.RoleInstructor || user.Role == models.RoleAdmin, nil
}

func (s *submissionService) getAssignment(ctx context.Context, id uint) (*models.Assignment, error) {
	assignment, err := s.repo.Assignment().GetByID(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return assignment, nil
}

func (s *submissionService) buildSubmissionResponse(ctx context.Context, submission *models.AssignmentSubmission, assignment *models.Assignment, userID string) *SubmissionResponse {
	response := &SubmissionResponse{
		AssignmentSubmission: submission,
		FinalGrade:           submission.FinalGrade(),
	}
	if assignment != nil && submission.Grade != nil {
		percentage := submission.PercentageGrade(assignment)
		response.PercentageGrade = &percentage
	}
	if isStaff, err := s.isStaff(ctx, userID); err == nil && isStaff {
		response.CanGrade = submission.Status != models.SubmissionGraded
	}
	return response
}

func (s *submissionService) buildSubmissionListResponse(ctx context.Context, submissions []*models.AssignmentSubmission, assignment *models.Assignment, userID string, total int64, filters repositories.SubmissionFilters) *SubmissionListResponse {
	responses := make([]*SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, s.buildSubmissionResponse(ctx, submission, assignment, userID))
	}

	page := 1
	if filters.Limit > 0 {
		page = filters.Offset/filters.Limit + 1
	}

	return &SubmissionListResponse{
		Submissions: responses,
		Total:       total,
		Page:        page,
		Size:        len(responses),
	}
}

func (s *submissionService) publishSubmissionEvent(ctx context.Context, eventType string, submission *models.AssignmentSubmission) {
	if s.publisher == nil {
		return
	}

	payload := events.SubmissionGradedEvent{
		SubmissionID: submission.ID,
		AssignmentID: submission.AssignmentID,
		StudentID:    submission.StudentID,
	}
	if submission.Grade != nil {
		payload.Grade = submission.Grade.String()
	}
	if final := submission.FinalGrade(); final != nil {
		payload.FinalGrade = final.String()
	}
	if submission.GradedBy != nil {
		payload.GradedBy = *submission.GradedBy
	}

	if err := s.publisher.Publish(ctx, events.TopicSubmissionEvents, events.NewEvent(eventType, payload)); err != nil {
		s.logger.Error("Failed to publish submission event",
			"submission_id", submission.ID,
			"event_type", eventType,
			"error", err)
	}
}
