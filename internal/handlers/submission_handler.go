package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edplatform/grading-service/internal/services"
	"github.com/edplatform/grading-service/internal/validator"
)

type SubmissionHandler struct {
	BaseHandler
	submissionService services.SubmissionService
	validator         *validator.Validator
}

func NewSubmissionHandler(
	submissionService services.SubmissionService,
	validator *validator.Validator,
	logger *slog.Logger,
) *SubmissionHandler {
	return &SubmissionHandler{
		BaseHandler:       NewBaseHandler(logger),
		submissionService: submissionService,
		validator:         validator,
	}
}

// Submit hands in an assignment for the calling student.
func (h *SubmissionHandler) Submit(c *gin.Context) {
	h.LogRequest(c, "Submitting assignment")

	var req services.SubmitAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	studentID := h.currentUserID(c)
	if studentID == "" {
		return
	}

	submission, err := h.submissionService.Submit(c.Request.Context(), &req, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, submission)
}

func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	submission, err := h.submissionService.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, submission)
}

// GetByAssignment lists submissions on an assignment for graders.
func (h *SubmissionHandler) GetByAssignment(c *gin.Context) {
	assignmentID := h.parseIDParam(c, "assignment_id")
	if assignmentID == 0 {
		return
	}

	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	filters := h.parseSubmissionFilters(c)
	submissions, err := h.submissionService.GetByAssignment(c.Request.Context(), assignmentID, filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, submissions)
}

// ListMySubmissions lists the caller's own submissions.
func (h *SubmissionHandler) ListMySubmissions(c *gin.Context) {
	studentID := h.currentUserID(c)
	if studentID == "" {
		return
	}

	filters := h.parseSubmissionFilters(c)
	submissions, err := h.submissionService.GetByStudent(c.Request.Context(), studentID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, submissions)
}

// Grade assigns a grade and feedback to a submission.
func (h *SubmissionHandler) Grade(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Grading submission", "submission_id", id)

	var req services.GradeSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	graderID := h.currentUserID(c)
	if graderID == "" {
		return
	}

	submission, err := h.submissionService.Grade(c.Request.Context(), id, &req, graderID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, submission)
}

// Regrade replaces the grade on an already-graded submission.
func (h *SubmissionHandler) Regrade(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Regrading submission", "submission_id", id)

	var req services.GradeSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	graderID := h.currentUserID(c)
	if graderID == "" {
		return
	}

	submission, err := h.submissionService.Regrade(c.Request.Context(), id, &req, graderID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, submission)
}

// ReturnToStudent sends a submission back for rework with feedback.
func (h *SubmissionHandler) ReturnToStudent(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Returning submission", "submission_id", id)

	var req services.ReturnSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	graderID := h.currentUserID(c)
	if graderID == "" {
		return
	}

	submission, err := h.submissionService.ReturnToStudent(c.Request.Context(), id, &req, graderID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, submission)
}

func (h *SubmissionHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrAssignmentNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Assignment not found",
		})
	case errors.Is(err, services.ErrSubmissionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Submission not found",
		})
	case errors.Is(err, services.ErrSubmissionWindowClosed):
		c.JSON(http.StatusGone, ErrorResponse{
			Message: "Submission window is closed",
		})
	case errors.Is(err, services.ErrSubmissionEmpty):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Submission has no content",
		})
	case errors.Is(err, services.ErrSubmissionAlreadyGraded):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Submission is already graded",
		})
	case errors.Is(err, services.ErrSubmissionNotGraded):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Submission has not been graded",
		})
	case errors.Is(err, services.ErrValidationFailed):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: err.Error(),
		})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Forbidden",
		})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
