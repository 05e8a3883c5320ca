package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edplatform/grading-service/internal/services"
	"github.com/edplatform/grading-service/internal/validator"
)

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
	validator      *validator.Validator
}

func NewAttemptHandler(
	attemptService services.AttemptService,
	validator *validator.Validator,
	logger *slog.Logger,
) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
		validator:      validator,
	}
}

// StartAttempt opens a new attempt on a quiz for the calling student.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	h.LogRequest(c, "Starting quiz attempt")

	var req services.StartAttemptRequest
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

	attempt, err := h.attemptService.Start(c.Request.Context(), &req, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, attempt)
}

// ResumeAttempt reopens an in-progress attempt, returning the stripped
// question set and remaining time.
func (h *AttemptHandler) ResumeAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Resuming quiz attempt", "attempt_id", id)

	studentID := h.currentUserID(c)
	if studentID == "" {
		return
	}

	attempt, err := h.attemptService.Resume(c.Request.Context(), id, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// RecordAnswer saves or replaces a single answer on an open attempt.
func (h *AttemptHandler) RecordAnswer(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}

	h.LogRequest(c, "Recording answer", "attempt_id", attemptID)

	var req services.RecordAnswerRequest
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

	if err := h.attemptService.RecordAnswer(c.Request.Context(), attemptID, &req, studentID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// CompleteAttempt submits an attempt for grading, including any final
// answers carried in the payload.
func (h *AttemptHandler) CompleteAttempt(c *gin.Context) {
	h.LogRequest(c, "Completing quiz attempt")

	var req services.CompleteAttemptRequest
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

	attempt, err := h.attemptService.Complete(c.Request.Context(), &req, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// AbandonAttempt voluntarily closes an in-progress attempt without grading.
func (h *AttemptHandler) AbandonAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Abandoning quiz attempt", "attempt_id", id)

	studentID := h.currentUserID(c)
	if studentID == "" {
		return
	}

	if err := h.attemptService.Abandon(c.Request.Context(), id, studentID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	attempt, err := h.attemptService.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

func (h *AttemptHandler) GetAttemptWithDetails(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	attempt, err := h.attemptService.GetByIDWithDetails(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// GetCurrentAttempt returns the caller's open attempt on a quiz, if any.
func (h *AttemptHandler) GetCurrentAttempt(c *gin.Context) {
	quizID := h.parseIDParam(c, "quiz_id")
	if quizID == 0 {
		return
	}

	studentID := h.currentUserID(c)
	if studentID == "" {
		return
	}

	attempt, err := h.attemptService.GetCurrentAttempt(c.Request.Context(), quizID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// ListMyAttempts lists the caller's own attempts.
func (h *AttemptHandler) ListMyAttempts(c *gin.Context) {
	studentID := h.currentUserID(c)
	if studentID == "" {
		return
	}

	filters := h.parseAttemptFilters(c)
	attempts, err := h.attemptService.GetByStudent(c.Request.Context(), studentID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempts)
}

// GetAttemptsByQuiz lists attempts on a quiz for graders.
func (h *AttemptHandler) GetAttemptsByQuiz(c *gin.Context) {
	quizID := h.parseIDParam(c, "quiz_id")
	if quizID == 0 {
		return
	}

	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	filters := h.parseAttemptFilters(c)
	attempts, err := h.attemptService.GetByQuiz(c.Request.Context(), quizID, filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempts)
}

func (h *AttemptHandler) GetTimeRemaining(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	studentID := h.currentUserID(c)
	if studentID == "" {
		return
	}

	seconds, err := h.attemptService.GetTimeRemaining(c.Request.Context(), id, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"attempt_id":             id,
		"time_remaining_seconds": seconds,
	})
}

// CanStart reports whether the caller could open a new attempt right now.
func (h *AttemptHandler) CanStart(c *gin.Context) {
	quizID := h.parseIDParam(c, "quiz_id")
	if quizID == 0 {
		return
	}

	studentID := h.currentUserID(c)
	if studentID == "" {
		return
	}

	canStart, err := h.attemptService.CanStart(c.Request.Context(), quizID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"quiz_id":   quizID,
		"can_start": canStart,
	})
}

func (h *AttemptHandler) GetAttemptCount(c *gin.Context) {
	quizID := h.parseIDParam(c, "quiz_id")
	if quizID == 0 {
		return
	}

	studentID := h.currentUserID(c)
	if studentID == "" {
		return
	}

	count, err := h.attemptService.GetAttemptCount(c.Request.Context(), quizID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"quiz_id": quizID,
		"count":   count,
	})
}

// GetQuizStats returns aggregate attempt statistics for a quiz.
func (h *AttemptHandler) GetQuizStats(c *gin.Context) {
	quizID := h.parseIDParam(c, "quiz_id")
	if quizID == 0 {
		return
	}

	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	stats, err := h.attemptService.GetStats(c.Request.Context(), quizID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *AttemptHandler) handleServiceError(c *gin.Context, err error) {
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
	case errors.Is(err, services.ErrAttemptNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Attempt not found",
		})
	case errors.Is(err, services.ErrAttemptAlreadyInProgress):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "An attempt is already in progress",
		})
	case errors.Is(err, services.ErrAttemptLimitExceeded):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Maximum attempts exceeded",
		})
	case errors.Is(err, services.ErrAttemptExpired):
		c.JSON(http.StatusGone, ErrorResponse{
			Message: "Attempt time has expired",
		})
	case errors.Is(err, services.ErrAttemptNotActive):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Attempt is not in progress",
		})
	case errors.Is(err, services.ErrQuizNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Quiz not found",
		})
	case errors.Is(err, services.ErrQuizNotPublished):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Quiz is not published",
		})
	case errors.Is(err, services.ErrQuizNotAvailable):
		c.JSON(http.StatusGone, ErrorResponse{
			Message: "Quiz is outside its availability window",
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
