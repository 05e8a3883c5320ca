package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edplatform/grading-service/internal/services"
	"github.com/edplatform/grading-service/internal/validator"
)

type GradingHandler struct {
	BaseHandler
	gradingService services.GradingService
	validator      *validator.Validator
}

func NewGradingHandler(
	gradingService services.GradingService,
	validator *validator.Validator,
	logger *slog.Logger,
) *GradingHandler {
	return &GradingHandler{
		BaseHandler:    NewBaseHandler(logger),
		gradingService: gradingService,
		validator:      validator,
	}
}

// GradeAnswer assigns points and optional feedback to an answer awaiting
// manual grading.
func (h *GradingHandler) GradeAnswer(c *gin.Context) {
	answerID := h.parseIDParam(c, "answer_id")
	if answerID == 0 {
		return
	}

	h.LogRequest(c, "Grading answer", "answer_id", answerID)

	var req services.GradeAnswerRequest
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

	result, err := h.gradingService.GradeAnswer(c.Request.Context(), answerID, &req, graderID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetPendingAnswers lists the answers of an attempt still awaiting manual
// grading.
func (h *GradingHandler) GetPendingAnswers(c *gin.Context) {
	attemptID := h.parseIDParam(c, "attempt_id")
	if attemptID == 0 {
		return
	}

	graderID := h.currentUserID(c)
	if graderID == "" {
		return
	}

	answers, err := h.gradingService.GetPendingAnswers(c.Request.Context(), attemptID, graderID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"attempt_id": attemptID,
		"answers":    answers,
	})
}

// FinalizeAttempt folds manual grades into the attempt total once every
// answer has points.
func (h *GradingHandler) FinalizeAttempt(c *gin.Context) {
	attemptID := h.parseIDParam(c, "attempt_id")
	if attemptID == 0 {
		return
	}

	h.LogRequest(c, "Finalizing attempt grade", "attempt_id", attemptID)

	graderID := h.currentUserID(c)
	if graderID == "" {
		return
	}

	result, err := h.gradingService.FinalizeAttempt(c.Request.Context(), attemptID, graderID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RegradeAttempt reruns automatic grading over a completed attempt.
func (h *GradingHandler) RegradeAttempt(c *gin.Context) {
	attemptID := h.parseIDParam(c, "attempt_id")
	if attemptID == 0 {
		return
	}

	h.LogRequest(c, "Regrading attempt", "attempt_id", attemptID)

	graderID := h.currentUserID(c)
	if graderID == "" {
		return
	}

	result, err := h.gradingService.RegradeAttempt(c.Request.Context(), attemptID, graderID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RegradeQuiz reruns automatic grading over every completed attempt of a
// quiz, e.g. after an answer key correction.
func (h *GradingHandler) RegradeQuiz(c *gin.Context) {
	quizID := h.parseIDParam(c, "quiz_id")
	if quizID == 0 {
		return
	}

	h.LogRequest(c, "Regrading quiz", "quiz_id", quizID)

	graderID := h.currentUserID(c)
	if graderID == "" {
		return
	}

	results, err := h.gradingService.RegradeQuiz(c.Request.Context(), quizID, graderID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"quiz_id":  quizID,
		"regraded": len(results),
		"results":  results,
	})
}

func (h *GradingHandler) handleServiceError(c *gin.Context, err error) {
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
	case errors.Is(err, services.ErrAnswerNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Answer not found",
		})
	case errors.Is(err, services.ErrAnswerNotPendingGrading):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Answer is not pending manual grading",
		})
	case errors.Is(err, services.ErrAttemptNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Attempt not found",
		})
	case errors.Is(err, services.ErrAttemptNotActive):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Attempt is not in a gradable state",
		})
	case errors.Is(err, services.ErrQuizNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Quiz not found",
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
