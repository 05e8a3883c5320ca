package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edplatform/grading-service/internal/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type GradebookHandler struct {
	BaseHandler
	gradebookService services.GradebookService
}

func NewGradebookHandler(gradebookService services.GradebookService, logger *slog.Logger) *GradebookHandler {
	return &GradebookHandler{
		BaseHandler:      NewBaseHandler(logger),
		gradebookService: gradebookService,
	}
}

// ExportQuizResults streams an xlsx workbook of all attempts on a quiz.
func (h *GradebookHandler) ExportQuizResults(c *gin.Context) {
	quizID := h.parseIDParam(c, "quiz_id")
	if quizID == 0 {
		return
	}

	h.LogRequest(c, "Exporting quiz results", "quiz_id", quizID)

	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	data, filename, err := h.gradebookService.ExportQuizResults(c.Request.Context(), quizID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

func (h *GradebookHandler) handleServiceError(c *gin.Context, err error) {
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
	case errors.Is(err, services.ErrQuizNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Quiz not found",
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
