package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edplatform/grading-service/internal/services"
	"github.com/edplatform/grading-service/internal/validator"
)

type RatingHandler struct {
	BaseHandler
	ratingService services.RatingService
}

func NewRatingHandler(ratingService services.RatingService, logger *slog.Logger) *RatingHandler {
	return &RatingHandler{
		BaseHandler:   NewBaseHandler(logger),
		ratingService: ratingService,
	}
}

// SubmitReview stores a course review from an enrolled student and folds it
// into the course's running rating.
func (h *RatingHandler) SubmitReview(c *gin.Context) {
	courseID := h.parseIDParam(c, "course_id")
	if courseID == 0 {
		return
	}

	h.LogRequest(c, "Submitting course review", "course_id", courseID)

	var req services.SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.CourseID = courseID

	studentID := h.currentUserID(c)
	if studentID == "" {
		return
	}

	rating, err := h.ratingService.SubmitReview(c.Request.Context(), &req, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rating)
}

// GetCourseRating returns the aggregate rating of a course.
func (h *RatingHandler) GetCourseRating(c *gin.Context) {
	courseID := h.parseIDParam(c, "course_id")
	if courseID == 0 {
		return
	}

	rating, err := h.ratingService.GetCourseRating(c.Request.Context(), courseID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, rating)
}

func (h *RatingHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrCourseNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Course not found",
		})
	case errors.Is(err, services.ErrEnrollmentNotFound):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Only enrolled students can review a course",
		})
	case errors.Is(err, services.ErrReviewAlreadyExists):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Course already reviewed",
		})
	case errors.Is(err, services.ErrValidationFailed):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: err.Error(),
		})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
