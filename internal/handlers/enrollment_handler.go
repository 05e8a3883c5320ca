package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edplatform/grading-service/internal/services"
	"github.com/edplatform/grading-service/internal/validator"
)

type IssueCertificateRequest struct {
	CertificateURL string `json:"certificate_url" validate:"required,url,max=1000"`
}

type EnrollmentHandler struct {
	BaseHandler
	enrollmentService services.EnrollmentService
	validator         *validator.Validator
}

func NewEnrollmentHandler(
	enrollmentService services.EnrollmentService,
	validator *validator.Validator,
	logger *slog.Logger,
) *EnrollmentHandler {
	return &EnrollmentHandler{
		BaseHandler:       NewBaseHandler(logger),
		enrollmentService: enrollmentService,
		validator:         validator,
	}
}

// UpdateProgress records course progress and promotes the enrollment to
// completed when it reaches 100 percent.
func (h *EnrollmentHandler) UpdateProgress(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Updating enrollment progress", "enrollment_id", id)

	var req services.UpdateProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	enrollment, err := h.enrollmentService.UpdateProgress(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, enrollment)
}

// RecordAccess stamps the enrollment's last-accessed time.
func (h *EnrollmentHandler) RecordAccess(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	studentID := h.currentUserID(c)
	if studentID == "" {
		return
	}

	if err := h.enrollmentService.RecordAccess(c.Request.Context(), id, studentID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// IssueCertificate attaches a certificate to an eligible completed
// enrollment.
func (h *EnrollmentHandler) IssueCertificate(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Issuing certificate", "enrollment_id", id)

	var req IssueCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: err.Error(),
		})
		return
	}

	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	enrollment, err := h.enrollmentService.IssueCertificate(c.Request.Context(), id, req.CertificateURL, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, enrollment)
}

func (h *EnrollmentHandler) GetEnrollment(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	enrollment, err := h.enrollmentService.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, enrollment)
}

// ListMyEnrollments lists the caller's enrollments.
func (h *EnrollmentHandler) ListMyEnrollments(c *gin.Context) {
	studentID := h.currentUserID(c)
	if studentID == "" {
		return
	}

	filters := h.parseEnrollmentFilters(c)
	enrollments, total, err := h.enrollmentService.GetByStudent(c.Request.Context(), studentID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"enrollments": enrollments,
		"total":       total,
	})
}

func (h *EnrollmentHandler) handleServiceError(c *gin.Context, err error) {
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
	case errors.Is(err, services.ErrEnrollmentNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Enrollment not found",
		})
	case errors.Is(err, services.ErrCourseNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Course not found",
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
