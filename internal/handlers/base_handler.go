package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edplatform/grading-service/internal/models"
	"github.com/edplatform/grading-service/internal/repositories"
)

type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// BaseHandler carries the pieces every handler needs.
type BaseHandler struct {
	logger *slog.Logger
}

func NewBaseHandler(logger *slog.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	args = append(args, "method", c.Request.Method, "path", c.Request.URL.Path)
	if requestID := c.GetString("request_id"); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	h.logger.Info(msg, args...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, msg string, args ...any) {
	args = append(args, "error", err, "method", c.Request.Method, "path", c.Request.URL.Path)
	if requestID := c.GetString("request_id"); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	h.logger.Error(msg, args...)
}

// currentUserID reads the authenticated user from the request context.
// Writes a 401 and returns "" when authentication middleware did not run.
func (h *BaseHandler) currentUserID(c *gin.Context) string {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return ""
	}
	return userID.(string)
}

func (h *BaseHandler) parseIDParam(c *gin.Context, param string) uint {
	idStr := c.Param(param)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: err.Error(),
		})
		return 0
	}
	return uint(id)
}

func (h *BaseHandler) parseIntQuery(c *gin.Context, param string, defaultValue int) int {
	valueStr := c.Query(param)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func (h *BaseHandler) parseBoolQuery(c *gin.Context, param string) *bool {
	valueStr := c.Query(param)
	if valueStr == "" {
		return nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return nil
	}
	return &value
}

func (h *BaseHandler) parseTimeQuery(c *gin.Context, param string) *time.Time {
	valueStr := c.Query(param)
	if valueStr == "" {
		return nil
	}
	value, err := time.Parse(time.RFC3339, valueStr)
	if err != nil {
		return nil
	}
	return &value
}

// paginationAndSort fills the Limit/Offset/SortBy/SortOrder fields shared by
// list endpoints from page/size/sort_by/sort_order query parameters.
func (h *BaseHandler) paginationAndSort(c *gin.Context) (limit, offset int, sortBy, sortOrder string) {
	page := h.parseIntQuery(c, "page", 1)
	if page < 1 {
		page = 1
	}
	size := h.parseIntQuery(c, "size", 10)
	if size < 1 || size > 100 {
		size = 10
	}
	return size, (page - 1) * size, c.Query("sort_by"), strings.ToLower(c.Query("sort_order"))
}

func (h *BaseHandler) parseAttemptFilters(c *gin.Context) repositories.AttemptFilters {
	limit, offset, sortBy, sortOrder := h.paginationAndSort(c)

	filters := repositories.AttemptFilters{
		Limit:     limit,
		Offset:    offset,
		SortBy:    sortBy,
		SortOrder: sortOrder,
		Passed:    h.parseBoolQuery(c, "passed"),
		DateFrom:  h.parseTimeQuery(c, "date_from"),
		DateTo:    h.parseTimeQuery(c, "date_to"),
	}

	if status := c.Query("status"); status != "" {
		attemptStatus := models.AttemptStatus(status)
		filters.Status = &attemptStatus
	}

	if studentID := strings.TrimSpace(c.Query("student_id")); studentID != "" {
		filters.StudentID = &studentID
	}

	return filters
}

func (h *BaseHandler) parseSubmissionFilters(c *gin.Context) repositories.SubmissionFilters {
	limit, offset, sortBy, sortOrder := h.paginationAndSort(c)

	filters := repositories.SubmissionFilters{
		Limit:        limit,
		Offset:       offset,
		SortBy:       sortBy,
		SortOrder:    sortOrder,
		IsLate:       h.parseBoolQuery(c, "is_late"),
		NeedsGrading: h.parseBoolQuery(c, "needs_grading"),
		DateFrom:     h.parseTimeQuery(c, "date_from"),
		DateTo:       h.parseTimeQuery(c, "date_to"),
	}

	if status := c.Query("status"); status != "" {
		submissionStatus := models.SubmissionStatus(status)
		filters.Status = &submissionStatus
	}

	if studentID := strings.TrimSpace(c.Query("student_id")); studentID != "" {
		filters.StudentID = &studentID
	}

	return filters
}

func (h *BaseHandler) parseEnrollmentFilters(c *gin.Context) repositories.EnrollmentFilters {
	limit, offset, _, _ := h.paginationAndSort(c)

	filters := repositories.EnrollmentFilters{
		Limit:  limit,
		Offset: offset,
	}

	if status := c.Query("status"); status != "" {
		enrollmentStatus := models.EnrollmentStatus(status)
		filters.Status = &enrollmentStatus
	}

	if courseID := h.parseIntQuery(c, "course_id", 0); courseID > 0 {
		id := uint(courseID)
		filters.CourseID = &id
	}

	return filters
}
