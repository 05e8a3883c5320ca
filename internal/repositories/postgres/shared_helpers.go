package postgres

import (
	"gorm.io/gorm"

	"github.com/edplatform/grading-service/internal/repositories"
)

// SharedHelpers contains common query building blocks
type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

// ApplyAttemptFilters applies common filters to attempt queries
func (h *SharedHelpers) ApplyAttemptFilters(query *gorm.DB, filters repositories.AttemptFilters) *gorm.DB {
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.StudentID != nil {
		query = query.Where("student_id = ?", *filters.StudentID)
	}
	if filters.QuizID != nil {
		query = query.Where("quiz_id = ?", *filters.QuizID)
	}
	if filters.Passed != nil {
		query = query.Where("passed = ?", *filters.Passed)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}
	return query
}

// ApplySubmissionFilters applies common filters to submission queries
func (h *SharedHelpers) ApplySubmissionFilters(query *gorm.DB, filters repositories.SubmissionFilters) *gorm.DB {
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.StudentID != nil {
		query = query.Where("student_id = ?", *filters.StudentID)
	}
	if filters.AssignmentID != nil {
		query = query.Where("assignment_id = ?", *filters.AssignmentID)
	}
	if filters.IsLate != nil {
		query = query.Where("is_late = ?", *filters.IsLate)
	}
	if filters.NeedsGrading != nil {
		query = query.Where("needs_grading = ?", *filters.NeedsGrading)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}
	return query
}

// ApplyEnrollmentFilters applies common filters to enrollment queries
func (h *SharedHelpers) ApplyEnrollmentFilters(query *gorm.DB, filters repositories.EnrollmentFilters) *gorm.DB {
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.CourseID != nil {
		query = query.Where("course_id = ?", *filters.CourseID)
	}
	return query
}

// ApplyPaginationAndSort applies pagination and sorting with SQL injection protection
func (h *SharedHelpers) ApplyPaginationAndSort(query *gorm.DB, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	// Whitelist allowed sort columns
	allowedSortColumns := map[string]bool{
		"created_at":     true,
		"updated_at":     true,
		"id":             true,
		"status":         true,
		"score":          true,
		"percentage":     true,
		"attempt_number": true,
		"grade":          true,
		"started_at":     true,
		"ended_at":       true,
	}

	if sortBy == "" || !allowedSortColumns[sortBy] {
		sortBy = "created_at"
	}

	if sortOrder != "asc" && sortOrder != "ASC" {
		sortOrder = "DESC"
	} else {
		sortOrder = "ASC"
	}

	query = query.Order(sortBy + " " + sortOrder)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	return query
}
