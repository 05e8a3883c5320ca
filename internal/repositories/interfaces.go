package repositories

import (
	"time"

	"github.com/edplatform/grading-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type AttemptFilters struct {
	Status    *models.AttemptStatus `json:"status"`
	StudentID *string               `json:"student_id"`
	QuizID    *uint                 `json:"quiz_id"`
	Passed    *bool                 `json:"passed"`
	DateFrom  *time.Time            `json:"date_from"`
	DateTo    *time.Time            `json:"date_to"`
	Limit     int                   `json:"limit"`
	Offset    int                   `json:"offset"`
	SortBy    string                `json:"sort_by"`    // "created_at", "score", "attempt_number"
	SortOrder string                `json:"sort_order"` // "asc", "desc"
}

type AnswerFilters struct {
	IsGraded *bool      `json:"is_graded"`
	GradedBy *string    `json:"graded_by"`
	DateFrom *time.Time `json:"date_from"`
	DateTo   *time.Time `json:"date_to"`
	Limit    int        `json:"limit"`
	Offset   int        `json:"offset"`
}

type SubmissionFilters struct {
	Status       *models.SubmissionStatus `json:"status"`
	StudentID    *string                  `json:"student_id"`
	AssignmentID *uint                    `json:"assignment_id"`
	IsLate       *bool                    `json:"is_late"`
	NeedsGrading *bool                    `json:"needs_grading"`
	DateFrom     *time.Time               `json:"date_from"`
	DateTo       *time.Time               `json:"date_to"`
	Limit        int                      `json:"limit"`
	Offset       int                      `json:"offset"`
	SortBy       string                   `json:"sort_by"`
	SortOrder    string                   `json:"sort_order"`
}

type EnrollmentFilters struct {
	Status   *models.EnrollmentStatus `json:"status"`
	CourseID *uint                    `json:"course_id"`
	Limit    int                      `json:"limit"`
	Offset   int                      `json:"offset"`
}

// ===== SHARED STATISTICS STRUCTS =====

type AttemptStats struct {
	TotalAttempts    int                          `json:"total_attempts"`
	StatusBreakdown  map[models.AttemptStatus]int `json:"status_breakdown"`
	AverageScore     float64                      `json:"average_score"`
	AverageTimeTaken int                          `json:"average_time_taken"`
	PassRate         float64                      `json:"pass_rate"`
	CompletionRate   float64                      `json:"completion_rate"`
}

type GradingStats struct {
	TotalAnswers   int `json:"total_answers"`
	GradedAnswers  int `json:"graded_answers"`
	PendingAnswers int `json:"pending_answers"`
	AutoGraded     int `json:"auto_graded"`
	ManualGraded   int `json:"manual_graded"`
}

type SubmissionStats struct {
	TotalSubmissions  int     `json:"total_submissions"`
	GradedSubmissions int     `json:"graded_submissions"`
	LateSubmissions   int     `json:"late_submissions"`
	AverageGrade      float64 `json:"average_grade"`
}
