package services

import (
	"context"
	"time"

	"github.com/edplatform/grading-service/internal/models"
	"github.com/edplatform/grading-service/internal/repositories"
	"github.com/shopspring/decimal"
)

// ===== ATTEMPT DTOs =====

type StartAttemptRequest struct {
	QuizID uint `json:"quiz_id" validate:"required"`
}

// RecordAnswerRequest carries one answer payload. Exactly one of the three
// answer fields is expected depending on the question type; the evaluator
// decides what to read.
type RecordAnswerRequest struct {
	QuestionID        uint    `json:"question_id" validate:"required"`
	AnswerText        *string `json:"answer_text" validate:"omitempty,max=10000"`
	SelectedOptionID  *uint   `json:"selected_option_id"`
	SelectedOptionIDs []uint  `json:"selected_option_ids" validate:"omitempty,max=50"`
}

type CompleteAttemptRequest struct {
	AttemptID uint                  `json:"attempt_id" validate:"required"`
	Answers   []RecordAnswerRequest `json:"answers" validate:"omitempty,dive"`
}

type AttemptResponse struct {
	*models.QuizAttempt
	CanResume            bool                 `json:"can_resume"`
	IsPendingGrade       bool                 `json:"is_pending_grade"`
	TimeRemainingSeconds *int                 `json:"time_remaining_seconds,omitempty"`
	Questions            []QuestionForAttempt `json:"questions,omitempty"`
}

// QuestionForAttempt is a question as presented to the student. Correct
// answers and option flags are stripped while the attempt is open.
type QuestionForAttempt struct {
	*models.Question
	IsFirst bool `json:"is_first"`
	IsLast  bool `json:"is_last"`
}

type AttemptListResponse struct {
	Attempts []*AttemptResponse `json:"attempts"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	Size     int                `json:"size"`
}

// ===== GRADING DTOs =====

type GradeAnswerRequest struct {
	PointsEarned decimal.Decimal `json:"points_earned"`
	Feedback     *string         `json:"feedback" validate:"omitempty,max=2000"`
}

type AnswerGradingResult struct {
	AnswerID     uint            `json:"answer_id"`
	QuestionID   uint            `json:"question_id"`
	PointsEarned decimal.Decimal `json:"points_earned"`
	MaxPoints    decimal.Decimal `json:"max_points"`
	IsCorrect    *bool           `json:"is_correct"`
	AutoGraded   bool            `json:"auto_graded"`
	Feedback     *string         `json:"feedback"`
	GradedAt     time.Time       `json:"graded_at"`
	GradedBy     *string         `json:"graded_by"`
}

type AttemptGradingResult struct {
	AttemptID  uint                  `json:"attempt_id"`
	Score      decimal.Decimal       `json:"score"`
	MaxScore   decimal.Decimal       `json:"max_score"`
	Percentage decimal.Decimal       `json:"percentage"`
	Passed     *bool                 `json:"passed"`
	Status     models.AttemptStatus  `json:"status"`
	Answers    []AnswerGradingResult `json:"answers"`
	GradedAt   time.Time             `json:"graded_at"`
}

// ===== SUBMISSION DTOs =====

type SubmitAssignmentRequest struct {
	AssignmentID   uint    `json:"assignment_id" validate:"required"`
	SubmissionText *string `json:"submission_text" validate:"omitempty,max=100000"`
	FileURL        *string `json:"file_url" validate:"omitempty,url,max=1000"`
	FileName       *string `json:"file_name" validate:"omitempty,max=255"`
	FileSizeBytes  *int64  `json:"file_size_bytes" validate:"omitempty,min=0"`
	ExternalURL    *string `json:"external_url" validate:"omitempty,url,max=1000"`
	Comments       *string `json:"comments" validate:"omitempty,max=2000"`
}

type GradeSubmissionRequest struct {
	Grade    decimal.Decimal `json:"grade"`
	Feedback *string         `json:"feedback" validate:"omitempty,max=10000"`
}

type ReturnSubmissionRequest struct {
	Feedback string `json:"feedback" validate:"required,max=10000"`
}

type SubmissionResponse struct {
	*models.AssignmentSubmission
	FinalGrade      *decimal.Decimal `json:"final_grade"`
	PercentageGrade *decimal.Decimal `json:"percentage_grade"`
	CanGrade        bool             `json:"can_grade"`
}

type SubmissionListResponse struct {
	Submissions []*SubmissionResponse `json:"submissions"`
	Total       int64                 `json:"total"`
	Page        int                   `json:"page"`
	Size        int                   `json:"size"`
}

// ===== ENROLLMENT DTOs =====

type UpdateProgressRequest struct {
	ProgressPercentage float64 `json:"progress_percentage"`
}

type EnrollmentResponse struct {
	*models.Enrollment
	JustCompleted bool `json:"just_completed"`
}

// ===== RATING DTOs =====

type SubmitReviewRequest struct {
	CourseID   uint    `json:"course_id" validate:"required"`
	Rating     int     `json:"rating" validate:"required,min=1,max=5"`
	ReviewText *string `json:"review_text" validate:"omitempty,max=5000"`
}

type CourseRatingResponse struct {
	CourseID     uint             `json:"course_id"`
	Rating       *decimal.Decimal `json:"rating"`
	TotalRatings int              `json:"total_ratings"`
}

// ===== SERVICE INTERFACES =====

type AttemptService interface {
	// Lifecycle
	Start(ctx context.Context, req *StartAttemptRequest, studentID string) (*AttemptResponse, error)
	Resume(ctx context.Context, attemptID uint, studentID string) (*AttemptResponse, error)
	RecordAnswer(ctx context.Context, attemptID uint, req *RecordAnswerRequest, studentID string) error
	Complete(ctx context.Context, req *CompleteAttemptRequest, studentID string) (*AttemptResponse, error)
	Abandon(ctx context.Context, attemptID uint, studentID string) error
	HandleTimeout(ctx context.Context, attemptID uint) error

	// Get operations
	GetByID(ctx context.Context, id uint, userID string) (*AttemptResponse, error)
	GetByIDWithDetails(ctx context.Context, id uint, userID string) (*AttemptResponse, error)
	GetCurrentAttempt(ctx context.Context, quizID uint, studentID string) (*AttemptResponse, error)

	// List operations
	GetByStudent(ctx context.Context, studentID string, filters repositories.AttemptFilters) (*AttemptListResponse, error)
	GetByQuiz(ctx context.Context, quizID uint, filters repositories.AttemptFilters, userID string) (*AttemptListResponse, error)

	// Time management
	GetTimeRemaining(ctx context.Context, attemptID uint, studentID string) (int, error) // seconds
	TimeoutExpiredAttempts(ctx context.Context) (int, error)

	// Validation
	CanStart(ctx context.Context, quizID uint, studentID string) (bool, error)
	GetAttemptCount(ctx context.Context, quizID uint, studentID string) (int, error)

	// Statistics
	GetStats(ctx context.Context, quizID uint, userID string) (*repositories.AttemptStats, error)
}

type GradingService interface {
	// Manual grading of answers the evaluator could not score
	GradeAnswer(ctx context.Context, answerID uint, req *GradeAnswerRequest, graderID string) (*AnswerGradingResult, error)
	GetPendingAnswers(ctx context.Context, attemptID uint, graderID string) ([]*models.QuizAnswer, error)

	// Finalization after manual grading
	FinalizeAttempt(ctx context.Context, attemptID uint, graderID string) (*AttemptGradingResult, error)

	// Re-run the evaluator over a completed attempt, e.g. after a key fix
	RegradeAttempt(ctx context.Context, attemptID uint, graderID string) (*AttemptGradingResult, error)
	RegradeQuiz(ctx context.Context, quizID uint, graderID string) (map[uint]*AttemptGradingResult, error)
}

type SubmissionService interface {
	Submit(ctx context.Context, req *SubmitAssignmentRequest, studentID string) (*SubmissionResponse, error)
	GetByID(ctx context.Context, id uint, userID string) (*SubmissionResponse, error)
	GetByAssignment(ctx context.Context, assignmentID uint, filters repositories.SubmissionFilters, userID string) (*SubmissionListResponse, error)
	GetByStudent(ctx context.Context, studentID string, filters repositories.SubmissionFilters) (*SubmissionListResponse, error)

	Grade(ctx context.Context, submissionID uint, req *GradeSubmissionRequest, graderID string) (*SubmissionResponse, error)
	Regrade(ctx context.Context, submissionID uint, req *GradeSubmissionRequest, graderID string) (*SubmissionResponse, error)
	ReturnToStudent(ctx context.Context, submissionID uint, req *ReturnSubmissionRequest, graderID string) (*SubmissionResponse, error)
}

type EnrollmentService interface {
	UpdateProgress(ctx context.Context, enrollmentID uint, req *UpdateProgressRequest, userID string) (*EnrollmentResponse, error)
	RecordAccess(ctx context.Context, enrollmentID uint, studentID string) error
	IssueCertificate(ctx context.Context, enrollmentID uint, certificateURL string, userID string) (*EnrollmentResponse, error)

	GetByID(ctx context.Context, id uint, userID string) (*EnrollmentResponse, error)
	GetByStudent(ctx context.Context, studentID string, filters repositories.EnrollmentFilters) ([]*EnrollmentResponse, int64, error)
}

type RatingService interface {
	SubmitReview(ctx context.Context, req *SubmitReviewRequest, studentID string) (*CourseRatingResponse, error)
	GetCourseRating(ctx context.Context, courseID uint) (*CourseRatingResponse, error)
}

type GradebookService interface {
	// ExportQuizResults writes an xlsx workbook of all graded attempts for
	// a quiz and returns the file contents.
	ExportQuizResults(ctx context.Context, quizID uint, userID string) ([]byte, string, error)
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	Attempt() AttemptService
	Grading() GradingService
	Submission() SubmissionService
	Enrollment() EnrollmentService
	Rating() RatingService
	Gradebook() GradebookService

	// Health and lifecycle
	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
