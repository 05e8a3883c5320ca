package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AssignmentType string

const (
	AssignmentEssay         AssignmentType = "essay"
	AssignmentProgramming   AssignmentType = "programming"
	AssignmentResearchPaper AssignmentType = "research_paper"
	AssignmentProject       AssignmentType = "project"
	AssignmentPresentation  AssignmentType = "presentation"
	AssignmentLabReport     AssignmentType = "lab_report"
	AssignmentOther         AssignmentType = "other"
)

type Assignment struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	CourseID     uint           `json:"course_id" gorm:"not null;index"`
	Title        string         `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description  *string        `json:"description" gorm:"type:text" validate:"omitempty,max=2000"`
	Instructions *string        `json:"instructions" gorm:"type:text"`
	Type         AssignmentType `json:"type" gorm:"default:other;index"`

	// Scoring and availability
	MaxPoints     *int       `json:"max_points" validate:"omitempty,min=1,max=1000"`
	DueDate       *time.Time `json:"due_date"`
	AvailableFrom *time.Time `json:"available_from"`
	IsPublished   bool       `json:"is_published" gorm:"not null;default:false;index"`

	// Late-submission policy
	LateSubmissionAllowed bool             `json:"late_submission_allowed" gorm:"not null;default:false"`
	LatePenaltyPerDay     *decimal.Decimal `json:"late_penalty_per_day" gorm:"type:decimal(8,2)"`
	MaxLateDays           *int             `json:"max_late_days" validate:"omitempty,min=1,max=365"`

	MaxAttempts       *int `json:"max_attempts" validate:"omitempty,min=1,max=10"`
	IsGroupAssignment bool `json:"is_group_assignment" gorm:"not null;default:false"`

	// Metadata
	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Submissions []AssignmentSubmission `json:"-" gorm:"foreignKey:AssignmentID"`
}

func (Assignment) TableName() string {
	return "assignments"
}

// IsAvailableAt reports whether submissions are being accepted at the given
// instant, ignoring the due date.
func (a *Assignment) IsAvailableAt(now time.Time) bool {
	if !a.IsPublished {
		return false
	}
	return a.AvailableFrom == nil || !now.Before(*a.AvailableFrom)
}

func (a *Assignment) IsPastDueAt(now time.Time) bool {
	return a.DueDate != nil && now.After(*a.DueDate)
}

// DaysLateAt returns the whole days elapsed past the due date, 0 when not late.
func (a *Assignment) DaysLateAt(now time.Time) int {
	if a.DueDate == nil || !a.IsPastDueAt(now) {
		return 0
	}
	return int(now.Sub(*a.DueDate).Hours() / 24)
}

// LatePenaltyAt returns penaltyPerDay * daysLate, zero when not late or no
// per-day rate is configured.
func (a *Assignment) LatePenaltyAt(now time.Time) decimal.Decimal {
	if !a.IsPastDueAt(now) || a.LatePenaltyPerDay == nil {
		return decimal.Zero
	}
	return a.LatePenaltyPerDay.Mul(decimal.NewFromInt(int64(a.DaysLateAt(now))))
}

type SubmissionStatus string

const (
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionGraded    SubmissionStatus = "graded"
	SubmissionReturned  SubmissionStatus = "returned"
)

type AssignmentSubmission struct {
	ID            uint             `json:"id" gorm:"primaryKey"`
	AssignmentID  uint             `json:"assignment_id" gorm:"not null;index:idx_submission_assignment_student"`
	StudentID     string           `json:"student_id" gorm:"not null;index:idx_submission_assignment_student;size:255"`
	AttemptNumber int              `json:"attempt_number" gorm:"not null;default:1"`
	Status        SubmissionStatus `json:"status" gorm:"default:submitted;index"`

	// Content: at least one of text, file, or external link.
	SubmissionText *string `json:"submission_text" gorm:"type:text"`
	FileURL        *string `json:"file_url" gorm:"size:500"`
	FileName       *string `json:"file_name" gorm:"size:255"`
	FileSizeBytes  *int64  `json:"file_size_bytes"`
	ExternalURL    *string `json:"external_url" gorm:"size:500"`

	SubmissionDate  time.Time `json:"submission_date"`
	StudentComments *string   `json:"student_comments" gorm:"type:text"`

	// Lateness is derived once at creation and never recomputed, even if the
	// assignment due date later changes.
	IsLate      bool             `json:"is_late"`
	DaysLate    int              `json:"days_late"`
	LatePenalty *decimal.Decimal `json:"late_penalty" gorm:"type:decimal(8,2)"`

	// Grading
	Grade        *decimal.Decimal `json:"grade" gorm:"type:decimal(8,2)"`
	Feedback     *string          `json:"feedback" gorm:"type:text"`
	GradedBy     *string          `json:"graded_by" gorm:"size:255"`
	GradedDate   *time.Time       `json:"graded_date"`
	NeedsGrading bool             `json:"needs_grading" gorm:"not null;default:true"`

	// Integrity
	PlagiarismScore    *decimal.Decimal `json:"plagiarism_score" gorm:"type:decimal(5,2)"`
	RubricScores       datatypes.JSON   `json:"rubric_scores" gorm:"type:jsonb"`
	PrivateComments    *string          `json:"private_comments" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Assignment Assignment `json:"assignment" gorm:"foreignKey:AssignmentID"`
	Student    User       `json:"student" gorm:"foreignKey:StudentID"`
}

func (AssignmentSubmission) TableName() string {
	return "assignment_submissions"
}

func (s *AssignmentSubmission) IsGradedSubmission() bool {
	return s.Grade != nil && s.Status == SubmissionGraded
}

func (s *AssignmentSubmission) HasText() bool {
	return s.SubmissionText != nil && strings.TrimSpace(*s.SubmissionText) != ""
}

func (s *AssignmentSubmission) HasFile() bool {
	return s.FileURL != nil && strings.TrimSpace(*s.FileURL) != ""
}

func (s *AssignmentSubmission) HasExternalURL() bool {
	return s.ExternalURL != nil && strings.TrimSpace(*s.ExternalURL) != ""
}

func (s *AssignmentSubmission) HasContent() bool {
	return s.HasText() || s.HasFile() || s.HasExternalURL()
}

// FinalGrade returns grade minus the stored late penalty, floored at zero.
// Nil until a raw grade exists.
func (s *AssignmentSubmission) FinalGrade() *decimal.Decimal {
	if s.Grade == nil {
		return nil
	}
	final := *s.Grade
	if s.LatePenalty != nil && s.LatePenalty.IsPositive() {
		final = final.Sub(*s.LatePenalty)
		if final.IsNegative() {
			final = decimal.Zero
		}
	}
	return &final
}

// PercentageGrade returns the final grade over assignment max points scaled
// to 100, dividing at 4 decimal places half-up. Zero when ungraded or the
// assignment has no max points.
func (s *AssignmentSubmission) PercentageGrade(assignment *Assignment) decimal.Decimal {
	final := s.FinalGrade()
	if final == nil || assignment.MaxPoints == nil || *assignment.MaxPoints == 0 {
		return decimal.Zero
	}
	maxPoints := decimal.NewFromInt(int64(*assignment.MaxPoints))
	return final.DivRound(maxPoints, 4).Mul(decimal.NewFromInt(100))
}
