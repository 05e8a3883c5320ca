package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress          AttemptStatus = "in_progress"
	AttemptCompleted           AttemptStatus = "completed"
	AttemptAbandoned           AttemptStatus = "abandoned"
	AttemptTimedOut            AttemptStatus = "timed_out"
	AttemptSubmittedForGrading AttemptStatus = "submitted_for_grading"
)

const (
	AttemptEndReasonTimeout   = "time_out"
	AttemptEndReasonSubmitted = "submitted"
	AttemptEndReasonAbandoned = "abandoned"
)

type QuizAttempt struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	QuizID        uint          `json:"quiz_id" gorm:"not null;index:idx_attempt_student_quiz"`
	StudentID     string        `json:"student_id" gorm:"not null;index:idx_attempt_student_quiz;size:255"`
	AttemptNumber int           `json:"attempt_number" gorm:"not null"`
	Status        AttemptStatus `json:"status" gorm:"default:in_progress;index"`

	// Timing
	StartedAt        *time.Time `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at"`
	TimeTakenMinutes int        `json:"time_taken_minutes"`

	// Scoring
	Score      *decimal.Decimal `json:"score" gorm:"type:decimal(8,2)"`
	MaxScore   *decimal.Decimal `json:"max_score" gorm:"type:decimal(8,2)"`
	Percentage *decimal.Decimal `json:"percentage" gorm:"type:decimal(5,2)"`
	Passed     bool             `json:"passed"`
	IsGraded   bool             `json:"is_graded"`

	EndReason *string `json:"end_reason" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Quiz    Quiz         `json:"quiz" gorm:"foreignKey:QuizID"`
	Student User         `json:"student" gorm:"foreignKey:StudentID"`
	Answers []QuizAnswer `json:"answers" gorm:"foreignKey:AttemptID"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

func (a *QuizAttempt) IsInProgress() bool {
	return a.Status == AttemptInProgress
}

// IsTerminal reports whether no further lifecycle transitions are allowed.
func (a *QuizAttempt) IsTerminal() bool {
	switch a.Status {
	case AttemptCompleted, AttemptAbandoned, AttemptTimedOut, AttemptSubmittedForGrading:
		return true
	}
	return false
}

// IsTimeExceededAt reports whether the quiz time limit has elapsed at
// the given instant. Attempts without a time limit never expire.
func (a *QuizAttempt) IsTimeExceededAt(quiz *Quiz, now time.Time) bool {
	if !quiz.HasTimeLimit() || a.StartedAt == nil {
		return false
	}
	deadline := a.StartedAt.Add(time.Duration(*quiz.TimeLimitMinutes) * time.Minute)
	return now.After(deadline)
}

// IsPassedAgainst evaluates the pass predicate. Only meaningful when both
// the attempt percentage and the quiz passing score are set.
func (a *QuizAttempt) IsPassedAgainst(quiz *Quiz) bool {
	if quiz.PassingScore == nil || a.Percentage == nil {
		return false
	}
	return a.Percentage.GreaterThanOrEqual(*quiz.PassingScore)
}

type QuizAnswer struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	AttemptID  uint `json:"attempt_id" gorm:"not null;index:idx_answer_attempt_question,unique"`
	QuestionID uint `json:"question_id" gorm:"not null;index:idx_answer_attempt_question,unique"`

	// Submitted value: free text, a single option reference, or a
	// serialized set/sequence/mapping of option references.
	AnswerText        *string        `json:"answer_text" gorm:"type:text"`
	SelectedOptionID  *uint          `json:"selected_option_id" gorm:"index"`
	SelectedOptionIDs datatypes.JSON `json:"selected_option_ids" gorm:"type:jsonb"`

	// Grading
	PointsEarned       *decimal.Decimal `json:"points_earned" gorm:"type:decimal(8,2)"`
	IsCorrect          *bool            `json:"is_correct"`
	AutoGraded         bool             `json:"auto_graded"`
	InstructorFeedback *string          `json:"instructor_feedback" gorm:"type:text"`
	GradedBy           *string          `json:"graded_by" gorm:"size:255"`
	GradedAt           *time.Time       `json:"graded_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Question Question `json:"question" gorm:"foreignKey:QuestionID"`
}

func (QuizAnswer) TableName() string {
	return "quiz_answers"
}

func (ans *QuizAnswer) IsGradedAnswer() bool {
	return ans.PointsEarned != nil
}

// RequiresManualGrading reports whether the answer is still waiting on an
// instructor grade.
func (ans *QuizAnswer) RequiresManualGrading() bool {
	return !ans.AutoGraded && ans.PointsEarned == nil
}
