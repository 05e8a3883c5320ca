package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type QuizType string

const (
	QuizPractice QuizType = "practice"
	QuizGraded   QuizType = "graded"
	QuizSurvey   QuizType = "survey"
)

type Quiz struct {
	ID           uint     `json:"id" gorm:"primaryKey"`
	CourseID     uint     `json:"course_id" gorm:"not null;index"`
	Title        string   `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description  *string  `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`
	Instructions *string  `json:"instructions" gorm:"type:text"`
	Type         QuizType `json:"type" gorm:"default:graded;index"`

	// Scoring policy
	TimeLimitMinutes *int             `json:"time_limit_minutes" validate:"omitempty,min=1,max=600"`
	MaxAttempts      *int             `json:"max_attempts" validate:"omitempty,min=1,max=10"`
	PassingScore     *decimal.Decimal `json:"passing_score" gorm:"type:decimal(5,2)"`
	TotalPoints      *int             `json:"total_points"` // when nil, derived as the sum of question points

	// Availability window
	IsPublished    bool       `json:"is_published" gorm:"not null;default:false;index"`
	AvailableFrom  *time.Time `json:"available_from"`
	AvailableUntil *time.Time `json:"available_until"`

	// Display flags
	IsRandomized         bool `json:"is_randomized" gorm:"not null;default:false"`
	ShowCorrectAnswers   bool `json:"show_correct_answers" gorm:"not null;default:true"`
	ShowScoreImmediately bool `json:"show_score_immediately" gorm:"not null;default:true"`

	// Metadata
	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Questions []Question    `json:"questions" gorm:"foreignKey:QuizID"`
	Attempts  []QuizAttempt `json:"-" gorm:"foreignKey:QuizID"`

	// Computed fields (not stored)
	QuestionCount int `json:"question_count" gorm:"-"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// IsAvailableAt reports whether the quiz can be taken at the given instant.
func (q *Quiz) IsAvailableAt(now time.Time) bool {
	if !q.IsPublished {
		return false
	}
	if q.AvailableFrom != nil && now.Before(*q.AvailableFrom) {
		return false
	}
	if q.AvailableUntil != nil && now.After(*q.AvailableUntil) {
		return false
	}
	return true
}

func (q *Quiz) HasTimeLimit() bool {
	return q.TimeLimitMinutes != nil && *q.TimeLimitMinutes > 0
}

func (q *Quiz) HasAttemptLimit() bool {
	return q.MaxAttempts != nil && *q.MaxAttempts > 0
}

// MaxScore returns the configured total points or the sum of question points.
func (q *Quiz) MaxScore() decimal.Decimal {
	if q.TotalPoints != nil {
		return decimal.NewFromInt(int64(*q.TotalPoints))
	}
	total := decimal.Zero
	for _, question := range q.Questions {
		total = total.Add(decimal.NewFromInt(int64(question.Points)))
	}
	return total
}
