package models

import (
	"strings"
	"time"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	MultipleSelect QuestionType = "multiple_select"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
	Essay          QuestionType = "essay"
	FillInBlank    QuestionType = "fill_blank"
	Matching       QuestionType = "matching"
	Ordering       QuestionType = "ordering"
	Numeric        QuestionType = "numeric"
)

type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "easy"
	DifficultyMedium DifficultyLevel = "medium"
	DifficultyHard   DifficultyLevel = "hard"
)

type Question struct {
	ID     uint         `json:"id" gorm:"primaryKey"`
	QuizID uint         `json:"quiz_id" gorm:"not null;index"`
	Type   QuestionType `json:"type" gorm:"not null;index"`
	Text   string       `json:"text" gorm:"type:text;not null" validate:"required,max=2000"`
	Points int          `json:"points" gorm:"default:10" validate:"min=1,max=100"`
	Order  int          `json:"order" gorm:"default:0"`

	// Answer key for text-based types; option rows carry the key for
	// choice/matching/ordering types.
	CorrectAnswer *string `json:"correct_answer" gorm:"type:text"`
	CaseSensitive bool    `json:"case_sensitive" gorm:"not null;default:false"`
	IsRequired    bool    `json:"is_required" gorm:"not null;default:true"`

	// Metadata
	Explanation *string         `json:"explanation" gorm:"type:text"`
	ImageURL    *string         `json:"image_url" gorm:"size:500"`
	Difficulty  DifficultyLevel `json:"difficulty" gorm:"default:medium;index"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	// Relations
	Options []QuestionOption `json:"options" gorm:"foreignKey:QuestionID"`
}

func (Question) TableName() string {
	return "questions"
}

type QuestionOption struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	QuestionID uint   `json:"question_id" gorm:"not null;index"`
	Text       string `json:"text" gorm:"type:text;not null" validate:"required,max=1000"`
	Order      int    `json:"order" gorm:"default:0"`
	IsCorrect  bool   `json:"is_correct" gorm:"not null;default:false"`

	// Matching questions pair an option with a target value.
	MatchTarget *string `json:"match_target" gorm:"size:500"`

	CreatedAt time.Time `json:"created_at"`
}

func (QuestionOption) TableName() string {
	return "question_options"
}

// HasOptions reports whether the key lives on option rows rather than
// the CorrectAnswer field.
func (q *Question) HasOptions() bool {
	switch q.Type {
	case MultipleChoice, MultipleSelect, TrueFalse, Matching, Ordering:
		return true
	}
	return false
}

// CorrectOptionIDs returns the IDs of options flagged correct, in stored order.
func (q *Question) CorrectOptionIDs() []uint {
	var ids []uint
	for _, opt := range q.Options {
		if opt.IsCorrect {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

func (q *Question) HasCorrectAnswer() bool {
	if q.HasOptions() {
		return len(q.CorrectOptionIDs()) > 0
	}
	return q.CorrectAnswer != nil && strings.TrimSpace(*q.CorrectAnswer) != ""
}

// RequiresManualGrading reports whether the evaluator cannot auto-score
// this question type.
func (q *Question) RequiresManualGrading() bool {
	return q.Type == Essay
}
