package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CourseStatus string

const (
	CourseDraft     CourseStatus = "draft"
	CoursePublished CourseStatus = "published"
	CourseArchived  CourseStatus = "archived"
)

// Course carries only the fields the grading engine touches: identity,
// publication state, certificate policy and the streaming rating pair.
// Full catalog data lives in the course service.
type Course struct {
	ID         uint         `json:"id" gorm:"primaryKey"`
	CourseCode string       `json:"course_code" gorm:"not null;size:20;uniqueIndex" validate:"required,max=20"`
	Title      string       `json:"title" gorm:"not null;size:200" validate:"required,max=200"`
	Status     CourseStatus `json:"status" gorm:"default:draft;index"`

	CertificateEnabled bool `json:"certificate_enabled" gorm:"not null;default:false"`

	// Rating pair, mutated only through the incremental aggregator.
	Rating       *decimal.Decimal `json:"rating" gorm:"type:decimal(3,2)"`
	TotalRatings int              `json:"total_ratings" gorm:"not null;default:0"`

	InstructorID string         `json:"instructor_id" gorm:"not null;index;size:255"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Course) TableName() string {
	return "courses"
}

func (c *Course) IsPublished() bool {
	return c.Status == CoursePublished
}

type CourseReview struct {
	ID         uint    `json:"id" gorm:"primaryKey"`
	CourseID   uint    `json:"course_id" gorm:"not null;index:idx_review_course_student,unique"`
	StudentID  string  `json:"student_id" gorm:"not null;index:idx_review_course_student,unique;size:255"`
	Rating     int     `json:"rating" gorm:"not null" validate:"required,min=1,max=5"`
	ReviewText *string `json:"review_text" gorm:"type:text" validate:"omitempty,max=2000"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CourseReview) TableName() string {
	return "course_reviews"
}
