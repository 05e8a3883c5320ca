package models

import (
	"time"
)

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentDropped   EnrollmentStatus = "dropped"
	EnrollmentSuspended EnrollmentStatus = "suspended"
)

type Enrollment struct {
	ID        uint             `json:"id" gorm:"primaryKey"`
	CourseID  uint             `json:"course_id" gorm:"not null;index:idx_enrollment_student_course,unique"`
	StudentID string           `json:"student_id" gorm:"not null;index:idx_enrollment_student_course,unique;size:255"`
	Status    EnrollmentStatus `json:"status" gorm:"default:active;index"`

	EnrollmentDate     time.Time  `json:"enrollment_date"`
	CompletionDate     *time.Time `json:"completion_date"`
	ProgressPercentage float64    `json:"progress_percentage" gorm:"not null;default:0" validate:"min=0,max=100"`
	LastAccessed       *time.Time `json:"last_accessed"`

	// Certificate
	CertificateEligible bool    `json:"certificate_eligible" gorm:"not null;default:false"`
	CertificateIssued   bool    `json:"certificate_issued" gorm:"not null;default:false"`
	CertificateURL      *string `json:"certificate_url" gorm:"size:500"`

	FinalGrade *float64 `json:"final_grade"`
	Notes      *string  `json:"notes" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Course  Course `json:"course" gorm:"foreignKey:CourseID"`
	Student User   `json:"student" gorm:"foreignKey:StudentID"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

func (e *Enrollment) IsActive() bool {
	return e.Status == EnrollmentActive
}

func (e *Enrollment) IsCompleted() bool {
	return e.Status == EnrollmentCompleted
}

func (e *Enrollment) IsDropped() bool {
	return e.Status == EnrollmentDropped
}

func (e *Enrollment) IsSuspended() bool {
	return e.Status == EnrollmentSuspended
}
