package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	source  = "grading-service"
	version = "1.0"
)

// Topics consumed by the notification service.
const (
	TopicAttemptEvents    = "grading.attempt-events"
	TopicSubmissionEvents = "grading.submission-events"
	TopicEnrollmentEvents = "grading.enrollment-events"
)

// Event types.
const (
	EventAttemptCompleted    = "attempt.completed"
	EventAttemptTimedOut     = "attempt.timed_out"
	EventSubmissionGraded    = "submission.graded"
	EventSubmissionReturned  = "submission.returned"
	EventEnrollmentCompleted = "enrollment.completed"
)

// Event is the envelope published to Kafka.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewEvent builds an envelope with a fresh ID and timestamp.
func NewEvent(eventType string, data interface{}) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Version:   version,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventPublisher publishes domain events for downstream consumers. The
// grading service only emits; notification dispatch happens elsewhere.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event *Event) error
	Close() error
}

// ===== EVENT PAYLOADS =====

type AttemptCompletedEvent struct {
	AttemptID  uint    `json:"attempt_id"`
	QuizID     uint    `json:"quiz_id"`
	StudentID  string  `json:"student_id"`
	Status     string  `json:"status"`
	Score      *string `json:"score,omitempty"`
	Percentage *string `json:"percentage,omitempty"`
	Passed     bool    `json:"passed"`
}

type SubmissionGradedEvent struct {
	SubmissionID uint   `json:"submission_id"`
	AssignmentID uint   `json:"assignment_id"`
	StudentID    string `json:"student_id"`
	Grade        string `json:"grade"`
	FinalGrade   string `json:"final_grade"`
	GradedBy     string `json:"graded_by"`
}

type EnrollmentCompletedEvent struct {
	EnrollmentID        uint   `json:"enrollment_id"`
	CourseID            uint   `json:"course_id"`
	StudentID           string `json:"student_id"`
	CertificateEligible bool   `json:"certificate_eligible"`
}
