package models

import "time"

// Notification is a message in a student's inbox.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:64;index" json:"user_id"`
	Type      string    `gorm:"size:64" json:"type"`
	Message   string    `gorm:"type:text" json:"message"`
	Read      bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NotificationTypeGrade marks inbox messages produced by grading.
const NotificationTypeGrade = "submission.graded"

// OutboxStatus tracks delivery of a notification intent.
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusDispatched OutboxStatus = "dispatched"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// NotificationOutbox is a notification intent committed together with the grading change
// that produced it. DedupKey is unique so a retried grading pass cannot enqueue twice.
type NotificationOutbox struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	StudentID    uint         `gorm:"not null;index" json:"student_id"`
	SubmissionID uint         `gorm:"not null;index" json:"submission_id"`
	Message      string       `gorm:"type:text;not null" json:"message"`
	DedupKey     string       `gorm:"size:128;uniqueIndex;not null" json:"dedup_key"`
	Status       OutboxStatus `gorm:"size:16;not null;index" json:"status"`
	Attempts     int          `gorm:"not null;default:0" json:"attempts"`
	LastError    string       `gorm:"type:text" json:"last_error"`
	DispatchedAt *time.Time   `json:"dispatched_at"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// TableName keeps the outbox table name singular.
func (NotificationOutbox) TableName() string {
	return "notification_outbox"
}
