package domain

import "time"

// DeadLetter is the snapshot of a notification whose delivery failed with a
// retriable classification after resilience exhaustion. Validation failures
// never produce one.
type DeadLetter struct {
	ID                     string            `gorm:"type:uuid;primaryKey"`
	OriginalNotificationID string            `gorm:"type:uuid;not null"`
	Kind                   Kind              `gorm:"type:varchar(30);not null"`
	Recipient              string            `gorm:"type:varchar(255);not null"`
	Subject                string            `gorm:"type:varchar(500);not null"`
	Attributes             map[string]string `gorm:"serializer:json;type:jsonb"`
	ErrorMessage           string            `gorm:"type:text;not null"`
	Reprocessed            bool              `gorm:"not null;default:false"`
	EnqueuedAt             time.Time
}
