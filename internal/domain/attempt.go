package domain

import "time"

// DeliveryAttempt records a single transport invocation for a notification,
// kept as an audit trail alongside the record's status history.
type DeliveryAttempt struct {
	ID             string  `gorm:"type:uuid;primaryKey"`
	NotificationID string  `gorm:"type:uuid;not null"`
	AttemptNumber  int     `gorm:"not null"`
	Error          *string `gorm:"type:text"`
	CreatedAt      time.Time
}
