package repository

import (
	"time"

	"github.com/acadnotify/notify-engine/internal/domain"
)

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID           string            `gorm:"type:uuid;primaryKey"`
	Kind         domain.Kind       `gorm:"type:varchar(30);not null"`
	Priority     domain.Priority   `gorm:"type:varchar(10);not null"`
	Recipient    string            `gorm:"type:varchar(255);not null"`
	Subject      string            `gorm:"type:varchar(500);not null"`
	PlainBody    string            `gorm:"type:text;not null"`
	RenderedBody *string           `gorm:"type:text"`
	Attributes   map[string]string `gorm:"serializer:json;type:jsonb"`
	Status       domain.Status     `gorm:"type:varchar(20);not null"`
	ErrorMessage *string           `gorm:"type:text"`
	AttemptCount int               `gorm:"not null;default:0"`
	SentAt       *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// DeadLetterModel is the persistence model for dead_letters.
type DeadLetterModel struct {
	ID                     string            `gorm:"type:uuid;primaryKey"`
	OriginalNotificationID string            `gorm:"type:uuid;not null"`
	Kind                   domain.Kind       `gorm:"type:varchar(30);not null"`
	Recipient              string            `gorm:"type:varchar(255);not null"`
	Subject                string            `gorm:"type:varchar(500);not null"`
	Attributes             map[string]string `gorm:"serializer:json;type:jsonb"`
	ErrorMessage           string            `gorm:"type:text;not null"`
	Reprocessed            bool              `gorm:"not null;default:false"`
	EnqueuedAt             time.Time
}

func (DeadLetterModel) TableName() string {
	return "dead_letters"
}

// DeliveryAttemptModel is the persistence model for delivery_attempts.
type DeliveryAttemptModel struct {
	ID             string  `gorm:"type:uuid;primaryKey"`
	NotificationID string  `gorm:"type:uuid;not null"`
	AttemptNumber  int     `gorm:"not null"`
	Error          *string `gorm:"type:text"`
	CreatedAt      time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:           n.ID,
		Kind:         n.Kind,
		Priority:     n.Priority,
		Recipient:    n.Recipient,
		Subject:      n.Subject,
		PlainBody:    n.PlainBody,
		RenderedBody: n.RenderedBody,
		Attributes:   n.Attributes,
		Status:       n.Status,
		ErrorMessage: n.ErrorMessage,
		AttemptCount: n.AttemptCount,
		SentAt:       n.SentAt,
		CreatedAt:    n.CreatedAt,
		UpdatedAt:    n.UpdatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:           m.ID,
		Kind:         m.Kind,
		Priority:     m.Priority,
		Recipient:    m.Recipient,
		Subject:      m.Subject,
		PlainBody:    m.PlainBody,
		RenderedBody: m.RenderedBody,
		Attributes:   m.Attributes,
		Status:       m.Status,
		ErrorMessage: m.ErrorMessage,
		AttemptCount: m.AttemptCount,
		SentAt:       m.SentAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func deadLetterModelFromDomain(d *domain.DeadLetter) *DeadLetterModel {
	if d == nil {
		return nil
	}

	return &DeadLetterModel{
		ID:                     d.ID,
		OriginalNotificationID: d.OriginalNotificationID,
		Kind:                   d.Kind,
		Recipient:              d.Recipient,
		Subject:                d.Subject,
		Attributes:             d.Attributes,
		ErrorMessage:           d.ErrorMessage,
		Reprocessed:            d.Reprocessed,
		EnqueuedAt:             d.EnqueuedAt,
	}
}

func deadLetterModelToDomain(m *DeadLetterModel) *domain.DeadLetter {
	if m == nil {
		return nil
	}

	return &domain.DeadLetter{
		ID:                     m.ID,
		OriginalNotificationID: m.OriginalNotificationID,
		Kind:                   m.Kind,
		Recipient:              m.Recipient,
		Subject:                m.Subject,
		Attributes:             m.Attributes,
		ErrorMessage:           m.ErrorMessage,
		Reprocessed:            m.Reprocessed,
		EnqueuedAt:             m.EnqueuedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:             a.ID,
		NotificationID: a.NotificationID,
		AttemptNumber:  a.AttemptNumber,
		Error:          a.Error,
		CreatedAt:      a.CreatedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:             m.ID,
		NotificationID: m.NotificationID,
		AttemptNumber:  m.AttemptNumber,
		Error:          m.Error,
		CreatedAt:      m.CreatedAt,
	}
}
