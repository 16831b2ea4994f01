package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Status represents the lifecycle state of a notification.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusSent     Status = "SENT"
	StatusFailed   Status = "FAILED"
	StatusRetrying Status = "RETRYING"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed, StatusRetrying:
		return true
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Kind identifies the notification type. The set is closed; unknown kinds
// are rejected at validation.
type Kind string

const (
	KindRegistrationApproved Kind = "REGISTRATION_APPROVED"
	KindRegistrationRejected Kind = "REGISTRATION_REJECTED"
	KindDefenseScheduled     Kind = "DEFENSE_SCHEDULED"
	KindDefenseResult        Kind = "DEFENSE_RESULT"
	KindDeadlineReminder     Kind = "DEADLINE_REMINDER"
	KindAccountCreated       Kind = "ACCOUNT_CREATED"
	KindGeneric              Kind = "GENERIC"
)

func (k Kind) String() string { return string(k) }

func (k Kind) IsValid() bool {
	switch k {
	case KindRegistrationApproved, KindRegistrationRejected, KindDefenseScheduled,
		KindDefenseResult, KindDeadlineReminder, KindAccountCreated, KindGeneric:
		return true
	}
	return false
}

func ParseKindFromString(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: invalid kind %q", ErrValidation, s)
	}
	return k, nil
}

// Priority represents the message priority level. It is an ordinal hint and
// carries no processing-order guarantee.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityNormal Priority = "NORMAL"
	PriorityLow    Priority = "LOW"
)

func (p Priority) String() string { return string(p) }

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

func ParsePriorityFromString(s string) (Priority, error) {
	pr := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !pr.IsValid() {
		return "", fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	return pr, nil
}

// recipientPattern is an RFC-5322-style check: local part, @, dotted domain,
// 2+ letter TLD.
var recipientPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// Notification is the core domain entity: one delivery request's lifecycle.
type Notification struct {
	ID           string            `gorm:"type:uuid;primaryKey"`
	Kind         Kind              `gorm:"type:varchar(30);not null"`
	Priority     Priority          `gorm:"type:varchar(10);not null"`
	Recipient    string            `gorm:"type:varchar(255);not null"`
	Subject      string            `gorm:"type:varchar(500);not null"`
	PlainBody    string            `gorm:"type:text;not null"`
	RenderedBody *string           `gorm:"type:text"`
	Attributes   map[string]string `gorm:"serializer:json;type:jsonb"`
	Status       Status            `gorm:"type:varchar(20);not null"`
	ErrorMessage *string           `gorm:"type:text"`
	AttemptCount int               `gorm:"not null;default:0"`
	SentAt       *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate applies the structural checks on an inbound request. A failure is
// terminal: validation errors are never retried or dead-lettered.
func (n *Notification) Validate() error {
	recipient := strings.TrimSpace(n.Recipient)
	if recipient == "" || !recipientPattern.MatchString(recipient) {
		return &ValidationError{
			Reason:  ValidationInvalidRecipient,
			Message: fmt.Sprintf("invalid recipient %q", n.Recipient),
		}
	}
	if !n.Kind.IsValid() {
		return &ValidationError{
			Reason:  ValidationInvalidType,
			Message: fmt.Sprintf("unknown notification kind %q", n.Kind),
		}
	}
	if strings.TrimSpace(n.Subject) == "" {
		return &ValidationError{
			Reason:  ValidationMissingSubject,
			Message: "subject is required",
		}
	}
	return nil
}
