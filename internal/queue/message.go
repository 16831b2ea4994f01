package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/acadnotify/notify-engine/internal/domain"
)

// Message is any broker payload with an identity and a priority hint.
type Message interface {
	MessageID() string
	MessagePriority() domain.Priority
	CorrelationID() string
}

// InboundMessage is the broker payload that requests one notification
// delivery.
type InboundMessage struct {
	NotificationID string            `json:"notificationId,omitempty"`
	Correlation    string            `json:"correlationId,omitempty"`
	Kind           domain.Kind       `json:"kind"`
	Recipient      string            `json:"recipient"`
	Subject        string            `json:"subject"`
	PlainBody      string            `json:"plainBody,omitempty"`
	Priority       domain.Priority   `json:"priority,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
}

func (m InboundMessage) MessageID() string                { return m.NotificationID }
func (m InboundMessage) MessagePriority() domain.Priority { return m.Priority }
func (m InboundMessage) CorrelationID() string            { return m.Correlation }

// Validate applies shape checks only; semantic validation (recipient
// grammar, kind membership) is the pipeline's job and its failures must be
// recorded, not rejected at the broker.
func (m InboundMessage) Validate() error {
	if strings.TrimSpace(m.Recipient) == "" {
		return fmt.Errorf("recipient is required")
	}
	if strings.TrimSpace(string(m.Kind)) == "" {
		return fmt.Errorf("kind is required")
	}
	return nil
}

// DeadLetterMessage is published onto the dead-letter queue when a
// notification exhausts its retriable failure budget.
type DeadLetterMessage struct {
	OriginalNotificationID string      `json:"originalNotificationId"`
	Kind                   domain.Kind `json:"kind"`
	Recipient              string      `json:"recipient"`
	Subject                string      `json:"subject"`
	ErrorMessage           string      `json:"errorMessage"`
	EnqueuedAt             time.Time   `json:"enqueuedAt"`
}

func (m DeadLetterMessage) MessageID() string                { return m.OriginalNotificationID }
func (m DeadLetterMessage) MessagePriority() domain.Priority { return domain.PriorityNormal }
func (m DeadLetterMessage) CorrelationID() string            { return "" }
