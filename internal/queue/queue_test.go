package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/acadnotify/notify-engine/internal/domain"
)

func TestPriorityValue(t *testing.T) {
	tests := []struct {
		name     string
		priority domain.Priority
		want     uint8
	}{
		{name: "high", priority: domain.PriorityHigh, want: 3},
		{name: "normal", priority: domain.PriorityNormal, want: 2},
		{name: "low", priority: domain.PriorityLow, want: 1},
		{name: "invalid", priority: domain.Priority("invalid"), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PriorityValue(tt.priority)
			if got != tt.want {
				t.Fatalf("PriorityValue(%q) = %d, want %d", tt.priority, got, tt.want)
			}
		})
	}
}

func TestInboundMessageValidate(t *testing.T) {
	msg := InboundMessage{
		Kind:      domain.KindDeadlineReminder,
		Recipient: "candidate@grad.example.edu",
		Subject:   "Deadline approaching",
	}
	if err := msg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	msg.Recipient = ""
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for empty recipient")
	}

	// Semantic validation is the pipeline's job: a malformed recipient must
	// pass the broker-shape check so its failure can be recorded.
	msg.Recipient = "not-an-email"
	if err := msg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error for malformed recipient: %v", err)
	}

	msg.Kind = ""
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for empty kind")
	}
}

func TestDeadLetterMessageRoundTrip(t *testing.T) {
	enqueued := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	msg := DeadLetterMessage{
		OriginalNotificationID: "n1",
		Kind:                   domain.KindDefenseScheduled,
		Recipient:              "candidate@grad.example.edu",
		Subject:                "Defense scheduled",
		ErrorMessage:           "delivery failed (EXHAUSTED)",
		EnqueuedAt:             enqueued,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got DeadLetterMessage
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.OriginalNotificationID != "n1" || !got.EnqueuedAt.Equal(enqueued) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
