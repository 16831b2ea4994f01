package service

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/acadnotify/notify-engine/internal/delivery"
	"github.com/acadnotify/notify-engine/internal/domain"
	"github.com/acadnotify/notify-engine/internal/queue"
)

func failedNotification() *domain.Notification {
	return &domain.Notification{
		ID:         "11111111-1111-1111-1111-111111111111",
		Kind:       domain.KindDeadlineReminder,
		Priority:   domain.PriorityNormal,
		Recipient:  "candidate@grad.example.edu",
		Subject:    "Deadline approaching",
		PlainBody:  "Submit by {{deadline}}.",
		Attributes: map[string]string{"deadline": "2026-10-01"},
		Status:     domain.StatusFailed,
	}
}

func TestDeadLetterEscalatePersistsAndPublishes(t *testing.T) {
	t.Parallel()

	deadLetters := &fakeDeadLetterRepo{}
	publisher := &fakePublisher{}
	s, err := NewDeadLetterService(deadLetters, &fakeNotificationRepo{}, publisher, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDeadLetterService() error = %v", err)
	}

	notification := failedNotification()
	cause := &delivery.Error{Kind: delivery.KindExhausted, Message: "retries exhausted after 3 attempts"}
	if err := s.Escalate(context.Background(), notification, cause); err != nil {
		t.Fatalf("Escalate() error = %v", err)
	}

	if len(deadLetters.entries) != 1 {
		t.Fatalf("persisted entries = %d, want 1", len(deadLetters.entries))
	}
	entry := deadLetters.entries[0]
	if entry.OriginalNotificationID != notification.ID {
		t.Fatalf("entry references %q, want %q", entry.OriginalNotificationID, notification.ID)
	}
	if entry.ErrorMessage != cause.Error() {
		t.Fatalf("entry error = %q, want %q", entry.ErrorMessage, cause.Error())
	}

	published := publisher.messages()
	if len(published) != 1 || published[0].queueName != queue.DeadLetterQueueName {
		t.Fatalf("published = %+v, want one message on %q", published, queue.DeadLetterQueueName)
	}
	msg, ok := published[0].msg.(queue.DeadLetterMessage)
	if !ok {
		t.Fatalf("published message type = %T, want DeadLetterMessage", published[0].msg)
	}
	if msg.OriginalNotificationID != notification.ID {
		t.Fatalf("message references %q, want %q", msg.OriginalNotificationID, notification.ID)
	}
}

func TestDeadLetterEscalateToleratesPublishFailure(t *testing.T) {
	t.Parallel()

	deadLetters := &fakeDeadLetterRepo{}
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.Message) error {
			return fmt.Errorf("broker unavailable")
		},
	}
	s, err := NewDeadLetterService(deadLetters, &fakeNotificationRepo{}, publisher, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDeadLetterService() error = %v", err)
	}

	if err := s.Escalate(context.Background(), failedNotification(), fmt.Errorf("boom")); err != nil {
		t.Fatalf("Escalate() error = %v, publish failures must be absorbed", err)
	}
	if len(deadLetters.entries) != 1 {
		t.Fatalf("persisted entries = %d, want 1", len(deadLetters.entries))
	}
}

func TestDeadLetterEscalateFailsWhenStoreFails(t *testing.T) {
	t.Parallel()

	deadLetters := &fakeDeadLetterRepo{
		createFn: func(ctx context.Context, d *domain.DeadLetter) error {
			return fmt.Errorf("connection refused")
		},
	}
	s, err := NewDeadLetterService(deadLetters, &fakeNotificationRepo{}, &fakePublisher{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDeadLetterService() error = %v", err)
	}

	if err := s.Escalate(context.Background(), failedNotification(), fmt.Errorf("boom")); err == nil {
		t.Fatal("Escalate() must fail when the store write fails")
	}
}

func TestReprocessAllRequeuesFailedNotifications(t *testing.T) {
	t.Parallel()

	notification := failedNotification()
	entries := []domain.DeadLetter{
		{ID: "d1", OriginalNotificationID: notification.ID, Kind: notification.Kind},
		{ID: "d2", OriginalNotificationID: "missing", Kind: notification.Kind},
	}

	reprocessed := make(map[string]bool)
	deadLetters := &fakeDeadLetterRepo{
		listUnreprocessedFn: func(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
			return entries, nil
		},
		markReprocessedFn: func(ctx context.Context, id string) error {
			reprocessed[id] = true
			return nil
		},
	}
	notifications := &fakeNotificationRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Notification, error) {
			if id == notification.ID {
				copied := *notification
				return &copied, nil
			}
			return nil, domain.ErrNotFound
		},
	}
	publisher := &fakePublisher{}

	s, err := NewDeadLetterService(deadLetters, notifications, publisher, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDeadLetterService() error = %v", err)
	}

	report, err := s.ReprocessAll(context.Background(), 10)
	if err != nil {
		t.Fatalf("ReprocessAll() error = %v", err)
	}

	if report.Total != 2 || report.Succeeded != 1 || report.Failed != 1 {
		t.Fatalf("report = %+v, want {Total:2 Succeeded:1 Failed:1}", report)
	}
	if !reprocessed["d1"] || reprocessed["d2"] {
		t.Fatalf("reprocessed = %v, want only d1", reprocessed)
	}

	published := publisher.messages()
	if len(published) != 1 || published[0].queueName != queue.WorkQueueName {
		t.Fatalf("published = %+v, want one message on %q", published, queue.WorkQueueName)
	}
	msg, ok := published[0].msg.(queue.InboundMessage)
	if !ok || msg.NotificationID != notification.ID {
		t.Fatalf("published message = %+v, want inbound for %q", published[0].msg, notification.ID)
	}
}

func TestReprocessAllSkipsEntriesNotInFailedState(t *testing.T) {
	t.Parallel()

	deadLetters := &fakeDeadLetterRepo{
		listUnreprocessedFn: func(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
			return []domain.DeadLetter{{ID: "d1", OriginalNotificationID: "n1"}}, nil
		},
	}
	notifications := &fakeNotificationRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Notification, error) {
			return &domain.Notification{ID: id, Status: domain.StatusSent}, nil
		},
		retryFn: func(ctx context.Context, id string) error {
			return domain.ErrInvalidState
		},
	}

	s, err := NewDeadLetterService(deadLetters, notifications, &fakePublisher{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDeadLetterService() error = %v", err)
	}

	report, err := s.ReprocessAll(context.Background(), 10)
	if err != nil {
		t.Fatalf("ReprocessAll() error = %v", err)
	}
	if report.Succeeded != 0 || report.Failed != 1 {
		t.Fatalf("report = %+v, want {Succeeded:0 Failed:1}", report)
	}
}
