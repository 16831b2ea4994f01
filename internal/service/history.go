package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/acadnotify/notify-engine/internal/domain"
	"github.com/acadnotify/notify-engine/internal/queue"
	"github.com/acadnotify/notify-engine/internal/repository"
)

// StatsSnapshot is the per-status aggregate over the notification history.
// SuccessRate is sent/(sent+failed) as a percentage, 0 when nothing reached
// a terminal state yet.
type StatsSnapshot struct {
	Total       int64
	Pending     int64
	Sent        int64
	Failed      int64
	Retrying    int64
	SuccessRate float64
}

// HistoryService is the read-and-admin surface over the notification store.
type HistoryService struct {
	notifications repository.NotificationRepository
	attempts      repository.AttemptRepository
	deadLetters   repository.DeadLetterRepository
	publisher     queue.Publisher
	logger        *zap.Logger
}

func NewHistoryService(
	notifications repository.NotificationRepository,
	attempts repository.AttemptRepository,
	deadLetters repository.DeadLetterRepository,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*HistoryService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HistoryService{
		notifications: notifications,
		attempts:      attempts,
		deadLetters:   deadLetters,
		publisher:     publisher,
		logger:        logger,
	}, nil
}

func (s *HistoryService) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	return s.notifications.GetByID(ctx, strings.TrimSpace(id))
}

func (s *HistoryService) List(
	ctx context.Context,
	params repository.ListParams,
) ([]domain.Notification, int64, error) {
	return s.notifications.List(ctx, params)
}

func (s *HistoryService) Attempts(ctx context.Context, notificationID string) ([]domain.DeliveryAttempt, error) {
	if strings.TrimSpace(notificationID) == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	if s.attempts == nil {
		return nil, nil
	}

	// A missing record surfaces as not-found instead of an empty audit trail.
	if _, err := s.notifications.GetByID(ctx, strings.TrimSpace(notificationID)); err != nil {
		return nil, err
	}
	return s.attempts.GetByNotificationID(ctx, strings.TrimSpace(notificationID))
}

// Stats aggregates per-status counts in a single grouped query.
func (s *HistoryService) Stats(ctx context.Context) (*StatsSnapshot, error) {
	counts, err := s.notifications.StatusCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate status counts: %w", err)
	}

	snapshot := &StatsSnapshot{}
	for _, c := range counts {
		snapshot.Total += c.Count
		switch c.Status {
		case domain.StatusPending:
			snapshot.Pending += c.Count
		case domain.StatusSent:
			snapshot.Sent += c.Count
		case domain.StatusFailed:
			snapshot.Failed += c.Count
		case domain.StatusRetrying:
			snapshot.Retrying += c.Count
		}
	}

	if terminal := snapshot.Sent + snapshot.Failed; terminal > 0 {
		snapshot.SuccessRate = float64(snapshot.Sent) / float64(terminal) * 100
	}

	return snapshot, nil
}

// Retry resets a FAILED notification to PENDING and puts it back on the work
// queue. Any other current status is rejected with ErrInvalidState.
func (s *HistoryService) Retry(ctx context.Context, id string) (*domain.Notification, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	if s.publisher == nil {
		return nil, fmt.Errorf("retry requires a queue publisher")
	}

	if err := s.notifications.Retry(ctx, id); err != nil {
		return nil, err
	}

	notification, err := s.notifications.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	msg := queue.InboundMessage{
		NotificationID: notification.ID,
		Kind:           notification.Kind,
		Recipient:      notification.Recipient,
		Subject:        notification.Subject,
		PlainBody:      notification.PlainBody,
		Priority:       notification.Priority,
		Attributes:     notification.Attributes,
	}
	if err := s.publisher.Publish(ctx, queue.WorkQueueName, msg); err != nil {
		s.logger.Error("failed to republish notification for retry",
			zap.String("notificationId", id),
			zap.Error(err),
		)
		if markErr := s.notifications.MarkFailed(ctx, id, fmt.Sprintf("requeue failed: %v", err)); markErr != nil {
			return nil, fmt.Errorf("failed to republish notification: %w (failed to restore status: %v)", err, markErr)
		}
		return nil, fmt.Errorf("failed to republish notification: %w", err)
	}

	return notification, nil
}

func (s *HistoryService) DeadLetters(ctx context.Context, page, pageSize int) ([]domain.DeadLetter, int64, error) {
	if s.deadLetters == nil {
		return nil, 0, nil
	}
	return s.deadLetters.List(ctx, page, pageSize)
}
