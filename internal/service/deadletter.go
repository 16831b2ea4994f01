package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acadnotify/notify-engine/internal/domain"
	"github.com/acadnotify/notify-engine/internal/observability"
	"github.com/acadnotify/notify-engine/internal/queue"
	"github.com/acadnotify/notify-engine/internal/repository"
)

const defaultReprocessBatch = 100

// ReprocessReport summarizes one reprocessing pass over the dead-letter
// store.
type ReprocessReport struct {
	Total     int
	Succeeded int
	Failed    int
}

// DeadLetterService persists exhausted notifications and republishes them on
// the dead-letter queue, and can later feed them back into the pipeline.
type DeadLetterService struct {
	deadLetters   repository.DeadLetterRepository
	notifications repository.NotificationRepository
	publisher     queue.Publisher
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

func NewDeadLetterService(
	deadLetters repository.DeadLetterRepository,
	notifications repository.NotificationRepository,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*DeadLetterService, error) {
	if deadLetters == nil {
		return nil, fmt.Errorf("dead-letter repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeadLetterService{
		deadLetters:   deadLetters,
		notifications: notifications,
		publisher:     publisher,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (s *DeadLetterService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Escalate snapshots a terminally failed notification into the dead-letter
// store and announces it on the dead-letter queue. The stored row is the
// source of truth; a broker publish failure is logged and absorbed.
func (s *DeadLetterService) Escalate(ctx context.Context, n *domain.Notification, cause error) error {
	if n == nil {
		return fmt.Errorf("notification is required")
	}

	errorMessage := "delivery failed"
	if cause != nil {
		errorMessage = cause.Error()
	}

	entry := &domain.DeadLetter{
		ID:                     uuid.NewString(),
		OriginalNotificationID: n.ID,
		Kind:                   n.Kind,
		Recipient:              n.Recipient,
		Subject:                n.Subject,
		Attributes:             n.Attributes,
		ErrorMessage:           errorMessage,
		EnqueuedAt:             s.now().UTC(),
	}
	if err := s.deadLetters.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to persist dead letter: %w", err)
	}

	if s.publisher != nil {
		msg := queue.DeadLetterMessage{
			OriginalNotificationID: n.ID,
			Kind:                   n.Kind,
			Recipient:              n.Recipient,
			Subject:                n.Subject,
			ErrorMessage:           errorMessage,
			EnqueuedAt:             entry.EnqueuedAt,
		}
		if err := s.publisher.Publish(ctx, queue.DeadLetterQueueName, msg); err != nil {
			s.logger.Error("failed to publish dead-letter message",
				zap.String("notificationId", n.ID),
				zap.Error(err),
			)
		}
	}

	if s.metrics != nil {
		s.metrics.IncDeadLettered(n.Kind.String())
	}
	s.logger.Warn("notification dead-lettered",
		zap.String("notificationId", n.ID),
		zap.String("kind", n.Kind.String()),
		zap.String("error", errorMessage),
	)

	return nil
}

// ReprocessAll drains unreprocessed dead letters back into the work queue.
// Each entry is handled independently; one failure never aborts the pass.
func (s *DeadLetterService) ReprocessAll(ctx context.Context, limit int) (ReprocessReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if limit < 1 {
		limit = defaultReprocessBatch
	}
	if s.notifications == nil || s.publisher == nil {
		return ReprocessReport{}, fmt.Errorf("reprocessing requires notification repository and publisher")
	}

	entries, err := s.deadLetters.ListUnreprocessed(ctx, limit)
	if err != nil {
		return ReprocessReport{}, fmt.Errorf("failed to list dead letters: %w", err)
	}

	report := ReprocessReport{Total: len(entries)}
	for i := range entries {
		entry := &entries[i]
		if err := s.reprocessOne(ctx, entry); err != nil {
			report.Failed++
			s.logger.Warn("dead-letter reprocess failed",
				zap.String("deadLetterId", entry.ID),
				zap.String("notificationId", entry.OriginalNotificationID),
				zap.Error(err),
			)
			continue
		}
		report.Succeeded++
	}

	if report.Total > 0 {
		s.logger.Info("dead-letter reprocess pass finished",
			zap.Int("total", report.Total),
			zap.Int("succeeded", report.Succeeded),
			zap.Int("failed", report.Failed),
		)
	}

	return report, nil
}

func (s *DeadLetterService) reprocessOne(ctx context.Context, entry *domain.DeadLetter) error {
	notification, err := s.notifications.GetByID(ctx, entry.OriginalNotificationID)
	if err != nil {
		return fmt.Errorf("failed to load original notification: %w", err)
	}

	if err := s.notifications.Retry(ctx, notification.ID); err != nil {
		return fmt.Errorf("failed to reset notification for retry: %w", err)
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
		return fmt.Errorf("failed to republish notification: %w", err)
	}

	if err := s.deadLetters.MarkReprocessed(ctx, entry.ID); err != nil {
		return fmt.Errorf("failed to mark dead letter reprocessed: %w", err)
	}
	entry.Reprocessed = true

	return nil
}
