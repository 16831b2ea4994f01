package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/acadnotify/notify-engine/internal/delivery"
	"github.com/acadnotify/notify-engine/internal/domain"
	"github.com/acadnotify/notify-engine/internal/observability"
	"github.com/acadnotify/notify-engine/internal/queue"
	"github.com/acadnotify/notify-engine/internal/repository"
	"github.com/acadnotify/notify-engine/internal/template"
)

// Deliverer runs one delivery under the resilience policy chain.
type Deliverer interface {
	Deliver(ctx context.Context, job delivery.Job) error
}

// Escalator moves a terminally failed notification onto the dead-letter path.
type Escalator interface {
	Escalate(ctx context.Context, n *domain.Notification, cause error) error
}

// Orchestrator drives a notification from inbound message to terminal state:
// persist, validate, render, deliver, record the outcome.
type Orchestrator struct {
	notifications repository.NotificationRepository
	attempts      repository.AttemptRepository
	renderer      *template.Renderer
	deliverer     Deliverer
	deadLetters   Escalator
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

func NewOrchestrator(
	notifications repository.NotificationRepository,
	attempts repository.AttemptRepository,
	renderer *template.Renderer,
	deliverer Deliverer,
	deadLetters Escalator,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if deliverer == nil {
		return nil, fmt.Errorf("deliverer is required")
	}
	if renderer == nil {
		renderer = template.NewRenderer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		notifications: notifications,
		attempts:      attempts,
		renderer:      renderer,
		deliverer:     deliverer,
		deadLetters:   deadLetters,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (o *Orchestrator) SetMetrics(metrics *observability.Metrics) {
	if o == nil {
		return
	}
	o.metrics = metrics
}

// Process handles one inbound message end to end. A nil return means the
// message reached a terminal record (SENT or FAILED) and must be acked; a
// non-nil return means nothing durable happened and the message should be
// redelivered.
func (o *Orchestrator) Process(ctx context.Context, msg queue.InboundMessage) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = observability.WithCorrelationID(ctx, msg.Correlation)
	logger := observability.WithContextLogger(o.logger, ctx)

	notification, err := o.persistPending(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to persist notification: %w", err)
	}
	kind := notification.Kind.String()
	logger = logger.With(zap.String("notificationId", notification.ID))

	if o.metrics != nil {
		o.metrics.IncNotificationPending(kind)
	}

	if err := notification.Validate(); err != nil {
		return o.failValidation(ctx, logger, notification, err)
	}

	rendered := o.renderer.Render(notification)
	notification.RenderedBody = &rendered
	if err := o.notifications.SetRenderedBody(ctx, notification.ID, rendered); err != nil {
		// The rendered body also travels with the job, so delivery proceeds.
		logger.Warn("failed to persist rendered body", zap.Error(err))
	}

	deliveryStart := o.now()
	deliverErr := o.deliverer.Deliver(ctx, delivery.Job{
		Recipient: notification.Recipient,
		Subject:   notification.Subject,
		Body:      rendered,
		OnAttempt: o.attemptObserver(ctx, logger, notification),
		OnOutcome: o.outcomeRecorder(ctx, logger, notification),
	})
	if o.metrics != nil {
		o.metrics.ObserveDeliveryDuration(kind, o.now().Sub(deliveryStart))
	}

	if deliverErr == nil {
		sentAt := o.now().UTC()
		if err := o.notifications.MarkSent(ctx, notification.ID, sentAt); err != nil {
			return fmt.Errorf("failed to mark notification as sent: %w", err)
		}
		if o.metrics != nil {
			o.metrics.IncNotificationSent(kind)
		}
		logger.Info("notification delivered", zap.String("recipient", notification.Recipient))
		return nil
	}

	if err := o.notifications.MarkFailed(ctx, notification.ID, deliverErr.Error()); err != nil {
		return fmt.Errorf("failed to mark notification as failed: %w", err)
	}
	notification.Status = domain.StatusFailed
	if o.metrics != nil {
		o.metrics.IncNotificationFailed(kind, failureReason(deliverErr))
	}
	logger.Warn("notification delivery failed",
		zap.String("recipient", notification.Recipient),
		zap.Error(deliverErr),
	)

	if o.deadLetters != nil {
		if err := o.deadLetters.Escalate(ctx, notification, deliverErr); err != nil {
			// The FAILED record is the source of truth; escalation is
			// recoverable via the reprocess endpoint.
			logger.Error("dead-letter escalation failed", zap.Error(err))
		}
	}

	return nil
}

// persistPending stores the inbound request as a PENDING record before any
// validation, so even malformed requests leave an auditable row.
func (o *Orchestrator) persistPending(ctx context.Context, msg queue.InboundMessage) (*domain.Notification, error) {
	id := strings.TrimSpace(msg.NotificationID)
	if id == "" {
		id = uuid.NewString()
	}
	priority := msg.Priority
	if !priority.IsValid() {
		priority = domain.PriorityNormal
	}

	notification := &domain.Notification{
		ID:         id,
		Kind:       msg.Kind,
		Priority:   priority,
		Recipient:  strings.TrimSpace(msg.Recipient),
		Subject:    strings.TrimSpace(msg.Subject),
		PlainBody:  msg.PlainBody,
		Attributes: msg.Attributes,
		Status:     domain.StatusPending,
	}

	if err := o.notifications.Create(ctx, notification); err != nil {
		// Redelivered messages carry the same id; reload instead of failing.
		if isDuplicateKeyError(err) {
			existing, getErr := o.notifications.GetByID(ctx, id)
			if getErr != nil {
				return nil, getErr
			}
			if existing.Status != domain.StatusPending && existing.Status != domain.StatusRetrying {
				return nil, fmt.Errorf("%w: notification %s already processed", domain.ErrConflict, id)
			}
			return existing, nil
		}
		return nil, err
	}

	return notification, nil
}

// failValidation terminates a structurally invalid request: FAILED record,
// failure metric, no retry and no dead letter.
func (o *Orchestrator) failValidation(
	ctx context.Context,
	logger *zap.Logger,
	notification *domain.Notification,
	validationErr error,
) error {
	if err := o.notifications.MarkFailed(ctx, notification.ID, validationErr.Error()); err != nil {
		return fmt.Errorf("failed to mark invalid notification as failed: %w", err)
	}

	if o.metrics != nil {
		o.metrics.IncNotificationFailed(notification.Kind.String(), failureReason(validationErr))
	}
	logger.Warn("notification rejected by validation",
		zap.String("recipient", notification.Recipient),
		zap.Error(validationErr),
	)
	return nil
}

// attemptObserver increments the attempt counter once per transport
// invocation and flips the record to RETRYING from the second attempt on.
func (o *Orchestrator) attemptObserver(
	ctx context.Context,
	logger *zap.Logger,
	notification *domain.Notification,
) func(attempt int) {
	return func(attempt int) {
		if err := o.notifications.IncrementAttempt(ctx, notification.ID); err != nil {
			logger.Error("failed to increment attempt count",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		notification.AttemptCount = attempt

		if attempt > 1 {
			if err := o.notifications.UpdateStatus(ctx, notification.ID, domain.StatusRetrying); err != nil {
				logger.Error("failed to mark notification as retrying",
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
			}
			notification.Status = domain.StatusRetrying
			if o.metrics != nil {
				o.metrics.IncRetryAttempt(notification.Kind.String())
			}
		}
	}
}

// outcomeRecorder appends one audit row per transport invocation.
func (o *Orchestrator) outcomeRecorder(
	ctx context.Context,
	logger *zap.Logger,
	notification *domain.Notification,
) func(attempt int, outcomeErr error) {
	return func(attempt int, outcomeErr error) {
		if o.attempts == nil {
			return
		}

		var attemptErr *string
		if outcomeErr != nil {
			value := outcomeErr.Error()
			attemptErr = &value
		}

		record := &domain.DeliveryAttempt{
			ID:             uuid.NewString(),
			NotificationID: notification.ID,
			AttemptNumber:  attempt,
			Error:          attemptErr,
			CreatedAt:      o.now().UTC(),
		}
		if err := o.attempts.Create(ctx, record); err != nil {
			logger.Error("failed to record delivery attempt",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
	}
}

// failureReason maps an error to the metric label: the delivery error kind
// or the validation reason, lowercased.
func failureReason(err error) string {
	var dErr *delivery.Error
	if errors.As(err, &dErr) {
		return strings.ToLower(string(dErr.Kind))
	}

	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		return strings.ToLower(string(vErr.Reason))
	}

	return "unknown"
}

func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
