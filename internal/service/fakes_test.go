package service

import (
	"context"
	"sync"
	"time"

	"github.com/acadnotify/notify-engine/internal/delivery"
	"github.com/acadnotify/notify-engine/internal/domain"
	"github.com/acadnotify/notify-engine/internal/queue"
	"github.com/acadnotify/notify-engine/internal/repository"
)

type fakeNotificationRepo struct {
	mu sync.Mutex

	createFn          func(ctx context.Context, n *domain.Notification) error
	getByIDFn         func(ctx context.Context, id string) (*domain.Notification, error)
	listFn            func(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error)
	updateStatusFn    func(ctx context.Context, id string, status domain.Status) error
	markSentFn        func(ctx context.Context, id string, sentAt time.Time) error
	markFailedFn      func(ctx context.Context, id string, errorMessage string) error
	setRenderedFn     func(ctx context.Context, id string, body string) error
	incrementFn       func(ctx context.Context, id string) error
	retryFn           func(ctx context.Context, id string) error
	statusCountsFn    func(ctx context.Context) ([]repository.StatusCount, error)
	statusTransitions []domain.Status
	incrementCalls    int
}

func (f *fakeNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	if f.createFn != nil {
		return f.createFn(ctx, n)
	}
	return nil
}

func (f *fakeNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) List(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, 0, nil
}

func (f *fakeNotificationRepo) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	f.mu.Lock()
	f.statusTransitions = append(f.statusTransitions, status)
	f.mu.Unlock()
	if f.updateStatusFn != nil {
		return f.updateStatusFn(ctx, id, status)
	}
	return nil
}

func (f *fakeNotificationRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	f.mu.Lock()
	f.statusTransitions = append(f.statusTransitions, domain.StatusSent)
	f.mu.Unlock()
	if f.markSentFn != nil {
		return f.markSentFn(ctx, id, sentAt)
	}
	return nil
}

func (f *fakeNotificationRepo) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	f.mu.Lock()
	f.statusTransitions = append(f.statusTransitions, domain.StatusFailed)
	f.mu.Unlock()
	if f.markFailedFn != nil {
		return f.markFailedFn(ctx, id, errorMessage)
	}
	return nil
}

func (f *fakeNotificationRepo) SetRenderedBody(ctx context.Context, id string, body string) error {
	if f.setRenderedFn != nil {
		return f.setRenderedFn(ctx, id, body)
	}
	return nil
}

func (f *fakeNotificationRepo) IncrementAttempt(ctx context.Context, id string) error {
	f.mu.Lock()
	f.incrementCalls++
	f.mu.Unlock()
	if f.incrementFn != nil {
		return f.incrementFn(ctx, id)
	}
	return nil
}

func (f *fakeNotificationRepo) Retry(ctx context.Context, id string) error {
	if f.retryFn != nil {
		return f.retryFn(ctx, id)
	}
	return nil
}

func (f *fakeNotificationRepo) StatusCounts(ctx context.Context) ([]repository.StatusCount, error) {
	if f.statusCountsFn != nil {
		return f.statusCountsFn(ctx)
	}
	return nil, nil
}

func (f *fakeNotificationRepo) transitions() []domain.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Status, len(f.statusTransitions))
	copy(out, f.statusTransitions)
	return out
}

type fakeAttemptRepo struct {
	mu      sync.Mutex
	records []domain.DeliveryAttempt

	createFn func(ctx context.Context, a *domain.DeliveryAttempt) error
	getFn    func(ctx context.Context, notificationID string) ([]domain.DeliveryAttempt, error)
}

func (f *fakeAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	f.mu.Lock()
	if a != nil {
		f.records = append(f.records, *a)
	}
	f.mu.Unlock()
	if f.createFn != nil {
		return f.createFn(ctx, a)
	}
	return nil
}

func (f *fakeAttemptRepo) GetByNotificationID(ctx context.Context, notificationID string) ([]domain.DeliveryAttempt, error) {
	if f.getFn != nil {
		return f.getFn(ctx, notificationID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.DeliveryAttempt, len(f.records))
	copy(out, f.records)
	return out, nil
}

type fakeDeadLetterRepo struct {
	mu      sync.Mutex
	entries []domain.DeadLetter

	createFn            func(ctx context.Context, d *domain.DeadLetter) error
	getByIDFn           func(ctx context.Context, id string) (*domain.DeadLetter, error)
	listFn              func(ctx context.Context, page, pageSize int) ([]domain.DeadLetter, int64, error)
	listUnreprocessedFn func(ctx context.Context, limit int) ([]domain.DeadLetter, error)
	markReprocessedFn   func(ctx context.Context, id string) error
}

func (f *fakeDeadLetterRepo) Create(ctx context.Context, d *domain.DeadLetter) error {
	f.mu.Lock()
	if d != nil {
		f.entries = append(f.entries, *d)
	}
	f.mu.Unlock()
	if f.createFn != nil {
		return f.createFn(ctx, d)
	}
	return nil
}

func (f *fakeDeadLetterRepo) GetByID(ctx context.Context, id string) (*domain.DeadLetter, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeDeadLetterRepo) List(ctx context.Context, page, pageSize int) ([]domain.DeadLetter, int64, error) {
	if f.listFn != nil {
		return f.listFn(ctx, page, pageSize)
	}
	return nil, 0, nil
}

func (f *fakeDeadLetterRepo) ListUnreprocessed(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
	if f.listUnreprocessedFn != nil {
		return f.listUnreprocessedFn(ctx, limit)
	}
	return nil, nil
}

func (f *fakeDeadLetterRepo) MarkReprocessed(ctx context.Context, id string) error {
	if f.markReprocessedFn != nil {
		return f.markReprocessedFn(ctx, id)
	}
	return nil
}

type publishedMessage struct {
	queueName string
	msg       queue.Message
}

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedMessage

	publishFn func(ctx context.Context, queueName string, msg queue.Message) error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.Message) error {
	f.mu.Lock()
	f.published = append(f.published, publishedMessage{queueName: queueName, msg: msg})
	f.mu.Unlock()
	if f.publishFn != nil {
		return f.publishFn(ctx, queueName, msg)
	}
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) messages() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishedMessage, len(f.published))
	copy(out, f.published)
	return out
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

type fakeDeliverer struct {
	deliverFn func(ctx context.Context, job delivery.Job) error
}

func (f *fakeDeliverer) Deliver(ctx context.Context, job delivery.Job) error {
	if f.deliverFn != nil {
		return f.deliverFn(ctx, job)
	}
	return nil
}

type fakeEscalator struct {
	mu        sync.Mutex
	escalated []string

	escalateFn func(ctx context.Context, n *domain.Notification, cause error) error
}

func (f *fakeEscalator) Escalate(ctx context.Context, n *domain.Notification, cause error) error {
	f.mu.Lock()
	if n != nil {
		f.escalated = append(f.escalated, n.ID)
	}
	f.mu.Unlock()
	if f.escalateFn != nil {
		return f.escalateFn(ctx, n, cause)
	}
	return nil
}

func (f *fakeEscalator) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.escalated))
	copy(out, f.escalated)
	return out
}

type fakeRateLimiter struct {
	mu      sync.Mutex
	waits   int
	allowFn func(ctx context.Context, key string) (bool, error)
	waitFn  func(ctx context.Context, key string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, key)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, key string) error {
	f.mu.Lock()
	f.waits++
	f.mu.Unlock()
	if f.waitFn != nil {
		return f.waitFn(ctx, key)
	}
	return nil
}
