package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acadnotify/notify-engine/internal/domain"
	"github.com/acadnotify/notify-engine/internal/queue"
	"github.com/acadnotify/notify-engine/internal/repository"
	"github.com/acadnotify/notify-engine/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

// HistoryService is the read-and-admin surface the handler exposes.
type HistoryService interface {
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error)
	Attempts(ctx context.Context, notificationID string) ([]domain.DeliveryAttempt, error)
	Stats(ctx context.Context) (*service.StatsSnapshot, error)
	Retry(ctx context.Context, id string) (*domain.Notification, error)
	DeadLetters(ctx context.Context, page, pageSize int) ([]domain.DeadLetter, int64, error)
}

// DeadLetterAdmin feeds dead letters back into the pipeline.
type DeadLetterAdmin interface {
	ReprocessAll(ctx context.Context, limit int) (service.ReprocessReport, error)
}

type NotificationHandler struct {
	history     HistoryService
	deadLetters DeadLetterAdmin
	publisher   queue.Publisher
}

func NewNotificationHandler(
	history HistoryService,
	deadLetters DeadLetterAdmin,
	publisher queue.Publisher,
) (*NotificationHandler, error) {
	if history == nil {
		return nil, fmt.Errorf("history service is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("queue publisher is required")
	}

	return &NotificationHandler{
		history:     history,
		deadLetters: deadLetters,
		publisher:   publisher,
	}, nil
}

func RegisterNotificationRoutes(
	router fiber.Router,
	history HistoryService,
	deadLetters DeadLetterAdmin,
	publisher queue.Publisher,
) error {
	h, err := NewNotificationHandler(history, deadLetters, publisher)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", h.CreateNotification)
	v1.Get("/notifications/stats", h.GetStats)
	v1.Get("/notifications/:id/attempts", h.GetAttempts)
	v1.Get("/notifications/:id", h.GetNotification)
	v1.Post("/notifications/:id/retry", h.RetryNotification)
	v1.Get("/notifications", h.ListNotifications)
	v1.Get("/dead-letters", h.ListDeadLetters)
	v1.Post("/dead-letters/reprocess", h.ReprocessDeadLetters)

	return nil
}

type createNotificationRequest struct {
	CorrelationID string            `json:"correlationId"`
	Kind          string            `json:"kind"`
	Priority      string            `json:"priority"`
	Recipient     string            `json:"recipient"`
	Subject       string            `json:"subject"`
	Body          string            `json:"body"`
	Attributes    map[string]string `json:"attributes"`
}

type createNotificationResponse struct {
	NotificationID string `json:"notificationId"`
	CorrelationID  string `json:"correlationId"`
	Status         string `json:"status"`
}

type notificationResponse struct {
	ID           string            `json:"id"`
	Kind         string            `json:"kind"`
	Priority     string            `json:"priority"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject"`
	Body         string            `json:"body"`
	RenderedBody *string           `json:"renderedBody,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	Status       string            `json:"status"`
	ErrorMessage *string           `json:"errorMessage,omitempty"`
	AttemptCount int               `json:"attemptCount"`
	SentAt       *time.Time        `json:"sentAt,omitempty"`
	CreatedAt    time.Time         `json:"createdAt,omitempty"`
	UpdatedAt    time.Time         `json:"updatedAt,omitempty"`
}

type attemptResponse struct {
	AttemptNumber int       `json:"attemptNumber"`
	Error         *string   `json:"error,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type statsResponse struct {
	Total       int64   `json:"total"`
	Pending     int64   `json:"pending"`
	Sent        int64   `json:"sent"`
	Failed      int64   `json:"failed"`
	Retrying    int64   `json:"retrying"`
	SuccessRate float64 `json:"successRate"`
}

type deadLetterResponse struct {
	ID                     string    `json:"id"`
	OriginalNotificationID string    `json:"originalNotificationId"`
	Kind                   string    `json:"kind"`
	Recipient              string    `json:"recipient"`
	Subject                string    `json:"subject"`
	ErrorMessage           string    `json:"errorMessage"`
	Reprocessed            bool      `json:"reprocessed"`
	EnqueuedAt             time.Time `json:"enqueuedAt"`
}

type listNotificationsResponse struct {
	Data []notificationResponse `json:"data"`
	Meta listMeta               `json:"meta"`
}

type listDeadLettersResponse struct {
	Data []deadLetterResponse `json:"data"`
	Meta listMeta             `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type reprocessResponse struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// CreateNotification accepts a delivery request and hands it to the work
// queue. Semantic validation happens in the pipeline so rejected requests
// still leave an auditable record.
func (h *NotificationHandler) CreateNotification(c *fiber.Ctx) error {
	var req createNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if strings.TrimSpace(req.Recipient) == "" {
		return toHTTPError(fmt.Errorf("%w: recipient is required", domain.ErrValidation))
	}
	if strings.TrimSpace(req.Kind) == "" {
		return toHTTPError(fmt.Errorf("%w: kind is required", domain.ErrValidation))
	}

	priority := domain.PriorityNormal
	if raw := strings.TrimSpace(req.Priority); raw != "" {
		parsed, err := domain.ParsePriorityFromString(raw)
		if err != nil {
			return toHTTPError(err)
		}
		priority = parsed
	}

	correlationID := strings.TrimSpace(req.CorrelationID)
	if correlationID == "" {
		correlationID = requestCorrelationID(c)
	}

	msg := queue.InboundMessage{
		NotificationID: uuid.NewString(),
		Correlation:    correlationID,
		Kind:           domain.Kind(strings.ToUpper(strings.TrimSpace(req.Kind))),
		Recipient:      strings.TrimSpace(req.Recipient),
		Subject:        strings.TrimSpace(req.Subject),
		PlainBody:      req.Body,
		Priority:       priority,
		Attributes:     req.Attributes,
	}

	if err := h.publisher.Publish(c.Context(), queue.WorkQueueName, msg); err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}

	return c.Status(fiber.StatusAccepted).JSON(createNotificationResponse{
		NotificationID: msg.NotificationID,
		CorrelationID:  correlationID,
		Status:         "ACCEPTED",
	})
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	notification, err := h.history.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(notification))
}

func (h *NotificationHandler) GetAttempts(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	attempts, err := h.history.Attempts(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]attemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		responses = append(responses, attemptResponse{
			AttemptNumber: attempt.AttemptNumber,
			Error:         attempt.Error,
			CreatedAt:     attempt.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"notificationId": id,
		"attempts":       responses,
	})
}

func (h *NotificationHandler) RetryNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	notification, err := h.history.Retry(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toNotificationResponse(notification))
}

func (h *NotificationHandler) GetStats(c *fiber.Ctx) error {
	snapshot, err := h.history.Stats(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(statsResponse{
		Total:       snapshot.Total,
		Pending:     snapshot.Pending,
		Sent:        snapshot.Sent,
		Failed:      snapshot.Failed,
		Retrying:    snapshot.Retrying,
		SuccessRate: snapshot.SuccessRate,
	})
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	notifications, total, err := h.history.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listNotificationsResponse{
		Data: toNotificationResponses(notifications),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *NotificationHandler) ListDeadLetters(c *fiber.Ctx) error {
	page := c.QueryInt("page", defaultPage)
	pageSize := c.QueryInt("pageSize", defaultPageSize)
	if page < 1 {
		return toHTTPError(fmt.Errorf("%w: page must be >= 1", domain.ErrValidation))
	}
	if pageSize < 1 || pageSize > maxPageSize {
		return toHTTPError(fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize))
	}

	entries, total, err := h.history.DeadLetters(c.Context(), page, pageSize)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]deadLetterResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, deadLetterResponse{
			ID:                     entry.ID,
			OriginalNotificationID: entry.OriginalNotificationID,
			Kind:                   entry.Kind.String(),
			Recipient:              entry.Recipient,
			Subject:                entry.Subject,
			ErrorMessage:           entry.ErrorMessage,
			Reprocessed:            entry.Reprocessed,
			EnqueuedAt:             entry.EnqueuedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(listDeadLettersResponse{
		Data: responses,
		Meta: listMeta{
			Page:     page,
			PageSize: pageSize,
			Total:    total,
		},
	})
}

func (h *NotificationHandler) ReprocessDeadLetters(c *fiber.Ctx) error {
	if h.deadLetters == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "reprocessing is not enabled")
	}

	limit := c.QueryInt("limit", 0)
	report, err := h.deadLetters.ReprocessAll(c.Context(), limit)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(reprocessResponse{
		Total:     report.Total,
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
	})
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	if recipient := strings.TrimSpace(c.Query("recipient")); recipient != "" {
		params.Recipient = &recipient
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func toNotificationResponses(notifications []domain.Notification) []notificationResponse {
	responses := make([]notificationResponse, 0, len(notifications))
	for _, notification := range notifications {
		n := notification
		responses = append(responses, toNotificationResponse(&n))
	}
	return responses
}

func toNotificationResponse(n *domain.Notification) notificationResponse {
	if n == nil {
		return notificationResponse{}
	}

	return notificationResponse{
		ID:           n.ID,
		Kind:         n.Kind.String(),
		Priority:     n.Priority.String(),
		Recipient:    n.Recipient,
		Subject:      n.Subject,
		Body:         n.PlainBody,
		RenderedBody: n.RenderedBody,
		Attributes:   n.Attributes,
		Status:       n.Status.String(),
		ErrorMessage: n.ErrorMessage,
		AttemptCount: n.AttemptCount,
		SentAt:       n.SentAt,
		CreatedAt:    n.CreatedAt,
		UpdatedAt:    n.UpdatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
