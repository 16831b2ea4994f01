package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultGatewayTimeout = 15 * time.Second

type gatewayRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// MailGatewayTransport delivers messages through an HTTP mail gateway.
// Retries are left to the executor; the client never retries on its own.
type MailGatewayTransport struct {
	client   *resty.Client
	endpoint string
}

func NewMailGatewayTransport(endpoint string) (*MailGatewayTransport, error) {
	client := resty.New()
	client.SetTimeout(defaultGatewayTimeout)
	client.SetRetryCount(0)

	return NewMailGatewayTransportWithClient(endpoint, client)
}

func NewMailGatewayTransportWithClient(endpoint string, client *resty.Client) (*MailGatewayTransport, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("mail gateway endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid mail gateway endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultGatewayTimeout)
	}
	client.SetRetryCount(0)

	return &MailGatewayTransport{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (t *MailGatewayTransport) Send(ctx context.Context, recipient, subject, body string) error {
	if t == nil || t.client == nil {
		return fmt.Errorf("transport is not initialized")
	}

	reqBody := gatewayRequest{
		To:      recipient,
		Subject: subject,
		Body:    body,
	}

	response, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(t.endpoint)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &TransportError{
			Message:   "gateway request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return &TransportError{
			Message:   "gateway returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	return &TransportError{
		StatusCode: statusCode,
		Message:    gatewayErrorMessage(statusCode, strings.TrimSpace(response.String())),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func gatewayErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("gateway returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
