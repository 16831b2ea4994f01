package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
)

func TestMailGatewayTransportSendSuccess(t *testing.T) {
	t.Parallel()

	var gotBody gatewayRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}

		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}

		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	tr, err := NewMailGatewayTransport(server.URL)
	if err != nil {
		t.Fatalf("NewMailGatewayTransport() error = %v", err)
	}

	err = tr.Send(context.Background(), "candidate@grad.example.edu", "Defense scheduled", "body text")
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}

	if gotBody.To != "candidate@grad.example.edu" {
		t.Fatalf("request.to = %q, want %q", gotBody.To, "candidate@grad.example.edu")
	}
	if gotBody.Subject != "Defense scheduled" {
		t.Fatalf("request.subject = %q, want %q", gotBody.Subject, "Defense scheduled")
	}
	if gotBody.Body != "body text" {
		t.Fatalf("request.body = %q, want %q", gotBody.Body, "body text")
	}
}

func TestMailGatewayTransportStatusClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		statusCode    int
		wantTransient bool
	}{
		{name: "too many requests is transient", statusCode: http.StatusTooManyRequests, wantTransient: true},
		{name: "bad request is permanent", statusCode: http.StatusBadRequest, wantTransient: false},
		{name: "internal server error is transient", statusCode: http.StatusInternalServerError, wantTransient: true},
		{name: "bad gateway is transient", statusCode: http.StatusBadGateway, wantTransient: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte("gateway failed"))
			}))
			defer server.Close()

			tr, err := NewMailGatewayTransport(server.URL)
			if err != nil {
				t.Fatalf("NewMailGatewayTransport() error = %v", err)
			}

			err = tr.Send(context.Background(), "candidate@grad.example.edu", "subject", "body")
			if err == nil {
				t.Fatal("expected error")
			}

			if got := IsTransient(err); got != tc.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", got, tc.wantTransient)
			}

			var transportErr *TransportError
			if !errors.As(err, &transportErr) {
				t.Fatalf("expected TransportError, got %T", err)
			}
			if transportErr.StatusCode != tc.statusCode {
				t.Fatalf("TransportError.StatusCode = %d, want %d", transportErr.StatusCode, tc.statusCode)
			}
		})
	}
}

func TestMailGatewayTransportTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resty.New()
	client.SetTimeout(30 * time.Millisecond)

	tr, err := NewMailGatewayTransportWithClient(server.URL, client)
	if err != nil {
		t.Fatalf("NewMailGatewayTransportWithClient() error = %v", err)
	}

	err = tr.Send(context.Background(), "candidate@grad.example.edu", "subject", "body")
	if err == nil {
		t.Fatal("expected timeout error")
	}

	if !IsTransient(err) {
		t.Fatalf("IsTransient() = false, want true (err=%v)", err)
	}
}

func TestNewMailGatewayTransportRejectsBadEndpoint(t *testing.T) {
	t.Parallel()

	if _, err := NewMailGatewayTransport(""); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
	if _, err := NewMailGatewayTransport("not a url"); err == nil {
		t.Fatal("expected error for malformed endpoint")
	}
}
