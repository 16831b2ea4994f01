package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/acadnotify/notify-engine/internal/domain"
)

type fakeAcknowledger struct {
	acks    int
	nacks   int
	rejects int
	requeue bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.acks++
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	a.nacks++
	a.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	a.rejects++
	a.requeue = requeue
	return nil
}

func testDelivery(t *testing.T, ack *fakeAcknowledger, msg InboundMessage) amqp.Delivery {
	t.Helper()

	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal message: %v", err)
	}
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body}
}

func TestConsumerAcksProcessedMessage(t *testing.T) {
	t.Parallel()

	ack := &fakeAcknowledger{}
	c := NewRabbitMQConsumer(&RabbitMQ{}, 1, zap.NewNop())
	d := testDelivery(t, ack, InboundMessage{
		NotificationID: "n-1",
		Kind:           domain.KindGeneric,
		Recipient:      "candidate@grad.example.edu",
		Subject:        "subject",
	})

	handler := func(ctx context.Context, msg InboundMessage) error { return nil }
	if err := c.handleDelivery(context.Background(), d, handler); err != nil {
		t.Fatalf("handleDelivery() unexpected error: %v", err)
	}
	if ack.acks != 1 || ack.nacks != 0 {
		t.Fatalf("acks = %d, nacks = %d, want 1 ack", ack.acks, ack.nacks)
	}
}

func TestConsumerRequeuesOnHandlerError(t *testing.T) {
	t.Parallel()

	ack := &fakeAcknowledger{}
	c := NewRabbitMQConsumer(&RabbitMQ{}, 1, zap.NewNop())
	d := testDelivery(t, ack, InboundMessage{
		NotificationID: "n-2",
		Kind:           domain.KindGeneric,
		Recipient:      "candidate@grad.example.edu",
		Subject:        "subject",
	})

	handler := func(ctx context.Context, msg InboundMessage) error {
		return fmt.Errorf("failed to persist notification: database is down")
	}
	if err := c.handleDelivery(context.Background(), d, handler); err != nil {
		t.Fatalf("handleDelivery() unexpected error: %v", err)
	}
	if ack.nacks != 1 || !ack.requeue {
		t.Fatalf("nacks = %d, requeue = %v, want 1 nack with requeue", ack.nacks, ack.requeue)
	}
}

// A redelivered message whose record already reached SENT or FAILED must be
// acked: requeueing it would conflict again on every redelivery and pin a
// prefetch slot forever.
func TestConsumerAcksTerminalDuplicate(t *testing.T) {
	t.Parallel()

	ack := &fakeAcknowledger{}
	c := NewRabbitMQConsumer(&RabbitMQ{}, 1, zap.NewNop())
	d := testDelivery(t, ack, InboundMessage{
		NotificationID: "n-3",
		Kind:           domain.KindGeneric,
		Recipient:      "candidate@grad.example.edu",
		Subject:        "subject",
	})

	handler := func(ctx context.Context, msg InboundMessage) error {
		// The wrapped shape the pipeline returns for an already-sent record.
		return fmt.Errorf("failed to persist notification: %w",
			fmt.Errorf("%w: notification n-3 already processed", domain.ErrConflict))
	}
	if err := c.handleDelivery(context.Background(), d, handler); err != nil {
		t.Fatalf("handleDelivery() unexpected error: %v", err)
	}
	if ack.acks != 1 {
		t.Fatalf("acks = %d, want 1", ack.acks)
	}
	if ack.nacks != 0 || ack.rejects != 0 {
		t.Fatalf("nacks = %d, rejects = %d, want 0 and 0", ack.nacks, ack.rejects)
	}
}

func TestConsumerRejectsMalformedPayloads(t *testing.T) {
	t.Parallel()

	ack := &fakeAcknowledger{}
	c := NewRabbitMQConsumer(&RabbitMQ{}, 1, zap.NewNop())
	d := amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte("{not json")}

	handler := func(ctx context.Context, msg InboundMessage) error {
		t.Fatal("handler must not run for malformed payloads")
		return nil
	}
	if err := c.handleDelivery(context.Background(), d, handler); err != nil {
		t.Fatalf("handleDelivery() unexpected error: %v", err)
	}
	if ack.rejects != 1 || ack.requeue {
		t.Fatalf("rejects = %d, requeue = %v, want 1 reject without requeue", ack.rejects, ack.requeue)
	}
}
