package queue

import (
	"context"

	"github.com/acadnotify/notify-engine/internal/domain"
)

// Queue names. One work queue feeds the pipeline; exhausted retriable
// failures land on the dead-letter queue for reprocessing.
const (
	WorkQueueName       = "notifications"
	DeadLetterQueueName = "notifications.dlq"

	// queueMaxPriority is the RabbitMQ x-max-priority value for the work queue.
	queueMaxPriority int32 = 3
)

// Publisher publishes messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg Message) error
	Close() error
}

// MessageHandler handles a consumed inbound message.
type MessageHandler func(ctx context.Context, msg InboundMessage) error

// Consumer consumes inbound messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

// PriorityValue maps domain priority to RabbitMQ message priority.
func PriorityValue(priority domain.Priority) uint8 {
	switch priority {
	case domain.PriorityHigh:
		return 3
	case domain.PriorityNormal:
		return 2
	case domain.PriorityLow:
		return 1
	default:
		return 0
	}
}
