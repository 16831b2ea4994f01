package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/acadnotify/notify-engine/internal/observability"
	"github.com/acadnotify/notify-engine/internal/queue"
	"github.com/acadnotify/notify-engine/internal/ratelimit"
)

const (
	minWorkerConcurrency = 1

	// transportRateKey is the rate limiter bucket for the mail gateway.
	transportRateKey = "mail"
)

// Processor handles one inbound message end to end.
type Processor interface {
	Process(ctx context.Context, msg queue.InboundMessage) error
}

// WorkerService fans the work queue out over a fixed pool of consumers, each
// running messages through the pipeline processor.
type WorkerService struct {
	consumer    queue.Consumer
	processor   Processor
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
}

func NewWorkerService(
	consumer queue.Consumer,
	processor Processor,
	rateLimiter ratelimit.RateLimiter,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if consumer == nil {
		return nil, fmt.Errorf("queue consumer is required")
	}
	if processor == nil {
		return nil, fmt.Errorf("message processor is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		consumer:    consumer,
		processor:   processor,
		rateLimiter: rateLimiter,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start consumes the work queue and processes messages until context
// cancellation.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queue.WorkQueueName),
			)

			err := s.consumer.Consume(groupCtx, queue.WorkQueueName, s.handleMessage)
			if err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (s *WorkerService) handleMessage(ctx context.Context, msg queue.InboundMessage) error {
	if s.metrics != nil {
		s.metrics.IncWorkerInFlight()
		defer s.metrics.DecWorkerInFlight()
	}

	if s.rateLimiter != nil {
		if err := s.rateLimiter.Wait(ctx, transportRateKey); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	return s.processor.Process(ctx, msg)
}
