package delivery

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

const (
	defaultAttemptTimeout = 10 * time.Second
	defaultMaxAttempts    = 3
	baseRetryDelay        = time.Second
	maxRetryDelay         = 30 * time.Second
	maxRetryJitterMillis  = 250
)

// ExecutorConfig tunes the resilience policies wrapped around the transport.
type ExecutorConfig struct {
	// BulkheadSize bounds simultaneous in-flight delivery attempts.
	BulkheadSize int
	// BulkheadMaxWait bounds how long a caller may wait for admission.
	BulkheadMaxWait time.Duration
	// AttemptTimeout bounds a single transport call.
	AttemptTimeout time.Duration
	// MaxAttempts bounds transport invocations per delivery.
	MaxAttempts int
	// Breaker tunes the shared circuit breaker.
	Breaker BreakerConfig
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = defaultAttemptTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	return c
}

// Job is one delivery handed to the executor.
type Job struct {
	Recipient string
	Subject   string
	Body      string

	// OnAttempt, when set, is invoked exactly once per transport invocation,
	// just before the call. Admission rejections do not count as attempts.
	OnAttempt func(attempt int)

	// OnOutcome, when set, is invoked once per transport invocation after the
	// call returns, with the classified error (nil on success).
	OnOutcome func(attempt int, err error)
}

// Executor wraps a Transport with bulkhead, circuit breaker, timeout and
// retry, nested in that order. The breaker and bulkhead are owned here and
// shared by every delivery to the same transport.
type Executor struct {
	transport Transport
	bulkhead  *Bulkhead
	breaker   *Breaker
	cfg       ExecutorConfig

	sleep    func(ctx context.Context, d time.Duration) error
	randIntn func(n int) int
}

func NewExecutor(transport Transport, cfg ExecutorConfig) (*Executor, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	cfg = cfg.withDefaults()

	return &Executor{
		transport: transport,
		bulkhead:  NewBulkhead(cfg.BulkheadSize, cfg.BulkheadMaxWait),
		breaker:   NewBreaker(cfg.Breaker),
		cfg:       cfg,
		sleep:     sleepWithContext,
		randIntn:  rand.Intn,
	}, nil
}

// BreakerState exposes the shared breaker state for observability.
func (e *Executor) BreakerState() BreakerState {
	return e.breaker.State()
}

// InFlight exposes the bulkhead occupancy for observability.
func (e *Executor) InFlight() int {
	return e.bulkhead.InFlight()
}

// Deliver runs one delivery under the full policy chain. A nil return means
// the transport accepted the message; any failure comes back as *Error and
// never panics past this boundary.
func (e *Executor) Deliver(ctx context.Context, job Job) error {
	if ctx == nil {
		ctx = context.Background()
	}

	release, err := e.bulkhead.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := e.sleep(ctx, e.backoffDelay(attempt-1)); err != nil {
				return &Error{
					Kind:    KindExhausted,
					Message: "retry backoff canceled",
					Cause:   lastErr,
				}
			}
		}

		err := e.attemptOnce(ctx, job, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		var dErr *Error
		if errors.As(err, &dErr) && dErr.Kind == KindCircuitOpen {
			// Admission rejection: fail fast, the breaker already decided.
			return err
		}
		if !retryableAttempt(err) {
			return err
		}
	}

	return &Error{
		Kind:    KindExhausted,
		Message: fmt.Sprintf("retries exhausted after %d attempts", e.cfg.MaxAttempts),
		Cause:   lastErr,
	}
}

func (e *Executor) attemptOnce(ctx context.Context, job Job, attempt int) error {
	done, err := e.breaker.Acquire()
	if err != nil {
		return err
	}

	if job.OnAttempt != nil {
		job.OnAttempt(attempt)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
	defer cancel()

	sendErr := e.transport.Send(attemptCtx, job.Recipient, job.Subject, job.Body)

	var result error
	if sendErr == nil {
		done(true)
	} else {
		done(false)
		if errors.Is(sendErr, context.DeadlineExceeded) && attemptCtx.Err() != nil && ctx.Err() == nil {
			result = &Error{
				Kind:    KindTimeout,
				Message: fmt.Sprintf("attempt exceeded %s", e.cfg.AttemptTimeout),
				Cause:   sendErr,
			}
		} else {
			result = &Error{
				Kind:    KindTransport,
				Message: "transport call failed",
				Cause:   sendErr,
			}
		}
	}

	if job.OnOutcome != nil {
		job.OnOutcome(attempt, result)
	}

	return result
}

// retryableAttempt reports whether the retry policy should re-invoke the
// inner chain: timeouts and transient transport failures only.
func retryableAttempt(err error) bool {
	var dErr *Error
	if !errors.As(err, &dErr) {
		return false
	}

	switch dErr.Kind {
	case KindTimeout:
		return true
	case KindTransport:
		return IsTransient(dErr.Cause)
	}
	return false
}

func (e *Executor) backoffDelay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}

	delay := baseRetryDelay
	for i := 1; i < retry; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	jitterMillis := 0
	if e.randIntn != nil && maxRetryJitterMillis > 0 {
		jitterMillis = e.randIntn(maxRetryJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
