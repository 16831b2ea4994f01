package delivery

import (
	"context"
	"time"
)

const (
	defaultBulkheadSize    = 16
	defaultBulkheadMaxWait = 2 * time.Second
)

// Bulkhead is a bounded concurrency gate isolating the transport's load. A
// caller that cannot take a slot within maxWait is rejected; admission never
// queues indefinitely.
type Bulkhead struct {
	slots   chan struct{}
	maxWait time.Duration
}

func NewBulkhead(size int, maxWait time.Duration) *Bulkhead {
	if size <= 0 {
		size = defaultBulkheadSize
	}
	if maxWait <= 0 {
		maxWait = defaultBulkheadMaxWait
	}

	return &Bulkhead{
		slots:   make(chan struct{}, size),
		maxWait: maxWait,
	}
}

// Acquire takes one slot, waiting at most maxWait. On admission it returns a
// release callback that must be invoked exactly once. A rejection returns an
// Error of kind BULKHEAD_FULL.
func (b *Bulkhead) Acquire(ctx context.Context) (func(), error) {
	select {
	case b.slots <- struct{}{}:
		return b.release, nil
	default:
	}

	timer := time.NewTimer(b.maxWait)
	defer timer.Stop()

	select {
	case b.slots <- struct{}{}:
		return b.release, nil
	case <-timer.C:
		return nil, &Error{
			Kind:    KindBulkheadFull,
			Message: "bulkhead admission timed out",
		}
	case <-ctx.Done():
		return nil, &Error{
			Kind:    KindBulkheadFull,
			Message: "bulkhead admission canceled",
			Cause:   ctx.Err(),
		}
	}
}

// InFlight returns the number of currently held slots.
func (b *Bulkhead) InFlight() int {
	return len(b.slots)
}

func (b *Bulkhead) release() {
	<-b.slots
}
