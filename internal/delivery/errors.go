package delivery

import (
	"fmt"
	"strings"
)

// ErrorKind classifies delivery failures for the orchestrator. Every kind is
// escalatable to the dead-letter path; only validation failures (which never
// reach the executor) are not.
type ErrorKind string

const (
	// KindTimeout marks an attempt that exceeded the per-attempt bound.
	KindTimeout ErrorKind = "TIMEOUT"
	// KindCircuitOpen marks a call rejected while the breaker is open.
	KindCircuitOpen ErrorKind = "CIRCUIT_OPEN"
	// KindBulkheadFull marks a call rejected by the concurrency gate.
	KindBulkheadFull ErrorKind = "BULKHEAD_FULL"
	// KindTransport marks a failure reported by the transport itself.
	KindTransport ErrorKind = "TRANSPORT"
	// KindExhausted marks a transient failure that survived all retries.
	KindExhausted ErrorKind = "EXHAUSTED"
)

// Error is the tagged failure result of a delivery. The orchestrator switches
// on Kind instead of matching error types.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 3)
	parts = append(parts, fmt.Sprintf("delivery failed (%s)", e.Kind))

	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
