package delivery

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker state shared across all delivery
// attempts to the same transport.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

func (s BreakerState) String() string { return string(s) }

const (
	defaultWindowSize       = 10
	defaultFailureThreshold = 0.5
	defaultMinimumSamples   = 5
	defaultWaitDuration     = 30 * time.Second
	defaultPermittedProbes  = 1
)

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	// WindowSize bounds the sliding window of most-recent call outcomes.
	WindowSize int
	// FailureThreshold is the failure rate (0..1) at which the circuit opens.
	FailureThreshold float64
	// MinimumSamples is the window population required before the rate is
	// considered meaningful.
	MinimumSamples int
	// WaitDuration is how long an open circuit rejects calls before probing.
	WaitDuration time.Duration
	// PermittedProbes bounds concurrent half-open probe calls.
	PermittedProbes int
	// OnStateChange, if set, is invoked on every state transition. It runs
	// under the breaker mutex and must not call back into the breaker.
	OnStateChange func(state string)
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.WindowSize <= 0 {
		c.WindowSize = defaultWindowSize
	}
	if c.FailureThreshold <= 0 || c.FailureThreshold > 1 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.MinimumSamples <= 0 {
		c.MinimumSamples = defaultMinimumSamples
	}
	if c.MinimumSamples > c.WindowSize {
		c.MinimumSamples = c.WindowSize
	}
	if c.WaitDuration <= 0 {
		c.WaitDuration = defaultWaitDuration
	}
	if c.PermittedProbes <= 0 {
		c.PermittedProbes = defaultPermittedProbes
	}
	return c
}

// Breaker is a sliding-window circuit breaker. Window updates and state
// transitions happen under one mutex so two callers cannot simultaneously
// open and reset the circuit. Safe for concurrent use.
type Breaker struct {
	mu  sync.Mutex
	cfg BreakerConfig
	now func() time.Time

	state          BreakerState
	outcomes       []bool // ring buffer, true = failure
	cursor         int
	samples        int
	failures       int
	openedAt       time.Time
	probesInFlight int
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	cfg = cfg.withDefaults()
	return &Breaker{
		cfg:      cfg,
		now:      time.Now,
		state:    BreakerClosed,
		outcomes: make([]bool, cfg.WindowSize),
	}
}

// Acquire asks the breaker to admit one call. On admission it returns a done
// callback that must be invoked exactly once with the call's outcome; the
// outcome is recorded atomically with any resulting state transition. A
// rejection returns an Error of kind CIRCUIT_OPEN.
func (b *Breaker) Acquire() (func(success bool), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return b.doneClosed, nil

	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.WaitDuration {
			return nil, &Error{
				Kind:    KindCircuitOpen,
				Message: "circuit breaker is open",
			}
		}
		b.setStateLocked(BreakerHalfOpen)
		b.probesInFlight = 0
		return b.admitProbeLocked()

	case BreakerHalfOpen:
		return b.admitProbeLocked()
	}

	return nil, &Error{Kind: KindCircuitOpen, Message: "circuit breaker in unknown state"}
}

// State returns the current state without advancing OPEN to HALF_OPEN.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) admitProbeLocked() (func(success bool), error) {
	if b.probesInFlight >= b.cfg.PermittedProbes {
		return nil, &Error{
			Kind:    KindCircuitOpen,
			Message: "circuit breaker is half-open and probe quota is taken",
		}
	}
	b.probesInFlight++
	return b.doneProbe, nil
}

func (b *Breaker) doneClosed(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Outcome from a call admitted while closed; meaningless once the
	// circuit has moved on.
	if b.state != BreakerClosed {
		return
	}

	b.recordLocked(!success)

	if b.samples < b.cfg.MinimumSamples {
		return
	}
	if float64(b.failures)/float64(b.samples) >= b.cfg.FailureThreshold {
		b.tripLocked()
	}
}

func (b *Breaker) doneProbe(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.probesInFlight > 0 {
		b.probesInFlight--
	}

	if b.state != BreakerHalfOpen {
		return
	}

	if success {
		b.setStateLocked(BreakerClosed)
		b.resetWindowLocked()
		return
	}

	b.tripLocked()
}

func (b *Breaker) tripLocked() {
	b.setStateLocked(BreakerOpen)
	b.openedAt = b.now()
	b.probesInFlight = 0
	b.resetWindowLocked()
}

func (b *Breaker) setStateLocked(state BreakerState) {
	if b.state == state {
		return
	}
	b.state = state
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(state.String())
	}
}

func (b *Breaker) recordLocked(failure bool) {
	if b.samples == len(b.outcomes) && b.outcomes[b.cursor] {
		b.failures--
	}

	b.outcomes[b.cursor] = failure
	b.cursor = (b.cursor + 1) % len(b.outcomes)
	if b.samples < len(b.outcomes) {
		b.samples++
	}
	if failure {
		b.failures++
	}
}

func (b *Breaker) resetWindowLocked() {
	for i := range b.outcomes {
		b.outcomes[i] = false
	}
	b.cursor = 0
	b.samples = 0
	b.failures = 0
}
