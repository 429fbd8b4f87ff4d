// Package retry provides the circuit breaker and retry-with-backoff
// primitives shared by every outbound RPC call the gateway makes, so the
// policy lives in one place instead of being copy-pasted per back-end client.
package retry

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is one of the three states a Breaker can be in.
type BreakerState int

const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned by Call when the breaker is open and the
// recovery window has not yet elapsed.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// Breaker is a mutex-guarded closed/open/half-open circuit breaker. It trips
// to Open after FailureThreshold consecutive failures, waits
// RecoveryTimeout before allowing a single trial call through (HalfOpen),
// and resets to Closed on that trial's success.
type Breaker struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration

	mu              sync.Mutex
	state           BreakerState
	failureCount    int
	lastFailureTime time.Time
}

// NewBreaker constructs a Breaker with the given threshold and recovery
// window. Both must be positive; sane defaults are used otherwise.
func NewBreaker(failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 60 * time.Second
	}
	return &Breaker{
		FailureThreshold: failureThreshold,
		RecoveryTimeout:  recoveryTimeout,
		state:            Closed,
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Call executes fn under the breaker's protection. If the breaker is Open
// and the recovery window hasn't elapsed, fn is not invoked and
// ErrBreakerOpen is returned. A successful call in HalfOpen resets the
// breaker to Closed; a failure anywhere re-arms the failure counter and may
// trip the breaker to Open.
func (b *Breaker) Call(fn func() error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailureLocked()
		return err
	}
	b.onSuccessLocked()
	return nil
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if time.Since(b.lastFailureTime) > b.RecoveryTimeout {
			b.state = HalfOpen
			return nil
		}
		return ErrBreakerOpen
	}
	if b.state == HalfOpen {
		return ErrBreakerOpen // the single trial call is still in flight
	}
	return nil
}

func (b *Breaker) onSuccessLocked() {
	if b.state == HalfOpen {
		b.state = Closed
	}
	b.failureCount = 0
}

func (b *Breaker) onFailureLocked() {
	b.failureCount++
	b.lastFailureTime = time.Now()

	if b.state == HalfOpen {
		b.state = Open
		return
	}
	if b.state == Closed && b.failureCount >= b.FailureThreshold {
		b.state = Open
	}
}
