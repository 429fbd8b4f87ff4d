package coordinator

import (
	"context"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/afeezaziz/arkrelay-gateway/internal/orchestrator"
	"github.com/afeezaziz/arkrelay-gateway/pkg/logger"
	"github.com/afeezaziz/arkrelay-gateway/pkg/retry"
)

// ErrorClass is the Lightning-specific slice of §7's error taxonomy: the
// Lightning Coordinator's own Recovery layer classifies a raw client error
// into one of these before deciding whether to retry it, separately from
// the generic transport retry the RPC Shell already applies per call.
type ErrorClass string

const (
	ClassServiceTimeout     ErrorClass = "service_timeout"
	ClassServiceUnavailable ErrorClass = "service_unavailable"
	ClassInvoiceExpired     ErrorClass = "invoice_expired"
	ClassChannelUnavailable ErrorClass = "channel_unavailable"
	ClassRateLimited        ErrorClass = "rate_limited"
	ClassPaymentFailed      ErrorClass = "payment_failed"
	ClassInvalidInvoice     ErrorClass = "invalid_invoice"
	ClassProtocolError      ErrorClass = "service_protocol_error"
	ClassUnknown            ErrorClass = "unknown"
)

// recoverable reports whether a class is worth retrying at all. Expired
// invoices, malformed invoices, and unclassified errors are treated as
// permanent, matching lightning_errors.py's per-type recoverable flag.
func (c ErrorClass) recoverable() bool {
	switch c {
	case ClassServiceTimeout, ClassServiceUnavailable, ClassChannelUnavailable, ClassRateLimited, ClassPaymentFailed:
		return true
	default:
		return false
	}
}

func (c ErrorClass) errorKind() orchestrator.ErrorKind {
	switch c {
	case ClassServiceTimeout:
		return orchestrator.ErrServiceTimeout
	case ClassServiceUnavailable:
		return orchestrator.ErrServiceUnavailable
	case ClassInvoiceExpired:
		return orchestrator.ErrInvoiceExpired
	case ClassChannelUnavailable:
		return orchestrator.ErrChannelUnavailable
	case ClassRateLimited:
		return orchestrator.ErrRateLimited
	case ClassInvalidInvoice:
		return orchestrator.ErrInvalidInvoice
	case ClassProtocolError:
		return orchestrator.ErrServiceProtocolError
	default:
		return orchestrator.ErrPaymentFailed
	}
}

// maxAttempts bounds how many times a class is retried before Recovery.Do
// gives up, mirroring lightning_errors.py's per-type max_retries.
func (c ErrorClass) maxAttempts() int {
	switch c {
	case ClassServiceUnavailable:
		return 5
	case ClassRateLimited:
		return 1
	default:
		return 3
	}
}

// classify maps a raw Lightning client error to an ErrorClass by substring
// match against its message, the same heuristic lightning_errors.py's
// LightningErrorHandler._classify_error applies to gRPC status text and
// LND's PaymentFailureReason strings.
func classify(err error) ErrorClass {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return ClassServiceTimeout
	case strings.Contains(msg, "network") || strings.Contains(msg, "connection") || strings.Contains(msg, "unavailable"):
		return ClassServiceUnavailable
	case strings.Contains(msg, "expired"):
		return ClassInvoiceExpired
	case strings.Contains(msg, "channel") || strings.Contains(msg, "no_route") || strings.Contains(msg, "no route") || strings.Contains(msg, "insufficient"):
		return ClassChannelUnavailable
	case strings.Contains(msg, "rate limit"):
		return ClassRateLimited
	case strings.Contains(msg, "invalid") || strings.Contains(msg, "validation"):
		return ClassInvalidInvoice
	case strings.Contains(msg, "unexpected") || strings.Contains(msg, "protocol"):
		return ClassProtocolError
	case strings.Contains(msg, "payment") && strings.Contains(msg, "failed"):
		return ClassPaymentFailed
	default:
		return ClassUnknown
	}
}

// breakerKey hashes the class into the breaker map's key with blake2b
// rather than using the class string itself, keeping the hot retry path
// off an allocating crypto/sha256 sum for what is, here, a non-cryptographic
// keyspace hash.
func breakerKey(class ErrorClass) string {
	sum := blake2b.Sum256([]byte(class))
	return hex.EncodeToString(sum[:8])
}

// Recovery implements §4.7's "Recovery" policy: classify Lightning failures,
// retry only recoverable classes with exponential backoff plus jitter, and
// give each error class its own circuit breaker so a burst of
// payment_failed doesn't trip the breaker guarding rate_limited.
//
// A nil *Recovery is valid and simply runs fn once with no retry — callers
// that don't care about recovery policy (tests, mostly) can leave the field
// unset.
type Recovery struct {
	Threshold       int
	RecoveryTimeout time.Duration
	BaseDelay       time.Duration

	mu        sync.Mutex
	breakers  map[string]*retry.Breaker
	lastClass map[string]ErrorClass
}

// NewRecovery constructs a Recovery with the given breaker policy. Zero
// values fall back to the same defaults retry.NewBreaker uses.
func NewRecovery(threshold int, recoveryTimeout, baseDelay time.Duration) *Recovery {
	return &Recovery{
		Threshold:       threshold,
		RecoveryTimeout: recoveryTimeout,
		BaseDelay:       baseDelay,
		breakers:        make(map[string]*retry.Breaker),
		lastClass:       make(map[string]ErrorClass),
	}
}

// Do runs fn, classifying any failure and retrying recoverable classes with
// exponential backoff and jitter, gated by the per-class circuit breaker.
// If the operation identified by label last failed with a class whose
// breaker is currently open, fn is not invoked at all and a
// service_unavailable SessionError is returned immediately.
func (r *Recovery) Do(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	if r == nil {
		return fn(ctx)
	}

	if class, ok := r.lastClassFor(label); ok {
		if r.breakerFor(class).State() == retry.Open {
			return orchestrator.NewError(orchestrator.ErrServiceUnavailable,
				"%s: circuit open for %s, not attempting", label, class)
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.baseDelay()
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.3
	bo.MaxInterval = 60 * time.Second

	attempt := 0
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		class := classify(err)
		r.setLastClass(label, class)
		breaker := r.breakerFor(class)
		_ = breaker.Call(func() error { return err })

		if !class.recoverable() {
			return orchestrator.NewError(class.errorKind(), "%s", err.Error())
		}

		attempt++
		if attempt >= class.maxAttempts() || breaker.State() == retry.Open {
			return orchestrator.NewError(class.errorKind(), "%s (after %d attempts)", err.Error(), attempt)
		}

		delay := bo.NextBackOff()
		logger.Warn("retrying lightning operation after classified failure",
			zap.String("label", label),
			zap.String("class", string(class)),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (r *Recovery) baseDelay() time.Duration {
	if r.BaseDelay <= 0 {
		return time.Second
	}
	return r.BaseDelay
}

func (r *Recovery) breakerFor(class ErrorClass) *retry.Breaker {
	key := breakerKey(class)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.breakers == nil {
		r.breakers = make(map[string]*retry.Breaker)
	}
	b, ok := r.breakers[key]
	if !ok {
		threshold := r.Threshold
		if threshold <= 0 {
			threshold = 5
		}
		recoveryTimeout := r.RecoveryTimeout
		if recoveryTimeout <= 0 {
			recoveryTimeout = 60 * time.Second
		}
		b = retry.NewBreaker(threshold, recoveryTimeout)
		r.breakers[key] = b
	}
	return b
}

func (r *Recovery) lastClassFor(label string) (ErrorClass, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	class, ok := r.lastClass[label]
	return class, ok
}

func (r *Recovery) setLastClass(label string, class ErrorClass) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastClass == nil {
		r.lastClass = make(map[string]ErrorClass)
	}
	r.lastClass[label] = class
}
