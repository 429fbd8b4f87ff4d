package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/afeezaziz/arkrelay-gateway/pkg/logger"
)

// Policy controls retry-with-backoff behavior around a breaker-protected call.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Breaker     *Breaker
	Label       string // used only in log lines, e.g. "arkd", "lightning-recovery:payment_failed"
}

// retryableCodes mirrors the Python client's retry set: only a timed-out
// deadline or a transiently unavailable service is worth retrying. Anything
// else (invalid argument, permission denied, not found, ...) is a caller
// bug or a permanent rejection and retrying it would just waste the budget.
var retryableCodes = map[codes.Code]bool{
	codes.DeadlineExceeded: true,
	codes.Unavailable:      true,
}

// Do runs fn up to p.MaxAttempts times, sleeping base*2^attempt between
// attempts, routed through p.Breaker. Only gRPC DEADLINE_EXCEEDED/
// UNAVAILABLE errors are retried; any other error (including ErrBreakerOpen)
// returns immediately.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	baseDelay := p.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		callErr := p.Breaker.Call(func() error { return fn(ctx) })
		if callErr == nil {
			return nil
		}

		if errors.Is(callErr, ErrBreakerOpen) {
			return callErr
		}

		lastErr = callErr
		if !isRetryable(callErr) {
			return callErr
		}

		if attempt == maxAttempts-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<uint(attempt))
		logger.Warn("retrying rpc after transient failure",
			zap.String("label", p.Label),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("delay", delay),
			zap.Error(callErr),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

func isRetryable(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	return retryableCodes[st.Code()]
}
