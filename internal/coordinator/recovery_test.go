package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afeezaziz/arkrelay-gateway/internal/orchestrator"
	"github.com/afeezaziz/arkrelay-gateway/pkg/retry"
)

func TestClassifyMapsKnownMessagesToClasses(t *testing.T) {
	cases := []struct {
		msg  string
		want ErrorClass
	}{
		{"rpc error: context deadline exceeded, timeout", ClassServiceTimeout},
		{"connection refused, service unavailable", ClassServiceUnavailable},
		{"invoice has expired", ClassInvoiceExpired},
		{"no_route: insufficient channel liquidity", ClassChannelUnavailable},
		{"rate limit exceeded, slow down", ClassRateLimited},
		{"invalid bolt11 invoice: validation failed", ClassInvalidInvoice},
		{"payment failed: generic failure", ClassPaymentFailed},
		{"unexpected protocol response", ClassProtocolError},
		{"something totally unrecognized happened", ClassUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classify(errors.New(tc.msg)), tc.msg)
	}
}

func TestErrorClassRecoverable(t *testing.T) {
	assert.True(t, ClassServiceTimeout.recoverable())
	assert.True(t, ClassServiceUnavailable.recoverable())
	assert.True(t, ClassChannelUnavailable.recoverable())
	assert.True(t, ClassRateLimited.recoverable())
	assert.True(t, ClassPaymentFailed.recoverable())

	assert.False(t, ClassInvoiceExpired.recoverable())
	assert.False(t, ClassInvalidInvoice.recoverable())
	assert.False(t, ClassProtocolError.recoverable())
	assert.False(t, ClassUnknown.recoverable())
}

func TestBreakerKeyIsStableAndDistinctPerClass(t *testing.T) {
	assert.Equal(t, breakerKey(ClassRateLimited), breakerKey(ClassRateLimited))
	assert.NotEqual(t, breakerKey(ClassRateLimited), breakerKey(ClassPaymentFailed))
}

func TestRecoveryDoNilReceiverRunsOnce(t *testing.T) {
	var r *Recovery
	calls := 0
	err := r.Do(context.Background(), "label", func(ctx context.Context) error {
		calls++
		return errors.New("payment failed: boom")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRecoveryDoRetriesRecoverableClassUntilSuccess(t *testing.T) {
	r := NewRecovery(5, time.Minute, time.Millisecond)
	calls := 0
	err := r.Do(context.Background(), "land:pay_invoice", func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("payment failed: temporary routing hiccup")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRecoveryDoGivesUpOnNonRecoverableClassImmediately(t *testing.T) {
	r := NewRecovery(5, time.Minute, time.Millisecond)
	calls := 0
	err := r.Do(context.Background(), "lift:add_invoice", func(ctx context.Context) error {
		calls++
		return errors.New("invoice has expired")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	se := orchestrator.AsSessionError(err)
	assert.Equal(t, orchestrator.ErrInvoiceExpired, se.Kind)
}

func TestRecoveryDoTripsBreakerPerClassNotGlobally(t *testing.T) {
	r := NewRecovery(2, time.Hour, time.Millisecond)

	// Two payment_failed failures trip that class's breaker (threshold 2).
	for i := 0; i < 2; i++ {
		_ = r.Do(context.Background(), "land:pay_invoice", func(ctx context.Context) error {
			return errors.New("payment failed: general routing failure")
		})
	}
	assert.Equal(t, retry.Open, r.breakerFor(ClassPaymentFailed).State())

	// A different label with no recorded failure must still run: the
	// payment_failed breaker tripping must not block it, and the
	// rate_limited breaker stays closed.
	calls := 0
	err := r.Do(context.Background(), "lift:lookup_invoice", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, retry.Closed, r.breakerFor(ClassRateLimited).State())
}

func TestRecoveryDoShortCircuitsWhenLabelsBreakerIsOpen(t *testing.T) {
	r := NewRecovery(1, time.Hour, time.Millisecond)

	// One payment_failed failure with threshold 1 trips the breaker
	// immediately (maxAttempts for payment_failed is 3, so the loop keeps
	// retrying within Do itself until the breaker opens).
	_ = r.Do(context.Background(), "land:pay_invoice", func(ctx context.Context) error {
		return errors.New("payment failed: general routing failure")
	})

	calls := 0
	err := r.Do(context.Background(), "land:pay_invoice", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 0, calls, "fn must not be invoked while the label's last-observed class breaker is open")
	se := orchestrator.AsSessionError(err)
	assert.Equal(t, orchestrator.ErrServiceUnavailable, se.Kind)
}
