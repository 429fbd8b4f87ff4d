package orchestrator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsSessionErrorPassesThroughExisting(t *testing.T) {
	original := fail(ErrInsufficientBalance, "available %d < requested %d", 10, 100)

	se := AsSessionError(original)
	assert.Equal(t, ErrInsufficientBalance, se.Kind)
	assert.Contains(t, se.Message, "available 10 < requested 100")
}

func TestAsSessionErrorWrapsPlainError(t *testing.T) {
	se := AsSessionError(errors.New("boom"))
	assert.Equal(t, ErrInternal, se.Kind)
	assert.Equal(t, "boom", se.Message)
}

func TestNewErrorProducesUsableSessionError(t *testing.T) {
	err := NewError(ErrPaymentFailed, "htlc failed: %s", "timeout")

	var se *SessionError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, ErrPaymentFailed, se.Kind)
	assert.Equal(t, "htlc failed: timeout", se.Message)
	assert.Equal(t, "payment_failed: htlc failed: timeout", err.Error())
}
