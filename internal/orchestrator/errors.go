// Package orchestrator is the Ceremony Orchestrator: the state machine
// that owns a SigningSession from intent arrival to terminal state.
package orchestrator

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed vocabulary of terminal error codes §7 of the
// specification names, mirrored into every outbound failure event's `code`
// field.
type ErrorKind string

const (
	ErrInvalidIntent        ErrorKind = "invalid_intent"
	ErrUnknownSessionType   ErrorKind = "unknown_session_type"
	ErrExpiredIntent        ErrorKind = "expired_intent"
	ErrInsufficientBalance  ErrorKind = "insufficient_balance"
	ErrInvalidInvoice       ErrorKind = "invalid_invoice"
	ErrChallengeNotFound    ErrorKind = "challenge_not_found"
	ErrChallengeExpired     ErrorKind = "challenge_expired"
	ErrChallengeAlreadyUsed ErrorKind = "challenge_already_used"
	ErrInvalidSignature     ErrorKind = "invalid_signature"
	ErrInsufficientInventory ErrorKind = "insufficient_inventory"
	ErrReservationLost      ErrorKind = "reservation_lost"
	ErrServiceUnavailable   ErrorKind = "service_unavailable"
	ErrServiceTimeout       ErrorKind = "service_timeout"
	ErrServiceProtocolError ErrorKind = "service_protocol_error"
	ErrInvoiceExpired       ErrorKind = "invoice_expired"
	ErrPaymentFailed        ErrorKind = "payment_failed"
	ErrRateLimited          ErrorKind = "rate_limited"
	ErrChannelUnavailable   ErrorKind = "channel_unavailable"
	ErrStoreConflict        ErrorKind = "store_conflict"
	ErrShutdown             ErrorKind = "shutdown"
	ErrInternal             ErrorKind = "internal"
)

// SessionError pairs an ErrorKind with a human-readable message, the shape
// written to a session's result field and mirrored into a failure event.
// The message must never include credentials or private keys (§7).
type SessionError struct {
	Kind    ErrorKind
	Message string
}

func (e *SessionError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func fail(kind ErrorKind, format string, args ...any) error {
	return &SessionError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewError lets other packages (e.g. the Lightning Coordinator's
// committers) produce a typed SessionError without reaching into this
// package's unexported constructor.
func NewError(kind ErrorKind, format string, args ...any) error {
	return fail(kind, format, args...)
}

// AsSessionError unwraps err into a *SessionError, or wraps it as
// ErrInternal if it isn't one already, so every failure path has a
// well-formed error kind to publish.
func AsSessionError(err error) *SessionError {
	var se *SessionError
	if errors.As(err, &se) {
		return se
	}
	return &SessionError{Kind: ErrInternal, Message: err.Error()}
}
