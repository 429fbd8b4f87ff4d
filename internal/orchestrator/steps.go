package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/afeezaziz/arkrelay-gateway/internal/challenge"
	"github.com/afeezaziz/arkrelay-gateway/internal/store"
	"github.com/afeezaziz/arkrelay-gateway/pkg/logger"
)

// advance runs steps 4-9 of the contract for a session that just received
// a signed challenge response.
func (o *Orchestrator) advance(ctx context.Context, session *store.Session, challengeID, signatureHex string) error {
	if err := o.sessions.UpdateState(ctx, session.SessionID, store.SessionChallengeSent, store.SessionAwaitingSignature); err != nil {
		if errors.Is(err, store.ErrSessionStateConflict) {
			return nil // a concurrent duplicate response already advanced it
		}
		return fmt.Errorf("failed to advance to awaiting_signature: %w", err)
	}

	_, err := challenge.Verify(ctx, o.challenges, challengeID, signatureHex, session.UserPubkey)
	if err != nil {
		return o.failSession(ctx, session, mapChallengeErr(err))
	}

	if err := o.sessions.UpdateState(ctx, session.SessionID, store.SessionAwaitingSignature, store.SessionSigning); err != nil {
		if errors.Is(err, store.ErrSessionStateConflict) {
			return nil
		}
		return fmt.Errorf("failed to advance to signing: %w", err)
	}
	session.State = store.SessionSigning
	if err := o.publishStatus(ctx, session, "signing"); err != nil {
		logger.Warn("failed to publish status event", zap.String("session_id", session.SessionID), zap.Error(err))
	}

	var reserved []*store.Vtxo
	if session.SessionType != store.SessionLightningLift {
		// Lift is a credit flow: nothing of the user's is debited at this
		// step, so there's no inventory to reserve.
		reserved, err = o.reserveInventory(ctx, session)
		if err != nil {
			return o.failSession(ctx, session, err)
		}
	}

	committer, ok := o.committers[session.SessionType]
	if !ok {
		return o.failSession(ctx, session, fail(ErrUnknownSessionType, "no committer registered for %s", session.SessionType))
	}

	if err := o.sessions.UpdateState(ctx, session.SessionID, store.SessionSigning, store.SessionCommitting); err != nil {
		if errors.Is(err, store.ErrSessionStateConflict) {
			return nil
		}
		return fmt.Errorf("failed to advance to committing: %w", err)
	}
	session.State = store.SessionCommitting
	if err := o.publishStatus(ctx, session, "committing"); err != nil {
		logger.Warn("failed to publish status event", zap.String("session_id", session.SessionID), zap.Error(err))
	}

	result, err := committer.Commit(ctx, session, reserved)
	if err != nil {
		if releaseErr := o.inv.Release(ctx, session.SessionID); releaseErr != nil {
			logger.Warn("failed to release reservation after commit failure", zap.String("session_id", session.SessionID), zap.Error(releaseErr))
		}
		return o.failSession(ctx, session, err)
	}

	if result.Pending {
		// lightning_lift: the invoice is created but unpaid. The session
		// stays in `committing`; the Lightning Coordinator's settlement
		// monitor calls CompleteSession once it observes payment.
		return nil
	}

	return o.completeSession(ctx, session, result)
}

// completeSession is the shared tail of step 8: apply balance effects,
// finalize, publish. Used both inline by advance (for p2p_transfer and
// lightning_land, which complete synchronously) and externally by the
// Lightning Coordinator's settlement monitor (for lightning_lift, which
// completes once an invoice is observed paid).
func (o *Orchestrator) completeSession(ctx context.Context, session *store.Session, result *CommitResult) error {
	if err := o.inv.Commit(ctx, session.SessionID); err != nil {
		logger.Warn("failed to mark vtxos assigned after successful commit", zap.String("session_id", session.SessionID), zap.Error(err))
	}

	switch session.SessionType {
	case store.SessionP2PTransfer:
		if err := o.applyTransferBalances(ctx, session); err != nil {
			logger.Warn("failed to apply transfer balance deltas", zap.String("session_id", session.SessionID), zap.Error(err))
		}
	case store.SessionLightningLift:
		if err := o.balances.Adjust(ctx, session.UserPubkey, session.Intent.Params.AssetID, session.Intent.Params.Amount, 0); err != nil {
			logger.Warn("failed to credit lift balance", zap.String("session_id", session.SessionID), zap.Error(err))
		}
	case store.SessionLightningLand:
		if err := o.balances.Adjust(ctx, session.UserPubkey, session.Intent.Params.AssetID, -session.Intent.Params.Amount, -session.Intent.Params.Amount); err != nil {
			logger.Warn("failed to debit land balance", zap.String("session_id", session.SessionID), zap.Error(err))
		}
	}

	sessionResult := &store.SessionResult{
		TxID:        result.TxID,
		PaymentHash: result.PaymentHash,
		AmountSats:  session.Intent.Params.Amount,
		FeeSats:     result.FeeSats,
	}
	if err := o.sessions.Finalize(ctx, session.SessionID, store.SessionCompleted, sessionResult); err != nil {
		return fmt.Errorf("failed to finalize completed session: %w", err)
	}

	return o.publishSuccess(ctx, session, sessionResult)
}

// CompleteSession lets an asynchronous observer (the Lightning
// Coordinator's settlement monitor) finish a session whose Committer
// returned a Pending result, once the external event it was waiting on
// (invoice settlement) has occurred.
func (o *Orchestrator) CompleteSession(ctx context.Context, sessionID string, result *CommitResult) error {
	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if session.State.IsTerminal() {
		return nil
	}
	return o.completeSession(ctx, session, result)
}

// FailSession lets an asynchronous observer fail a pending session (e.g.
// the lift invoice expired before being paid).
func (o *Orchestrator) FailSession(ctx context.Context, sessionID string, kind ErrorKind, message string) error {
	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if session.State.IsTerminal() {
		return nil
	}
	return o.failSession(ctx, session, &SessionError{Kind: kind, Message: message})
}

// reserveInventory is step 5.
func (o *Orchestrator) reserveInventory(ctx context.Context, session *store.Session) ([]*store.Vtxo, error) {
	owner := session.UserPubkey
	if session.SessionType == store.SessionP2PTransfer {
		// The gateway debits its own pool VTXOs for a transfer rather than
		// requiring the sender to co-sign an ARK transaction (§9 open
		// question, resolved in favor of the reference behavior).
		owner = ""
	}
	reserved, err := o.inv.Reserve(ctx, owner, session.Intent.Params.AssetID, session.Intent.Params.Amount, session.SessionID)
	if err != nil {
		return nil, fail(ErrInsufficientInventory, "%s", err.Error())
	}
	return reserved, nil
}

// applyTransferBalances debits the sender and credits the recipient once a
// p2p_transfer has committed.
func (o *Orchestrator) applyTransferBalances(ctx context.Context, session *store.Session) error {
	amount := session.Intent.Params.Amount
	assetID := session.Intent.Params.AssetID
	if err := o.balances.Adjust(ctx, session.UserPubkey, assetID, -amount, -amount); err != nil {
		return fmt.Errorf("failed to debit sender: %w", err)
	}
	if err := o.balances.Adjust(ctx, session.Intent.Params.RecipientPubkey, assetID, amount, 0); err != nil {
		return fmt.Errorf("failed to credit recipient: %w", err)
	}
	return nil
}

// failSession is the shared compensating-action path for steps 4-8: it
// releases any reservation, writes the terminal result, and publishes the
// outbound failure event.
func (o *Orchestrator) failSession(ctx context.Context, session *store.Session, cause error) error {
	se := AsSessionError(cause)

	if err := o.inv.Release(ctx, session.SessionID); err != nil {
		logger.Warn("failed to release reservation on failure path", zap.String("session_id", session.SessionID), zap.Error(err))
	}

	result := &store.SessionResult{ErrorKind: string(se.Kind), ErrorMessage: se.Message}
	if err := o.sessions.Finalize(ctx, session.SessionID, store.SessionFailed, result); err != nil {
		return fmt.Errorf("failed to finalize failed session: %w", err)
	}

	return o.publishFailure(ctx, session.UserPubkey, session.Intent.ActionID, se)
}

func mapChallengeErr(err error) error {
	switch {
	case errors.Is(err, challenge.ErrChallengeExpired):
		return fail(ErrChallengeExpired, "challenge expired")
	case errors.Is(err, challenge.ErrChallengeAlreadyUsed):
		return fail(ErrChallengeAlreadyUsed, "challenge already used")
	case errors.Is(err, challenge.ErrChallengeNotFound):
		return fail(ErrChallengeNotFound, "challenge not found")
	case errors.Is(err, challenge.ErrInvalidSignature):
		return fail(ErrInvalidSignature, "signature does not verify")
	default:
		return fail(ErrInternal, "%s", err.Error())
	}
}

type challengeEventContent struct {
	ChallengeID   string `json:"challenge_id"`
	PayloadToSign string `json:"payload_to_sign"`
	PayloadRef    string `json:"payload_ref"`
	Context       string `json:"context"`
	ExpiresAt     int64  `json:"expires_at"`
}

func (o *Orchestrator) publishChallenge(ctx context.Context, userPubkey string, session *store.Session, c *store.SigningChallenge) error {
	content, err := json.Marshal(challengeEventContent{
		ChallengeID:   c.ChallengeID,
		PayloadToSign: challenge.PayloadToSign(c),
		PayloadRef:    c.PayloadRef,
		Context:       c.Context,
		ExpiresAt:     c.ExpiresAt.Unix(),
	})
	if err != nil {
		return err
	}
	if o.relayAdapter == nil {
		return nil
	}
	return o.relayAdapter.SendDM(ctx, userPubkey, string(content))
}

type successEventContent struct {
	Status      string             `json:"status"`
	RefActionID string             `json:"ref_action_id"`
	Results     store.SessionResult `json:"results"`
}

func (o *Orchestrator) publishSuccess(ctx context.Context, session *store.Session, result *store.SessionResult) error {
	content, err := json.Marshal(successEventContent{
		Status:      "success",
		RefActionID: session.Intent.ActionID,
		Results:     *result,
	})
	if err != nil {
		return err
	}
	if o.relayAdapter == nil {
		return nil
	}
	return o.relayAdapter.SendDM(ctx, session.UserPubkey, string(content))
}

type failureEventContent struct {
	Status      string `json:"status"`
	RefActionID string `json:"ref_action_id"`
	Code        string `json:"code"`
	Message     string `json:"message"`
}

func (o *Orchestrator) publishFailure(ctx context.Context, userPubkey, actionID string, se *SessionError) error {
	content, err := json.Marshal(failureEventContent{
		Status:      "failure",
		RefActionID: actionID,
		Code:        string(se.Kind),
		Message:     se.Message,
	})
	if err != nil {
		return err
	}
	if o.relayAdapter == nil {
		return nil
	}
	return o.relayAdapter.SendDM(ctx, userPubkey, string(content))
}

// publishStatus emits an intermediate status update (§6 kind D).
func (o *Orchestrator) publishStatus(ctx context.Context, session *store.Session, step string) error {
	content, err := json.Marshal(struct {
		SessionID string `json:"session_id"`
		Status    string `json:"status"`
		Step      string `json:"step,omitempty"`
	}{SessionID: session.SessionID, Status: string(session.State), Step: step})
	if err != nil {
		return err
	}
	if o.relayAdapter == nil {
		return nil
	}
	return o.relayAdapter.SendDM(ctx, session.UserPubkey, string(content))
}
