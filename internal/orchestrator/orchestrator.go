package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/afeezaziz/arkrelay-gateway/internal/challenge"
	"github.com/afeezaziz/arkrelay-gateway/internal/inventory"
	"github.com/afeezaziz/arkrelay-gateway/internal/relay"
	"github.com/afeezaziz/arkrelay-gateway/internal/store"
	"github.com/afeezaziz/arkrelay-gateway/pkg/cache"
	"github.com/afeezaziz/arkrelay-gateway/pkg/logger"
)

const (
	sessionLockPrefix = "session:lock:"
	sessionLockTTL    = 30 * time.Second
)

// Config holds the orchestrator's timing policy (config.toml [session]).
type Config struct {
	SessionTimeoutMinutes   int
	ChallengeTimeoutMinutes int
	MaxConcurrentSessions   int
}

// Orchestrator owns the state machine in §4.6: it advances one session at
// a time (the per-session lock, §4.6 "Concurrency"), delegating the
// back-end-specific commit step to the Committer registered for the
// session's type.
type Orchestrator struct {
	sessions    *store.SessionRepository
	challenges  *store.ChallengeRepository
	balances    *store.BalanceRepository
	inv         *inventory.Inventory
	relayAdapter *relay.Adapter
	committers  map[store.SessionType]Committer
	cfg         Config
}

func New(
	sessions *store.SessionRepository,
	challenges *store.ChallengeRepository,
	balances *store.BalanceRepository,
	inv *inventory.Inventory,
	relayAdapter *relay.Adapter,
	committers map[store.SessionType]Committer,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		sessions:     sessions,
		challenges:   challenges,
		balances:     balances,
		inv:          inv,
		relayAdapter: relayAdapter,
		committers:   committers,
		cfg:          cfg,
	}
}

// HandleIntent is steps 1-2 of the contract: validate, check for a replay
// of the same action_id (P8), create the session and its challenge, and
// publish the challenge event.
func (o *Orchestrator) HandleIntent(ctx context.Context, userPubkey string, intent store.Intent) (*store.Session, error) {
	if existing, err := o.sessions.GetByActionID(ctx, intent.ActionID); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrSessionNotFound) {
		return nil, fmt.Errorf("failed to check for duplicate action_id: %w", err)
	}

	if err := validateIntent(intent); err != nil {
		return o.failBeforeCreation(ctx, userPubkey, intent, err)
	}

	if intent.Type == store.SessionP2PTransfer || intent.Type == store.SessionLightningLand {
		bal, err := o.balances.Get(ctx, userPubkey, intent.Params.AssetID)
		if err != nil {
			return nil, fmt.Errorf("failed to load balance: %w", err)
		}
		if bal.Balance-bal.Reserved < intent.Params.Amount {
			cause := fail(ErrInsufficientBalance, "available %d < requested %d", bal.Balance-bal.Reserved, intent.Params.Amount)
			return o.failAfterCreation(ctx, userPubkey, intent, cause)
		}
	}

	now := time.Now()
	sessionTTL := time.Duration(o.cfg.SessionTimeoutMinutes) * time.Minute
	challengeTTL := time.Duration(o.cfg.ChallengeTimeoutMinutes) * time.Minute

	session := &store.Session{
		SessionID:   uuid.NewString(),
		UserPubkey:  userPubkey,
		SessionType: intent.Type,
		State:       store.SessionInitiated,
		Intent:      intent,
		Context:     contextFor(intent),
		CreatedAt:   now,
		ExpiresAt:   now.Add(sessionTTL),
		UpdatedAt:   now,
	}
	if err := o.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	chal, err := challenge.Generate(intent, session.SessionID, session.Context, challengeTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate challenge: %w", err)
	}
	if err := o.challenges.Create(ctx, chal); err != nil {
		return nil, fmt.Errorf("failed to persist challenge: %w", err)
	}
	if err := o.sessions.SetChallengeID(ctx, session.SessionID, chal.ChallengeID); err != nil {
		return nil, fmt.Errorf("failed to link challenge to session: %w", err)
	}
	if err := o.sessions.UpdateState(ctx, session.SessionID, store.SessionInitiated, store.SessionChallengeSent); err != nil {
		return nil, fmt.Errorf("failed to advance session to challenge_sent: %w", err)
	}
	session.State = store.SessionChallengeSent
	session.ChallengeID = &chal.ChallengeID

	if err := o.publishChallenge(ctx, userPubkey, session, chal); err != nil {
		logger.Warn("failed to publish challenge event", zap.String("session_id", session.SessionID), zap.Error(err))
	}

	return session, nil
}

// ResumeWithSignature is step 3-9: the event-driven continuation once a
// signed response arrives for an outstanding challenge. It acquires the
// per-session lock (§4.6 "no task holds two session locks simultaneously"
// is satisfied trivially: one lock, held only for the duration of this
// call).
func (o *Orchestrator) ResumeWithSignature(ctx context.Context, challengeID, signatureHex string) error {
	c, err := o.challenges.Get(ctx, challengeID)
	if err != nil {
		return err
	}

	unlock, err := o.lockSession(ctx, c.SessionID)
	if err != nil {
		return fmt.Errorf("session %s is already being processed: %w", c.SessionID, err)
	}
	defer unlock()

	session, err := o.sessions.Get(ctx, c.SessionID)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", c.SessionID, err)
	}
	if session.State.IsTerminal() {
		return nil // already resolved (duplicate delivery, or lost the race)
	}

	return o.advance(ctx, session, challengeID, signatureHex)
}

func (o *Orchestrator) lockSession(ctx context.Context, sessionID string) (func(), error) {
	key := sessionLockPrefix + sessionID
	acquired, err := cache.SetNX(ctx, key, "1", sessionLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	if !acquired {
		return nil, errors.New("lock held")
	}
	return func() { cache.Delete(ctx, key) }, nil
}

func contextFor(intent store.Intent) string {
	switch intent.Type {
	case store.SessionP2PTransfer:
		return fmt.Sprintf("Transfer %d of %s to %s", intent.Params.Amount, intent.Params.AssetID, intent.Params.RecipientPubkey)
	case store.SessionLightningLift:
		return fmt.Sprintf("Receive %d of %s via Lightning", intent.Params.Amount, intent.Params.AssetID)
	case store.SessionLightningLand:
		return fmt.Sprintf("Pay %d of %s via Lightning", intent.Params.Amount, intent.Params.AssetID)
	default:
		return "Authorize requested action"
	}
}

func (o *Orchestrator) failBeforeCreation(ctx context.Context, userPubkey string, intent store.Intent, cause error) (*store.Session, error) {
	se := AsSessionError(cause)
	logger.Info("intent rejected before session creation",
		zap.String("action_id", intent.ActionID), zap.String("kind", string(se.Kind)), zap.String("message", se.Message))
	if o.relayAdapter != nil {
		_ = o.publishFailure(ctx, userPubkey, intent.ActionID, se)
	}
	return nil, se
}

// failAfterCreation handles a rejection that §8 scenario 3 requires still
// produce a session record ("session created then immediately failed"),
// unlike failBeforeCreation's validation path where P4 forbids creating one
// at all: a balance shortfall is a fact about a well-formed intent, not a
// malformed one.
func (o *Orchestrator) failAfterCreation(ctx context.Context, userPubkey string, intent store.Intent, cause error) (*store.Session, error) {
	se := AsSessionError(cause)

	now := time.Now()
	sessionTTL := time.Duration(o.cfg.SessionTimeoutMinutes) * time.Minute
	session := &store.Session{
		SessionID:   uuid.NewString(),
		UserPubkey:  userPubkey,
		SessionType: intent.Type,
		State:       store.SessionInitiated,
		Intent:      intent,
		Context:     contextFor(intent),
		CreatedAt:   now,
		ExpiresAt:   now.Add(sessionTTL),
		UpdatedAt:   now,
	}
	if err := o.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	result := &store.SessionResult{ErrorKind: string(se.Kind), ErrorMessage: se.Message}
	if err := o.sessions.Finalize(ctx, session.SessionID, store.SessionFailed, result); err != nil {
		return nil, fmt.Errorf("failed to finalize failed session: %w", err)
	}
	session.State = store.SessionFailed
	session.Result = result

	logger.Info("intent rejected after session creation",
		zap.String("session_id", session.SessionID), zap.String("kind", string(se.Kind)), zap.String("message", se.Message))
	if o.relayAdapter != nil {
		_ = o.publishFailure(ctx, userPubkey, intent.ActionID, se)
	}
	return session, se
}
