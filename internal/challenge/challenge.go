package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/afeezaziz/arkrelay-gateway/internal/relay"
	"github.com/afeezaziz/arkrelay-gateway/internal/store"
)

// Error kinds §4.5/§7 name for challenge verification failures. These are
// sentinels, not just strings, so callers can branch with errors.Is while
// the orchestrator still reports the spec's error-kind vocabulary outward.
var (
	ErrChallengeNotFound     = errors.New("challenge_not_found")
	ErrChallengeExpired      = errors.New("challenge_expired")
	ErrChallengeAlreadyUsed  = errors.New("challenge_already_used")
	ErrInvalidSignature      = errors.New("invalid_signature")
)

// intentForCanonicalization is the {action_id, type, params} triple the
// canonical payload is derived from — deliberately excluding expires_at,
// which is part of the session but not part of what's signed.
type intentForCanonicalization struct {
	ActionID string            `json:"action_id"`
	Type     store.SessionType `json:"type"`
	Params   store.IntentParams `json:"params"`
}

// Generate derives a SigningChallenge from an intent: canonicalize
// {action_id, type, params}, hash it, and build the record the wallet will
// be asked to sign (§4.5).
func Generate(intent store.Intent, sessionID, context string, ttl time.Duration) (*store.SigningChallenge, error) {
	canonical, err := CanonicalJSON(intentForCanonicalization{
		ActionID: intent.ActionID,
		Type:     intent.Type,
		Params:   intent.Params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize intent: %w", err)
	}

	payloadRef := PayloadRef(canonical)
	now := time.Now()

	return &store.SigningChallenge{
		ChallengeID: uuid.NewString(),
		SessionID:   sessionID,
		Payload:     string(canonical),
		PayloadRef:  payloadRef,
		Context:     context,
		ExpiresAt:   now.Add(ttl),
		IsUsed:      false,
	}, nil
}

// PayloadToSign is the literal bytes, "0x" + payload_ref, the wallet signs
// — distinct from the full canonical payload, which is shown for context
// but not itself signed.
func PayloadToSign(c *store.SigningChallenge) string {
	return "0x" + c.PayloadRef
}

// Verify checks a claimed signature over a challenge's payload_to_sign by
// userPubkeyHex, then atomically marks the challenge used (I1). It returns
// one of the sentinel errors above on any rejection, or the now-used
// challenge record on success.
func Verify(ctx context.Context, repo *store.ChallengeRepository, challengeID, signatureHex, userPubkeyHex string) (*store.SigningChallenge, error) {
	c, err := repo.Get(ctx, challengeID)
	if err != nil {
		if errors.Is(err, store.ErrChallengeNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}

	if c.IsUsed {
		return nil, ErrChallengeAlreadyUsed
	}
	if !time.Now().Before(c.ExpiresAt) {
		return nil, ErrChallengeExpired
	}

	if err := verifySignature(userPubkeyHex, PayloadToSign(c), signatureHex); err != nil {
		return nil, ErrInvalidSignature
	}

	used, err := repo.MarkUsed(ctx, challengeID, signatureHex)
	if err != nil {
		if errors.Is(err, store.ErrChallengeAlreadyUsed) {
			return nil, ErrChallengeAlreadyUsed
		}
		if errors.Is(err, store.ErrChallengeNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("failed to mark challenge used: %w", err)
	}
	return used, nil
}

// verifySignature checks a BIP-340 Schnorr signature over the SHA-256
// digest of payload by pubkeyHex, reusing the same raw-Schnorr primitive
// the Relay Adapter's event verification builds on (§4.5 delegates to the
// same scheme as §4.2, but over the challenge payload rather than a full
// Nostr event id).
func verifySignature(pubkeyHex, payload, signatureHex string) error {
	return relay.VerifyRawSchnorr(pubkeyHex, []byte(payload), signatureHex)
}
