package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrChallengeNotFound is returned when a challenge id has no matching row.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrChallengeAlreadyUsed is returned by MarkUsed when is_used was
	// already true (I1: at most one false->true transition).
	ErrChallengeAlreadyUsed = errors.New("challenge already used")
)

// ChallengeRepository is the durable home of SigningChallenge rows.
type ChallengeRepository struct {
	db *pgxpool.Pool
}

func NewChallengeRepository(db *DB) *ChallengeRepository {
	return &ChallengeRepository{db: db.pool}
}

// Create inserts a new challenge.
func (r *ChallengeRepository) Create(ctx context.Context, c *SigningChallenge) error {
	query := `INSERT INTO signing_challenges (
		challenge_id, session_id, payload, payload_ref, context, expires_at, is_used
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		c.ChallengeID, c.SessionID, c.Payload, c.PayloadRef, c.Context, c.ExpiresAt, c.IsUsed,
	)
	if err != nil {
		return fmt.Errorf("failed to create challenge %s: %w", c.ChallengeID, err)
	}
	return nil
}

// Get retrieves a challenge by id.
func (r *ChallengeRepository) Get(ctx context.Context, challengeID string) (*SigningChallenge, error) {
	query := `SELECT challenge_id, session_id, payload, payload_ref, context, expires_at, is_used, signature
		FROM signing_challenges WHERE challenge_id = $1`

	var c SigningChallenge
	err := r.db.QueryRow(ctx, query, challengeID).Scan(
		&c.ChallengeID, &c.SessionID, &c.Payload, &c.PayloadRef, &c.Context, &c.ExpiresAt, &c.IsUsed, &c.Signature,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("failed to get challenge %s: %w", challengeID, err)
	}
	return &c, nil
}

// MarkUsed is the atomic check-and-set (I1): it flips is_used false->true
// and records signature only if the row is currently unused, returning
// ErrChallengeAlreadyUsed if a concurrent caller won the race first.
func (r *ChallengeRepository) MarkUsed(ctx context.Context, challengeID, signature string) (*SigningChallenge, error) {
	query := `UPDATE signing_challenges
		SET is_used = true, signature = $2
		WHERE challenge_id = $1 AND is_used = false
		RETURNING challenge_id, session_id, payload, payload_ref, context, expires_at, is_used, signature`

	var c SigningChallenge
	err := r.db.QueryRow(ctx, query, challengeID, signature).Scan(
		&c.ChallengeID, &c.SessionID, &c.Payload, &c.PayloadRef, &c.Context, &c.ExpiresAt, &c.IsUsed, &c.Signature,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.Get(ctx, challengeID); getErr == nil {
				return nil, ErrChallengeAlreadyUsed
			}
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("failed to mark challenge %s used: %w", challengeID, err)
	}
	return &c, nil
}
