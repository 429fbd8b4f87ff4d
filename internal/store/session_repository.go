package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrSessionNotFound is returned when a session id has no matching row.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionStateConflict is returned by UpdateState when the
	// session is not currently in the expected state (I4/lost race).
	ErrSessionStateConflict = errors.New("session state conflict")
)

// SessionRepository is the durable home of SigningSession rows.
type SessionRepository struct {
	db *pgxpool.Pool
}

func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db.pool}
}

// Create inserts a new session in its initial state.
func (r *SessionRepository) Create(ctx context.Context, s *Session) error {
	intentJSON, err := json.Marshal(s.Intent)
	if err != nil {
		return fmt.Errorf("failed to marshal intent: %w", err)
	}

	query := `INSERT INTO signing_sessions (
		session_id, user_pubkey, session_type, state, intent, context,
		created_at, expires_at, updated_at, challenge_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.Exec(ctx, query,
		s.SessionID, s.UserPubkey, s.SessionType, s.State, intentJSON, s.Context,
		s.CreatedAt, s.ExpiresAt, s.UpdatedAt, s.ChallengeID,
	)
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", s.SessionID, err)
	}
	return nil
}

// GetByActionID looks up a session previously created for the given
// action_id, used for intent-replay idempotence (P8): replaying the same
// intent returns the existing session instead of creating a second one.
func (r *SessionRepository) GetByActionID(ctx context.Context, actionID string) (*Session, error) {
	query := `SELECT
		session_id, user_pubkey, session_type, state, intent, context,
		created_at, expires_at, updated_at, challenge_id, result
	FROM signing_sessions WHERE intent->>'action_id' = $1
	ORDER BY created_at DESC LIMIT 1`

	row := r.db.QueryRow(ctx, query, actionID)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session by action_id %s: %w", actionID, err)
	}
	return s, nil
}

// Get retrieves a session by its id.
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*Session, error) {
	query := `SELECT
		session_id, user_pubkey, session_type, state, intent, context,
		created_at, expires_at, updated_at, challenge_id, result
	FROM signing_sessions WHERE session_id = $1`

	row := r.db.QueryRow(ctx, query, sessionID)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	return s, nil
}

// UpdateState performs the conditional update (expected_from -> to) the
// orchestrator uses to avoid racing a concurrent duplicate response:
// returns ErrSessionStateConflict (not an error the caller should retry on
// its own) if the session wasn't in expectedFrom when the update ran.
func (r *SessionRepository) UpdateState(ctx context.Context, sessionID string, expectedFrom, to SessionState) error {
	query := `UPDATE signing_sessions
		SET state = $3, updated_at = now()
		WHERE session_id = $1 AND state = $2`

	tag, err := r.db.Exec(ctx, query, sessionID, expectedFrom, to)
	if err != nil {
		return fmt.Errorf("failed to update session %s state: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionStateConflict
	}
	return nil
}

// SetChallengeID records the active challenge back-reference. It is a
// single UPDATE; the caller runs any accompanying state transition as a
// separate statement.
func (r *SessionRepository) SetChallengeID(ctx context.Context, sessionID, challengeID string) error {
	query := `UPDATE signing_sessions SET challenge_id = $2, updated_at = now() WHERE session_id = $1`
	_, err := r.db.Exec(ctx, query, sessionID, challengeID)
	if err != nil {
		return fmt.Errorf("failed to set challenge id for session %s: %w", sessionID, err)
	}
	return nil
}

// Finalize writes a terminal state and result together; used by step 8/9 of
// the orchestrator's contract.
func (r *SessionRepository) Finalize(ctx context.Context, sessionID string, to SessionState, result *SessionResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal session result: %w", err)
	}

	query := `UPDATE signing_sessions SET state = $2, result = $3, updated_at = now() WHERE session_id = $1`
	_, err = r.db.Exec(ctx, query, sessionID, to, resultJSON)
	if err != nil {
		return fmt.Errorf("failed to finalize session %s: %w", sessionID, err)
	}
	return nil
}

// ListExpired returns sessions in non-terminal states whose expires_at has
// passed, for the sweeper loop.
func (r *SessionRepository) ListExpired(ctx context.Context, before time.Time) ([]*Session, error) {
	query := `SELECT
		session_id, user_pubkey, session_type, state, intent, context,
		created_at, expires_at, updated_at, challenge_id, result
	FROM signing_sessions
	WHERE expires_at < $1 AND state NOT IN ('completed', 'failed', 'expired')`

	rows, err := r.db.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var s Session
	var intentJSON, resultJSON []byte

	err := row.Scan(
		&s.SessionID, &s.UserPubkey, &s.SessionType, &s.State, &intentJSON, &s.Context,
		&s.CreatedAt, &s.ExpiresAt, &s.UpdatedAt, &s.ChallengeID, &resultJSON,
	)
	if err != nil {
		return nil, err
	}

	if len(intentJSON) > 0 {
		if err := json.Unmarshal(intentJSON, &s.Intent); err != nil {
			return nil, fmt.Errorf("failed to unmarshal intent: %w", err)
		}
	}
	if len(resultJSON) > 0 && string(resultJSON) != "null" {
		var result SessionResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		s.Result = &result
	}

	return &s, nil
}
