//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestSessionForChallenge(t *testing.T, ctx context.Context, sessions *SessionRepository, actionID string) *Session {
	t.Helper()
	s := newTestSession(t, actionID)
	require.NoError(t, sessions.Create(ctx, s))
	return s
}

func newTestChallenge(sessionID string) *SigningChallenge {
	return &SigningChallenge{
		ChallengeID: uuid.NewString(),
		SessionID:   sessionID,
		Payload:     `{"action_id":"a1"}`,
		PayloadRef:  "deadbeefcafebabe",
		Context:     "p2p_transfer ceremony",
		ExpiresAt:   time.Now().UTC().Add(5 * time.Minute),
		IsUsed:      false,
	}
}

func TestChallengeRepositoryCreateAndGet(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	sessions := NewSessionRepository(db)
	repo := NewChallengeRepository(db)
	ctx := context.Background()

	s := createTestSessionForChallenge(t, ctx, sessions, "challenge-action-1")
	c := newTestChallenge(s.SessionID)
	require.NoError(t, repo.Create(ctx, c))

	got, err := repo.Get(ctx, c.ChallengeID)
	require.NoError(t, err)
	assert.Equal(t, c.PayloadRef, got.PayloadRef)
	assert.False(t, got.IsUsed)
	assert.Nil(t, got.Signature)
}

func TestChallengeRepositoryGetMissingReturnsErrChallengeNotFound(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	repo := NewChallengeRepository(db)

	_, err := repo.Get(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestChallengeRepositoryMarkUsedIsOneShot(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	sessions := NewSessionRepository(db)
	repo := NewChallengeRepository(db)
	ctx := context.Background()

	s := createTestSessionForChallenge(t, ctx, sessions, "challenge-action-2")
	c := newTestChallenge(s.SessionID)
	require.NoError(t, repo.Create(ctx, c))

	used, err := repo.MarkUsed(ctx, c.ChallengeID, "aabbccdd")
	require.NoError(t, err)
	assert.True(t, used.IsUsed)
	require.NotNil(t, used.Signature)
	assert.Equal(t, "aabbccdd", *used.Signature)

	_, err = repo.MarkUsed(ctx, c.ChallengeID, "eeff0011")
	assert.ErrorIs(t, err, ErrChallengeAlreadyUsed)
}

func TestChallengeRepositoryMarkUsedMissingReturnsNotFound(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	repo := NewChallengeRepository(db)

	_, err := repo.MarkUsed(context.Background(), uuid.NewString(), "aabbccdd")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}
