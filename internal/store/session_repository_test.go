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

func newTestSession(t *testing.T, actionID string) *Session {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	return &Session{
		SessionID:   uuid.NewString(),
		UserPubkey:  "deadbeef",
		SessionType: SessionP2PTransfer,
		State:       SessionInitiated,
		Intent: Intent{
			ActionID:  actionID,
			Type:      SessionP2PTransfer,
			Params:    IntentParams{AssetID: "usd-stable", Amount: 1000, RecipientPubkey: "cafebabe"},
			ExpiresAt: now.Add(5 * time.Minute),
		},
		Context:   "p2p_transfer ceremony",
		CreatedAt: now,
		ExpiresAt: now.Add(5 * time.Minute),
		UpdatedAt: now,
	}
}

func TestSessionRepositoryCreateAndGet(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	s := newTestSession(t, "action-1")
	require.NoError(t, repo.Create(ctx, s))

	got, err := repo.Get(ctx, s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, s.SessionID, got.SessionID)
	assert.Equal(t, s.UserPubkey, got.UserPubkey)
	assert.Equal(t, SessionInitiated, got.State)
	assert.Equal(t, s.Intent.ActionID, got.Intent.ActionID)
	assert.Equal(t, s.Intent.Params.Amount, got.Intent.Params.Amount)
	assert.Nil(t, got.Result)
}

func TestSessionRepositoryGetMissingReturnsErrSessionNotFound(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	repo := NewSessionRepository(db)

	_, err := repo.Get(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionRepositoryGetByActionIDReturnsMostRecent(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	s1 := newTestSession(t, "shared-action")
	require.NoError(t, repo.Create(ctx, s1))

	s2 := newTestSession(t, "shared-action")
	s2.CreatedAt = s1.CreatedAt.Add(time.Second)
	require.NoError(t, repo.Create(ctx, s2))

	got, err := repo.GetByActionID(ctx, "shared-action")
	require.NoError(t, err)
	assert.Equal(t, s2.SessionID, got.SessionID)
}

func TestSessionRepositoryUpdateStateEnforcesExpectedFrom(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	s := newTestSession(t, "action-2")
	require.NoError(t, repo.Create(ctx, s))

	require.NoError(t, repo.UpdateState(ctx, s.SessionID, SessionInitiated, SessionChallengeSent))

	got, err := repo.Get(ctx, s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, SessionChallengeSent, got.State)

	err = repo.UpdateState(ctx, s.SessionID, SessionInitiated, SessionSigning)
	assert.ErrorIs(t, err, ErrSessionStateConflict)
}

func TestSessionRepositorySetChallengeID(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	s := newTestSession(t, "action-3")
	require.NoError(t, repo.Create(ctx, s))

	challengeID := uuid.NewString()
	require.NoError(t, repo.SetChallengeID(ctx, s.SessionID, challengeID))

	got, err := repo.Get(ctx, s.SessionID)
	require.NoError(t, err)
	require.NotNil(t, got.ChallengeID)
	assert.Equal(t, challengeID, *got.ChallengeID)
}

func TestSessionRepositoryFinalizeWritesStateAndResult(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	s := newTestSession(t, "action-4")
	require.NoError(t, repo.Create(ctx, s))

	result := &SessionResult{TxID: "abcd1234", AmountSats: 1000, FeeSats: 5}
	require.NoError(t, repo.Finalize(ctx, s.SessionID, SessionCompleted, result))

	got, err := repo.Get(ctx, s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, SessionCompleted, got.State)
	require.NotNil(t, got.Result)
	assert.Equal(t, "abcd1234", got.Result.TxID)
	assert.Equal(t, int64(1000), got.Result.AmountSats)
}

func TestSessionRepositoryListExpiredExcludesTerminalStates(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)

	expired := newTestSession(t, "action-expired")
	expired.ExpiresAt = past
	require.NoError(t, repo.Create(ctx, expired))

	completed := newTestSession(t, "action-completed")
	completed.ExpiresAt = past
	require.NoError(t, repo.Create(ctx, completed))
	require.NoError(t, repo.Finalize(ctx, completed.SessionID, SessionCompleted, &SessionResult{TxID: "x"}))

	notYetExpired := newTestSession(t, "action-future")
	require.NoError(t, repo.Create(ctx, notYetExpired))

	sessions, err := repo.ListExpired(ctx, time.Now().UTC())
	require.NoError(t, err)

	ids := make(map[string]bool)
	for _, s := range sessions {
		ids[s.SessionID] = true
	}
	assert.True(t, ids[expired.SessionID])
	assert.False(t, ids[completed.SessionID])
	assert.False(t, ids[notYetExpired.SessionID])
}
