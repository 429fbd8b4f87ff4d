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

func newTestVtxo(t *testing.T, owner, assetID string, amount int64) *Vtxo {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	return &Vtxo{
		VtxoID:      uuid.NewString(),
		AssetID:     assetID,
		Amount:      amount,
		OwnerPubkey: &owner,
		Status:      VtxoAvailable,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}
}

func TestVtxoRepositoryReserveVtxosPrefersExactMatch(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	repo := NewVtxoRepository(db)
	ctx := context.Background()

	owner := "owner-1"
	exact := newTestVtxo(t, owner, "usd-stable", 1000)
	require.NoError(t, repo.Insert(ctx, exact))
	small := newTestVtxo(t, owner, "usd-stable", 400)
	require.NoError(t, repo.Insert(ctx, small))
	smaller := newTestVtxo(t, owner, "usd-stable", 600)
	require.NoError(t, repo.Insert(ctx, smaller))

	chosen, err := repo.ReserveVtxos(ctx, owner, "usd-stable", 1000, "session-1")
	require.NoError(t, err)
	require.Len(t, chosen, 1)
	assert.Equal(t, exact.VtxoID, chosen[0].VtxoID)
	assert.Equal(t, VtxoReserved, chosen[0].Status)
}

func TestVtxoRepositoryReserveVtxosFallsBackToSum(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	repo := NewVtxoRepository(db)
	ctx := context.Background()

	owner := "owner-2"
	v1 := newTestVtxo(t, owner, "usd-stable", 400)
	require.NoError(t, repo.Insert(ctx, v1))
	v2 := newTestVtxo(t, owner, "usd-stable", 700)
	require.NoError(t, repo.Insert(ctx, v2))

	chosen, err := repo.ReserveVtxos(ctx, owner, "usd-stable", 1000, "session-2")
	require.NoError(t, err)
	assert.Len(t, chosen, 2)

	var sum int64
	for _, v := range chosen {
		sum += v.Amount
	}
	assert.GreaterOrEqual(t, sum, int64(1000))
}

func TestVtxoRepositoryReserveVtxosInsufficientInventory(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	repo := NewVtxoRepository(db)
	ctx := context.Background()

	owner := "owner-3"
	v := newTestVtxo(t, owner, "usd-stable", 100)
	require.NoError(t, repo.Insert(ctx, v))

	_, err := repo.ReserveVtxos(ctx, owner, "usd-stable", 1000, "session-3")
	assert.ErrorIs(t, err, ErrInsufficientVtxos)
}

func TestVtxoRepositoryReleaseReservationReturnsToAvailable(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	repo := NewVtxoRepository(db)
	ctx := context.Background()

	owner := "owner-4"
	v := newTestVtxo(t, owner, "usd-stable", 1000)
	require.NoError(t, repo.Insert(ctx, v))

	_, err := repo.ReserveVtxos(ctx, owner, "usd-stable", 1000, "session-4")
	require.NoError(t, err)

	require.NoError(t, repo.ReleaseReservation(ctx, "session-4"))

	chosen, err := repo.ReserveVtxos(ctx, owner, "usd-stable", 1000, "session-5")
	require.NoError(t, err)
	require.Len(t, chosen, 1)
	assert.Equal(t, v.VtxoID, chosen[0].VtxoID)
}

func TestVtxoRepositoryMarkSpentTransitionsFromReserved(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	repo := NewVtxoRepository(db)
	ctx := context.Background()

	owner := "owner-5"
	v := newTestVtxo(t, owner, "usd-stable", 1000)
	require.NoError(t, repo.Insert(ctx, v))

	_, err := repo.ReserveVtxos(ctx, owner, "usd-stable", 1000, "session-6")
	require.NoError(t, err)

	require.NoError(t, repo.MarkSpent(ctx, "session-6"))

	_, err = repo.ReserveVtxos(ctx, owner, "usd-stable", 1000, "session-7")
	assert.ErrorIs(t, err, ErrInsufficientVtxos)
}

func TestVtxoRepositoryListAndMarkExpired(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	repo := NewVtxoRepository(db)
	ctx := context.Background()

	owner := "owner-6"
	v := newTestVtxo(t, owner, "usd-stable", 1000)
	v.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.Insert(ctx, v))

	expired, err := repo.ListExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, v.VtxoID, expired[0].VtxoID)

	require.NoError(t, repo.MarkExpired(ctx, v.VtxoID))

	_, err = repo.ReserveVtxos(ctx, owner, "usd-stable", 1000, "session-8")
	assert.ErrorIs(t, err, ErrInsufficientVtxos)
}
