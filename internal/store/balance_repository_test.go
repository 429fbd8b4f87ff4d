//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceRepositoryGetReturnsZeroBalanceWhenMissing(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	repo := NewBalanceRepository(db)

	b, err := repo.Get(context.Background(), "nobody", "usd-stable")
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.Balance)
	assert.Equal(t, int64(0), b.Reserved)
}

func TestBalanceRepositoryAdjustUpsertsAndAccumulates(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	repo := NewBalanceRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Adjust(ctx, "user-1", "usd-stable", 1000, 0))
	require.NoError(t, repo.Adjust(ctx, "user-1", "usd-stable", 500, 200))

	b, err := repo.Get(ctx, "user-1", "usd-stable")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), b.Balance)
	assert.Equal(t, int64(200), b.Reserved)
}

func TestBalanceRepositoryAdjustRejectsReservedExceedingBalance(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	repo := NewBalanceRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Adjust(ctx, "user-2", "usd-stable", 100, 0))

	err := repo.Adjust(ctx, "user-2", "usd-stable", 0, 500)
	assert.ErrorIs(t, err, ErrBalanceConstraintViolated)

	b, err := repo.Get(ctx, "user-2", "usd-stable")
	require.NoError(t, err)
	assert.Equal(t, int64(100), b.Balance)
	assert.Equal(t, int64(0), b.Reserved)
}

func TestBalanceRepositoryAdjustAllowsDecreasingReservedBelowBalance(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	repo := NewBalanceRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Adjust(ctx, "user-3", "usd-stable", 1000, 400))
	require.NoError(t, repo.Adjust(ctx, "user-3", "usd-stable", 0, -400))

	b, err := repo.Get(ctx, "user-3", "usd-stable")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), b.Balance)
	assert.Equal(t, int64(0), b.Reserved)
}
