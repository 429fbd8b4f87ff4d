package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrBalanceConstraintViolated is returned when an adjustment would make
// reserved exceed balance (I3), caught via the table's check constraint.
var ErrBalanceConstraintViolated = errors.New("balance adjustment would violate reserved <= balance")

// BalanceRepository is the durable home of AssetBalance rows.
type BalanceRepository struct {
	db *pgxpool.Pool
}

func NewBalanceRepository(db *DB) *BalanceRepository {
	return &BalanceRepository{db: db.pool}
}

// Get retrieves a user's balance for one asset, returning a zero balance
// (not an error) if no row exists yet.
func (r *BalanceRepository) Get(ctx context.Context, userPubkey, assetID string) (*AssetBalance, error) {
	query := `SELECT user_pubkey, asset_id, balance, reserved FROM asset_balances
		WHERE user_pubkey = $1 AND asset_id = $2`

	var b AssetBalance
	err := r.db.QueryRow(ctx, query, userPubkey, assetID).Scan(&b.UserPubkey, &b.AssetID, &b.Balance, &b.Reserved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &AssetBalance{UserPubkey: userPubkey, AssetID: assetID}, nil
		}
		return nil, fmt.Errorf("failed to get balance for %s/%s: %w", userPubkey, assetID, err)
	}
	return &b, nil
}

// Adjust applies delta_balance and delta_reserved atomically, upserting the
// row if it doesn't exist yet. The backing table's check constraint
// (reserved <= balance) enforces I3; a violation surfaces as
// ErrBalanceConstraintViolated.
func (r *BalanceRepository) Adjust(ctx context.Context, userPubkey, assetID string, deltaBalance, deltaReserved int64) error {
	query := `INSERT INTO asset_balances (user_pubkey, asset_id, balance, reserved)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_pubkey, asset_id) DO UPDATE
		SET balance = asset_balances.balance + $3, reserved = asset_balances.reserved + $4`

	_, err := r.db.Exec(ctx, query, userPubkey, assetID, deltaBalance, deltaReserved)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" { // check_violation
			return ErrBalanceConstraintViolated
		}
		return fmt.Errorf("failed to adjust balance for %s/%s: %w", userPubkey, assetID, err)
	}
	return nil
}
