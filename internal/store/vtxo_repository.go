package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInsufficientVtxos is returned by ReserveVtxos when the available set
// doesn't sum to the requested amount even after scanning everything.
var ErrInsufficientVtxos = errors.New("insufficient vtxo inventory")

// VtxoRepository is the durable home of Vtxo rows.
type VtxoRepository struct {
	db *pgxpool.Pool
}

func NewVtxoRepository(db *DB) *VtxoRepository {
	return &VtxoRepository{db: db.pool}
}

// Insert adds a freshly-created VTXO (e.g. from an inventory refill or a
// lift credit) in the available state.
func (r *VtxoRepository) Insert(ctx context.Context, v *Vtxo) error {
	query := `INSERT INTO vtxos (
		vtxo_id, asset_id, amount, owner_pubkey, status, reserved_by_session, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		v.VtxoID, v.AssetID, v.Amount, v.OwnerPubkey, v.Status, v.ReservedBySession, v.CreatedAt, v.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert vtxo %s: %w", v.VtxoID, err)
	}
	return nil
}

// ReserveVtxos selects available VTXOs for (ownerPubkey, assetID) whose sum
// covers amount and reserves them for session in a single transaction,
// preferring (1) exact match, (2) fewest outputs, (3) oldest first — the
// deterministic selection §4.3/§4.4 require to reduce fragmentation.
// Returns ErrInsufficientVtxos if nothing covers the amount; the caller
// (VTXO Inventory) is responsible for triggering a refill and retrying.
func (r *VtxoRepository) ReserveVtxos(ctx context.Context, ownerPubkey, assetID string, amount int64, sessionID string) ([]*Vtxo, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin reservation transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Exact single-VTXO match first.
	exact, err := selectExactMatch(ctx, tx, ownerPubkey, assetID, amount)
	if err != nil {
		return nil, err
	}

	var chosen []*Vtxo
	if exact != nil {
		chosen = []*Vtxo{exact}
	} else {
		chosen, err = selectBySum(ctx, tx, ownerPubkey, assetID, amount)
		if err != nil {
			return nil, err
		}
	}
	if chosen == nil {
		return nil, ErrInsufficientVtxos
	}

	for _, v := range chosen {
		tag, err := tx.Exec(ctx, `UPDATE vtxos SET status = 'reserved', reserved_by_session = $2
			WHERE vtxo_id = $1 AND status = 'available'`, v.VtxoID, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to reserve vtxo %s: %w", v.VtxoID, err)
		}
		if tag.RowsAffected() == 0 {
			return nil, ErrInsufficientVtxos // lost the race to a concurrent reservation
		}
		v.Status = VtxoReserved
		v.ReservedBySession = &sessionID
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit reservation: %w", err)
	}
	return chosen, nil
}

func selectExactMatch(ctx context.Context, tx pgx.Tx, ownerPubkey, assetID string, amount int64) (*Vtxo, error) {
	query := `SELECT vtxo_id, asset_id, amount, owner_pubkey, status, reserved_by_session, created_at, expires_at
		FROM vtxos
		WHERE owner_pubkey = $1 AND asset_id = $2 AND status = 'available' AND amount = $3
		ORDER BY created_at ASC LIMIT 1`

	var v Vtxo
	err := tx.QueryRow(ctx, query, ownerPubkey, assetID, amount).Scan(
		&v.VtxoID, &v.AssetID, &v.Amount, &v.OwnerPubkey, &v.Status, &v.ReservedBySession, &v.CreatedAt, &v.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up exact vtxo match: %w", err)
	}
	return &v, nil
}

// selectBySum accumulates available VTXOs largest first (oldest first among
// equal amounts) until their sum covers amount, which takes the fewest
// VTXOs.
func selectBySum(ctx context.Context, tx pgx.Tx, ownerPubkey, assetID string, amount int64) ([]*Vtxo, error) {
	query := `SELECT vtxo_id, asset_id, amount, owner_pubkey, status, reserved_by_session, created_at, expires_at
		FROM vtxos
		WHERE owner_pubkey = $1 AND asset_id = $2 AND status = 'available'
		ORDER BY amount DESC, created_at ASC`

	rows, err := tx.Query(ctx, query, ownerPubkey, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to scan available vtxos: %w", err)
	}
	defer rows.Close()

	var chosen []*Vtxo
	var sum int64
	for rows.Next() {
		var v Vtxo
		if err := rows.Scan(&v.VtxoID, &v.AssetID, &v.Amount, &v.OwnerPubkey, &v.Status, &v.ReservedBySession, &v.CreatedAt, &v.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan vtxo row: %w", err)
		}
		chosen = append(chosen, &v)
		sum += v.Amount
		if sum >= amount {
			return chosen, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during vtxo row iteration: %w", err)
	}
	return nil, nil
}

// ReleaseReservation returns every VTXO reserved by session back to
// available, used on any non-success exit (I2).
func (r *VtxoRepository) ReleaseReservation(ctx context.Context, sessionID string) error {
	query := `UPDATE vtxos SET status = 'available', reserved_by_session = NULL
		WHERE reserved_by_session = $1 AND status = 'reserved'`
	_, err := r.db.Exec(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to release reservation for session %s: %w", sessionID, err)
	}
	return nil
}

// MarkSpent transitions every VTXO reserved by session to assigned, the
// only legal path into that state (I2), performed as part of a successful
// commit.
func (r *VtxoRepository) MarkSpent(ctx context.Context, sessionID string) error {
	query := `UPDATE vtxos SET status = 'assigned'
		WHERE reserved_by_session = $1 AND status = 'reserved'`
	_, err := r.db.Exec(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to mark vtxos spent for session %s: %w", sessionID, err)
	}
	return nil
}

// ListExpired returns VTXOs still available whose expiry has passed, for
// the sweeper to transition to expired.
func (r *VtxoRepository) ListExpired(ctx context.Context, before time.Time) ([]*Vtxo, error) {
	query := `SELECT vtxo_id, asset_id, amount, owner_pubkey, status, reserved_by_session, created_at, expires_at
		FROM vtxos WHERE status = 'available' AND expires_at < $1`

	rows, err := r.db.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired vtxos: %w", err)
	}
	defer rows.Close()

	var vtxos []*Vtxo
	for rows.Next() {
		var v Vtxo
		if err := rows.Scan(&v.VtxoID, &v.AssetID, &v.Amount, &v.OwnerPubkey, &v.Status, &v.ReservedBySession, &v.CreatedAt, &v.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan vtxo row: %w", err)
		}
		vtxos = append(vtxos, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during vtxo row iteration: %w", err)
	}
	return vtxos, nil
}

// MarkExpired transitions a VTXO from available to expired.
func (r *VtxoRepository) MarkExpired(ctx context.Context, vtxoID string) error {
	query := `UPDATE vtxos SET status = 'expired' WHERE vtxo_id = $1 AND status = 'available'`
	_, err := r.db.Exec(ctx, query, vtxoID)
	if err != nil {
		return fmt.Errorf("failed to mark vtxo %s expired: %w", vtxoID, err)
	}
	return nil
}
