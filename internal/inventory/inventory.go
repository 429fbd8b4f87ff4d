// Package inventory is the VTXO Inventory: the selection and refill policy
// layered on top of the Session Store's VTXO primitives.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/afeezaziz/arkrelay-gateway/internal/backend/ark"
	"github.com/afeezaziz/arkrelay-gateway/internal/store"
	"github.com/afeezaziz/arkrelay-gateway/pkg/logger"
)

// ErrInsufficientInventory is returned after a refill attempt still leaves
// the owner short of the requested amount.
var ErrInsufficientInventory = errors.New("insufficient_inventory")

// Config holds the inventory policy's tunables (config.toml section shared
// with the VTXO expiry fields).
type Config struct {
	ExpirationHours int
	MinAmountSats   int64
}

// Inventory is the policy layer: it owns no storage of its own, delegating
// every durable mutation to the VtxoRepository and reaching for the ARK
// client only to refill.
type Inventory struct {
	repo   *store.VtxoRepository
	arkCli ark.Client
	cfg    Config
}

func New(repo *store.VtxoRepository, arkCli ark.Client, cfg Config) *Inventory {
	return &Inventory{repo: repo, arkCli: arkCli, cfg: cfg}
}

// Reserve picks and reserves VTXOs covering amount for (ownerPubkey,
// assetID), refilling once via the ARK client if the first pass comes up
// short (§4.4). The refill-then-retry is attempted at most once; a second
// shortfall fails with ErrInsufficientInventory.
func (inv *Inventory) Reserve(ctx context.Context, ownerPubkey, assetID string, amount int64, sessionID string) ([]*store.Vtxo, error) {
	vtxos, err := inv.repo.ReserveVtxos(ctx, ownerPubkey, assetID, amount, sessionID)
	if err == nil {
		return vtxos, nil
	}
	if !errors.Is(err, store.ErrInsufficientVtxos) {
		return nil, fmt.Errorf("failed to reserve vtxos: %w", err)
	}

	logger.Info("vtxo inventory short, triggering refill",
		zap.String("owner_pubkey", ownerPubkey), zap.String("asset_id", assetID), zap.Int64("amount", amount))

	if err := inv.refill(ctx, ownerPubkey, assetID, amount); err != nil {
		return nil, fmt.Errorf("vtxo refill failed: %w", err)
	}

	vtxos, err = inv.repo.ReserveVtxos(ctx, ownerPubkey, assetID, amount, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientVtxos) {
			return nil, ErrInsufficientInventory
		}
		return nil, fmt.Errorf("failed to reserve vtxos after refill: %w", err)
	}
	return vtxos, nil
}

// refill asks the ARK client to mint fresh VTXOs for ownerPubkey and
// persists them as available inventory.
func (inv *Inventory) refill(ctx context.Context, ownerPubkey, assetID string, amount int64) error {
	target := amount
	if target < inv.cfg.MinAmountSats {
		target = inv.cfg.MinAmountSats
	}

	resp, err := inv.arkCli.CreateVtxos(ctx, ark.CreateVtxosRequest{
		OwnerPubkeyHex: ownerPubkey,
		AmountsSats:    []int64{target},
	})
	if err != nil {
		return fmt.Errorf("ark create_vtxos failed: %w", err)
	}

	now := time.Now()
	expiresAt := now.Add(time.Duration(inv.cfg.ExpirationHours) * time.Hour)
	for _, v := range resp.Vtxos {
		owner := ownerPubkey
		if err := inv.repo.Insert(ctx, &store.Vtxo{
			VtxoID:      v.VtxoID,
			AssetID:     assetID,
			Amount:      v.AmountSats,
			OwnerPubkey: &owner,
			Status:      store.VtxoAvailable,
			CreatedAt:   now,
			ExpiresAt:   expiresAt,
		}); err != nil {
			return fmt.Errorf("failed to persist refilled vtxo %s: %w", v.VtxoID, err)
		}
	}
	return nil
}

// Release returns a session's reservation to available, used on every
// non-success exit from the orchestrator (I2).
func (inv *Inventory) Release(ctx context.Context, sessionID string) error {
	return inv.repo.ReleaseReservation(ctx, sessionID)
}

// Commit transitions a session's reserved VTXOs to assigned, the only
// legal path into that state (I2), called only on a successful back-end
// commit.
func (inv *Inventory) Commit(ctx context.Context, sessionID string) error {
	return inv.repo.MarkSpent(ctx, sessionID)
}

// SweepExpired transitions available VTXOs past their expiry to expired,
// removing them from future selection. Returns the number swept.
func (inv *Inventory) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := inv.repo.ListExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired vtxos: %w", err)
	}
	for _, v := range expired {
		if err := inv.repo.MarkExpired(ctx, v.VtxoID); err != nil {
			logger.Warn("failed to mark vtxo expired", zap.String("vtxo_id", v.VtxoID), zap.Error(err))
		}
	}
	return len(expired), nil
}
