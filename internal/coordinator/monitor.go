package coordinator

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/afeezaziz/arkrelay-gateway/internal/backend/asset"
	"github.com/afeezaziz/arkrelay-gateway/internal/backend/lightning"
	"github.com/afeezaziz/arkrelay-gateway/internal/orchestrator"
	"github.com/afeezaziz/arkrelay-gateway/internal/store"
	"github.com/afeezaziz/arkrelay-gateway/pkg/logger"
)

// Monitor is the lift flow's settlement watcher: it polls every pending
// lift invoice's state via LookupInvoice until it settles or expires, and
// tells the Ceremony Orchestrator to complete or fail the owning session.
// A lift session's Committer call returns once the invoice is created
// (CommitResult.Pending); Monitor is what eventually moves it out of
// `committing`.
type Monitor struct {
	LN           lightning.Client
	Assets       asset.Client
	Invoices     *store.InvoiceRepository
	Orchestrator *orchestrator.Orchestrator
	GatewayOwner string // the gateway's own pubkey, the asset daemon's mint/allocate target
	PollInterval time.Duration
	Recovery     *Recovery
}

// Run polls on PollInterval until ctx is cancelled. Intended to be started
// as its own goroutine from the gateway's main, alongside the sweeper.
func (m *Monitor) Run(ctx context.Context) {
	interval := m.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.sweep(ctx); err != nil {
				logger.Error("lift settlement sweep failed", zap.Error(err))
			}
		}
	}
}

// farFuture is used as ListExpired's cutoff to fetch every still-pending
// invoice regardless of whether it has actually expired yet — expiry is
// checked per-invoice in checkOne instead.
const farFuture = 100 * 365 * 24 * time.Hour

func (m *Monitor) sweep(ctx context.Context) error {
	invoices, err := m.Invoices.ListExpired(ctx, time.Now().Add(farFuture))
	if err != nil {
		return err
	}

	for _, inv := range invoices {
		if err := m.checkOne(ctx, inv); err != nil {
			logger.Warn("failed to check lift invoice settlement",
				zap.String("payment_hash", inv.PaymentHash), zap.Error(err))
		}
	}
	return nil
}

func (m *Monitor) checkOne(ctx context.Context, inv *store.LightningInvoice) error {
	if inv.InvoiceType != store.InvoiceLift || inv.SessionID == nil {
		return nil
	}

	if time.Now().After(inv.ExpiresAt) {
		return m.expireOne(ctx, inv)
	}

	var state *lightning.InvoiceState
	err := m.Recovery.Do(ctx, "lift:lookup_invoice", func(ctx context.Context) error {
		s, lookupErr := m.LN.LookupInvoice(ctx, inv.PaymentHash)
		if lookupErr != nil {
			return lookupErr
		}
		state = s
		return nil
	})
	if err != nil {
		return err
	}
	if !state.Settled {
		return nil
	}

	if err := verifyPreimage(inv.PaymentHash, state.PreimageHex); err != nil {
		return err
	}

	// Mint/allocate the asset amount in the gateway's own inventory before
	// the session's balance credit, so a mint failure leaves the invoice
	// pending (retried next sweep) rather than crediting a balance with
	// nothing behind it.
	if m.Assets != nil {
		if _, err := m.Assets.MintAsset(ctx, asset.MintAssetRequest{
			Name:        inv.AssetID,
			Amount:      inv.AmountSats,
			OwnerPubkey: m.GatewayOwner,
		}); err != nil {
			return err
		}
	}

	now := time.Now()
	if err := m.Invoices.MarkPaid(ctx, inv.PaymentHash, now); err != nil && !errors.Is(err, store.ErrInvoiceNotFound) {
		return err
	}

	return m.Orchestrator.CompleteSession(ctx, *inv.SessionID, &orchestrator.CommitResult{
		PaymentHash: inv.PaymentHash,
	})
}

// verifyPreimage checks that sha256(preimage) == payment_hash before a
// settled invoice is trusted, per §4.7: LookupInvoice reporting Settled is
// the LN node's word alone, and the preimage is the actual proof of payment.
func verifyPreimage(paymentHash, preimageHex string) error {
	preimage, err := hex.DecodeString(preimageHex)
	if err != nil {
		return orchestrator.NewError(orchestrator.ErrInternal, "invoice reported settled with malformed preimage: %s", err.Error())
	}
	wantHash, err := hex.DecodeString(paymentHash)
	if err != nil {
		return orchestrator.NewError(orchestrator.ErrInternal, "stored payment_hash is malformed: %s", err.Error())
	}
	gotHash := sha256.Sum256(preimage)
	if !bytes.Equal(gotHash[:], wantHash) {
		return orchestrator.NewError(orchestrator.ErrInternal, "preimage does not hash to payment_hash %s, refusing to mark paid", paymentHash)
	}
	return nil
}

func (m *Monitor) expireOne(ctx context.Context, inv *store.LightningInvoice) error {
	if err := m.Invoices.UpdateStatus(ctx, inv.PaymentHash, store.InvoiceExpired); err != nil && !errors.Is(err, store.ErrInvoiceNotFound) {
		return err
	}
	if inv.SessionID == nil {
		return nil
	}
	return m.Orchestrator.FailSession(ctx, *inv.SessionID, orchestrator.ErrInvoiceExpired, "lift invoice expired before settlement")
}
