// Package coordinator is the Lightning Coordinator: the lift and land
// sub-flows that sit atop the Ceremony Orchestrator's state machine (§4.7).
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/afeezaziz/arkrelay-gateway/internal/backend/lightning"
	"github.com/afeezaziz/arkrelay-gateway/internal/orchestrator"
	"github.com/afeezaziz/arkrelay-gateway/internal/store"
)

// Config holds the fee-estimation tunables used by the land flow.
type Config struct {
	FeeSatsPerVbyte int64
	FeePercentage   float64
}

// EstimateFee returns the estimated routing fee for a land payment of
// amount: FeePercentage of amount, floored at FeeSatsPerVbyte.
// LandCommitter passes it to PayInvoice as the payment's fee limit; it is
// not added to the amount debited from the user's balance.
func (c Config) EstimateFee(amount int64) int64 {
	fee := int64(float64(amount) * c.FeePercentage)
	if fee < c.FeeSatsPerVbyte {
		fee = c.FeeSatsPerVbyte
	}
	return fee
}

// LiftCommitter implements orchestrator.Committer for lightning_lift: step
// 6 creates an invoice and records it pending; the orchestrator commit call
// itself returns once this method returns, but the session only reaches
// `completed` once the settlement Monitor observes payment and calls
// Orchestrator.CompleteSession.
type LiftCommitter struct {
	LN        lightning.Client
	Invoices  *store.InvoiceRepository
	ExpirySec int64
	Recovery  *Recovery
}

func (c *LiftCommitter) Commit(ctx context.Context, session *store.Session, _ []*store.Vtxo) (*orchestrator.CommitResult, error) {
	var added *lightning.AddedInvoice
	err := c.Recovery.Do(ctx, "lift:add_invoice", func(ctx context.Context) error {
		a, addErr := c.LN.AddInvoice(ctx, session.Intent.Params.Amount, "arkrelay lift "+session.SessionID, c.ExpirySec)
		if addErr != nil {
			return addErr
		}
		added = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	inv := &store.LightningInvoice{
		PaymentHash: added.PaymentHashHex,
		Bolt11:      added.PaymentRequest,
		SessionID:   &session.SessionID,
		AmountSats:  session.Intent.Params.Amount,
		AssetID:     session.Intent.Params.AssetID,
		Status:      store.InvoicePending,
		InvoiceType: store.InvoiceLift,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Duration(c.ExpirySec) * time.Second),
	}
	if err := c.Invoices.Create(ctx, inv); err != nil {
		return nil, orchestrator.NewError(orchestrator.ErrInternal, "failed to persist lift invoice: %s", err.Error())
	}

	// The session stays in `committing` until the Monitor observes
	// settlement and calls Orchestrator.CompleteSession.
	return &orchestrator.CommitResult{PaymentHash: added.PaymentHashHex, Pending: true}, nil
}

// LandCommitter implements orchestrator.Committer for lightning_land: step
// 6 validates the invoice, step 7 pays it. Balances are debited purely
// against the gateway's own ledger (store.BalanceRepository, applied by the
// orchestrator on COMPLETE) — landing never calls the asset daemon, since
// the asset never leaves the gateway's own inventory.
type LandCommitter struct {
	LN       lightning.Client
	Fees     Config
	Recovery *Recovery
}

func (c *LandCommitter) Commit(ctx context.Context, session *store.Session, _ []*store.Vtxo) (*orchestrator.CommitResult, error) {
	invoice, err := c.LN.DecodeInvoice(ctx, session.Intent.Params.LightningInvoice)
	if err != nil {
		return nil, orchestrator.NewError(orchestrator.ErrInvalidInvoice, "%s", err.Error())
	}
	if invoice.IsExpired {
		return nil, orchestrator.NewError(orchestrator.ErrInvoiceExpired, "invoice already expired")
	}

	fee := c.Fees.EstimateFee(invoice.AmountSats)

	var result *lightning.PaymentResult
	err = c.Recovery.Do(ctx, "land:pay_invoice", func(ctx context.Context) error {
		res, payErr := c.LN.PayInvoice(ctx, session.Intent.Params.LightningInvoice, fee)
		if payErr != nil {
			return payErr
		}
		if res.Status != lightning.Succeeded {
			return fmt.Errorf("payment did not reach SUCCEEDED")
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &orchestrator.CommitResult{PaymentHash: result.PaymentHash, FeeSats: result.FeeSats}, nil
}

