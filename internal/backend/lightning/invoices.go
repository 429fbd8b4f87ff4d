package lightning

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/lightningnetwork/lnd/lnrpc"
)

// AddInvoice creates a new invoice the counterparty is expected to pay,
// used by the Lightning Coordinator's lift flow (the gateway receives funds
// on behalf of the user's future VTXO).
func (c *grpcClient) AddInvoice(ctx context.Context, amountSats int64, memo string, expirySeconds int64) (*AddedInvoice, error) {
	if expirySeconds <= 0 {
		expirySeconds = 3600
	}

	resp, err := c.lnClient.AddInvoice(ctx, &lnrpc.Invoice{
		Value:  amountSats,
		Memo:   memo,
		Expiry: expirySeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add invoice: %w", err)
	}

	return &AddedInvoice{
		PaymentRequest: resp.PaymentRequest,
		PaymentHashHex: hex.EncodeToString(resp.RHash),
		AddIndex:       resp.AddIndex,
	}, nil
}

// LookupInvoice polls an invoice's settlement state by payment hash. The
// lift flow's settlement monitor calls this on an interval rather than
// holding an invoice-subscription stream open per session.
func (c *grpcClient) LookupInvoice(ctx context.Context, paymentHashHex string) (*InvoiceState, error) {
	rHash, err := hex.DecodeString(paymentHashHex)
	if err != nil {
		return nil, fmt.Errorf("invalid payment hash %q: %w", paymentHashHex, err)
	}

	resp, err := c.lnClient.LookupInvoice(ctx, &lnrpc.PaymentHash{RHash: rHash})
	if err != nil {
		return nil, fmt.Errorf("failed to look up invoice: %w", err)
	}

	return &InvoiceState{
		Settled:     resp.State == lnrpc.Invoice_SETTLED,
		AmountSats:  resp.Value,
		PreimageHex: hex.EncodeToString(resp.RPreimage),
	}, nil
}
