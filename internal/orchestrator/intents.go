package orchestrator

import (
	"time"

	"github.com/afeezaziz/arkrelay-gateway/internal/store"
)

// validateIntent checks the tagged-variant shape for intent.Type (§9:
// dynamic-typed params become tagged variants, one record per recognized
// type) and that the intent hasn't already expired (P4).
func validateIntent(intent store.Intent) error {
	if time.Now().After(intent.ExpiresAt) {
		return fail(ErrExpiredIntent, "intent %s expired at %s", intent.ActionID, intent.ExpiresAt)
	}

	p := intent.Params
	switch intent.Type {
	case store.SessionP2PTransfer:
		if p.AssetID == "" || p.Amount <= 0 || p.RecipientPubkey == "" {
			return fail(ErrInvalidIntent, "p2p_transfer requires asset_id, amount, recipient_pubkey")
		}
	case store.SessionLightningLift:
		if p.AssetID == "" || p.Amount <= 0 {
			return fail(ErrInvalidIntent, "lightning_lift requires asset_id, amount")
		}
	case store.SessionLightningLand:
		if p.AssetID == "" || p.Amount <= 0 || p.LightningInvoice == "" {
			return fail(ErrInvalidIntent, "lightning_land requires asset_id, amount, lightning_invoice")
		}
	default:
		return fail(ErrUnknownSessionType, "unrecognized session_type %q", intent.Type)
	}
	return nil
}
