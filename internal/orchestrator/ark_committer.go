package orchestrator

import (
	"context"

	"github.com/afeezaziz/arkrelay-gateway/internal/backend/ark"
	"github.com/afeezaziz/arkrelay-gateway/internal/relay"
	"github.com/afeezaziz/arkrelay-gateway/internal/store"
)

const arkSessionStatusCommitted = "committed"

// ArkCommitter implements Committer for p2p_transfer sessions: it runs the
// ARK signing ceremony (prepare → submit) using session_id as the
// idempotency key (I5). The sender's own co-signature isn't required
// (§9 open question, resolved in favor of the gateway debiting its own
// pool VTXOs): the gateway signs the prepared payload with its own
// identity key.
type ArkCommitter struct {
	Client   ark.Client
	Identity *relay.Identity
}

func (c *ArkCommitter) Commit(ctx context.Context, session *store.Session, reserved []*store.Vtxo) (*CommitResult, error) {
	// I5: before (re-)submitting, check whether arkd already considers this
	// session committed — a retry after an ambiguous failure must never
	// debit twice.
	statusResp, err := c.Client.GetSessionStatus(ctx, ark.GetSessionStatusRequest{SessionID: session.SessionID})
	if err == nil && statusResp.Status == arkSessionStatusCommitted {
		return &CommitResult{TxID: statusResp.TxID}, nil
	}

	inputIDs := make([]string, 0, len(reserved))
	for _, v := range reserved {
		inputIDs = append(inputIDs, v.VtxoID)
	}

	prep, err := c.Client.PrepareSigningRequest(ctx, ark.PrepareSigningRequestRequest{
		SessionID:   session.SessionID,
		InputIDs:    inputIDs,
		OutputsSats: map[string]int64{session.Intent.Params.RecipientPubkey: session.Intent.Params.Amount},
	})
	if err != nil {
		return nil, fail(ErrServiceUnavailable, "ark prepare_signing_request failed: %s", err.Error())
	}

	sigHex, err := relay.SignRawSchnorrHex(c.Identity, prep.SigningPayloadHex)
	if err != nil {
		return nil, fail(ErrInternal, "failed to sign ark payload: %s", err.Error())
	}

	submit, err := c.Client.SubmitSignatures(ctx, ark.SubmitSignaturesRequest{
		SessionID:  session.SessionID,
		Signatures: map[string]string{c.Identity.PubkeyHex(): sigHex},
	})
	if err != nil {
		return nil, fail(ErrServiceUnavailable, "ark submit_signatures failed: %s", err.Error())
	}
	if !submit.Committed {
		return nil, fail(ErrServiceProtocolError, "ark did not confirm commit for session %s", session.SessionID)
	}

	return &CommitResult{TxID: submit.TxID}, nil
}
