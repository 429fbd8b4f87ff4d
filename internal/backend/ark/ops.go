package ark

import "context"

// CreateVtxos issues fresh VTXOs for a user's pubkey, used by the VTXO
// Inventory's refill-and-retry path when no cached VTXO combination covers
// a requested spend.
func (c *grpcClient) CreateVtxos(ctx context.Context, req CreateVtxosRequest) (*CreateVtxosResponse, error) {
	var resp CreateVtxosResponse
	if err := c.invoke(ctx, "/arkd.ArkService/CreateVtxos", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListVtxos enumerates a user's current VTXO set as arkd reports it. The
// VTXO Inventory does not call it; it works from its own store rows.
func (c *grpcClient) ListVtxos(ctx context.Context, req ListVtxosRequest) (*ListVtxosResponse, error) {
	var resp ListVtxosResponse
	if err := c.invoke(ctx, "/arkd.ArkService/ListVtxos", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SpendVtxos is the direct (non-ceremony) path: consuming VTXOs whose
// signatures the gateway already controls. p2p_transfer does not use it:
// ArkCommitter goes through PrepareSigningRequest/SubmitSignatures.
func (c *grpcClient) SpendVtxos(ctx context.Context, req SpendVtxosRequest) (*SpendVtxosResponse, error) {
	var resp SpendVtxosResponse
	if err := c.invoke(ctx, "/arkd.ArkService/SpendVtxos", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PrepareSigningRequest starts a multi-party signing ceremony, returning the
// payload each participant (wallet + gateway) must sign.
func (c *grpcClient) PrepareSigningRequest(ctx context.Context, req PrepareSigningRequestRequest) (*PrepareSigningRequestResponse, error) {
	var resp PrepareSigningRequestResponse
	if err := c.invoke(ctx, "/arkd.ArkService/PrepareSigningRequest", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitSignatures submits the collected signatures for a ceremony and, once
// every required signer has contributed, commits the resulting transaction.
// Idempotent by SessionID (I5): a resubmission after a successful commit is
// a no-op on arkd's side.
func (c *grpcClient) SubmitSignatures(ctx context.Context, req SubmitSignaturesRequest) (*SubmitSignaturesResponse, error) {
	var resp SubmitSignaturesResponse
	if err := c.invoke(ctx, "/arkd.ArkService/SubmitSignatures", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSessionStatus polls arkd's own view of a ceremony, used by
// ArkCommitter.Commit before it submits signatures (I5).
func (c *grpcClient) GetSessionStatus(ctx context.Context, req GetSessionStatusRequest) (*GetSessionStatusResponse, error) {
	var resp GetSessionStatusResponse
	if err := c.invoke(ctx, "/arkd.ArkService/GetSessionStatus", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
