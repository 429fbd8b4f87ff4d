package asset

import "context"

// ListAssets enumerates the asset balances a pubkey currently holds.
func (c *grpcClient) ListAssets(ctx context.Context, req ListAssetsRequest) (*ListAssetsResponse, error) {
	var resp ListAssetsResponse
	if err := c.invoke(ctx, "/tapd.AssetService/ListAssets", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MintAsset issues new units of an asset, used by the lift settlement
// monitor (Monitor.checkOne) to mint the paid lift amount.
func (c *grpcClient) MintAsset(ctx context.Context, req MintAssetRequest) (*MintAssetResponse, error) {
	var resp MintAssetResponse
	if err := c.invoke(ctx, "/tapd.AssetService/MintAsset", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TransferAsset moves an asset balance between two pubkeys directly,
// without going through the invoice/payment handshake.
func (c *grpcClient) TransferAsset(ctx context.Context, req TransferAssetRequest) (*TransferAssetResponse, error) {
	var resp TransferAssetResponse
	if err := c.invoke(ctx, "/tapd.AssetService/TransferAsset", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateAssetInvoice creates an asset-denominated invoice a counterparty can pay.
func (c *grpcClient) CreateAssetInvoice(ctx context.Context, req CreateAssetInvoiceRequest) (*CreateAssetInvoiceResponse, error) {
	var resp CreateAssetInvoiceResponse
	if err := c.invoke(ctx, "/tapd.AssetService/CreateAssetInvoice", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PayAssetInvoice settles an asset-denominated invoice previously created
// by a counterparty.
func (c *grpcClient) PayAssetInvoice(ctx context.Context, req PayAssetInvoiceRequest) (*PayAssetInvoiceResponse, error) {
	var resp PayAssetInvoiceResponse
	if err := c.invoke(ctx, "/tapd.AssetService/PayAssetInvoice", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
