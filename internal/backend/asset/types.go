package asset

// AssetSummary mirrors one row of an asset balance as the daemon reports it.
type AssetSummary struct {
	AssetIDHex string `json:"asset_id_hex"`
	Name       string `json:"name"`
	Amount     int64  `json:"amount"`
}

type ListAssetsRequest struct {
	OwnerPubkeyHex string `json:"owner_pubkey_hex"`
}

type ListAssetsResponse struct {
	Assets []AssetSummary `json:"assets"`
}

type MintAssetRequest struct {
	Name        string `json:"name"`
	Amount      int64  `json:"amount"`
	OwnerPubkey string `json:"owner_pubkey_hex"`
}

type MintAssetResponse struct {
	AssetIDHex string `json:"asset_id_hex"`
	BatchTxID  string `json:"batch_txid"`
}

type TransferAssetRequest struct {
	AssetIDHex     string `json:"asset_id_hex"`
	FromPubkeyHex  string `json:"from_pubkey_hex"`
	ToPubkeyHex    string `json:"to_pubkey_hex"`
	Amount         int64  `json:"amount"`
}

type TransferAssetResponse struct {
	TransferTxID string `json:"transfer_txid"`
}

type CreateAssetInvoiceRequest struct {
	AssetIDHex string `json:"asset_id_hex"`
	Amount     int64  `json:"amount"`
	Memo       string `json:"memo"`
}

type CreateAssetInvoiceResponse struct {
	InvoiceID string `json:"invoice_id"`
	EncodedID string `json:"encoded"` // opaque asset-invoice string shown to the counterparty
}

type PayAssetInvoiceRequest struct {
	EncodedID     string `json:"encoded"`
	FromPubkeyHex string `json:"from_pubkey_hex"`
}

type PayAssetInvoiceResponse struct {
	Settled      bool   `json:"settled"`
	TransferTxID string `json:"transfer_txid,omitempty"`
}
