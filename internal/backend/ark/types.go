package ark

// Vtxo mirrors the wire shape of a shared-UTXO output as arkd reports it.
type Vtxo struct {
	VtxoID      string `json:"vtxo_id"`
	TxID        string `json:"txid"`
	OutputIndex uint32 `json:"output_index"`
	AmountSats  int64  `json:"amount_sats"`
	ScriptHex   string `json:"script_hex"`
	ExpiresAt   int64  `json:"expires_at"` // unix seconds
}

type CreateVtxosRequest struct {
	OwnerPubkeyHex string  `json:"owner_pubkey_hex"`
	AmountsSats    []int64 `json:"amounts_sats"`
}

type CreateVtxosResponse struct {
	Vtxos []Vtxo `json:"vtxos"`
}

type ListVtxosRequest struct {
	OwnerPubkeyHex string `json:"owner_pubkey_hex"`
	IncludeSpent   bool   `json:"include_spent"`
}

type ListVtxosResponse struct {
	Vtxos []Vtxo `json:"vtxos"`
}

type SpendVtxosRequest struct {
	VtxoIDs          []string `json:"vtxo_ids"`
	DestinationsSats map[string]int64 `json:"destinations_sats"` // pubkey_hex -> amount
}

type SpendVtxosResponse struct {
	SpendTxID string `json:"spend_txid"`
}

// PrepareSigningRequestRequest starts the multi-party signing ceremony for
// a set of inputs/outputs. SessionID ties this call to the gateway's own
// SigningSession row (idempotency key, I5).
type PrepareSigningRequestRequest struct {
	SessionID  string   `json:"session_id"`
	InputIDs   []string `json:"input_vtxo_ids"`
	OutputsSats map[string]int64 `json:"outputs_sats"` // pubkey_hex -> amount
}

type PrepareSigningRequestResponse struct {
	SigningPayloadHex string   `json:"signing_payload_hex"` // the bytes each participant must sign
	RequiredSigners   []string `json:"required_signers"`    // pubkey_hex
}

type SubmitSignaturesRequest struct {
	SessionID  string            `json:"session_id"`
	Signatures map[string]string `json:"signatures"` // pubkey_hex -> sig_hex
}

type SubmitSignaturesResponse struct {
	Committed bool   `json:"committed"`
	TxID      string `json:"txid,omitempty"`
}

type GetSessionStatusRequest struct {
	SessionID string `json:"session_id"`
}

type GetSessionStatusResponse struct {
	Status string `json:"status"` // arkd's own ceremony status, independent of our SigningSession.Status
	TxID   string `json:"txid,omitempty"`
}
