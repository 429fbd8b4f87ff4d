// Package store is the Session Store: the durable home of every entity the
// gateway tracks (sessions, challenges, VTXOs, asset balances, Lightning
// invoices), with the transactional primitives the orchestrator needs to
// move them between states atomically.
package store

import "time"

// SessionType is the tagged-variant discriminator carried in an intent.
type SessionType string

const (
	SessionP2PTransfer   SessionType = "p2p_transfer"
	SessionLightningLift SessionType = "lightning_lift"
	SessionLightningLand SessionType = "lightning_land"
)

// SessionState is a session's position in the Ceremony Orchestrator's state
// machine. initiated is the only start state; completed/failed/expired are
// terminal and never transition further (I4).
type SessionState string

const (
	SessionInitiated         SessionState = "initiated"
	SessionChallengeSent     SessionState = "challenge_sent"
	SessionAwaitingSignature SessionState = "awaiting_signature"
	SessionSigning           SessionState = "signing"
	SessionCommitting        SessionState = "committing"
	SessionCompleted         SessionState = "completed"
	SessionFailed            SessionState = "failed"
	SessionExpired           SessionState = "expired"
)

// IsTerminal reports whether s is one of the three states I4 forbids
// transitioning out of.
func (s SessionState) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionExpired
}

// Intent is the structured request an intent event carries, parsed as a
// tagged variant keyed by SessionType (§9: dynamic-typed params become
// tagged variants, one parameter record per recognized type).
type Intent struct {
	ActionID  string         `json:"action_id"`
	Type      SessionType    `json:"type"`
	Params    IntentParams   `json:"params"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// IntentParams is the union of the three recognized parameter shapes.
// Exactly one of these is meaningful, selected by the owning Intent's Type.
type IntentParams struct {
	AssetID         string `json:"asset_id"`
	Amount          int64  `json:"amount"`
	RecipientPubkey string `json:"recipient_pubkey,omitempty"`
	LightningInvoice string `json:"lightning_invoice,omitempty"`
}

// SessionResult records a terminal session's outcome: either a success
// reference (txid or payment hash, amount, fee) or an error kind+message.
type SessionResult struct {
	TxID          string `json:"txid,omitempty"`
	PaymentHash   string `json:"payment_hash,omitempty"`
	AmountSats    int64  `json:"amount,omitempty"`
	FeeSats       int64  `json:"fee,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// Session is the gateway's record coordinating one intent to its terminal
// outcome (§3 SigningSession).
type Session struct {
	SessionID   string        `json:"session_id" db:"session_id"`
	UserPubkey  string        `json:"user_pubkey" db:"user_pubkey"`
	SessionType SessionType   `json:"session_type" db:"session_type"`
	State       SessionState  `json:"state" db:"state"`
	Intent      Intent        `json:"intent" db:"intent"`
	Context     string        `json:"context" db:"context"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	ExpiresAt   time.Time     `json:"expires_at" db:"expires_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
	ChallengeID *string       `json:"challenge_id,omitempty" db:"challenge_id"`
	Result      *SessionResult `json:"result,omitempty" db:"result"`
}

// SigningChallenge is the deterministic bytes derived from an intent that a
// wallet must sign to authorize it (§3 SigningChallenge).
type SigningChallenge struct {
	ChallengeID string     `json:"challenge_id" db:"challenge_id"`
	SessionID   string     `json:"session_id" db:"session_id"`
	Payload     string     `json:"payload" db:"payload"`         // canonical JSON text
	PayloadRef  string     `json:"payload_ref" db:"payload_ref"` // sha256_hex(canonical)
	Context     string     `json:"context" db:"context"`
	ExpiresAt   time.Time  `json:"expires_at" db:"expires_at"`
	IsUsed      bool       `json:"is_used" db:"is_used"`
	Signature   *string    `json:"signature,omitempty" db:"signature"`
}

// VtxoStatus is a VTXO's position in the reservation lifecycle (I2).
type VtxoStatus string

const (
	VtxoAvailable VtxoStatus = "available"
	VtxoReserved  VtxoStatus = "reserved"
	VtxoAssigned  VtxoStatus = "assigned"
	VtxoSpent     VtxoStatus = "spent"
	VtxoExpired   VtxoStatus = "expired"
)

// Vtxo is a virtual unspent output in the shared-UTXO scheme (§3 Vtxo).
type Vtxo struct {
	VtxoID            string     `json:"vtxo_id" db:"vtxo_id"`
	AssetID           string     `json:"asset_id" db:"asset_id"`
	Amount            int64      `json:"amount" db:"amount"`
	OwnerPubkey       *string    `json:"owner_pubkey,omitempty" db:"owner_pubkey"`
	Status            VtxoStatus `json:"status" db:"status"`
	ReservedBySession *string    `json:"reserved_by_session,omitempty" db:"reserved_by_session"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt         time.Time  `json:"expires_at" db:"expires_at"`
}

// AssetBalance is a user's holding of one asset, with the portion currently
// reserved by in-flight sessions (I3: reserved ≤ balance).
type AssetBalance struct {
	UserPubkey string `json:"user_pubkey" db:"user_pubkey"`
	AssetID    string `json:"asset_id" db:"asset_id"`
	Balance    int64  `json:"balance" db:"balance"`
	Reserved   int64  `json:"reserved" db:"reserved"`
}

// InvoiceStatus is a LightningInvoice's settlement state.
type InvoiceStatus string

const (
	InvoicePending        InvoiceStatus = "pending"
	InvoicePendingPayment InvoiceStatus = "pending_payment"
	InvoicePaid           InvoiceStatus = "paid"
	InvoiceFailed         InvoiceStatus = "failed"
	InvoiceExpired        InvoiceStatus = "expired"
)

// InvoiceType distinguishes a lift invoice (gateway receives) from a land
// invoice (gateway pays).
type InvoiceType string

const (
	InvoiceLift InvoiceType = "lift"
	InvoiceLand InvoiceType = "land"
)

// LightningInvoice is a BOLT-11 invoice the gateway created or is paying,
// tracked against its owning session (§3 LightningInvoice).
type LightningInvoice struct {
	PaymentHash string        `json:"payment_hash" db:"payment_hash"`
	Bolt11      string        `json:"bolt11" db:"bolt11"`
	SessionID   *string       `json:"session_id,omitempty" db:"session_id"`
	AmountSats  int64         `json:"amount_sats" db:"amount_sats"`
	AssetID     string        `json:"asset_id" db:"asset_id"`
	Status      InvoiceStatus `json:"status" db:"status"`
	InvoiceType InvoiceType   `json:"invoice_type" db:"invoice_type"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	ExpiresAt   time.Time     `json:"expires_at" db:"expires_at"`
	PaidAt      *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
}
