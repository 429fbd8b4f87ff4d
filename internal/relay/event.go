package relay

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/nbd-wtf/go-nostr"
)

// Event kinds the gateway publishes and subscribes to. Session traffic
// rides encrypted direct messages (kind 4); everything else is a thin
// wrapper the wallet side never needs to parse generically.
const (
	KindEncryptedDirectMessage = 4
)

// Event is the gateway's own event representation. It is intentionally
// independent of nostr.Event: the gateway computes and checks the id and
// signature itself rather than trusting whatever the relay library hands
// back, converting to/from nostr.Event only at the adapter boundary.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// serializationArray builds the canonical [0,pubkey,created_at,kind,tags,content]
// array whose SHA-256 digest is the event id, per NIP-01.
func (e *Event) serializationArray() ([]byte, error) {
	tags := e.Tags
	if tags == nil {
		tags = [][]string{}
	}
	arr := []interface{}{0, e.PubKey, e.CreatedAt, e.Kind, tags, e.Content}
	return json.Marshal(arr)
}

// ComputeID fills in e.ID from the canonical serialization.
func (e *Event) ComputeID() error {
	raw, err := e.serializationArray()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}
	sum := sha256.Sum256(raw)
	e.ID = hex.EncodeToString(sum[:])
	return nil
}

// Sign computes the event id and a BIP-340 Schnorr signature over it using
// the gateway's identity key, filling in both ID and Sig.
func (e *Event) Sign(identity *Identity) error {
	e.PubKey = identity.PubkeyHex()
	if err := e.ComputeID(); err != nil {
		return err
	}

	idBytes, err := hex.DecodeString(e.ID)
	if err != nil {
		return fmt.Errorf("invalid event id: %w", err)
	}

	sig, err := schnorr.Sign(identity.PrivateKey, idBytes)
	if err != nil {
		return fmt.Errorf("failed to sign event: %w", err)
	}
	e.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// Verify recomputes the event id from its fields and checks both that it
// matches e.ID and that e.Sig is a valid BIP-340 signature by e.PubKey over
// that id. The gateway never trusts an id or signature it did not itself
// verify, even when a well-behaved relay library would have already done so.
func (e *Event) Verify() error {
	raw, err := e.serializationArray()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}
	sum := sha256.Sum256(raw)
	wantID := hex.EncodeToString(sum[:])
	if wantID != e.ID {
		return fmt.Errorf("event id mismatch: computed %s, got %s", wantID, e.ID)
	}

	pubkeyBytes, err := hex.DecodeString(e.PubKey)
	if err != nil {
		return fmt.Errorf("invalid event pubkey: %w", err)
	}
	pubkey, err := schnorr.ParsePubKey(pubkeyBytes)
	if err != nil {
		return fmt.Errorf("failed to parse event pubkey: %w", err)
	}

	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil {
		return fmt.Errorf("invalid event signature: %w", err)
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("failed to parse event signature: %w", err)
	}

	idBytes, err := hex.DecodeString(e.ID)
	if err != nil {
		return fmt.Errorf("invalid event id: %w", err)
	}
	if !sig.Verify(idBytes, pubkey) {
		return fmt.Errorf("invalid event signature")
	}
	return nil
}

// ToNostr converts to the wire type the relay adapter publishes and
// subscribes with.
func (e *Event) ToNostr() nostr.Event {
	tags := make(nostr.Tags, 0, len(e.Tags))
	for _, t := range e.Tags {
		tags = append(tags, nostr.Tag(t))
	}
	return nostr.Event{
		ID:        e.ID,
		PubKey:    e.PubKey,
		CreatedAt: nostr.Timestamp(e.CreatedAt),
		Kind:      e.Kind,
		Tags:      tags,
		Content:   e.Content,
		Sig:       e.Sig,
	}
}

// FromNostr converts a wire event back into the gateway's own
// representation without trusting its id or signature; callers must still
// call Verify.
func FromNostr(ne nostr.Event) Event {
	tags := make([][]string, 0, len(ne.Tags))
	for _, t := range ne.Tags {
		tags = append(tags, []string(t))
	}
	return Event{
		ID:        ne.ID,
		PubKey:    ne.PubKey,
		CreatedAt: int64(ne.CreatedAt),
		Kind:      ne.Kind,
		Tags:      tags,
		Content:   ne.Content,
		Sig:       ne.Sig,
	}
}

func schnorrPubkeyBytes(pub *btcec.PublicKey) []byte {
	return schnorr.SerializePubKey(pub)
}

// SignRawSchnorrHex signs the SHA-256 digest of a hex-encoded message with
// identity's private key, returning a hex-encoded BIP-340 signature. Used
// for signing opaque back-end payloads (e.g. an ARK signing request) that
// aren't Nostr events.
func SignRawSchnorrHex(identity *Identity, messageHex string) (string, error) {
	message, err := hex.DecodeString(messageHex)
	if err != nil {
		return "", fmt.Errorf("invalid message hex: %w", err)
	}
	digest := sha256.Sum256(message)
	sig, err := schnorr.Sign(identity.PrivateKey, digest[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}
	return hex.EncodeToString(sig.Serialize()), nil
}

// VerifyRawSchnorr checks a BIP-340 Schnorr signature (hex-encoded) by
// pubkeyHex over the SHA-256 digest of message. Used by callers that sign
// application payloads directly rather than full Nostr events.
func VerifyRawSchnorr(pubkeyHex string, message []byte, signatureHex string) error {
	pubkeyBytes, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return fmt.Errorf("invalid pubkey: %w", err)
	}
	pubkey, err := schnorr.ParsePubKey(pubkeyBytes)
	if err != nil {
		return fmt.Errorf("failed to parse pubkey: %w", err)
	}

	sigBytes, err := hex.DecodeString(signatureHex)
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("failed to parse signature: %w", err)
	}

	digest := sha256.Sum256(message)
	if !sig.Verify(digest[:], pubkey) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}
