package relay

import (
	"encoding/hex"
	"fmt"

	"github.com/nbd-wtf/go-nostr/nip04"
)

// EncryptDM encrypts plaintext for counterpartyPubkeyHex using the NIP-04
// shared-secret scheme (ECDH over secp256k1, AES-256-CBC), returning the
// ciphertext in the "base64?iv=base64" wire form the content field of a
// kind-4 event carries.
func EncryptDM(identity *Identity, counterpartyPubkeyHex, plaintext string) (string, error) {
	privHex := hex.EncodeToString(identity.PrivateKey.Serialize())
	shared, err := nip04.ComputeSharedSecret(counterpartyPubkeyHex, privHex)
	if err != nil {
		return "", fmt.Errorf("failed to compute DM shared secret: %w", err)
	}
	ciphertext, err := nip04.Encrypt(plaintext, shared)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt DM: %w", err)
	}
	return ciphertext, nil
}

// DecryptDM reverses EncryptDM: counterpartyPubkeyHex is the sender's
// pubkey, from which the gateway derives the same shared secret.
func DecryptDM(identity *Identity, counterpartyPubkeyHex, ciphertext string) (string, error) {
	privHex := hex.EncodeToString(identity.PrivateKey.Serialize())
	shared, err := nip04.ComputeSharedSecret(counterpartyPubkeyHex, privHex)
	if err != nil {
		return "", fmt.Errorf("failed to compute DM shared secret: %w", err)
	}
	plaintext, err := nip04.Decrypt(ciphertext, shared)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt DM: %w", err)
	}
	return plaintext, nil
}

// BuildEncryptedDM constructs and signs a kind-4 event carrying plaintext
// encrypted for recipientPubkeyHex, tagged per NIP-04 so relays and clients
// can route it.
func BuildEncryptedDM(identity *Identity, recipientPubkeyHex, plaintext string, createdAt int64) (*Event, error) {
	ciphertext, err := EncryptDM(identity, recipientPubkeyHex, plaintext)
	if err != nil {
		return nil, err
	}
	ev := &Event{
		Kind:      KindEncryptedDirectMessage,
		CreatedAt: createdAt,
		Tags:      [][]string{{"p", recipientPubkeyHex}},
		Content:   ciphertext,
	}
	if err := ev.Sign(identity); err != nil {
		return nil, fmt.Errorf("failed to sign DM event: %w", err)
	}
	return ev, nil
}
