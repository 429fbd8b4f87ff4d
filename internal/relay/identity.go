// Package relay is the Relay Adapter: the gateway's connection to the
// Nostr-like pub/sub relay network wallets use to reach it, plus the
// canonical event codec (serialization, id, Schnorr sign/verify) and the
// NIP-04-style encrypted DM scheme used to carry session payloads.
package relay

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcec/v2"
	"go.uber.org/zap"

	"github.com/afeezaziz/arkrelay-gateway/pkg/logger"
)

// Identity is the gateway's own Nostr keypair: the pubkey wallets see as
// the gateway's relay identity, used to sign every event the gateway
// publishes and to derive the NIP-04 shared secret for encrypted DMs.
type Identity struct {
	PrivateKey *btcec.PrivateKey
	PublicKey  *btcec.PublicKey
}

// PubkeyHex returns the gateway's x-only public key, hex-encoded, the form
// Nostr events and relay subscriptions use.
func (id *Identity) PubkeyHex() string {
	return hex.EncodeToString(schnorrPubkeyBytes(id.PublicKey))
}

// LoadOrGenerateIdentity loads a hex-encoded private key from path, or
// generates and persists a fresh one if the file doesn't exist yet. Mirrors
// the teacher's wallet key-handling idiom (generate-then-persist), applied
// here to a single relay identity keypair instead of a derived BTC address.
func LoadOrGenerateIdentity(path string) (*Identity, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		keyBytes, decodeErr := hex.DecodeString(string(trimNewline(raw)))
		if decodeErr != nil {
			return nil, fmt.Errorf("invalid identity key file %s: %w", path, decodeErr)
		}
		priv, pub := btcec.PrivKeyFromBytes(keyBytes)
		logger.Info("loaded gateway relay identity", zap.String("path", path))
		return &Identity{PrivateKey: priv, PublicKey: pub}, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read identity key file %s: %w", path, err)
	}

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity keypair: %w", err)
	}

	if mkErr := os.MkdirAll(filepath.Dir(path), 0o700); mkErr != nil {
		return nil, fmt.Errorf("failed to create identity key directory: %w", mkErr)
	}
	if writeErr := os.WriteFile(path, []byte(hex.EncodeToString(priv.Serialize())), 0o600); writeErr != nil {
		return nil, fmt.Errorf("failed to persist new identity key: %w", writeErr)
	}

	logger.Info("generated new gateway relay identity", zap.String("path", path))
	return &Identity{PrivateKey: priv, PublicKey: priv.PubKey()}, nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r' || b[len(b)-1] == ' ') {
		b = b[:len(b)-1]
	}
	return b
}
