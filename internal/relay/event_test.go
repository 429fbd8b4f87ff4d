package relay

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIdentity(t *testing.T) *Identity {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return &Identity{PrivateKey: priv, PublicKey: priv.PubKey()}
}

func TestEventSignAndVerify(t *testing.T) {
	identity := newTestIdentity(t)

	ev := &Event{
		CreatedAt: 1700000000,
		Kind:      KindEncryptedDirectMessage,
		Tags:      [][]string{{"p", "somepubkey"}},
		Content:   "hello wallet",
	}

	require.NoError(t, ev.Sign(identity))
	assert.NotEmpty(t, ev.ID)
	assert.NotEmpty(t, ev.Sig)
	assert.Equal(t, identity.PubkeyHex(), ev.PubKey)

	assert.NoError(t, ev.Verify())
}

func TestEventVerifyRejectsTamperedContent(t *testing.T) {
	identity := newTestIdentity(t)

	ev := &Event{CreatedAt: 1700000000, Kind: KindEncryptedDirectMessage, Content: "original"}
	require.NoError(t, ev.Sign(identity))

	ev.Content = "tampered"
	assert.Error(t, ev.Verify())
}

func TestEventVerifyRejectsForeignSignature(t *testing.T) {
	identityA := newTestIdentity(t)
	identityB := newTestIdentity(t)

	ev := &Event{CreatedAt: 1700000000, Kind: KindEncryptedDirectMessage, Content: "hello"}
	require.NoError(t, ev.Sign(identityA))

	ev.PubKey = identityB.PubkeyHex()
	assert.Error(t, ev.Verify())
}

func TestSignAndVerifyRawSchnorr(t *testing.T) {
	identity := newTestIdentity(t)

	sigHex, err := SignRawSchnorrHex(identity, "deadbeef")
	require.NoError(t, err)

	assert.NoError(t, VerifyRawSchnorr(identity.PubkeyHex(), []byte{0xde, 0xad, 0xbe, 0xef}, sigHex))
}

func TestVerifyRawSchnorrRejectsWrongMessage(t *testing.T) {
	identity := newTestIdentity(t)

	sigHex, err := SignRawSchnorrHex(identity, "deadbeef")
	require.NoError(t, err)

	assert.Error(t, VerifyRawSchnorr(identity.PubkeyHex(), []byte{0x00, 0x01}, sigHex))
}
