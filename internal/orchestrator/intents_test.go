package orchestrator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/afeezaziz/arkrelay-gateway/internal/store"
)

func TestValidateIntentRejectsExpired(t *testing.T) {
	intent := store.Intent{
		ActionID:  "a1",
		Type:      store.SessionP2PTransfer,
		ExpiresAt: time.Now().Add(-time.Minute),
		Params:    store.IntentParams{AssetID: "usd", Amount: 1, RecipientPubkey: "x"},
	}

	err := validateIntent(intent)
	var se *SessionError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, ErrExpiredIntent, se.Kind)
}

func TestValidateIntentP2PTransferRequiresFields(t *testing.T) {
	base := store.Intent{ActionID: "a1", Type: store.SessionP2PTransfer, ExpiresAt: time.Now().Add(time.Minute)}

	cases := []store.IntentParams{
		{Amount: 1, RecipientPubkey: "x"},            // missing asset_id
		{AssetID: "usd", RecipientPubkey: "x"},       // missing amount
		{AssetID: "usd", Amount: 1},                  // missing recipient
		{AssetID: "usd", Amount: -1, RecipientPubkey: "x"}, // non-positive amount
	}
	for _, p := range cases {
		intent := base
		intent.Params = p
		err := validateIntent(intent)
		var se *SessionError
		assert.True(t, errors.As(err, &se))
		assert.Equal(t, ErrInvalidIntent, se.Kind)
	}
}

func TestValidateIntentLightningLiftRequiresAssetAndAmount(t *testing.T) {
	intent := store.Intent{
		ActionID: "a1", Type: store.SessionLightningLift, ExpiresAt: time.Now().Add(time.Minute),
		Params: store.IntentParams{AssetID: "", Amount: 100},
	}
	err := validateIntent(intent)
	var se *SessionError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, ErrInvalidIntent, se.Kind)
}

func TestValidateIntentLightningLandRequiresInvoice(t *testing.T) {
	intent := store.Intent{
		ActionID: "a1", Type: store.SessionLightningLand, ExpiresAt: time.Now().Add(time.Minute),
		Params: store.IntentParams{AssetID: "usd", Amount: 100},
	}
	err := validateIntent(intent)
	var se *SessionError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, ErrInvalidIntent, se.Kind)
}

func TestValidateIntentRejectsUnknownType(t *testing.T) {
	intent := store.Intent{
		ActionID: "a1", Type: store.SessionType("unknown"), ExpiresAt: time.Now().Add(time.Minute),
	}
	err := validateIntent(intent)
	var se *SessionError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, ErrUnknownSessionType, se.Kind)
}

func TestValidateIntentAcceptsWellFormedIntents(t *testing.T) {
	valid := []store.Intent{
		{ActionID: "a1", Type: store.SessionP2PTransfer, ExpiresAt: time.Now().Add(time.Minute),
			Params: store.IntentParams{AssetID: "usd", Amount: 100, RecipientPubkey: "x"}},
		{ActionID: "a2", Type: store.SessionLightningLift, ExpiresAt: time.Now().Add(time.Minute),
			Params: store.IntentParams{AssetID: "usd", Amount: 100}},
		{ActionID: "a3", Type: store.SessionLightningLand, ExpiresAt: time.Now().Add(time.Minute),
			Params: store.IntentParams{AssetID: "usd", Amount: 100, LightningInvoice: "lnbc1"}},
	}
	for _, intent := range valid {
		assert.NoError(t, validateIntent(intent))
	}
}
