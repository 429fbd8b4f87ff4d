package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyPayloadIntentVsResponse(t *testing.T) {
	intent := `{"action_id":"a1","type":"p2p_transfer","params":{},"expires_at":1700000000}`
	assert.Equal(t, MessageIntent, classifyPayload(intent))

	response := `{"challenge_id":"c1","signature":"deadbeef"}`
	assert.Equal(t, MessageResponse, classifyPayload(response))

	assert.Equal(t, "", classifyPayload(`{"unrelated":"field"}`))
	assert.Equal(t, "", classifyPayload(`not json`))
}

func TestDispatchRoutesByMessageKind(t *testing.T) {
	identity := newTestIdentity(t)
	d := NewDispatcher(identity)

	var gotIntent, gotResponse []byte
	d.Register(MessageIntent, func(_ string, payload []byte) { gotIntent = payload })
	d.Register(MessageResponse, func(_ string, payload []byte) { gotResponse = payload })

	sender := newTestIdentity(t)

	intentEv, err := BuildEncryptedDM(sender, identity.PubkeyHex(), `{"action_id":"a1","type":"p2p_transfer","params":{}}`, 1700000000)
	require.NoError(t, err)
	d.Dispatch(*intentEv)
	assert.JSONEq(t, `{"action_id":"a1","type":"p2p_transfer","params":{}}`, string(gotIntent))

	responseEv, err := BuildEncryptedDM(sender, identity.PubkeyHex(), `{"challenge_id":"c1","signature":"deadbeef"}`, 1700000001)
	require.NoError(t, err)
	d.Dispatch(*responseEv)
	assert.JSONEq(t, `{"challenge_id":"c1","signature":"deadbeef"}`, string(gotResponse))
}

func TestDispatchSkipsDuplicateEvents(t *testing.T) {
	identity := newTestIdentity(t)
	d := NewDispatcher(identity)

	calls := 0
	d.Register(MessageIntent, func(_ string, _ []byte) { calls++ })

	sender := newTestIdentity(t)
	ev, err := BuildEncryptedDM(sender, identity.PubkeyHex(), `{"action_id":"a1","type":"p2p_transfer","params":{}}`, 1700000000)
	require.NoError(t, err)

	d.Dispatch(*ev)
	d.Dispatch(*ev)
	assert.Equal(t, 1, calls)
}

func TestDispatchFallsBackWhenNoHandlerRegistered(t *testing.T) {
	identity := newTestIdentity(t)
	d := NewDispatcher(identity)

	var fellBack bool
	d.RegisterFallback(func(_ string, _ []byte) { fellBack = true })

	sender := newTestIdentity(t)
	ev, err := BuildEncryptedDM(sender, identity.PubkeyHex(), `{"unrelated":"field"}`, 1700000000)
	require.NoError(t, err)

	d.Dispatch(*ev)
	assert.True(t, fellBack)
}
