package relay

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/afeezaziz/arkrelay-gateway/pkg/logger"
)

// ringBufferSize bounds how many recently-seen event ids the dispatcher
// remembers for duplicate suppression. A relay network may redeliver the
// same event from more than one relay; the gateway only wants to act on it
// once.
const ringBufferSize = 1000

// Handler processes one verified, decrypted DM payload from senderPubkeyHex.
type Handler func(senderPubkeyHex string, payload []byte)

// Message kinds a decrypted DM payload can carry, distinguished by shape
// rather than an explicit discriminator field (§6): an intent has
// action_id/type/params, a challenge response has challenge_id/signature.
const (
	MessageIntent   = "intent"
	MessageResponse = "response"
)

// Dispatcher fans decrypted DM content out to registered handlers, keyed
// by the message kind (MessageIntent or MessageResponse) the payload's
// shape identifies, while deduplicating events already seen via a small
// ring buffer.
type Dispatcher struct {
	identity *Identity

	mu       sync.Mutex
	seen     map[string]struct{}
	ring     [ringBufferSize]string
	ringHead int
	ringLen  int

	handlers map[string]Handler
	fallback Handler
}

// NewDispatcher builds a Dispatcher that will decrypt incoming kind-4
// events using identity's private key before routing them.
func NewDispatcher(identity *Identity) *Dispatcher {
	return &Dispatcher{
		identity: identity,
		seen:     make(map[string]struct{}, ringBufferSize),
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler for a message kind (MessageIntent or
// MessageResponse).
func (d *Dispatcher) Register(messageKind string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[messageKind] = h
}

// RegisterFallback binds a handler invoked for payloads whose message kind
// has no registered handler.
func (d *Dispatcher) RegisterFallback(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = h
}

// Dispatch verifies the event isn't a duplicate, decrypts its content, and
// routes it to the handler registered for the payload's message kind.
func (d *Dispatcher) Dispatch(ev Event) {
	if d.markSeenAndCheckDuplicate(ev.ID) {
		return
	}

	plaintext, err := DecryptDM(d.identity, ev.PubKey, ev.Content)
	if err != nil {
		logger.Warn("failed to decrypt DM", zap.String("event_id", ev.ID), zap.String("from", ev.PubKey), zap.Error(err))
		return
	}

	kind := classifyPayload(plaintext)

	d.mu.Lock()
	h, ok := d.handlers[kind]
	fallback := d.fallback
	d.mu.Unlock()

	if !ok {
		if fallback == nil {
			logger.Warn("no handler for message kind", zap.String("kind", kind), zap.String("event_id", ev.ID))
			return
		}
		h = fallback
	}

	h(ev.PubKey, []byte(plaintext))
}

func (d *Dispatcher) markSeenAndCheckDuplicate(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, dup := d.seen[id]; dup {
		return true
	}

	if d.ringLen == ringBufferSize {
		evicted := d.ring[d.ringHead]
		delete(d.seen, evicted)
	} else {
		d.ringLen++
	}
	d.ring[d.ringHead] = id
	d.ringHead = (d.ringHead + 1) % ringBufferSize
	d.seen[id] = struct{}{}
	return false
}

// classifyPayload tells an intent payload (action_id/type/params) apart
// from a challenge response (challenge_id/signature) by shape, since
// neither carries an explicit message-kind field on the wire (§6).
func classifyPayload(payload string) string {
	var probe struct {
		ActionID    string `json:"action_id"`
		ChallengeID string `json:"challenge_id"`
		Signature   string `json:"signature"`
	}
	if err := json.Unmarshal([]byte(payload), &probe); err != nil {
		return ""
	}
	if probe.ChallengeID != "" && probe.Signature != "" {
		return MessageResponse
	}
	if probe.ActionID != "" {
		return MessageIntent
	}
	return ""
}
