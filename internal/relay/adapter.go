package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"github.com/afeezaziz/arkrelay-gateway/pkg/logger"
)

// Adapter is the gateway's connection to the relay network: it maintains
// one connection per configured relay URL, republishes every outgoing
// event to all of them, and verifies every incoming event before handing
// it to the Dispatcher.
type Adapter struct {
	identity *Identity
	urls     []string

	mu      sync.Mutex
	relays  map[string]*nostr.Relay
	dispatch *Dispatcher
}

// NewAdapter builds an Adapter bound to the gateway's identity and a fixed
// list of relay URLs (config.toml [relay].urls).
func NewAdapter(identity *Identity, urls []string, dispatch *Dispatcher) *Adapter {
	return &Adapter{
		identity: identity,
		urls:     urls,
		relays:   make(map[string]*nostr.Relay),
		dispatch: dispatch,
	}
}

// Connect dials every configured relay, subscribing to kind-4 DMs tagged
// with the gateway's own pubkey. Connection failures to individual relays
// are logged and skipped rather than failing the whole adapter: the
// gateway keeps working as long as at least one relay is reachable.
func (a *Adapter) Connect(ctx context.Context) error {
	filters := nostr.Filters{{
		Kinds: []int{KindEncryptedDirectMessage},
		Tags:  nostr.TagMap{"p": []string{a.identity.PubkeyHex()}},
	}}

	connected := 0
	for _, url := range a.urls {
		r, err := nostr.RelayConnect(ctx, url)
		if err != nil {
			logger.Warn("failed to connect to relay", zap.String("url", url), zap.Error(err))
			continue
		}

		sub, err := r.Subscribe(ctx, filters)
		if err != nil {
			logger.Warn("failed to subscribe on relay", zap.String("url", url), zap.Error(err))
			r.Close()
			continue
		}

		a.mu.Lock()
		a.relays[url] = r
		a.mu.Unlock()
		connected++

		go a.consume(url, sub)
		logger.Info("connected to relay", zap.String("url", url))
	}

	if connected == 0 {
		return fmt.Errorf("failed to connect to any of %d configured relays", len(a.urls))
	}
	return nil
}

func (a *Adapter) consume(url string, sub *nostr.Subscription) {
	for ne := range sub.Events {
		ev := FromNostr(*ne)
		if err := ev.Verify(); err != nil {
			logger.Warn("discarding event with invalid signature", zap.String("relay", url), zap.String("id", ev.ID), zap.Error(err))
			continue
		}
		a.dispatch.Dispatch(ev)
	}
}

// Publish sends ev to every currently connected relay. It does not fail
// the call if some relays reject or drop the event; per-relay publish
// errors are logged.
func (a *Adapter) Publish(ctx context.Context, ev *Event) error {
	a.mu.Lock()
	relays := make(map[string]*nostr.Relay, len(a.relays))
	for url, r := range a.relays {
		relays[url] = r
	}
	a.mu.Unlock()

	if len(relays) == 0 {
		return fmt.Errorf("no connected relays to publish to")
	}

	ne := ev.ToNostr()
	var lastErr error
	published := 0
	for url, r := range relays {
		pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := r.Publish(pubCtx, ne)
		cancel()
		if err != nil {
			logger.Warn("failed to publish to relay", zap.String("url", url), zap.Error(err))
			lastErr = err
			continue
		}
		published++
	}

	if published == 0 {
		return fmt.Errorf("failed to publish to any relay: %w", lastErr)
	}
	return nil
}

// SendDM encrypts and publishes a kind-4 direct message to recipientPubkeyHex.
func (a *Adapter) SendDM(ctx context.Context, recipientPubkeyHex, plaintext string) error {
	ev, err := BuildEncryptedDM(a.identity, recipientPubkeyHex, plaintext, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to build DM: %w", err)
	}
	return a.Publish(ctx, ev)
}

// Close disconnects from every relay.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for url, r := range a.relays {
		r.Close()
		delete(a.relays, url)
	}
}
