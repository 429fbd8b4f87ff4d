//go:build integration

package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afeezaziz/arkrelay-gateway/internal/backend/asset"
	"github.com/afeezaziz/arkrelay-gateway/internal/backend/lightning"
	"github.com/afeezaziz/arkrelay-gateway/internal/inventory"
	"github.com/afeezaziz/arkrelay-gateway/internal/orchestrator"
	"github.com/afeezaziz/arkrelay-gateway/internal/store"
	"github.com/afeezaziz/arkrelay-gateway/pkg/cache"
)

// hash1Hex/hash2Hex are sha256(preimage1Hex)/sha256(preimage2Hex) so the
// settlement tests can satisfy checkOne's preimage-to-payment_hash check.
const (
	preimage1Hex = "1111111111111111111111111111111111111111111111111111111111111111"
	hash1Hex     = "02d449a31fbb267c8f352e9968a79e3e5fc95c1bbeaa502fd6454ebde5a4bedc"
	preimage2Hex = "2222222222222222222222222222222222222222222222222222222222222222"
	hash2Hex     = "9f72ea0cf49536e3c66c787f705186df9a4378083753ae9536d65b3ad7fcddc4"
)

func setupMonitorTestCache(t *testing.T) {
	t.Helper()
	require.NoError(t, cache.Init(cache.Config{Host: "localhost", Port: "6379", Password: "", DB: 3}))
	t.Cleanup(func() { _ = cache.Client.FlushDB(context.Background()).Err() })
}

type fakeLNClient struct {
	lightning.Client
	states map[string]*lightning.InvoiceState
}

func (f *fakeLNClient) LookupInvoice(ctx context.Context, paymentHashHex string) (*lightning.InvoiceState, error) {
	if s, ok := f.states[paymentHashHex]; ok {
		return s, nil
	}
	return &lightning.InvoiceState{Settled: false}, nil
}

type fakeAssetClient struct {
	asset.Client
	minted int
	failMint bool
}

func (f *fakeAssetClient) MintAsset(ctx context.Context, req asset.MintAssetRequest) (*asset.MintAssetResponse, error) {
	if f.failMint {
		return nil, assert.AnError
	}
	f.minted++
	return &asset.MintAssetResponse{AssetIDHex: "abcd"}, nil
}

func newTestLiftSession(t *testing.T, db *store.DB, userPubkey string) *store.Session {
	t.Helper()
	ctx := context.Background()
	sessions := store.NewSessionRepository(db)
	now := time.Now().UTC().Truncate(time.Second)
	s := &store.Session{
		SessionID:   "lift-session-" + userPubkey,
		UserPubkey:  userPubkey,
		SessionType: store.SessionLightningLift,
		State:       store.SessionCommitting,
		Intent: store.Intent{
			ActionID: "lift-1", Type: store.SessionLightningLift,
			Params: store.IntentParams{AssetID: "usd-stable", Amount: 1000},
		},
		Context:   "lift ceremony",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
		UpdatedAt: now,
	}
	require.NoError(t, sessions.Create(ctx, s))
	return s
}

func newTestOrchestratorForMonitor(t *testing.T, db *store.DB) *orchestrator.Orchestrator {
	t.Helper()
	sessions := store.NewSessionRepository(db)
	challenges := store.NewChallengeRepository(db)
	balances := store.NewBalanceRepository(db)
	vtxos := store.NewVtxoRepository(db)
	inv := inventory.New(vtxos, nil, inventory.Config{ExpirationHours: 24, MinAmountSats: 1000})
	return orchestrator.New(sessions, challenges, balances, inv, nil, map[store.SessionType]orchestrator.Committer{}, orchestrator.Config{
		SessionTimeoutMinutes: 5, ChallengeTimeoutMinutes: 5, MaxConcurrentSessions: 10,
	})
}

func TestMonitorCheckOneCompletesSessionOnSettlement(t *testing.T) {
	db := store.SetupTestDB(t)
	defer store.CleanupTestDB(t, db)
	setupMonitorTestCache(t)
	ctx := context.Background()

	session := newTestLiftSession(t, db, "lifter-1")
	invoices := store.NewInvoiceRepository(db)
	inv := &store.LightningInvoice{
		PaymentHash: hash1Hex, Bolt11: "lnbc1", SessionID: &session.SessionID,
		AmountSats: 1000, AssetID: "usd-stable", Status: store.InvoicePending,
		InvoiceType: store.InvoiceLift, CreatedAt: time.Now().UTC(), ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, invoices.Create(ctx, inv))

	ln := &fakeLNClient{states: map[string]*lightning.InvoiceState{hash1Hex: {Settled: true, AmountSats: 1000, PreimageHex: preimage1Hex}}}
	assets := &fakeAssetClient{}
	o := newTestOrchestratorForMonitor(t, db)

	m := &Monitor{LN: ln, Assets: assets, Invoices: invoices, Orchestrator: o, GatewayOwner: "gateway"}
	require.NoError(t, m.checkOne(ctx, inv))

	assert.Equal(t, 1, assets.minted)

	gotInv, err := invoices.GetByPaymentHash(ctx, hash1Hex)
	require.NoError(t, err)
	assert.Equal(t, store.InvoicePaid, gotInv.Status)

	sessions := store.NewSessionRepository(db)
	gotSession, err := sessions.Get(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, store.SessionCompleted, gotSession.State)
}

func TestMonitorCheckOneLeavesInvoicePendingWhenMintFails(t *testing.T) {
	db := store.SetupTestDB(t)
	defer store.CleanupTestDB(t, db)
	setupMonitorTestCache(t)
	ctx := context.Background()

	session := newTestLiftSession(t, db, "lifter-2")
	invoices := store.NewInvoiceRepository(db)
	inv := &store.LightningInvoice{
		PaymentHash: hash2Hex, Bolt11: "lnbc1", SessionID: &session.SessionID,
		AmountSats: 1000, AssetID: "usd-stable", Status: store.InvoicePending,
		InvoiceType: store.InvoiceLift, CreatedAt: time.Now().UTC(), ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, invoices.Create(ctx, inv))

	ln := &fakeLNClient{states: map[string]*lightning.InvoiceState{hash2Hex: {Settled: true, PreimageHex: preimage2Hex}}}
	assets := &fakeAssetClient{failMint: true}
	o := newTestOrchestratorForMonitor(t, db)

	m := &Monitor{LN: ln, Assets: assets, Invoices: invoices, Orchestrator: o, GatewayOwner: "gateway"}
	err := m.checkOne(ctx, inv)
	assert.Error(t, err)

	gotInv, err := invoices.GetByPaymentHash(ctx, hash2Hex)
	require.NoError(t, err)
	assert.Equal(t, store.InvoicePending, gotInv.Status, "invoice must stay pending so the next sweep retries the mint")

	sessions := store.NewSessionRepository(db)
	gotSession, err := sessions.Get(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, store.SessionCommitting, gotSession.State)
}

func TestMonitorCheckOneSkipsUnsettledInvoice(t *testing.T) {
	db := store.SetupTestDB(t)
	defer store.CleanupTestDB(t, db)
	setupMonitorTestCache(t)
	ctx := context.Background()

	session := newTestLiftSession(t, db, "lifter-3")
	invoices := store.NewInvoiceRepository(db)
	inv := &store.LightningInvoice{
		PaymentHash: "hash-3", Bolt11: "lnbc1", SessionID: &session.SessionID,
		AmountSats: 1000, AssetID: "usd-stable", Status: store.InvoicePending,
		InvoiceType: store.InvoiceLift, CreatedAt: time.Now().UTC(), ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, invoices.Create(ctx, inv))

	ln := &fakeLNClient{states: map[string]*lightning.InvoiceState{}}
	assets := &fakeAssetClient{}
	o := newTestOrchestratorForMonitor(t, db)

	m := &Monitor{LN: ln, Assets: assets, Invoices: invoices, Orchestrator: o, GatewayOwner: "gateway"}
	require.NoError(t, m.checkOne(ctx, inv))

	assert.Equal(t, 0, assets.minted)
	gotInv, err := invoices.GetByPaymentHash(ctx, "hash-3")
	require.NoError(t, err)
	assert.Equal(t, store.InvoicePending, gotInv.Status)
}

func TestMonitorExpireOneFailsSessionAndMarksInvoiceExpired(t *testing.T) {
	db := store.SetupTestDB(t)
	defer store.CleanupTestDB(t, db)
	setupMonitorTestCache(t)
	ctx := context.Background()

	session := newTestLiftSession(t, db, "lifter-4")
	invoices := store.NewInvoiceRepository(db)
	inv := &store.LightningInvoice{
		PaymentHash: "hash-4", Bolt11: "lnbc1", SessionID: &session.SessionID,
		AmountSats: 1000, AssetID: "usd-stable", Status: store.InvoicePending,
		InvoiceType: store.InvoiceLift, CreatedAt: time.Now().UTC(), ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, invoices.Create(ctx, inv))

	ln := &fakeLNClient{}
	assets := &fakeAssetClient{}
	o := newTestOrchestratorForMonitor(t, db)

	m := &Monitor{LN: ln, Assets: assets, Invoices: invoices, Orchestrator: o, GatewayOwner: "gateway"}
	require.NoError(t, m.checkOne(ctx, inv))

	gotInv, err := invoices.GetByPaymentHash(ctx, "hash-4")
	require.NoError(t, err)
	assert.Equal(t, store.InvoiceExpired, gotInv.Status)

	sessions := store.NewSessionRepository(db)
	gotSession, err := sessions.Get(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, store.SessionFailed, gotSession.State)
	assert.Equal(t, string(orchestrator.ErrInvoiceExpired), gotSession.Result.ErrorKind)
}

func TestMonitorCheckOneRejectsMismatchedPreimage(t *testing.T) {
	db := store.SetupTestDB(t)
	defer store.CleanupTestDB(t, db)
	setupMonitorTestCache(t)
	ctx := context.Background()

	session := newTestLiftSession(t, db, "lifter-5")
	invoices := store.NewInvoiceRepository(db)
	inv := &store.LightningInvoice{
		PaymentHash: hash1Hex, Bolt11: "lnbc1", SessionID: &session.SessionID,
		AmountSats: 1000, AssetID: "usd-stable", Status: store.InvoicePending,
		InvoiceType: store.InvoiceLift, CreatedAt: time.Now().UTC(), ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, invoices.Create(ctx, inv))

	// The node reports settled, but the preimage it returns hashes to a
	// different payment_hash than the one on file — it must not be trusted.
	ln := &fakeLNClient{states: map[string]*lightning.InvoiceState{hash1Hex: {Settled: true, PreimageHex: preimage2Hex}}}
	assets := &fakeAssetClient{}
	o := newTestOrchestratorForMonitor(t, db)

	m := &Monitor{LN: ln, Assets: assets, Invoices: invoices, Orchestrator: o, GatewayOwner: "gateway"}
	err := m.checkOne(ctx, inv)
	assert.Error(t, err)

	assert.Equal(t, 0, assets.minted)
	gotInv, err := invoices.GetByPaymentHash(ctx, hash1Hex)
	require.NoError(t, err)
	assert.Equal(t, store.InvoicePending, gotInv.Status, "a settled report with a mismatched preimage must not mark the invoice paid")
}
