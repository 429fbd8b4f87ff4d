package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/jinzhu/copier"
	"go.uber.org/zap"

	"github.com/afeezaziz/arkrelay-gateway/config"
	"github.com/afeezaziz/arkrelay-gateway/internal/backend/ark"
	"github.com/afeezaziz/arkrelay-gateway/internal/backend/asset"
	"github.com/afeezaziz/arkrelay-gateway/internal/backend/lightning"
	"github.com/afeezaziz/arkrelay-gateway/internal/coordinator"
	"github.com/afeezaziz/arkrelay-gateway/internal/inventory"
	"github.com/afeezaziz/arkrelay-gateway/internal/orchestrator"
	"github.com/afeezaziz/arkrelay-gateway/internal/relay"
	"github.com/afeezaziz/arkrelay-gateway/internal/store"
	"github.com/afeezaziz/arkrelay-gateway/internal/sweeper"
	"github.com/afeezaziz/arkrelay-gateway/pkg/cache"
	"github.com/afeezaziz/arkrelay-gateway/pkg/logger"
	"github.com/afeezaziz/arkrelay-gateway/pkg/queue"
)

var Cfg config.GatewayConfig

const settlementJobStream = "settlement_jobs"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := logger.Init(logger.GetEnv()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	_, filename, _, _ := runtime.Caller(0)
	root := filepath.Dir(filepath.Dir(filepath.Dir(filename)))
	configPath := config.Path(root).Join("config.toml")
	if err := config.Load(configPath, &Cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var redisCfg cache.Config
	if err := copier.Copy(&redisCfg, &Cfg.Redis); err != nil {
		return fmt.Errorf("failed to copy cache config: %w", err)
	}
	if err := cache.Init(redisCfg); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cache.Close()

	var dbCfg store.Config
	if err := copier.Copy(&dbCfg, &Cfg.Database); err != nil {
		return fmt.Errorf("failed to copy database config: %w", err)
	}
	db, err := store.NewDB(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database connection: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	identity, err := relay.LoadOrGenerateIdentity(Cfg.Relay.IdentityKeyPath)
	if err != nil {
		return fmt.Errorf("failed to establish gateway relay identity: %w", err)
	}
	logger.Info("gateway relay identity ready", zap.String("pubkey", identity.PubkeyHex()))

	var arkCfg ark.Config
	if err := copier.Copy(&arkCfg, &Cfg.Ark); err != nil {
		return fmt.Errorf("failed to copy ark config: %w", err)
	}
	arkCfg.RetryMaxAttempts = Cfg.Retry.MaxAttempts
	arkCfg.RetryBaseDelaySeconds = Cfg.Retry.BaseDelaySeconds
	arkCfg.BreakerThreshold = Cfg.Retry.BreakerThreshold
	arkCfg.BreakerRecoverySec = Cfg.Retry.BreakerRecoverySeconds
	arkCfg.RPCTimeoutSeconds = Cfg.RPC.TimeoutSeconds
	arkCfg.MaxMessageLength = Cfg.RPC.MaxMessageLength
	arkClient, err := ark.NewClient(arkCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to ark daemon: %w", err)
	}
	defer arkClient.Close()

	var assetCfg asset.Config
	if err := copier.Copy(&assetCfg, &Cfg.Asset); err != nil {
		return fmt.Errorf("failed to copy asset config: %w", err)
	}
	assetCfg.RetryMaxAttempts = Cfg.Retry.MaxAttempts
	assetCfg.RetryBaseDelaySeconds = Cfg.Retry.BaseDelaySeconds
	assetCfg.BreakerThreshold = Cfg.Retry.BreakerThreshold
	assetCfg.BreakerRecoverySec = Cfg.Retry.BreakerRecoverySeconds
	assetCfg.RPCTimeoutSeconds = Cfg.RPC.TimeoutSeconds
	assetCfg.MaxMessageLength = Cfg.RPC.MaxMessageLength
	assetClient, err := asset.NewClient(assetCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to asset daemon: %w", err)
	}
	defer assetClient.Close()

	var lnCfg lightning.Config
	if err := copier.Copy(&lnCfg, &Cfg.Lightning); err != nil {
		return fmt.Errorf("failed to copy lightning config: %w", err)
	}
	lnCfg.RetryMaxAttempts = Cfg.Retry.MaxAttempts
	lnCfg.RetryBaseDelaySeconds = Cfg.Retry.BaseDelaySeconds
	lnCfg.BreakerThreshold = Cfg.Retry.BreakerThreshold
	lnCfg.BreakerRecoverySec = Cfg.Retry.BreakerRecoverySeconds
	lnCfg.RPCTimeoutSeconds = Cfg.RPC.TimeoutSeconds
	lnClient, err := lightning.NewClient(lnCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to lightning node: %w", err)
	}
	defer lnClient.Close()

	sessions := store.NewSessionRepository(db)
	challenges := store.NewChallengeRepository(db)
	balances := store.NewBalanceRepository(db)
	vtxos := store.NewVtxoRepository(db)
	invoices := store.NewInvoiceRepository(db)

	inv := inventory.New(vtxos, arkClient, inventory.Config{
		ExpirationHours: Cfg.Vtxo.ExpirationHours,
		MinAmountSats:   Cfg.Vtxo.MinAmountSats,
	})

	dispatcher := relay.NewDispatcher(identity)
	adapter := relay.NewAdapter(identity, Cfg.Relay.URLs, dispatcher)

	feeCfg := coordinator.Config{
		FeeSatsPerVbyte: Cfg.Fee.SatsPerVbyte,
		FeePercentage:   Cfg.Fee.Percentage,
	}

	recovery := coordinator.NewRecovery(
		Cfg.Retry.BreakerThreshold,
		time.Duration(Cfg.Retry.BreakerRecoverySeconds)*time.Second,
		time.Duration(Cfg.Retry.BaseDelaySeconds)*time.Second,
	)

	committers := map[store.SessionType]orchestrator.Committer{
		store.SessionP2PTransfer: &orchestrator.ArkCommitter{Client: arkClient, Identity: identity},
		store.SessionLightningLift: &coordinator.LiftCommitter{
			LN:        lnClient,
			Invoices:  invoices,
			ExpirySec: int64(Cfg.Lightning.PaymentTimeoutSeconds) * 20, // generous invoice window: 20x the payment timeout
			Recovery:  recovery,
		},
		store.SessionLightningLand: &coordinator.LandCommitter{LN: lnClient, Fees: feeCfg, Recovery: recovery},
	}

	orch := orchestrator.New(sessions, challenges, balances, inv, adapter, committers, orchestrator.Config{
		SessionTimeoutMinutes:   Cfg.Session.TimeoutMinutes,
		ChallengeTimeoutMinutes: Cfg.Session.ChallengeTimeoutMins,
		MaxConcurrentSessions:   Cfg.Session.MaxConcurrent,
	})

	monitor := &coordinator.Monitor{
		LN:           lnClient,
		Assets:       assetClient,
		Invoices:     invoices,
		Orchestrator: orch,
		GatewayOwner: identity.PubkeyHex(),
		PollInterval: 5 * time.Second,
		Recovery:     recovery,
	}

	jobs := queue.NewStreamQueue(cache.Client)
	if err := jobs.DeclareStream(ctx, settlementJobStream, "settlement_workers"); err != nil {
		return fmt.Errorf("failed to declare settlement job stream: %w", err)
	}

	sweep := &sweeper.Sweeper{
		Sessions:     sessions,
		Challenges:   challenges,
		Inventory:    inv,
		Orchestrator: orch,
		Jobs:         jobs,
		JobStream:    settlementJobStream,
		Cfg:          sweeper.Config{Interval: 30 * time.Second},
	}

	registerHandlers(dispatcher, orch)

	if err := adapter.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to relay network: %w", err)
	}
	defer adapter.Close()

	go monitor.Run(ctx)
	go sweep.Run(ctx)

	logger.Info("arkrelay gateway running",
		zap.String("identity", identity.PubkeyHex()),
		zap.Strings("relays", Cfg.Relay.URLs),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	cancel()
	time.Sleep(3 * time.Second)
	logger.Info("arkrelay gateway shut down gracefully")
	return nil
}

// intentPayload and responsePayload mirror the two inbound DM shapes §6
// defines (kind A "intent" and kind C "response"); the dispatcher has
// already classified which one arrived before handing it to either
// handler below.
type intentPayload struct {
	ActionID  string             `json:"action_id"`
	Type      store.SessionType  `json:"type"`
	Params    store.IntentParams `json:"params"`
	ExpiresAt int64              `json:"expires_at"`
}

type responsePayload struct {
	ChallengeID string `json:"challenge_id"`
	Signature   string `json:"signature"`
}

// registerHandlers wires the Dispatcher's two message kinds to the
// Ceremony Orchestrator's two entry points.
func registerHandlers(dispatcher *relay.Dispatcher, orch *orchestrator.Orchestrator) {
	dispatcher.Register(relay.MessageIntent, func(senderPubkeyHex string, payload []byte) {
		var p intentPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			logger.Warn("malformed intent payload", zap.String("from", senderPubkeyHex), zap.Error(err))
			return
		}
		intent := store.Intent{
			ActionID:  p.ActionID,
			Type:      p.Type,
			Params:    p.Params,
			ExpiresAt: time.Unix(p.ExpiresAt, 0),
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := orch.HandleIntent(ctx, senderPubkeyHex, intent); err != nil {
			logger.Warn("failed to handle intent", zap.String("from", senderPubkeyHex), zap.String("action_id", p.ActionID), zap.Error(err))
		}
	})

	dispatcher.Register(relay.MessageResponse, func(senderPubkeyHex string, payload []byte) {
		var p responsePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			logger.Warn("malformed response payload", zap.String("from", senderPubkeyHex), zap.Error(err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := orch.ResumeWithSignature(ctx, p.ChallengeID, p.Signature); err != nil {
			logger.Warn("failed to resume session with signature", zap.String("from", senderPubkeyHex), zap.String("challenge_id", p.ChallengeID), zap.Error(err))
		}
	})
}
