// Command settlement consumes the deferred-jobs stream the Sweeper
// publishes onto: compensating a ceremony whose session already failed,
// and finalizing a VTXO's expiry.
package main

import (
	"context"
	"errors"
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
	"github.com/afeezaziz/arkrelay-gateway/internal/store"
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
	root := filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(filename))))
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

	vtxos := store.NewVtxoRepository(db)

	jobQueue := queue.NewStreamQueue(cache.Client)
	groupName := "settlement_workers"
	consumerName := fmt.Sprintf("settlement-worker-%d", os.Getpid())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := jobQueue.DeclareStream(ctx, settlementJobStream, groupName); err != nil {
		return fmt.Errorf("failed to declare the consumer group: %w", err)
	}

	h := &jobHandler{vtxos: vtxos}

	go func() {
		if err := jobQueue.Consume(ctx, settlementJobStream, groupName, consumerName, h.handle); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("settlement consumer error", zap.Error(err))
		}
	}()

	logger.Info("settlement worker is running, waiting for jobs...",
		zap.String("stream", settlementJobStream), zap.String("group", groupName), zap.String("consumer", consumerName))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	cancel()
	time.Sleep(3 * time.Second)
	logger.Info("settlement worker shut down gracefully")
	return nil
}

// jobHandler processes deferred Job envelopes the Sweeper enqueues. Each
// job is idempotent on OperationKey (§4.8): a redelivered copy of a job
// already marked complete is acknowledged without repeating its effect.
type jobHandler struct {
	vtxos *store.VtxoRepository
}

func (h *jobHandler) handle(messageID string, data []byte) error {
	ctx := context.Background()

	job, err := queue.FromJSONJob(data)
	if err != nil {
		logger.Warn("dropping malformed job", zap.String("message_id", messageID), zap.Error(err))
		return nil // malformed payloads can never succeed; ack and move on
	}

	done, err := queue.AlreadyCompleted(ctx, job.OperationKey)
	if err != nil {
		return fmt.Errorf("failed to check job completion: %w", err)
	}
	if done {
		return nil
	}

	switch job.Kind {
	case queue.JobCompensateCeremony:
		err = h.compensateCeremony(ctx, job.Target)
	case queue.JobSweepExpiredVtxo:
		err = h.vtxos.MarkExpired(ctx, job.Target)
	default:
		logger.Warn("unhandled job kind", zap.String("kind", string(job.Kind)), zap.String("target", job.Target))
		err = nil
	}
	if err != nil {
		return err
	}

	return queue.MarkCompleted(ctx, job.OperationKey)
}

// compensateCeremony double-checks that a session the Sweeper already
// failed left no dangling reservation or balance drift behind: the
// orchestrator's own failure path already releases reservations (I2)
// before this job ever runs, so finding one here means a prior crash
// skipped that step and it's safe, and necessary, to release it now.
func (h *jobHandler) compensateCeremony(ctx context.Context, sessionID string) error {
	if err := h.vtxos.ReleaseReservation(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to release lingering reservation for session %s: %w", sessionID, err)
	}
	return nil
}
