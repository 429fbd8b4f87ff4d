// Package sweeper is the gateway's periodic expiry sweep (§5): sessions and
// VTXOs that have outlived their TTL are found and pushed through
// compensating actions rather than left to rot. Challenges are not swept on
// their own.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/afeezaziz/arkrelay-gateway/internal/inventory"
	"github.com/afeezaziz/arkrelay-gateway/internal/orchestrator"
	"github.com/afeezaziz/arkrelay-gateway/internal/store"
	"github.com/afeezaziz/arkrelay-gateway/pkg/logger"
	"github.com/afeezaziz/arkrelay-gateway/pkg/queue"
)

// Config controls the sweep cadence. Interval defaults to 30s, matching the
// orchestrator's session lock TTL so a sweep never races a lock holder by
// more than one cycle.
type Config struct {
	Interval time.Duration
}

// Sweeper owns two expiry sweeps: non-terminal sessions past their
// ExpiresAt, and available VTXOs past their expiry. Expired sessions are
// failed through the orchestrator, with a compensation job enqueued for
// each onto the deferred-jobs stream for the settlement worker; expired
// VTXOs are marked expired through the Inventory. Neither sweep uses the
// Challenges field.
type Sweeper struct {
	Sessions     *store.SessionRepository
	Challenges   *store.ChallengeRepository
	Inventory    *inventory.Inventory
	Orchestrator *orchestrator.Orchestrator
	Jobs         *queue.StreamQueue
	JobStream    string
	Cfg          Config
}

// Run sweeps on Cfg.Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	now := time.Now()

	if err := s.sweepSessions(ctx, now); err != nil {
		logger.Error("session expiry sweep failed", zap.Error(err))
	}
	if n, err := s.Inventory.SweepExpired(ctx, now); err != nil {
		logger.Error("vtxo expiry sweep failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("swept expired vtxos", zap.Int("count", n))
	}
}

// sweepSessions fails every non-terminal session past its ExpiresAt,
// publishing an `expired_intent` failure event through the orchestrator so
// the wallet side is told the same way any other failure is told, and
// enqueuing a compensation job so a separate worker can double-check
// inventory/balance consistency without blocking this loop.
func (s *Sweeper) sweepSessions(ctx context.Context, now time.Time) error {
	expired, err := s.Sessions.ListExpired(ctx, now)
	if err != nil {
		return err
	}

	for _, session := range expired {
		if err := s.Orchestrator.FailSession(ctx, session.SessionID, orchestrator.ErrExpiredIntent, "session expired before completion"); err != nil {
			logger.Warn("failed to fail expired session", zap.String("session_id", session.SessionID), zap.Error(err))
			continue
		}
		if s.Jobs == nil {
			continue
		}
		job := queue.Job{
			OperationKey: "compensate:" + session.SessionID,
			Kind:         queue.JobCompensateCeremony,
			Target:       session.SessionID,
			EnqueuedAt:   now,
		}
		data, err := job.ToJSON()
		if err != nil {
			logger.Warn("failed to marshal compensation job", zap.String("session_id", session.SessionID), zap.Error(err))
			continue
		}
		if _, err := s.Jobs.Publish(ctx, s.JobStream, data); err != nil {
			logger.Warn("failed to enqueue compensation job", zap.String("session_id", session.SessionID), zap.Error(err))
		}
	}
	return nil
}
