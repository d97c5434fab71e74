// Package syncer drains the pending-event queue to the remote service.
package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/ownspend/agent/internal/gateway"
	"github.com/ownspend/agent/pkg/api"
	"github.com/ownspend/agent/pkg/settings"
)

// DefaultRetention is how long synced events are kept locally.
const DefaultRetention = 7 * 24 * time.Hour

// Ingester submits a single event to the remote service.
type Ingester interface {
	IngestEvent(ctx context.Context, req gateway.IngestRequest) (*gateway.IngestResponse, error)
}

// GatewayFactory builds an ingest client for the server configured at the
// start of a pass. Settings can change between passes, so the client is
// constructed per pass rather than held by the engine.
type GatewayFactory func(serverURL, apiKey string) Ingester

// Config holds the sync engine configuration.
type Config struct {
	// Retention is the window after which SYNCED events are pruned.
	// Defaults to DefaultRetention.
	Retention time.Duration

	// RetrySuccessThreshold controls pass-level retry: a pass signals
	// retry when it had failures and at most this many successes. The
	// default 0 retries only totally failed passes.
	RetrySuccessThreshold int
}

// Engine executes sync passes.
type Engine struct {
	store    api.EventStore
	settings *settings.Store
	dial     GatewayFactory
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a sync engine.
func New(store api.EventStore, st *settings.Store, dial GatewayFactory, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	if dial == nil {
		dial = func(serverURL, apiKey string) Ingester {
			return gateway.New(serverURL, apiKey)
		}
	}

	return &Engine{
		store:    store,
		settings: st,
		dial:     dial,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes one full sync pass: drain every PENDING/FAILED event oldest
// first, pushing each to the remote service and recording the per-item
// outcome. A single item's failure never aborts the pass.
//
// It returns api.ErrNotConfigured without touching the store when the
// server URL or API key is missing.
func (e *Engine) Run(ctx context.Context) (api.PassOutcome, error) {
	st := e.settings.Get()
	if !st.Configured() {
		e.logger.Warn("sync pass refused: server URL or API key not configured")
		return api.OutcomeRetry, api.ErrNotConfigured
	}

	events, err := e.store.ListPendingOrFailed(ctx)
	if err != nil {
		return api.OutcomeRetry, err
	}
	if len(events) == 0 {
		e.logger.Debug("no pending events to sync")
		return api.OutcomeNothingToDo, nil
	}

	e.logger.Info("starting sync pass", "events", len(events))
	client := e.dial(st.ServerURL, st.APIKey)

	var successCount, failCount int
	for _, event := range events {
		if ctx.Err() != nil {
			break
		}

		claimed, err := e.store.MarkSyncing(ctx, event.ID)
		if err != nil {
			e.logger.Error("failed to claim event", "id", event.ID, "error", err)
			continue
		}
		if !claimed {
			// Deleted, or claimed by a concurrent pass.
			e.logger.Debug("skipping unclaimable event", "id", event.ID)
			continue
		}

		if _, err := client.IngestEvent(ctx, gateway.NewRequest(event)); err != nil {
			if markErr := e.store.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
				e.logger.Error("failed to record event failure", "id", event.ID, "error", markErr)
			}
			failCount++
			e.logger.Warn("event sync failed", "id", event.ID, "error", err)
			continue
		}

		if err := e.store.MarkSynced(ctx, event.ID, e.now().UnixMilli()); err != nil {
			e.logger.Error("failed to record event success", "id", event.ID, "error", err)
		}
		successCount++
		e.logger.Debug("event synced", "id", event.ID)
	}

	// The pass ran, so the last-sync time moves even when items failed.
	if err := e.settings.TouchLastSyncTime(e.now()); err != nil {
		e.logger.Error("failed to update last sync time", "error", err)
	}

	cutoff := e.now().Add(-e.cfg.Retention).UnixMilli()
	if pruned, err := e.store.DeleteSyncedOlderThan(ctx, cutoff); err != nil {
		e.logger.Error("retention cleanup failed", "error", err)
	} else if pruned > 0 {
		e.logger.Info("pruned old synced events", "count", pruned)
	}

	e.logger.Info("sync pass complete", "success", successCount, "failed", failCount)

	if failCount > 0 && successCount <= e.cfg.RetrySuccessThreshold {
		return api.OutcomeRetry, nil
	}
	return api.OutcomeSynced, nil
}
