package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ownspend/agent/internal/capture"
	"github.com/ownspend/agent/internal/classifier"
	"github.com/ownspend/agent/internal/scheduler"
	"github.com/ownspend/agent/internal/store"
	"github.com/ownspend/agent/internal/syncer"
	"github.com/ownspend/agent/pkg/config"
	"github.com/ownspend/agent/pkg/logging"
	"github.com/ownspend/agent/pkg/settings"
)

func main() {
	logger := logging.Setup(logging.DefaultConfig())

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"db", cfg.DBPath,
		"bridge", cfg.BridgeAddr,
		"sync_interval", cfg.SyncInterval(),
	)

	settingsStore, err := settings.Open(cfg.SettingsPath)
	if err != nil {
		logger.Error("failed to open settings", "error", err)
		os.Exit(1)
	}

	eventStore, err := store.Open(cfg.DBPath, logger.With("component", "store"))
	if err != nil {
		logger.Error("failed to open event store", "error", err)
		os.Exit(1)
	}
	defer eventStore.Close()

	rules, err := classifier.DefaultRules()
	if err != nil {
		logger.Error("failed to load classification rules", "error", err)
		os.Exit(1)
	}

	engine := syncer.New(eventStore, settingsStore, nil, syncer.Config{
		Retention: cfg.RetentionWindow(),
	}, logger.With("component", "syncer"))

	conn := scheduler.DialChecker{
		ServerURL: func() string { return settingsStore.Get().ServerURL },
	}
	sched := scheduler.New(engine.Run, conn,
		func() bool { return settingsStore.Get().AutoSyncEnabled },
		scheduler.Config{
			Interval:   cfg.SyncInterval(),
			BaseDelay:  cfg.RetryBaseDelay(),
			MaxRetries: cfg.MaxPassRetries,
		},
		logger.With("component", "scheduler"),
	)

	pipeline := capture.New(
		classifier.New(rules),
		eventStore,
		settingsStore,
		sched.RequestImmediate,
		cfg.CaptureQueueSize,
		logger.With("component", "capture"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	pipeline.Start(ctx)
	sched.Start(ctx)

	bridge := newBridge(pipeline, eventStore, settingsStore, logger.With("component", "bridge"))
	srv := &http.Server{Addr: cfg.BridgeAddr, Handler: bridge.routes()}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	logger.Info("capture bridge listening", "addr", cfg.BridgeAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("bridge server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("agent stopped")
}
