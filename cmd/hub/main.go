package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nupi-ai/plugin-live-translate/internal/config"
	"github.com/nupi-ai/plugin-live-translate/internal/hub"
	"github.com/nupi-ai/plugin-live-translate/internal/logging"
	"github.com/nupi-ai/plugin-live-translate/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Loader{EnvFiles: []string{".env"}}.Load()
	if err != nil {
		logging.New(config.DefaultLogLevel).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting hub",
		"listen_addr", cfg.HubListenAddr,
		"send_buffer", cfg.HubSendBuffer,
	)

	recorder := telemetry.NewRecorder(logger)
	h := hub.New(hub.Options{
		SendBuffer:   cfg.HubSendBuffer,
		WriteTimeout: cfg.WriteTimeout,
	}, recorder, logger)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- h.App().Listen(cfg.HubListenAddr)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			logger.Error("hub server terminated with error", "error", err)
			exitCode = 1
		}
	}

	h.Close()
	if err := h.App().ShutdownWithTimeout(5 * time.Second); err != nil {
		logger.Warn("hub shutdown failed", "error", err)
	}

	snapshot := recorder.Snapshot()
	logger.Info("hub stopped",
		"fanout_delivered", snapshot.FanoutDelivered,
		"fanout_dropped", snapshot.FanoutDropped,
	)
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
