package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/nupi-ai/plugin-live-translate/internal/audio"
	"github.com/nupi-ai/plugin-live-translate/internal/channel"
	"github.com/nupi-ai/plugin-live-translate/internal/config"
	"github.com/nupi-ai/plugin-live-translate/internal/control"
	"github.com/nupi-ai/plugin-live-translate/internal/engine"
	"github.com/nupi-ai/plugin-live-translate/internal/logging"
	"github.com/nupi-ai/plugin-live-translate/internal/moduleinfo"
	"github.com/nupi-ai/plugin-live-translate/internal/pipeline"
	"github.com/nupi-ai/plugin-live-translate/internal/server"
	"github.com/nupi-ai/plugin-live-translate/internal/telemetry"
)

const (
	captureRetryDelay = time.Second
	stopTimeout       = 5 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Loader{EnvFiles: []string{".env"}}.Load()
	if err != nil {
		logging.New(config.DefaultLogLevel).Error("failed to load configuration", "error", err)
		return 1
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting relay",
		"version", moduleinfo.Info.Version,
		"listen_addr", cfg.ListenAddr,
		"health_addr", cfg.HealthAddr,
		"capture_backend", cfg.CaptureBackend,
		"engine", cfg.Engine,
		"model_variant", cfg.ModelVariant,
		"language", cfg.Language,
		"channel_endpoint", cfg.ChannelEndpoint,
	)

	recorder := telemetry.NewRecorder(logger)

	source, err := audio.NewSource(cfg, logger)
	if err != nil {
		logger.Error("failed to initialise capture source", "error", err)
		return 1
	}
	defer func() {
		if err := source.Close(); err != nil {
			logger.Warn("failed to close capture source", "error", err)
		}
	}()

	eng, err := engine.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialise transcription engine", "error", err)
		return 1
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Warn("failed to close engine", "error", err)
		}
	}()

	client, err := channel.NewClient(channel.Options{
		Endpoint:     cfg.ChannelEndpoint,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to initialise result channel", "error", err)
		return 1
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close result channel", "error", err)
		}
	}()

	health := server.NewHealth(moduleinfo.Info.HealthService, logger)

	loop, err := pipeline.New(pipeline.Options{
		CaptureDuration:           cfg.CaptureDuration(),
		SampleRate:                cfg.SampleRateHz,
		MaxCaptureRetries:         cfg.MaxCaptureRetries,
		CaptureRetryDelay:         captureRetryDelay,
		InferenceTimeout:          cfg.InferenceTimeout,
		ReconnectOnPublishFailure: cfg.ReconnectOnPublishFailure,
		OnStateChange:             health.Observe,
	}, source, eng, client, logger, recorder)
	if err != nil {
		logger.Error("failed to initialise transcription loop", "error", err)
		return 1
	}

	var grpcServer *grpc.Server
	if cfg.HealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			logger.Error("failed to bind health listener", "error", err)
			return 1
		}
		grpcServer = server.NewGRPCServer(health)
		go func() {
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				logger.Error("gRPC health server terminated with error", "error", err)
			}
		}()
	}

	app := control.New(loop, recorder, logger)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.Listen(cfg.ListenAddr)
	}()

	if cfg.AutoStart {
		if err := loop.Start(ctx); err != nil {
			logger.Error("auto start failed; waiting for GET /", "error", err)
		}
	}

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case <-loop.Done():
		if err := loop.Err(); err != nil {
			logger.Error("transcription loop failed", "error", err)
			exitCode = 1
		}
	case err := <-serveErr:
		if err != nil {
			logger.Error("control server terminated with error", "error", err)
			exitCode = 1
		}
	}

	loop.Stop()
	select {
	case <-loop.Done():
	case <-time.After(cfg.CaptureDuration() + stopTimeout):
		logger.Warn("transcription loop did not stop in time")
	}

	if err := app.ShutdownWithTimeout(stopTimeout); err != nil {
		logger.Warn("control server shutdown failed", "error", err)
	}

	health.Shutdown()
	if grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(stopTimeout):
			logger.Warn("graceful stop timed out, forcing stop")
			grpcServer.Stop()
		}
	}

	if snapshot := recorder.Snapshot(); snapshot.TotalRuns > 0 {
		logger.Info("telemetry totals",
			"segments_captured", snapshot.SegmentsCaptured,
			"capture_failures", snapshot.CaptureFailures,
			"results_published", snapshot.Published,
			"invalid_input_drops", snapshot.InvalidDrops,
			"inference_drops", snapshot.InferenceDrops,
			"publish_failures", snapshot.PublishFailures,
			"reconnects", snapshot.Reconnects,
		)
	}

	logger.Info("relay stopped")
	return exitCode
}
