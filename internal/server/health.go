package server

import (
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nupi-ai/plugin-live-translate/internal/pipeline"
)

// Health publishes the transcription loop's liveness over grpc.health.v1.
// The named service is SERVING only while the loop is running; the overall
// ("") status stays SERVING until Shutdown.
type Health struct {
	srv     *health.Server
	service string
	log     *slog.Logger
}

// NewHealth returns a Health reporter for service, initially NOT_SERVING.
func NewHealth(service string, logger *slog.Logger) *Health {
	if logger == nil {
		logger = slog.Default()
	}
	srv := health.NewServer()
	srv.SetServingStatus("", healthgrpc.HealthCheckResponse_SERVING)
	srv.SetServingStatus(service, healthgrpc.HealthCheckResponse_NOT_SERVING)
	return &Health{
		srv:     srv,
		service: service,
		log:     logger.With("component", "server.Health", "service", service),
	}
}

// Register attaches the health service to s.
func (h *Health) Register(s *grpc.Server) {
	healthgrpc.RegisterHealthServer(s, h.srv)
}

// Observe maps a loop state onto the service's serving status. It matches
// pipeline.Options.OnStateChange.
func (h *Health) Observe(state pipeline.State) {
	status := healthgrpc.HealthCheckResponse_NOT_SERVING
	if state.Running() {
		status = healthgrpc.HealthCheckResponse_SERVING
	}
	h.srv.SetServingStatus(h.service, status)
	h.log.Debug("loop state observed", "state", state, "status", status)
}

// Shutdown flips every service to NOT_SERVING and ignores later updates.
func (h *Health) Shutdown() {
	h.srv.Shutdown()
}

// NewGRPCServer builds a gRPC server exposing h.
func NewGRPCServer(h *Health, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	h.Register(s)
	return s
}
