package server_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/nupi-ai/plugin-live-translate/internal/moduleinfo"
	"github.com/nupi-ai/plugin-live-translate/internal/pipeline"
	"github.com/nupi-ai/plugin-live-translate/internal/server"
)

const bufSize = 1024 * 1024

func TestHealthTracksLoopState(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lis := bufconn.Listen(bufSize)
	defer lis.Close()

	h := server.NewHealth(moduleinfo.Info.HealthService, slog.New(slog.NewTextHandler(io.Discard, nil)))
	grpcServer := server.NewGRPCServer(h)
	t.Cleanup(grpcServer.Stop)

	go func() {
		if err := grpcServer.Serve(lis); err != nil &&
			!errors.Is(err, grpc.ErrServerStopped) &&
			!errors.Is(err, net.ErrClosed) &&
			err.Error() != "closed" {
			t.Errorf("Serve() error: %v", err)
		}
	}()

	conn, err := grpc.DialContext(ctx, "bufconn",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("DialContext error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	client := healthgrpc.NewHealthClient(conn)
	check := func(service string) healthgrpc.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := client.Check(ctx, &healthgrpc.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q) error: %v", service, err)
		}
		return resp.GetStatus()
	}

	if got := check(""); got != healthgrpc.HealthCheckResponse_SERVING {
		t.Fatalf("overall status: got %s, want SERVING", got)
	}
	service := moduleinfo.Info.HealthService
	if got := check(service); got != healthgrpc.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("idle loop: got %s, want NOT_SERVING", got)
	}

	h.Observe(pipeline.StateCapturing)
	if got := check(service); got != healthgrpc.HealthCheckResponse_SERVING {
		t.Fatalf("capturing loop: got %s, want SERVING", got)
	}
	h.Observe(pipeline.StatePublishing)
	if got := check(service); got != healthgrpc.HealthCheckResponse_SERVING {
		t.Fatalf("publishing loop: got %s, want SERVING", got)
	}

	h.Observe(pipeline.StateStopped)
	if got := check(service); got != healthgrpc.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("stopped loop: got %s, want NOT_SERVING", got)
	}

	h.Observe(pipeline.StateCapturing)
	h.Shutdown()
	if got := check(""); got != healthgrpc.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("after shutdown: got %s, want NOT_SERVING", got)
	}
}
