package grpc

import (
	"context"
	"io"
	"log/slog"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthFollowsProbe(t *testing.T) {
	t.Parallel()
	up := true
	reporter := NewHealthReporter(slog.New(slog.NewTextHandler(io.Discard, nil)), func(context.Context) bool { return up }, 0)
	ctx := context.Background()

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		res, err := reporter.server.Check(ctx, &healthpb.HealthCheckRequest{})
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		return res.GetStatus()
	}

	if !reporter.Refresh(ctx) || check() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected serving")
	}
	up = false
	if reporter.Refresh(ctx) || check() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected not serving")
	}
	up = true
	reporter.Refresh(ctx)
	reporter.Shutdown()
	if check() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected not serving after shutdown")
	}
}
