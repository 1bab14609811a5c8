package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Probe reports whether a dependency the process cannot serve without is
// reachable.
type Probe func(ctx context.Context) bool

// HealthReporter keeps the standard gRPC health service in step with the
// event transport.
type HealthReporter struct {
	logger   *slog.Logger
	server   *health.Server
	probe    Probe
	interval time.Duration
	serving  bool
}

func NewHealthReporter(logger *slog.Logger, probe Probe, interval time.Duration) *HealthReporter {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &HealthReporter{
		logger:   logger,
		server:   health.NewServer(),
		probe:    probe,
		interval: interval,
	}
}

func (h *HealthReporter) Register(server grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(server, h.server)
}

// Refresh probes once and publishes the result as the overall status.
func (h *HealthReporter) Refresh(ctx context.Context) bool {
	serving := h.probe == nil || h.probe(ctx)
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus("", status)
	if serving != h.serving {
		h.logger.InfoContext(ctx, "health status changed",
			"module", "grpc.health",
			"layer", "adapter",
			"operation", "refresh",
			"outcome", status.String(),
		)
	}
	h.serving = serving
	return serving
}

func (h *HealthReporter) Run(ctx context.Context) error {
	h.Refresh(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}

// Shutdown flips every service to NOT_SERVING ahead of a graceful stop.
func (h *HealthReporter) Shutdown() {
	h.server.Shutdown()
}
