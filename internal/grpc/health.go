package grpc

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"inbox-service/internal/observability"
)

// ServiceName is the health-checked service name. The empty name reports the
// same status.
const ServiceName = "inbox"

// Pinger is satisfied by *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// NewServer builds the gRPC server with health and reflection registered.
func NewServer(hs *health.Server) *grpc.Server {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)
	return s
}

// WatchDatabase reports SERVING while db answers pings. It blocks until ctx is done.
func WatchDatabase(ctx context.Context, hs *health.Server, db Pinger, interval time.Duration, log *slog.Logger) {
	last := healthpb.HealthCheckResponse_UNKNOWN
	check := func() {
		pingCtx, cancel := context.WithTimeout(ctx, interval)
		err := db.PingContext(pingCtx)
		cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if status == last {
			return
		}
		last = status
		hs.SetServingStatus("", status)
		hs.SetServingStatus(ServiceName, status)
		if err != nil {
			log.Warn("database ping failed, reporting not serving", "error", err)
			return
		}
		log.Info("database reachable, reporting serving")
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			check()
		}
	}
}
