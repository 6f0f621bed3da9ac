package grpc

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type flakyDB struct {
	down atomic.Bool
}

func (d *flakyDB) PingContext(context.Context) error {
	if d.down.Load() {
		return context.DeadlineExceeded
	}
	return nil
}

func TestHealthFollowsDatabase(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hs := health.NewServer()
	srv := NewServer(hs)
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	db := &flakyDB{}
	go WatchDatabase(ctx, hs, db, 20*time.Millisecond, logs.GetLoggerFromLevel(slog.LevelDebug))

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	client := healthpb.NewHealthClient(conn)

	statusOf := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
		if err != nil {
			return healthpb.HealthCheckResponse_UNKNOWN
		}
		return resp.GetStatus()
	}

	require.Eventually(t, func() bool { return statusOf() == healthpb.HealthCheckResponse_SERVING }, 2*time.Second, 10*time.Millisecond)

	db.down.Store(true)
	require.Eventually(t, func() bool { return statusOf() == healthpb.HealthCheckResponse_NOT_SERVING }, 2*time.Second, 10*time.Millisecond)

	db.down.Store(false)
	require.Eventually(t, func() bool { return statusOf() == healthpb.HealthCheckResponse_SERVING }, 2*time.Second, 10*time.Millisecond)
}

func TestServicesRegistered(t *testing.T) {
	srv := NewServer(health.NewServer())
	info := srv.GetServiceInfo()
	require.Contains(t, info, "grpc.health.v1.Health")
	require.Contains(t, info, "grpc.reflection.v1.ServerReflection")
}
