package grpcapi_test

import (
	"context"
	"io"
	"log"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/BrandonDHaskell/Portunus/door/internal/door"
	"github.com/BrandonDHaskell/Portunus/door/internal/grpcapi"
)

func startServer(t *testing.T) (*grpcapi.Server, healthpb.HealthClient) {
	t.Helper()

	lis := bufconn.Listen(1 << 16)
	srv := grpcapi.NewServer(grpcapi.Dependencies{Logger: log.New(io.Discard, "", 0)})
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealth_ServingAtStartup(t *testing.T) {
	_, c := startServer(t)

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, grpcapi.ActuatorService))
}

func TestHealth_TracksFault(t *testing.T) {
	srv, c := startServer(t)

	srv.Observe(door.Transition{From: door.Unlocking, To: door.Fault})
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, c, grpcapi.ActuatorService))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ""), "process health unaffected")

	// Ordinary cycle transitions leave the fault status alone.
	srv.Observe(door.Transition{From: door.Locked, To: door.Unlocking})
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, c, grpcapi.ActuatorService))

	srv.Observe(door.Transition{From: door.Fault, To: door.Locked})
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, grpcapi.ActuatorService))
}

func TestHealth_SyncState(t *testing.T) {
	srv, c := startServer(t)

	srv.SyncState(door.Fault)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, c, grpcapi.ActuatorService))
}

func TestHealth_UnknownService(t *testing.T) {
	_, c := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: "nope"})
	assert.Error(t, err)
}
