package grpcx

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/md-rashed-zaman/practicepulse/libs/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

func startHealth(t *testing.T) healthpb.HealthClient {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)))
	healthpb.RegisterHealthServer(srv, health.NewServer())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = Serve(ctx, srv, lis) }()
	t.Cleanup(cancel)

	conn, err := Dial(context.Background(), lis.Addr().String(), DialOptions{Timeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func TestRequestIDPropagatesToServer(t *testing.T) {
	client := startHealth(t)

	var header metadata.MD
	ctx := httpx.ContextWithRequestID(context.Background(), "req-42")
	_, err := client.Check(ctx, &healthpb.HealthCheckRequest{}, grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, []string{"req-42"}, header.Get(RequestIDMetadataKey))
}

func TestServerMintsRequestID(t *testing.T) {
	client := startHealth(t)

	var header metadata.MD
	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{}, grpc.Header(&header))
	require.NoError(t, err)
	require.Len(t, header.Get(RequestIDMetadataKey), 1)
	assert.Len(t, header.Get(RequestIDMetadataKey)[0], 36)
}

func TestDialTimesOut(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	_, err = Dial(context.Background(), addr, DialOptions{Timeout: 200 * time.Millisecond})
	assert.Error(t, err)
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, levelFor(codes.OK))
	assert.Equal(t, slog.LevelWarn, levelFor(codes.NotFound))
	assert.Equal(t, slog.LevelError, levelFor(codes.Internal))
}
