package entitlements

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/md-rashed-zaman/practicepulse/libs/grpcx"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/model"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/plan"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const practiceID = "5b0f6a8e-8f41-4c55-9a59-1d2b3c4d5e6f"

type practiceMap map[string]model.Practice

func (m practiceMap) GetPractice(_ context.Context, id string) (model.Practice, error) {
	p, ok := m[id]
	if !ok {
		return model.Practice{}, storage.ErrNotFound
	}
	return p, nil
}

func startServer(t *testing.T, practices PracticeReader) *Client {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpcx.NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)))
	Register(srv, practices)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = grpcx.Serve(ctx, srv, lis) }()
	t.Cleanup(cancel)

	conn, err := grpcx.Dial(context.Background(), lis.Addr().String(), grpcx.DialOptions{Timeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}

func TestGetEntitlementsHonorsOverride(t *testing.T) {
	future := time.Now().Add(48 * time.Hour)
	client := startServer(t, practiceMap{
		practiceID: {ID: practiceID, Plan: "free", PlanOverride: "professional", OverrideExpiresAt: &future},
	})

	got, err := client.GetEntitlements(context.Background(), practiceID)
	require.NoError(t, err)
	assert.Equal(t, LimitsForTier(plan.Professional), got)
}

func TestGetEntitlementsErrors(t *testing.T) {
	client := startServer(t, practiceMap{})

	_, err := client.GetEntitlements(context.Background(), "not-a-uuid")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.GetEntitlements(context.Background(), practiceID)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

type failingReader struct{}

func (failingReader) GetPractice(context.Context, string) (model.Practice, error) {
	return model.Practice{}, errors.New("connection reset")
}

func TestGetEntitlementsHidesStorageErrors(t *testing.T) {
	client := startServer(t, failingReader{})

	_, err := client.GetEntitlements(context.Background(), practiceID)
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.NotContains(t, err.Error(), "connection reset")
}
