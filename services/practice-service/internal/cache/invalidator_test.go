package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	pages     [][]string
	scanErr   error
	patterns  []string
	deleted   []string
	published []string
}

func (f *fakeRedis) Scan(_ context.Context, cursor uint64, match string, _ int64) *redis.ScanCmd {
	f.patterns = append(f.patterns, match)
	if f.scanErr != nil {
		return redis.NewScanCmdResult(nil, 0, f.scanErr)
	}
	idx := int(cursor)
	var next uint64
	if idx+1 < len(f.pages) {
		next = uint64(idx + 1)
	}
	var keys []string
	if idx < len(f.pages) {
		keys = f.pages[idx]
	}
	return redis.NewScanCmdResult(keys, next, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.deleted = append(f.deleted, keys...)
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.published = append(f.published, channel+"="+message.(string))
	return redis.NewIntResult(1, nil)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInvalidatePracticeDeletesAllPages(t *testing.T) {
	rdb := &fakeRedis{pages: [][]string{
		{"pagecache:practice:p1:s/a", "pagecache:practice:p1:s/b"},
		{},
		{"pagecache:practice:p1:s/c"},
	}}
	inv := NewRedisInvalidator(rdb, "", "", quietLogger(), nil)

	require.NoError(t, inv.InvalidatePractice(context.Background(), "p1"))
	assert.Equal(t, []string{"pagecache:practice:p1:s/a", "pagecache:practice:p1:s/b", "pagecache:practice:p1:s/c"}, rdb.deleted)
	assert.Equal(t, []string{"pagecache.invalidate=p1"}, rdb.published)
	for _, p := range rdb.patterns {
		assert.Equal(t, "pagecache:practice:p1:*", p)
	}
}

func TestInvalidatePracticeScanError(t *testing.T) {
	rdb := &fakeRedis{scanErr: errors.New("conn refused")}
	inv := NewRedisInvalidator(rdb, "pc", "ch", quietLogger(), nil)

	err := inv.InvalidatePractice(context.Background(), "p1")
	require.Error(t, err)
	assert.Empty(t, rdb.published)
}

func TestNop(t *testing.T) {
	var inv Invalidator = Nop{}
	assert.NoError(t, inv.InvalidatePractice(context.Background(), "p1"))
}
