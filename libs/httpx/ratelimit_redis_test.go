package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScripter counts per key and answers the fixed-window script.
type fakeScripter struct {
	counts map[string]int64
	ttl    int64
	err    error
}

func (f *fakeScripter) run(keys []string) *redis.Cmd {
	if f.err != nil {
		return redis.NewCmdResult(nil, f.err)
	}
	f.counts[keys[0]]++
	return redis.NewCmdResult([]interface{}{f.counts[keys[0]], f.ttl}, nil)
}

func (f *fakeScripter) Eval(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return f.run(keys)
}

func (f *fakeScripter) EvalSha(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return f.run(keys)
}

func (f *fakeScripter) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeScripter) EvalShaRO(ctx context.Context, sha string, keys []string, args ...interface{}) *redis.Cmd {
	return f.EvalSha(ctx, sha, keys, args...)
}

func (f *fakeScripter) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeScripter) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func serveFrom(h http.Handler, ip string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", nil)
	req.RemoteAddr = ip + ":4000"
	h.ServeHTTP(rec, req)
	return rec
}

func TestRedisRateLimiterSharesBudgetPerClient(t *testing.T) {
	rdb := &fakeScripter{counts: map[string]int64{}, ttl: 2500}
	rl := NewRedisRateLimiter(rdb, 2, time.Minute, "rl:test")
	h := rl.Middleware(nil, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	assert.Equal(t, http.StatusOK, serveFrom(h, "198.51.100.1").Code)
	assert.Equal(t, http.StatusOK, serveFrom(h, "198.51.100.1").Code)
	rec := serveFrom(h, "198.51.100.1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded","code":"RATE_LIMITED"}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, serveFrom(h, "198.51.100.2").Code)
	assert.Equal(t, int64(3), rdb.counts["rl:test:198.51.100.1"])
}

func TestRedisRateLimiterOutage(t *testing.T) {
	rdb := &fakeScripter{counts: map[string]int64{}, err: errors.New("dial tcp: connection refused")}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusAccepted) })

	open := NewRedisRateLimiter(rdb, 1, time.Minute, "").Middleware(nil, true)(next)
	assert.Equal(t, http.StatusAccepted, serveFrom(open, "198.51.100.3").Code)

	closed := NewRedisRateLimiter(rdb, 1, time.Minute, "").Middleware(nil, false)(next)
	rec := serveFrom(closed, "198.51.100.3")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"UNAVAILABLE"`)
}
