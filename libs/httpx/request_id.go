package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyClientInfo
)

const RequestIDHeader = "X-Request-Id"

const maxRequestIDLen = 128

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID).(string)
	return v
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// AcceptRequestID returns the caller's id when it is usable and a fresh UUID
// otherwise. The gRPC interceptors share it.
func AcceptRequestID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxRequestIDLen {
		return uuid.NewString()
	}
	return id
}

// WithRequestID accepts an inbound X-Request-Id or mints a UUID, echoes it on
// the response and stores it in the request context.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := AcceptRequestID(r.Header.Get(RequestIDHeader))
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ContextWithRequestID(r.Context(), id)))
	})
}

// ClientInfo is the caller network identity recorded on audit and login rows.
type ClientInfo struct {
	IP        string
	UserAgent string
}

func ClientInfoFromContext(ctx context.Context) ClientInfo {
	v, _ := ctx.Value(ctxKeyClientInfo).(ClientInfo)
	return v
}

func ContextWithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, ctxKeyClientInfo, info)
}

func WithClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := ContextWithClientInfo(r.Context(), ClientInfo{
			IP:        ClientIP(r),
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
