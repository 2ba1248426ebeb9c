package handlers

import (
	"context"
	"net/http"

	"github.com/md-rashed-zaman/practicepulse/libs/auth"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/apperr"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/model"
)

type ctxKey int

const ctxKeyActor ctxKey = iota

func actorFromContext(ctx context.Context) (model.Actor, bool) {
	a, ok := ctx.Value(ctxKeyActor).(model.Actor)
	return a, ok
}

func contextWithActor(ctx context.Context, a model.Actor) context.Context {
	return context.WithValue(ctx, ctxKeyActor, a)
}

// requireAuth verifies the bearer token and stores the caller as the actor.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, r, apperr.ErrUnauthorized)
			return
		}
		claims, err := h.Verifier.Verify(r.Context(), token)
		if err != nil {
			h.Logger.Debug("token rejected", "err", err)
			writeError(w, r, apperr.ErrUnauthorized)
			return
		}
		actor := model.Actor{UserID: claims.Sub, Role: claims.Role, Email: claims.Email}
		if actor.Role == "" {
			actor.Role = model.RoleOwner
		}
		next.ServeHTTP(w, r.WithContext(contextWithActor(r.Context(), actor)))
	})
}

func requireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := actorFromContext(r.Context())
			if !ok {
				writeError(w, r, apperr.ErrUnauthorized)
				return
			}
			if _, ok := allowed[actor.Role]; !ok {
				writeError(w, r, apperr.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// mustActor is only called behind requireAuth.
func mustActor(r *http.Request) model.Actor {
	a, _ := actorFromContext(r.Context())
	return a
}
