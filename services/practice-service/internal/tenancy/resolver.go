// Package tenancy picks the practice a request operates on.
package tenancy

import (
	"context"
	"fmt"
	"net/http"

	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/apperr"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/model"
)

type Lister interface {
	ListOwnedPractices(ctx context.Context, ownerUserID string) ([]model.Practice, error)
}

type Resolver struct {
	store      Lister
	preference Preference
}

func NewResolver(store Lister, preference Preference) *Resolver {
	return &Resolver{store: store, preference: preference}
}

func (r *Resolver) Preference() Preference { return r.preference }

// Resolve returns the requested practice when owned, else the preferred one
// when owned, else the oldest owned practice. It returns nil when the user
// owns no live practice.
func (r *Resolver) Resolve(ctx context.Context, userID, requestedID, preferredID string) (*model.Practice, error) {
	owned, err := r.store.ListOwnedPractices(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list practices: %w", err))
	}
	return pick(owned, requestedID, preferredID), nil
}

// ResolveRequest resolves with the preference cookie of req.
func (r *Resolver) ResolveRequest(ctx context.Context, req *http.Request, userID, requestedID string) (*model.Practice, error) {
	return r.Resolve(ctx, userID, requestedID, r.preference.Read(req))
}

// SetActive persists practiceID as the user's preference after checking
// ownership. Nothing is written when the check fails.
func (r *Resolver) SetActive(ctx context.Context, w http.ResponseWriter, userID, practiceID string) (*model.Practice, error) {
	owned, err := r.store.ListOwnedPractices(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list practices: %w", err))
	}
	p := find(owned, practiceID)
	if p == nil {
		return nil, apperr.ErrForbidden
	}
	r.preference.Write(w, p.ID)
	return p, nil
}

// pick expects owned in stable order (created_at, id).
func pick(owned []model.Practice, requestedID, preferredID string) *model.Practice {
	if len(owned) == 0 {
		return nil
	}
	if p := find(owned, requestedID); p != nil {
		return p
	}
	if p := find(owned, preferredID); p != nil {
		return p
	}
	first := owned[0]
	return &first
}

func find(owned []model.Practice, id string) *model.Practice {
	if id == "" {
		return nil
	}
	for i := range owned {
		if owned[i].ID == id && !owned[i].IsDeleted() {
			p := owned[i]
			return &p
		}
	}
	return nil
}
