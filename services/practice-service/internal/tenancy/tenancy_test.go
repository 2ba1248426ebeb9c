package tenancy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/apperr"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	idA = "11111111-1111-4111-8111-111111111111"
	idB = "22222222-2222-4222-8222-222222222222"
	idC = "33333333-3333-4333-8333-333333333333"
)

type ownerStore map[string][]model.Practice

func (s ownerStore) ListOwnedPractices(_ context.Context, owner string) ([]model.Practice, error) {
	return s[owner], nil
}

type brokenStore struct{}

func (brokenStore) ListOwnedPractices(context.Context, string) ([]model.Practice, error) {
	return nil, errors.New("db down")
}

func owned() []model.Practice {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []model.Practice{
		{ID: idA, OwnerUserID: "u1", CreatedAt: base},
		{ID: idB, OwnerUserID: "u1", CreatedAt: base.Add(time.Hour)},
	}
}

func TestPick(t *testing.T) {
	cases := []struct {
		name      string
		owned     []model.Practice
		requested string
		preferred string
		want      string
	}{
		{name: "none owned", owned: nil, requested: idA, want: ""},
		{name: "requested wins", owned: owned(), requested: idB, preferred: idA, want: idB},
		{name: "unowned request falls to preference", owned: owned(), requested: idC, preferred: idB, want: idB},
		{name: "unowned preference falls to first", owned: owned(), preferred: idC, want: idA},
		{name: "nothing given", owned: owned(), want: idA},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := pick(tc.owned, tc.requested, tc.preferred)
			if tc.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.ID)
		})
	}
}

func TestResolveRequestUsesCookie(t *testing.T) {
	r := NewResolver(ownerStore{"u1": owned()}, Preference{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: idB})

	p, err := r.ResolveRequest(context.Background(), req, "u1", "")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, idB, p.ID)

	p, err = r.ResolveRequest(context.Background(), req, "stranger", "")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestResolveStoreFailure(t *testing.T) {
	_, err := NewResolver(brokenStore{}, Preference{}).Resolve(context.Background(), "u1", "", "")
	assert.ErrorIs(t, err, apperr.ErrInternal)
}

func TestSetActiveWritesCookie(t *testing.T) {
	r := NewResolver(ownerStore{"u1": owned()}, Preference{Secure: true})
	rec := httptest.NewRecorder()

	p, err := r.SetActive(context.Background(), rec, "u1", idB)
	require.NoError(t, err)
	assert.Equal(t, idB, p.ID)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, CookieName, c.Name)
	assert.Equal(t, idB, c.Value)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 365*24*60*60, c.MaxAge)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
}

func TestSetActiveRejectsUnownedPractice(t *testing.T) {
	r := NewResolver(ownerStore{"u1": owned(), "u2": {{ID: idC, OwnerUserID: "u2"}}}, Preference{})
	rec := httptest.NewRecorder()

	_, err := r.SetActive(context.Background(), rec, "u1", idC)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.Empty(t, rec.Result().Cookies())
}

func TestPreferenceReadIgnoresGarbage(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "not-a-uuid"})
	assert.Equal(t, "", Preference{}.Read(req))
	assert.Equal(t, "", Preference{}.Read(httptest.NewRequest(http.MethodGet, "/", nil)))
}
