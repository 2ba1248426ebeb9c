package tenancy

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	CookieName       = "active_practice_id"
	preferenceMaxAge = 365 * 24 * time.Hour
)

// Preference is the cookie codec for the last selected practice.
type Preference struct {
	Secure bool
}

func (p Preference) Cookie(practiceID string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    practiceID,
		Path:     "/",
		MaxAge:   int(preferenceMaxAge / time.Second),
		Expires:  time.Now().Add(preferenceMaxAge),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (p Preference) Write(w http.ResponseWriter, practiceID string) {
	http.SetCookie(w, p.Cookie(practiceID))
}

// Read returns the stored id, or "" when absent or not a uuid.
func (p Preference) Read(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return ""
	}
	return c.Value
}
