package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = fmt.Errorf("%w: expired", ErrInvalidToken)
)

// Tolerated drift between the issuer's clock and ours.
const clockSkew = 30 * time.Second

// Roles issued by the identity provider.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleSystem = "system"
)

// Claims are the JWT claims the practice service relies on. Sub is the
// external user id that owns practices.
type Claims struct {
	Sub   string `json:"sub"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
	Exp   int64  `json:"exp,omitempty"`
	Nbf   int64  `json:"nbf,omitempty"`
	Iat   int64  `json:"iat,omitempty"`
}

func (c Claims) IsAdmin() bool { return c.Role == RoleAdmin }

func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) { return numericDate(c.Exp), nil }
func (c Claims) GetNotBefore() (*jwt.NumericDate, error)      { return numericDate(c.Nbf), nil }
func (c Claims) GetIssuedAt() (*jwt.NumericDate, error)       { return numericDate(c.Iat), nil }
func (c Claims) GetIssuer() (string, error)                   { return "", nil }
func (c Claims) GetSubject() (string, error)                  { return c.Sub, nil }
func (c Claims) GetAudience() (jwt.ClaimStrings, error)       { return nil, nil }

func numericDate(unix int64) *jwt.NumericDate {
	if unix == 0 {
		return nil
	}
	return jwt.NewNumericDate(time.Unix(unix, 0))
}

// SignHS256 issues a token with the shared secret. Only tests and local
// tooling mint tokens; production tokens come from the identity provider.
func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
