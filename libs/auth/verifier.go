package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var validMethods = []string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodRS256.Alg()}

// Verifier accepts RS256 tokens signed by a key published on the JWKS
// endpoint and HS256 tokens signed with the shared secret. The header's alg
// picks the key; any other alg is rejected.
type Verifier struct {
	secret []byte
	jwks   *JWKSClient
	now    func() time.Time
}

func NewVerifier(secret string, jwks *JWKSClient) *Verifier {
	return &Verifier{secret: []byte(strings.TrimSpace(secret)), jwks: jwks, now: time.Now}
}

func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &c, v.keyFunc(ctx),
		jwt.WithValidMethods(validMethods),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(v.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	return &c, nil
}

func (v *Verifier) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		switch t.Method.Alg() {
		case jwt.SigningMethodHS256.Alg():
			if len(v.secret) == 0 {
				return nil, errors.New("no shared secret configured")
			}
			return v.secret, nil
		case jwt.SigningMethodRS256.Alg():
			kid, _ := t.Header["kid"].(string)
			if v.jwks == nil || kid == "" {
				return nil, errors.New("no signing key for token")
			}
			return v.jwks.Get(ctx, kid)
		default:
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
