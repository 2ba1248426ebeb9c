package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"
)

var ErrKeyNotFound = errors.New("jwks key not found")

// A token with an unknown kid triggers at most one refetch per interval.
const minRefreshInterval = 30 * time.Second

const maxJWKSBytes = 1 << 20

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// JWKSClient caches the identity provider's RSA signing keys. Keys are
// refetched after ttl or when an unseen kid shows up, and a failed fetch
// keeps serving what was cached.
type JWKSClient struct {
	url  string
	http *http.Client
	ttl  time.Duration
	now  func() time.Time

	mu          sync.Mutex
	keys        map[string]*rsa.PublicKey
	expires     time.Time
	lastAttempt time.Time
}

func NewJWKSClient(url string, ttl time.Duration) *JWKSClient {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &JWKSClient{
		url:  url,
		http: &http.Client{Timeout: 5 * time.Second},
		ttl:  ttl,
		now:  time.Now,
		keys: map[string]*rsa.PublicKey{},
	}
}

func (c *JWKSClient) Get(ctx context.Context, keyID string) (*rsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	key, cached := c.keys[keyID]
	if cached && now.Before(c.expires) {
		return key, nil
	}
	if !cached && now.Sub(c.lastAttempt) < minRefreshInterval {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, keyID)
	}

	c.lastAttempt = now
	keys, err := c.fetch(ctx)
	if err != nil {
		if cached {
			return key, nil
		}
		return nil, fmt.Errorf("jwks refresh: %w", err)
	}
	c.keys = keys
	c.expires = now.Add(c.ttl)

	if key, ok := keys[keyID]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, keyID)
}

func (c *JWKSClient) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	var set jwks
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJWKSBytes)).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		if pub, err := k.rsaKey(); err == nil {
			keys[k.Kid] = pub
		}
	}
	if len(keys) == 0 {
		return nil, errors.New("jwks contains no usable RSA signing keys")
	}
	return keys, nil
}

func (k jwk) rsaKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil || len(n) == 0 {
		return nil, errors.New("invalid jwk modulus")
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil || len(e) == 0 || len(e) > 4 {
		return nil, errors.New("invalid jwk exponent")
	}
	exp := new(big.Int).SetBytes(e).Int64()
	if exp < 3 {
		return nil, errors.New("invalid jwk exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp)}, nil
}
