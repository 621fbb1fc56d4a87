package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// JWK is one key of a JWKS document. Only RSA signing keys are usable here.
type JWK struct {
	Kty string   `json:"kty"`
	Kid string   `json:"kid,omitempty"`
	Use string   `json:"use,omitempty"`
	Alg string   `json:"alg,omitempty"`
	N   string   `json:"n,omitempty"`
	E   string   `json:"e,omitempty"`
	X5c []string `json:"x5c,omitempty"`
}

// PublicKey materializes the RSA public key, from the modulus/exponent pair
// or, failing that, from the leaf certificate of the x5c chain.
func (k JWK) PublicKey() (*rsa.PublicKey, error) {
	if k.Kty != "RSA" {
		return nil, fmt.Errorf("jwk %q: unsupported key type %q", k.Kid, k.Kty)
	}

	if k.N != "" && k.E != "" {
		nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, fmt.Errorf("jwk %q: decode modulus: %w", k.Kid, err)
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, fmt.Errorf("jwk %q: decode exponent: %w", k.Kid, err)
		}
		e := 0
		for _, b := range eBytes {
			e = e<<8 | int(b)
		}
		return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
	}

	if len(k.X5c) > 0 {
		der, err := base64.StdEncoding.DecodeString(k.X5c[0])
		if err != nil {
			return nil, fmt.Errorf("jwk %q: decode certificate: %w", k.Kid, err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("jwk %q: parse certificate: %w", k.Kid, err)
		}
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("jwk %q: certificate key is not RSA", k.Kid)
		}
		return pub, nil
	}

	return nil, fmt.Errorf("jwk %q: no usable key material", k.Kid)
}

// KeySet is a kid-indexed set of RSA public keys.
type KeySet struct {
	keys map[string]*rsa.PublicKey
}

// ParseKeySet decodes a JWKS document. Keys that are not RSA signing keys
// are skipped rather than failing the whole set.
func ParseKeySet(data []byte) (*KeySet, error) {
	var doc struct {
		Keys []JWK `json:"keys"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse jwks: %w", err)
	}

	ks := &KeySet{keys: make(map[string]*rsa.PublicKey, len(doc.Keys))}
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := k.PublicKey()
		if err != nil {
			continue
		}
		ks.keys[k.Kid] = pub
	}
	return ks, nil
}

// Lookup finds a key by kid.
func (ks *KeySet) Lookup(kid string) (*rsa.PublicKey, bool) {
	key, ok := ks.keys[kid]
	return key, ok
}

// Len reports the number of usable keys.
func (ks *KeySet) Len() int { return len(ks.keys) }

// JWKSCache fetches a JWKS endpoint and caches the key set with a TTL.
// Concurrent cache misses for the same endpoint coalesce into one outbound
// fetch; the others wait for its result.
type JWKSCache struct {
	url    string
	ttl    time.Duration
	client *http.Client
	group  singleflight.Group

	mu        sync.RWMutex
	keys      *KeySet
	fetchedAt time.Time
}

// JWKSCacheOption configures the cache.
type JWKSCacheOption func(*JWKSCache)

// WithTTL sets how long a fetched key set stays fresh.
func WithTTL(ttl time.Duration) JWKSCacheOption {
	return func(c *JWKSCache) { c.ttl = ttl }
}

// WithHTTPClient overrides the HTTP client used for fetches.
func WithHTTPClient(client *http.Client) JWKSCacheOption {
	return func(c *JWKSCache) { c.client = client }
}

// NewJWKSCache creates a cache over the given JWKS endpoint.
func NewJWKSCache(url string, opts ...JWKSCacheOption) *JWKSCache {
	c := &JWKSCache{
		url:    url,
		ttl:    5 * time.Minute,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached key set, fetching when stale or absent.
func (c *JWKSCache) Get(ctx context.Context) (*KeySet, error) {
	c.mu.RLock()
	keys, fetchedAt := c.keys, c.fetchedAt
	c.mu.RUnlock()
	if keys != nil && time.Since(fetchedAt) < c.ttl {
		return keys, nil
	}
	return c.refresh(ctx)
}

// Key finds the key for a kid, forcing one refresh on a miss so freshly
// rotated keys resolve without waiting out the TTL.
func (c *JWKSCache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	keys, err := c.Get(ctx)
	if err != nil {
		return nil, wrapTokenError(ErrKeyNotFound, "fetch key set", err)
	}
	if key, ok := keys.Lookup(kid); ok {
		return key, nil
	}

	keys, err = c.refresh(ctx)
	if err != nil {
		return nil, wrapTokenError(ErrKeyNotFound, "refresh key set", err)
	}
	if key, ok := keys.Lookup(kid); ok {
		return key, nil
	}
	return nil, tokenErrorf(ErrKeyNotFound, "no key with kid %q", kid)
}

func (c *JWKSCache) refresh(ctx context.Context) (*KeySet, error) {
	v, err, _ := c.group.Do("jwks", func() (interface{}, error) {
		keys, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.keys = keys
		c.fetchedAt = time.Now()
		c.mu.Unlock()
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*KeySet), nil
}

func (c *JWKSCache) fetch(ctx context.Context) (*KeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read jwks: %w", err)
	}
	return ParseKeySet(body)
}
