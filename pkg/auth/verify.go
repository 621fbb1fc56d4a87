package auth

import (
	"context"
	"crypto/rsa"
	"time"
)

// KeyProvider resolves a verification key by kid. JWKSCache implements it;
// tests use a static map.
type KeyProvider interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// StaticKeys is a fixed kid-to-key mapping.
type StaticKeys map[string]*rsa.PublicKey

func (s StaticKeys) Key(_ context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok := s[kid]; ok {
		return key, nil
	}
	return nil, tokenErrorf(ErrKeyNotFound, "no key with kid %q", kid)
}

// Verifier runs the full verification pipeline: parse, algorithm check,
// claim validation, then signature verification over the verbatim signing
// input. Claims are checked before the signature so a caller presenting an
// expired token learns that even when the key is unavailable.
type Verifier struct {
	keys   KeyProvider
	expect ClaimExpectations
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithIssuer requires the iss claim to equal the given value.
func WithIssuer(issuer string) VerifierOption {
	return func(v *Verifier) { v.expect.Issuer = issuer }
}

// WithAudience requires the aud claim to include the given value.
func WithAudience(audience string) VerifierOption {
	return func(v *Verifier) { v.expect.Audience = audience }
}

// WithLeeway tolerates clock skew on the expiry check.
func WithLeeway(leeway time.Duration) VerifierOption {
	return func(v *Verifier) { v.expect.Leeway = leeway }
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.expect.Now = now }
}

// NewVerifier creates a verifier over the given key provider.
func NewVerifier(keys KeyProvider, opts ...VerifierOption) *Verifier {
	v := &Verifier{keys: keys}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify runs the pipeline on a compact-form token and returns the parsed
// token on success. Every failure is a *TokenError with a distinct kind.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Token, error) {
	tok, err := ParseToken(raw)
	if err != nil {
		return nil, err
	}

	// Reject foreign algorithms before anything else; a token asking for
	// HS256 must never reach key lookup with an RSA key as HMAC secret.
	if tok.Header.Alg != "RS256" {
		return nil, tokenErrorf(ErrUnsupportedAlgorithm, "algorithm %q is not RS256", tok.Header.Alg)
	}

	if err := ValidateClaims(tok, v.expect); err != nil {
		return nil, err
	}

	key, err := v.keys.Key(ctx, tok.Header.Kid)
	if err != nil {
		if _, ok := KindOf(err); ok {
			return nil, err
		}
		return nil, wrapTokenError(ErrKeyNotFound, "key lookup", err)
	}

	if err := VerifySignature(tok, key); err != nil {
		return nil, err
	}
	return tok, nil
}
