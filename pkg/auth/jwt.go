// Package auth implements bearer-token authentication for the HTTP
// transport: RS256 JWT verification against a JWKS key set, with claim
// validation for issuer, audience and expiry.
package auth

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// Header is the decoded JOSE header.
type Header struct {
	Alg string `json:"alg"`
	Kid string `json:"kid,omitempty"`
	Typ string `json:"typ,omitempty"`
}

// Audience is the aud claim, which the wire carries as either a single
// string or an array of strings.
type Audience []string

// UnmarshalJSON implements json.Unmarshaler.
func (a *Audience) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Audience{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*a = Audience(list)
	return nil
}

// MarshalJSON implements json.Marshaler, preserving the single-string form.
func (a Audience) MarshalJSON() ([]byte, error) {
	if len(a) == 1 {
		return json.Marshal(a[0])
	}
	return json.Marshal([]string(a))
}

// Contains reports whether the audience names the given value.
func (a Audience) Contains(audience string) bool {
	for _, v := range a {
		if v == audience {
			return true
		}
	}
	return false
}

// Claims is the decoded JWT payload.
type Claims struct {
	Issuer    string   `json:"iss,omitempty"`
	Subject   string   `json:"sub,omitempty"`
	Audience  Audience `json:"aud,omitempty"`
	ExpiresAt int64    `json:"exp,omitempty"`
	IssuedAt  int64    `json:"iat,omitempty"`
	Scope     string   `json:"scope,omitempty"`
}

// Scopes splits the scope claim on spaces.
func (c Claims) Scopes() []string {
	if c.Scope == "" {
		return nil
	}
	return strings.Fields(c.Scope)
}

// Token is a parsed, not-yet-verified JWT. SigningInput is the verbatim
// header.payload substring of the compact form; the signature is checked
// over exactly those bytes, never over a re-serialization.
type Token struct {
	Header    Header
	Claims    Claims
	Signature []byte

	SigningInput string
	Raw          string
}

// ParseToken splits and decodes a compact-form JWT without verifying it.
// Every structural defect reports ErrMalformedToken.
func ParseToken(raw string) (*Token, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, tokenErrorf(ErrMalformedToken, "expected 3 segments, got %d", len(parts))
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, wrapTokenError(ErrMalformedToken, "decode header", err)
	}
	payloadJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, wrapTokenError(ErrMalformedToken, "decode payload", err)
	}

	tok := &Token{
		SigningInput: parts[0] + "." + parts[1],
		Raw:          raw,
	}
	if err := json.Unmarshal(headerJSON, &tok.Header); err != nil {
		return nil, wrapTokenError(ErrMalformedToken, "parse header", err)
	}
	if err := json.Unmarshal(payloadJSON, &tok.Claims); err != nil {
		return nil, wrapTokenError(ErrMalformedToken, "parse claims", err)
	}

	// On an otherwise well-formed token, a signature segment that does not
	// even decode is a broken signature, not a broken token: any tampering
	// with the third segment reports the same failure kind.
	tok.Signature, err = base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, wrapTokenError(ErrSignatureVerificationFailed, "decode signature", err)
	}
	return tok, nil
}

// ClaimExpectations are the validation inputs. Zero-value fields skip their
// check.
type ClaimExpectations struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
	Now      func() time.Time
}

// ValidateClaims checks expiry, then issuer, then audience, in that order.
func ValidateClaims(tok *Token, expect ClaimExpectations) error {
	now := time.Now
	if expect.Now != nil {
		now = expect.Now
	}

	if tok.Claims.ExpiresAt != 0 {
		exp := time.Unix(tok.Claims.ExpiresAt, 0)
		if now().After(exp.Add(expect.Leeway)) {
			return tokenErrorf(ErrExpired, "token expired at %s", exp.UTC().Format(time.RFC3339))
		}
	}
	if expect.Issuer != "" && tok.Claims.Issuer != expect.Issuer {
		return tokenErrorf(ErrInvalidIssuer, "issuer %q is not %q", tok.Claims.Issuer, expect.Issuer)
	}
	if expect.Audience != "" && !tok.Claims.Audience.Contains(expect.Audience) {
		return tokenErrorf(ErrInvalidAudience, "audience %v does not include %q", tok.Claims.Audience, expect.Audience)
	}
	return nil
}

// VerifySignature checks the RS256 signature over the token's verbatim
// signing input. Any other algorithm, including the valid-but-unacceptable
// symmetric ones, is rejected before the signature is looked at.
func VerifySignature(tok *Token, key *rsa.PublicKey) error {
	if tok.Header.Alg != "RS256" {
		return tokenErrorf(ErrUnsupportedAlgorithm, "algorithm %q is not RS256", tok.Header.Alg)
	}
	digest := sha256.Sum256([]byte(tok.SigningInput))
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], tok.Signature); err != nil {
		return wrapTokenError(ErrSignatureVerificationFailed, "signature mismatch", err)
	}
	return nil
}
