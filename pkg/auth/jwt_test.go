package auth

import (
	"context"
	"crypto"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = mustGenerateKey()

func mustGenerateKey() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return key
}

func b64(v interface{}) string {
	bs, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(bs)
}

// signRS256 builds a compact-form token signed with the test key.
func signRS256(t *testing.T, header Header, claims Claims) string {
	t.Helper()
	signingInput := b64(header) + "." + b64(claims)
	digest := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, testKey, crypto.SHA256, digest[:])
	require.NoError(t, err)
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)
}

// signHS256 builds a token with a structurally valid HMAC signature.
func signHS256(t *testing.T, claims Claims, secret []byte) string {
	t.Helper()
	signingInput := b64(Header{Alg: "HS256", Kid: "kid-1", Typ: "JWT"}) + "." + b64(claims)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(signingInput))
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func validClaims() Claims {
	return Claims{
		Issuer:    "https://issuer.example",
		Subject:   "user-1",
		Audience:  Audience{"conduit"},
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
		IssuedAt:  time.Now().Unix(),
		Scope:     "read write",
	}
}

func newTestVerifier() *Verifier {
	return NewVerifier(
		StaticKeys{"kid-1": &testKey.PublicKey},
		WithIssuer("https://issuer.example"),
		WithAudience("conduit"),
	)
}

func TestVerifyHappyPath(t *testing.T) {
	raw := signRS256(t, Header{Alg: "RS256", Kid: "kid-1", Typ: "JWT"}, validClaims())

	tok, err := newTestVerifier().Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", tok.Claims.Subject)
	assert.Equal(t, []string{"read", "write"}, tok.Claims.Scopes())
}

func TestVerifyRejectsHS256(t *testing.T) {
	// A structurally valid HMAC token must fail on algorithm alone, even
	// when its signature would check out against some secret.
	raw := signHS256(t, validClaims(), []byte("shared-secret"))

	_, err := newTestVerifier().Verify(context.Background(), raw)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrUnsupportedAlgorithm))
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	raw := signRS256(t, Header{Alg: "RS256", Kid: "kid-1"}, validClaims())

	// Flip one byte inside the signature segment. The final character is
	// left alone so the segment stays canonical base64.
	tampered := []byte(raw)
	pos := len(tampered) - 10
	if tampered[pos] == 'A' {
		tampered[pos] = 'B'
	} else {
		tampered[pos] = 'A'
	}

	_, err := newTestVerifier().Verify(context.Background(), string(tampered))
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrSignatureVerificationFailed))
}

func TestVerifyRejectsExpired(t *testing.T) {
	claims := validClaims()
	claims.ExpiresAt = time.Now().Add(-time.Hour).Unix()
	raw := signRS256(t, Header{Alg: "RS256", Kid: "kid-1"}, claims)

	_, err := newTestVerifier().Verify(context.Background(), raw)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrExpired))
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	claims := validClaims()
	claims.Issuer = "https://somewhere-else.example"
	raw := signRS256(t, Header{Alg: "RS256", Kid: "kid-1"}, claims)

	_, err := newTestVerifier().Verify(context.Background(), raw)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrInvalidIssuer))
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	claims := validClaims()
	claims.Audience = Audience{"another-service"}
	raw := signRS256(t, Header{Alg: "RS256", Kid: "kid-1"}, claims)

	_, err := newTestVerifier().Verify(context.Background(), raw)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrInvalidAudience))
}

func TestVerifyRejectsUnknownKid(t *testing.T) {
	raw := signRS256(t, Header{Alg: "RS256", Kid: "kid-rotated-away"}, validClaims())

	_, err := newTestVerifier().Verify(context.Background(), raw)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrKeyNotFound))
}

func TestVerifyRejectsUndecodableSignature(t *testing.T) {
	// Any tampering with the third segment reports a signature failure, even
	// when the damage makes the segment undecodable.
	raw := signRS256(t, Header{Alg: "RS256", Kid: "kid-1"}, validClaims())
	broken := raw[:strings.LastIndex(raw, ".")+1] + "!!!not-base64url!!!"

	_, err := newTestVerifier().Verify(context.Background(), broken)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrSignatureVerificationFailed))
}

func TestParseTokenMalformed(t *testing.T) {
	cases := []string{
		"",
		"only-one-segment",
		"two.segments",
		"a.b.c.d",
		"!!!.###.$$$",
	}
	for _, raw := range cases {
		_, err := ParseToken(raw)
		require.Error(t, err, "input %q", raw)
		assert.True(t, IsKind(err, ErrMalformedToken), "input %q", raw)
	}
}

func TestClaimsCheckedBeforeSignature(t *testing.T) {
	// An expired token with a garbage signature reports the expiry, not the
	// signature.
	claims := validClaims()
	claims.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	raw := signRS256(t, Header{Alg: "RS256", Kid: "kid-1"}, claims)
	raw = raw[:len(raw)-4] + "AAAA"

	_, err := newTestVerifier().Verify(context.Background(), raw)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrExpired))
}

func TestAudienceUnmarshalShapes(t *testing.T) {
	var single Claims
	require.NoError(t, json.Unmarshal([]byte(`{"aud":"one"}`), &single))
	assert.Equal(t, Audience{"one"}, single.Audience)

	var multi Claims
	require.NoError(t, json.Unmarshal([]byte(`{"aud":["one","two"]}`), &multi))
	assert.Equal(t, Audience{"one", "two"}, multi.Audience)
	assert.True(t, multi.Audience.Contains("two"))
	assert.False(t, multi.Audience.Contains("three"))
}

func TestVerifyWithClockLeeway(t *testing.T) {
	claims := validClaims()
	claims.ExpiresAt = time.Now().Add(-30 * time.Second).Unix()
	raw := signRS256(t, Header{Alg: "RS256", Kid: "kid-1"}, claims)

	v := NewVerifier(
		StaticKeys{"kid-1": &testKey.PublicKey},
		WithIssuer("https://issuer.example"),
		WithAudience("conduit"),
		WithLeeway(time.Minute),
	)
	_, err := v.Verify(context.Background(), raw)
	assert.NoError(t, err)
}
