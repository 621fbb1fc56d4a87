package auth

import (
	"errors"
	"fmt"
)

// TokenErrorKind classifies verification failures. Callers can branch on
// the kind; the HTTP layer deliberately collapses all of them into a bare
// 401 so the response never leaks which check failed.
type TokenErrorKind string

const (
	ErrMalformedToken              TokenErrorKind = "malformed_token"
	ErrExpired                     TokenErrorKind = "token_expired"
	ErrInvalidIssuer               TokenErrorKind = "invalid_issuer"
	ErrInvalidAudience             TokenErrorKind = "invalid_audience"
	ErrUnsupportedAlgorithm        TokenErrorKind = "unsupported_algorithm"
	ErrKeyNotFound                 TokenErrorKind = "key_not_found"
	ErrSignatureVerificationFailed TokenErrorKind = "signature_verification_failed"
)

// TokenError is the error type of all verification failures.
type TokenError struct {
	Kind  TokenErrorKind
	msg   string
	cause error
}

func (e *TokenError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *TokenError) Unwrap() error { return e.cause }

func tokenError(kind TokenErrorKind, msg string) *TokenError {
	return &TokenError{Kind: kind, msg: msg}
}

func tokenErrorf(kind TokenErrorKind, format string, args ...interface{}) *TokenError {
	return &TokenError{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

func wrapTokenError(kind TokenErrorKind, msg string, cause error) *TokenError {
	return &TokenError{Kind: kind, msg: msg, cause: cause}
}

// KindOf extracts the failure kind; ok is false for non-token errors.
func KindOf(err error) (TokenErrorKind, bool) {
	var te *TokenError
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return "", false
}

// IsKind reports whether err is a token error of the given kind.
func IsKind(err error, kind TokenErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
