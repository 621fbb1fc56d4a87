package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey struct{}

// TokenFromContext retrieves the verified token stored by RequireBearer.
func TokenFromContext(ctx context.Context) (*Token, bool) {
	tok, ok := ctx.Value(contextKey{}).(*Token)
	return tok, ok
}

// BearerToken extracts the credential from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

// Authorize checks the request's bearer token. The returned error is for
// the caller's logs only; whatever failed, the client sees a bare 401.
func (v *Verifier) Authorize(r *http.Request) error {
	raw, ok := BearerToken(r)
	if !ok {
		return tokenError(ErrMalformedToken, "missing bearer token")
	}
	_, err := v.Verify(r.Context(), raw)
	return err
}

// TokenValidator verifies a raw bearer credential. *Verifier implements it;
// deployments with bespoke token formats can substitute their own.
type TokenValidator interface {
	Verify(ctx context.Context, raw string) (*Token, error)
}

// RequireBearer gates a handler behind bearer verification. Failures are
// answered with 401 and an empty body; successes carry the verified token
// on the request context.
func RequireBearer(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			tok, err := v.Verify(r.Context(), raw)
			if err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, tok)))
		})
	}
}
