package middleware

import (
	"context"
	"net/http"
	"strings"

	"go-auth-service/internal/token"
	"go-auth-service/pkg/apierror"
)

type tokenValidator interface {
	ValidateAccessToken(accessToken string) (*token.Claims, error)
}

type contextKey string

const authClaimsContextKey contextKey = "auth_claims"

type AuthMiddleware struct {
	validator tokenValidator
}

func NewAuthMiddleware(validator tokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// RequireAuth accepts only access tokens; refresh and purpose tokens fail
// signature verification against the access key.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := BearerToken(r)
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, apierror.CodeUnauthorized, "missing or invalid authorization header")
			return
		}

		claims, err := m.validator.ValidateAccessToken(raw)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, apierror.CodeUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), authClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(authClaimsContextKey).(*token.Claims)
	return claims, ok
}

func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(header[7:])
	return raw, raw != ""
}
