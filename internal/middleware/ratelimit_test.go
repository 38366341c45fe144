package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddleware_UnlimitedGeneral(t *testing.T) {
	t.Parallel()

	handler := NewRateLimitMiddleware(0, 1).Handler(okHandler())

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}
}

func TestRateLimitMiddleware_LimitedCredentialEndpoints(t *testing.T) {
	t.Parallel()

	handler := NewRateLimitMiddleware(0, 1).Handler(okHandler())

	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, httptest.NewRequest(http.MethodPost, "/api/v1/auth/signin", nil))
	assert.Equal(t, http.StatusOK, rec1.Code)

	// Burst is 1, so a second immediate call exhausts the bucket.
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, httptest.NewRequest(http.MethodPost, "/api/v1/auth/reset-password", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
	assert.Equal(t, "60", rec2.Header().Get("Retry-After"))
	assert.Contains(t, rec2.Body.String(), "RATE_LIMITED")
}

func TestRateLimitMiddleware_PerClient(t *testing.T) {
	t.Parallel()

	handler := NewRateLimitMiddleware(0, 1).Handler(okHandler())

	for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", nil)
		req.Header.Set("X-Forwarded-For", ip+", 172.16.0.1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, ip)
	}
}

func TestIsCredentialPath(t *testing.T) {
	t.Parallel()

	assert.True(t, isCredentialPath("/api/v1/auth/signin"))
	assert.True(t, isCredentialPath("/api/v1/auth/refresh-token/"))
	assert.False(t, isCredentialPath("/api/v1/auth/me"))
	assert.False(t, isCredentialPath("/api/v1/auth/activity"))
	assert.False(t, isCredentialPath("/health"))
}
