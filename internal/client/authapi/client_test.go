package authapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"go-auth-service/internal/model"
)

func writeEnvelope(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestSigninDecodesAuthResult(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/auth/signin", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req model.SigninRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "jane@example.com", req.Email)

		writeEnvelope(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"user":          map[string]any{"id": "u-1", "email": "jane@example.com"},
				"access_token":  "access",
				"refresh_token": "refresh",
				"token_type":    "Bearer",
				"expires_in":    900,
			},
		})
	}))
	t.Cleanup(srv.Close)

	result, err := New(srv.URL, srv.Client()).Signin(context.Background(), "jane@example.com", "Password123")
	require.NoError(t, err)
	require.Equal(t, "u-1", result.User.ID)
	require.Equal(t, "refresh", result.RefreshToken)
	require.EqualValues(t, 900, result.ExpiresIn)
}

func TestErrorEnvelopeBecomesError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   map[string]any{"code": "UNAUTHORIZED", "message": "Invalid or expired token"},
		})
	}))
	t.Cleanup(srv.Close)

	_, err := New(srv.URL, nil).RefreshToken(context.Background(), "stale")
	require.Error(t, err)
	require.True(t, IsAuthError(err))
	require.False(t, IsNetworkError(err))

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "UNAUTHORIZED", apiErr.Code)
	require.Equal(t, "Invalid or expired token", apiErr.Message)
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(addr, nil).ForgotPassword(context.Background(), "jane@example.com")
	require.Error(t, err)
	require.True(t, IsNetworkError(err))
	require.False(t, IsAuthError(err))
}

func TestActivityPassesPagingAndMeta(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "10", r.URL.Query().Get("limit"))
		writeEnvelope(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]any{"items": []map[string]any{{"action": "signin", "status": "success"}}},
			"meta":    map[string]any{"page": 2, "limit": 10, "total": 11, "total_pages": 2},
		})
	}))
	t.Cleanup(srv.Close)

	data, meta, err := New(srv.URL, nil).Activity(context.Background(), 2, 10)
	require.NoError(t, err)
	require.Len(t, data.Items, 1)
	require.Equal(t, model.AuditActionSignin, data.Items[0].Action)
	require.Equal(t, 11, meta.Total)
}
