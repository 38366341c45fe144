//go:build integration

package integration

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenAPISpecAndSwaggerUI(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	specResp, err := http.Get(env.server.URL + "/openapi.yaml")
	require.NoError(t, err)
	t.Cleanup(func() { _ = specResp.Body.Close() })
	require.Equal(t, http.StatusOK, specResp.StatusCode)
	require.Equal(t, "application/yaml", specResp.Header.Get("Content-Type"))

	specBytes, err := io.ReadAll(specResp.Body)
	require.NoError(t, err)
	specText := string(specBytes)
	require.Contains(t, specText, "openapi: 3.0.3")
	for _, path := range []string{
		"/api/v1/auth/signup",
		"/api/v1/auth/signin",
		"/api/v1/auth/forgot-password",
		"/api/v1/auth/reset-password",
		"/api/v1/auth/verify-account",
		"/api/v1/auth/resend-verification",
		"/api/v1/auth/refresh-token",
		"/api/v1/auth/me",
		"/api/v1/auth/activity",
	} {
		require.Contains(t, specText, path+":")
	}

	swaggerResp, err := http.Get(env.server.URL + "/swagger")
	require.NoError(t, err)
	t.Cleanup(func() { _ = swaggerResp.Body.Close() })
	require.Equal(t, http.StatusOK, swaggerResp.StatusCode)
	require.Contains(t, swaggerResp.Header.Get("Content-Type"), "text/html")

	swaggerBytes, err := io.ReadAll(swaggerResp.Body)
	require.NoError(t, err)
	require.Contains(t, string(swaggerBytes), "SwaggerUIBundle")
}
