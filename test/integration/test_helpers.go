//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-auth-service/internal/config"
	"go-auth-service/internal/handler"
	"go-auth-service/internal/middleware"
	"go-auth-service/internal/model"
	"go-auth-service/internal/password"
	"go-auth-service/internal/repository/memory"
	"go-auth-service/internal/router"
	"go-auth-service/internal/service"
	"go-auth-service/internal/token"
)

const (
	accessSecret  = "integration-access-secret-0123456789ab"
	refreshSecret = "integration-refresh-secret-0123456789a"
	purposeSecret = "integration-purpose-secret-0123456789a"
)

type mailbox struct {
	mu    sync.Mutex
	links map[string]string
}

func (m *mailbox) SendTemplated(_ context.Context, templateID string, to string, subs map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[templateID+"|"+to] = subs["link"]
	return nil
}

// token returns the token from the latest templateID link sent to addr.
func (m *mailbox) token(t *testing.T, templateID string, addr string) string {
	t.Helper()

	m.mu.Lock()
	link, ok := m.links[templateID+"|"+addr]
	m.mu.Unlock()
	require.True(t, ok, "no %s email for %s", templateID, addr)

	parsed, err := url.Parse(link)
	require.NoError(t, err)
	return parsed.Query().Get("token")
}

type testEnv struct {
	server *httptest.Server
	mail   *mailbox
	ledger *memory.Ledger
}

type envOption func(*config.Config)

func withAuthRateLimit(rpm int) envOption {
	return func(cfg *config.Config) { cfg.AuthRateLimitRPM = rpm }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	cfg := &config.Config{
		RequestTimeout:       10 * time.Second,
		JWTAccessSecret:      accessSecret,
		JWTRefreshSecret:     refreshSecret,
		JWTPurposeSecret:     purposeSecret,
		JWTAccessTTL:         15 * time.Minute,
		JWTRefreshTTL:        24 * time.Hour,
		VerificationTokenTTL: time.Hour,
		ResetTokenTTL:        time.Hour,
		PasswordHistorySize:  5,
		AppBaseURL:           "http://localhost:3000",
		CORSOrigins:          []string{"https://app.example.com"},
		RateLimitRPM:         0,
		AuthRateLimitRPM:     0,
		OpenAPISpecPath:      "../../docs/openapi.yaml",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	codec, err := token.NewCodec(token.Config{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		PurposeSecret: cfg.JWTPurposeSecret,
		AccessTTL:     cfg.JWTAccessTTL,
		RefreshTTL:    cfg.JWTRefreshTTL,
	})
	require.NoError(t, err)

	mail := &mailbox{links: map[string]string{}}
	ledger := memory.NewLedger(time.Now)
	credentials, err := service.NewCredentialService(
		memory.NewUserStore(),
		ledger,
		password.NewHasher(bcrypt.MinCost),
		codec,
		mail,
		service.CredentialConfig{
			VerificationTTL:     cfg.VerificationTokenTTL,
			ResetTTL:            cfg.ResetTokenTTL,
			PasswordHistorySize: cfg.PasswordHistorySize,
			AppBaseURL:          cfg.AppBaseURL,
		},
	)
	require.NoError(t, err)
	audit := service.NewAuditService(memory.NewAuditLog())

	server := httptest.NewServer(router.New(cfg, middleware.NewAuthMiddleware(credentials), router.Handlers{
		Auth:  handler.NewAuthHandler(credentials, audit),
		User:  handler.NewUserHandler(credentials),
		Audit: handler.NewAuditHandler(audit),
		Docs:  handler.NewDocsHandler(cfg.OpenAPISpecPath),
	}))
	t.Cleanup(server.Close)

	return &testEnv{server: server, mail: mail, ledger: ledger}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *model.APIError `json:"error"`
	Meta    *model.Meta     `json:"meta"`
}

func (e *testEnv) call(t *testing.T, method string, path string, body any, bearer string) (*http.Response, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func (e *testEnv) signup(t *testing.T, name string, emailAddr string, pw string) model.AuthResult {
	t.Helper()

	resp, env := e.call(t, http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"name": name, "email": emailAddr, "password": pw, "confirm_password": pw,
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result model.AuthResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	return result
}

func (e *testEnv) resetPassword(t *testing.T, emailAddr string, pw string) (*http.Response, envelope) {
	t.Helper()

	resp, _ := e.call(t, http.MethodPost, "/api/v1/auth/forgot-password", map[string]string{"email": emailAddr}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw := e.mail.token(t, "password-reset", emailAddr)
	return e.call(t, http.MethodPost, "/api/v1/auth/reset-password", map[string]string{
		"token": raw, "password": pw, "confirm_password": pw,
	}, "")
}
