// Package authapi is a typed HTTP client for the auth service endpoints.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go-auth-service/internal/model"
)

const basePath = "/api/v1/auth"

// Error is a non-2xx response decoded from the service's error envelope.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("auth api: %d %s: %s", e.Status, e.Code, e.Message)
}

// NetworkError wraps a failure that happened before any response arrived.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "auth api: network: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsAuthError reports whether the service rejected the caller's credentials.
func IsAuthError(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *model.APIError `json:"error"`
	Meta    *model.Meta     `json:"meta"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client rooted at baseURL. httpClient may carry an
// authenticating transport; nil selects http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) Signup(ctx context.Context, req model.SignupRequest) (model.AuthResult, error) {
	var out model.AuthResult
	_, err := c.do(ctx, http.MethodPost, "/signup", req, &out)
	return out, err
}

func (c *Client) Signin(ctx context.Context, emailAddr string, password string) (model.AuthResult, error) {
	var out model.AuthResult
	_, err := c.do(ctx, http.MethodPost, "/signin", model.SigninRequest{Email: emailAddr, Password: password}, &out)
	return out, err
}

func (c *Client) ForgotPassword(ctx context.Context, emailAddr string) (model.MessageResult, error) {
	var out model.MessageResult
	_, err := c.do(ctx, http.MethodPost, "/forgot-password", model.EmailRequest{Email: emailAddr}, &out)
	return out, err
}

func (c *Client) ResetPassword(ctx context.Context, req model.ResetPasswordRequest) (model.MessageResult, error) {
	var out model.MessageResult
	_, err := c.do(ctx, http.MethodPost, "/reset-password", req, &out)
	return out, err
}

func (c *Client) VerifyAccount(ctx context.Context, rawToken string) (model.MessageResult, error) {
	var out model.MessageResult
	_, err := c.do(ctx, http.MethodPost, "/verify-account", model.TokenRequest{Token: rawToken}, &out)
	return out, err
}

func (c *Client) ResendVerification(ctx context.Context, emailAddr string) (model.MessageResult, error) {
	var out model.MessageResult
	_, err := c.do(ctx, http.MethodPost, "/resend-verification", model.EmailRequest{Email: emailAddr}, &out)
	return out, err
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	var out model.TokenPair
	_, err := c.do(ctx, http.MethodPost, "/refresh-token", model.RefreshRequest{RefreshToken: refreshToken}, &out)
	return out, err
}

// Me needs an authenticating transport on the underlying http.Client.
func (c *Client) Me(ctx context.Context) (model.PublicUser, error) {
	var out model.PublicUser
	_, err := c.do(ctx, http.MethodGet, "/me", nil, &out)
	return out, err
}

func (c *Client) Activity(ctx context.Context, page int, limit int) (model.AuditListData, model.Meta, error) {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	path := "/activity"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var out model.AuditListData
	meta, err := c.do(ctx, http.MethodGet, path, nil, &out)
	if err != nil {
		return model.AuditListData{}, model.Meta{}, err
	}
	if meta == nil {
		return out, model.Meta{}, nil
	}
	return out, *meta, nil
}

func (c *Client) do(ctx context.Context, method string, path string, body any, out any) (*model.Meta, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+basePath+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, &Error{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode), Message: "unreadable error response"}
		}
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		apiErr := &Error{Status: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return nil, apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("decode %s data: %w", path, err)
		}
	}
	return env.Meta, nil
}
