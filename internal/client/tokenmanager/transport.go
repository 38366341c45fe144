package tokenmanager

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var errBodyNotReplayable = errors.New("tokenmanager: request body cannot be replayed")

type transport struct {
	m    *Manager
	base http.RoundTripper
}

// Transport wraps base so every request carries a bearer token. A 401 leads
// to exactly one refresh and one resend; a second 401 is returned as-is.
// Transport failures are retried with exponential backoff and never refresh.
func (m *Manager) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{m: m, base: base}
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	access, err := t.m.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := t.send(req, access)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || !replayable(req) {
		return resp, err
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	fresh, err := t.m.Refresh(ctx, access)
	if err != nil {
		return nil, err
	}
	return t.send(req, fresh)
}

// send performs one logical attempt, retrying only on transport errors.
func (t *transport) send(req *http.Request, access string) (*http.Response, error) {
	ctx := req.Context()
	attempt := 0

	operation := func() (*http.Response, error) {
		attempt++
		out := req.Clone(ctx)
		if req.Body != nil && req.Body != http.NoBody {
			switch {
			case req.GetBody != nil:
				body, err := req.GetBody()
				if err != nil {
					return nil, backoff.Permanent(err)
				}
				out.Body = body
			case attempt > 1:
				return nil, backoff.Permanent(errBodyNotReplayable)
			}
		}
		out.Header.Set("Authorization", "Bearer "+access)

		resp, err := t.base.RoundTrip(out)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		return resp, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(t.m.retryPolicy()),
		backoff.WithMaxTries(uint(t.m.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Debug("request failed; retrying", "url", req.URL.Redacted(), "attempt", attempt, "next", next, "error", err)
		}),
	)
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}
