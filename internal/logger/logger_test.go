package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedactsSensitiveAttributes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(&buf, slog.LevelInfo, "json")
	log.With("refresh_token", "rt-secret").Info("signin",
		"email", "jane@example.com",
		"password", "hunter22",
		slog.Group("request", "Authorization", "Bearer abc"),
	)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "jane@example.com", record["email"])
	require.Equal(t, redacted, record["password"])
	require.Equal(t, redacted, record["refresh_token"])
	require.Equal(t, redacted, record["request"].(map[string]any)["Authorization"])
	require.NotContains(t, buf.String(), "hunter22")
}

func TestPrettyHandlerFormatsLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(&buf, slog.LevelDebug, "pretty")
	log.WithGroup("http").Debug("request", "status", 200, "token", "abc")

	line := buf.String()
	require.Contains(t, line, "DEBUG")
	require.Contains(t, line, "request")
	require.Contains(t, line, "http.status")
	require.Contains(t, line, redacted)
	require.NotContains(t, line, "=abc")
}

func TestPrettyHandlerRespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(&buf, slog.LevelWarn, "")
	log.Info("hidden")
	require.Empty(t, buf.String())

	log.Warn("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
