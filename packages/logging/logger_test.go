package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("whatever"))
	assert.Equal(t, "warn", LevelWarn.String())
}

func TestLogger_JSONContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelInfo, WithWriter(&buf), WithJSON(true))

	l.WithModule("auth").WithCase("login").Info("case finished", "status", 200)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "auth", entry["module"])
	assert.Equal(t, "login", entry["case"])
	assert.Equal(t, float64(200), entry["status"])
	assert.Equal(t, "case finished", entry["msg"])
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelWarn, WithWriter(&buf))

	l.Info("hidden")
	assert.Empty(t, buf.String())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestLogger_MaskedDebug(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelDebug, WithWriter(&buf))

	l.Masked("sending", "authorization", "Bearer abc.def", "body", `{"password":"hunter2"}`)

	out := buf.String()
	assert.NotContains(t, out, "abc.def")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, maskedValue)
}

func TestLogger_RequestURLMasked(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelInfo, WithWriter(&buf))

	l.WithRequest("GET", "http://x/login?password=secret1&user=a").Info("request")
	assert.NotContains(t, buf.String(), "secret1")
	assert.Contains(t, buf.String(), "user=a")
}

func TestRestyLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelDebug, WithWriter(&buf))

	r := l.Resty()
	r.Warnf("retrying with token=%s", "xyz")
	assert.Contains(t, buf.String(), "component=http")
	assert.NotContains(t, buf.String(), "xyz")
}
