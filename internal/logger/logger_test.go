package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/fileshare/internal/config"
)

// headerMap is a case-insensitive HeaderLookup for tests.
type headerMap map[string]string

func (h headerMap) Header(name string) (string, bool) {
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// readLogBuffer splits buffered log output into lines.
func readLogBuffer(buf *bytes.Buffer) []string {
	s := strings.TrimRight(buf.String(), "\n")
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}

func parseLine(t *testing.T, line string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &m), "line: %s", line)
	return m
}

func newTestLoggerConfig(level config.LogLevel, accessTarget, errorTarget string, enabled bool, proxies []string) *config.LoggingConfig {
	header := "X-Forwarded-For"
	return &config.LoggingConfig{
		LogLevel: level,
		AccessLog: &config.AccessLogConfig{
			Enabled:        &enabled,
			Target:         &accessTarget,
			Format:         "json",
			TrustedProxies: proxies,
			RealIPHeader:   &header,
		},
		ErrorLog: &config.ErrorLogConfig{Target: &errorTarget, Format: "json"},
	}
}

func TestNewLogger_NilConfig(t *testing.T) {
	_, err := NewLogger(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging configuration cannot be nil")
}

func TestNewLogger_FileTargetsAndLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	accessPath := filepath.Join(dir, "access.log")
	errorPath := filepath.Join(dir, "error.log")

	lg, err := NewLogger(newTestLoggerConfig(config.LogLevelWarning, accessPath, errorPath, true, nil))
	require.NoError(t, err)

	lg.Debug("hidden debug")
	lg.Info("hidden info")
	lg.Warn("shown warning", LogFields{"path": "/srv"})
	lg.Error("shown error")
	lg.Access(AccessEntry{RemoteAddr: "10.0.0.1:5555", Method: "GET", URI: "/?path=/srv", Protocol: "HTTP/1.1", Status: 200, ResponseBytes: 42})
	lg.CloseLogFiles()

	errData, err := os.ReadFile(errorPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(errData)), "\n")
	require.Len(t, lines, 2)

	first := parseLine(t, lines[0])
	assert.Equal(t, "warn", first["level"])
	assert.Equal(t, "shown warning", first["message"])
	assert.Equal(t, "/srv", first["path"])
	ts, ok := first["ts"].(string)
	require.True(t, ok)
	_, err = time.Parse(timestampFormat, ts)
	assert.NoError(t, err)

	accessData, err := os.ReadFile(accessPath)
	require.NoError(t, err)
	entry := parseLine(t, strings.TrimSpace(string(accessData)))
	assert.Equal(t, "10.0.0.1", entry["remote_addr"])
	assert.Equal(t, "5555", entry["remote_port"])
	assert.Equal(t, float64(200), entry["status"])
	assert.Equal(t, float64(42), entry["resp_bytes"])
}

func TestNewLogger_AccessDisabled(t *testing.T) {
	dir := t.TempDir()
	accessPath := filepath.Join(dir, "access.log")
	lg, err := NewLogger(newTestLoggerConfig(config.LogLevelInfo, accessPath, filepath.Join(dir, "error.log"), false, nil))
	require.NoError(t, err)
	defer lg.CloseLogFiles()

	lg.Access(AccessEntry{RemoteAddr: "1.2.3.4:1", Method: "GET", URI: "/", Status: 200})

	_, err = os.Stat(accessPath)
	assert.True(t, os.IsNotExist(err), "access log file should not be created when disabled")
}

func TestNewLogger_InvalidProxy(t *testing.T) {
	dir := t.TempDir()
	_, err := NewLogger(newTestLoggerConfig(config.LogLevelInfo, filepath.Join(dir, "a.log"), filepath.Join(dir, "e.log"), true, []string{"10.0.0.0/99"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse trusted proxies")
}

func TestNewLogger_ConsoleFormat(t *testing.T) {
	dir := t.TempDir()
	errorPath := filepath.Join(dir, "error.log")
	cfg := newTestLoggerConfig(config.LogLevelInfo, "stdout", errorPath, false, nil)
	cfg.ErrorLog.Format = "console"

	lg, err := NewLogger(cfg)
	require.NoError(t, err)
	lg.Info("listening", LogFields{"address": ":8080"})
	lg.CloseLogFiles()

	data, err := os.ReadFile(errorPath)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "listening")
	assert.Contains(t, out, "address=:8080")
	assert.NotContains(t, out, "\x1b[", "file targets must not be colourized")
}

func TestTestLogger_AccessHeaders(t *testing.T) {
	var buf bytes.Buffer
	lg := NewTestLogger(&buf)

	lg.Access(AccessEntry{
		RemoteAddr: "192.168.1.5:4000",
		Method:     "POST",
		URI:        "/download",
		Protocol:   "HTTP/1.1",
		Status:     200,
		Duration:   1500 * time.Millisecond,
		Headers: headerMap{
			"x-forwarded-for": "203.0.113.9",
			"User-Agent":      "curl/8.0",
			"Referer":         "http://example.com/",
		},
	})

	lines := readLogBuffer(&buf)
	require.Len(t, lines, 1)
	entry := parseLine(t, lines[0])
	assert.Equal(t, "203.0.113.9", entry["remote_addr"])
	assert.Equal(t, "curl/8.0", entry["user_agent"])
	assert.Equal(t, "http://example.com/", entry["referer"])
	assert.Equal(t, float64(1500), entry["duration_ms"])
	assert.Equal(t, "POST", entry["method"])
}

func TestDiscardLogger(t *testing.T) {
	lg := NewDiscardLogger()
	assert.NotPanics(t, func() {
		lg.Info("nothing", LogFields{"k": "v"})
		lg.Error("nothing")
		lg.Access(AccessEntry{Status: 200})
		lg.CloseLogFiles()
	})
}

func TestGetRealClientIP(t *testing.T) {
	proxies, err := preParseTrustedProxies([]string{"10.0.0.0/8", "192.168.1.1", " "})
	require.NoError(t, err)

	tests := []struct {
		name       string
		remoteAddr string
		header     string
		want       string
	}{
		{"no header uses peer host", "10.1.1.1:1234", "", "10.1.1.1"},
		{"bare ip peer", "::1", "", "::1"},
		{"unparseable peer kept", "localhost", "", "localhost"},
		{"single untrusted entry", "10.1.1.1:1234", "203.0.113.1", "203.0.113.1"},
		{"rightmost untrusted wins", "10.1.1.1:1234", "198.51.100.2, 203.0.113.1, 10.2.2.2", "203.0.113.1"},
		{"all trusted falls back to peer", "10.1.1.1:1234", "10.3.3.3, 192.168.1.1", "10.1.1.1"},
		{"malformed entry falls back to peer", "10.1.1.1:1234", "203.0.113.1, not-an-ip", "10.1.1.1"},
		{"empty elements skipped", "10.1.1.1:1234", "203.0.113.1,,", "203.0.113.1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, getRealClientIP(tc.remoteAddr, tc.header, proxies))
		})
	}
}

func TestPreParseTrustedProxies_Errors(t *testing.T) {
	_, err := preParseTrustedProxies([]string{"300.1.1.1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid IP string")

	_, err = preParseTrustedProxies([]string{"10.0.0.0/40"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid CIDR string")
}
