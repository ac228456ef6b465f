// Package testutil holds helpers for tests that talk to a running server
// over a raw TCP connection.
package testutil

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// TestRequest models an HTTP/1.1 request sent in a single write.
type TestRequest struct {
	Method  string
	Target  string // path plus query, e.g. "/?path=%2Ftmp"
	Headers map[string]string
	Body    []byte
}

// Bytes renders the request as it goes on the wire.
func (r TestRequest) Bytes() []byte {
	method := r.Method
	if method == "" {
		method = "GET"
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\nHost: localhost\r\n", method, r.Target)

	names := make([]string, 0, len(r.Headers))
	for name := range r.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "%s: %s\r\n", name, r.Headers[name])
	}
	if len(r.Body) > 0 {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(r.Body))
	}
	b.WriteString("\r\n")
	b.Write(r.Body)
	return b.Bytes()
}

// ActualResponse stores what the server sent back.
type ActualResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	// Close is set when the response carried Connection: close; the
	// header reader moves that field out of Headers.
	Close bool
	// Raw is everything read from the connection.
	Raw []byte
}

// BodyMatcher defines a way to match the response body.
type BodyMatcher interface {
	Match(body []byte) (bool, string)
}

// ExactBodyMatcher matches the body exactly.
type ExactBodyMatcher struct {
	ExpectedBody []byte
}

func (m *ExactBodyMatcher) Match(body []byte) (bool, string) {
	if bytes.Equal(m.ExpectedBody, body) {
		return true, ""
	}
	return false, fmt.Sprintf("bodies do not match exactly. Expected %d bytes, got %d", len(m.ExpectedBody), len(body))
}

// StringContainsBodyMatcher checks if the body contains a specific substring.
type StringContainsBodyMatcher struct {
	Substring string
}

func (m *StringContainsBodyMatcher) Match(body []byte) (bool, string) {
	if bytes.Contains(body, []byte(m.Substring)) {
		return true, ""
	}
	return false, fmt.Sprintf("body does not contain substring: %q", m.Substring)
}

// Do sends req to addr, reads until the server closes the connection and
// parses the response. The server must close after one response.
func Do(addr string, req TestRequest, timeout time.Duration) (ActualResponse, error) {
	raw, err := SendRaw(addr, req.Bytes(), timeout)
	if err != nil {
		return ActualResponse{}, err
	}
	return ParseResponse(raw)
}

// SendRaw writes payload in one write and returns every byte the server
// sends until it closes the connection.
func SendRaw(addr string, payload []byte, timeout time.Duration) ([]byte, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if _, err := conn.Write(payload); err != nil {
			return nil, fmt.Errorf("write request: %w", err)
		}
	}
	raw, err := io.ReadAll(conn)
	if err != nil {
		return raw, fmt.Errorf("read response: %w", err)
	}
	return raw, nil
}

// ParseResponse parses one HTTP/1.1 response. A body whose length differs
// from Content-Length is an error.
func ParseResponse(raw []byte) (ActualResponse, error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
	if err != nil {
		return ActualResponse{Raw: raw}, fmt.Errorf("parse response: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ActualResponse{Raw: raw}, fmt.Errorf("read response body: %w", err)
	}
	return ActualResponse{StatusCode: resp.StatusCode, Headers: resp.Header, Body: body, Close: resp.Close, Raw: raw}, nil
}

// GetFreePort asks the kernel for a free TCP port on localhost.
func GetFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// WriteTempConfig writes configData to a new file under dir as "json" or "toml".
func WriteTempConfig(dir string, configData interface{}, format string) (string, error) {
	var data []byte
	switch strings.ToLower(format) {
	case "json":
		var err error
		data, err = json.MarshalIndent(configData, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal JSON config: %w", err)
		}
	case "toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(configData); err != nil {
			return "", fmt.Errorf("encode TOML config: %w", err)
		}
		data = buf.Bytes()
	default:
		return "", fmt.Errorf("unsupported config format %q", format)
	}

	path := filepath.Join(dir, "config."+strings.ToLower(format))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
