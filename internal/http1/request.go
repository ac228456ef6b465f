// Package http1 implements the small HTTP/1.x subset the file server speaks:
// one request per connection, read in a single bounded read, and
// Content-Length framed responses followed by connection close.
package http1

import (
	"bytes"
	"encoding/hex"
	"net/url"
	"strings"
)

// DefaultReadBufferSize bounds the single read a request must fit into.
// Anything past it is silently dropped.
const DefaultReadBufferSize = 8192

var headerTerminator = []byte("\r\n\r\n")

// Request is a parsed request. It is not modified after ParseRequest returns,
// except for RemoteAddr which the server fills in.
type Request struct {
	Method   string
	Target   string // raw request target, for example "/?path=C%3A%2F"
	Path     string
	RawQuery string
	Proto    string
	// Query holds percent-decoded parameters; on duplicate keys the last one wins.
	Query map[string]string
	// Body is everything after the first blank line, or nil when there is none.
	Body       []byte
	RemoteAddr string

	headerLines []string
}

// ParseRequest parses the bytes of a single read.
func ParseRequest(buf []byte) (*Request, error) {
	if len(buf) == 0 {
		return nil, NewError(KindMalformedRequest, "empty request")
	}

	head := buf
	var body []byte
	if i := bytes.Index(buf, headerTerminator); i >= 0 {
		head = buf[:i]
		if rest := buf[i+len(headerTerminator):]; len(rest) > 0 {
			body = append([]byte(nil), rest...)
		}
	}

	lines := strings.Split(string(head), "\n")
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}

	// Single spaces separate the parts; a doubled space yields an empty token.
	tokens := strings.Split(lines[0], " ")
	if len(tokens) < 3 {
		return nil, NewError(KindMalformedRequest, "request line %q has fewer than three parts", truncate(lines[0], 64))
	}
	method := tokens[0]
	if method != "GET" && method != "POST" {
		return nil, NewError(KindMalformedRequest, "unsupported method %q", truncate(method, 16))
	}

	req := &Request{
		Method: method,
		Target: tokens[1],
		Proto:  tokens[2],
		Body:   body,
	}
	req.Path, req.RawQuery, _ = strings.Cut(req.Target, "?")
	req.Query = ParseQuery(req.RawQuery)

	for _, line := range lines[1:] {
		if line == "" {
			break
		}
		req.headerLines = append(req.headerLines, line)
	}
	return req, nil
}

// Header returns the trimmed value of the first header line whose name
// matches name case-insensitively.
func (r *Request) Header(name string) (string, bool) {
	prefix := name + ":"
	for _, line := range r.headerLines {
		if len(line) >= len(prefix) && strings.EqualFold(line[:len(prefix)], prefix) {
			return strings.TrimSpace(line[len(prefix):]), true
		}
	}
	return "", false
}

// QueryValue returns the decoded query parameter key, or "".
func (r *Request) QueryValue(key string) string {
	return r.Query[key]
}

// Flag reports whether query parameter key is exactly "1".
func (r *Request) Flag(key string) bool {
	return r.Query[key] == "1"
}

// ParseQuery splits raw on '&' and each pair on its first '='. Keys and
// values are percent-decoded; a pair without '=' maps to "". Empty pairs
// are skipped and later duplicates overwrite earlier ones.
func ParseQuery(raw string) map[string]string {
	q := make(map[string]string)
	if raw == "" {
		return q
	}
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		q[Unescape(k)] = Unescape(v)
	}
	return q
}

// Unescape percent-decodes every well-formed %XX in s. Malformed escapes
// and '+' are kept as they are.
func Unescape(s string) string {
	i := strings.IndexByte(s, '%')
	if i < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	b.WriteString(s[:i])
	for ; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			if dec, err := hex.DecodeString(s[i+1 : i+3]); err == nil {
				b.WriteByte(dec[0])
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// Escape percent-encodes every byte outside the unreserved set, spaces
// included, so the result survives both query and form parsing.
func Escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
