package http1

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// HeaderField represents a single HTTP header field (name-value pair).
type HeaderField struct {
	Name  string
	Value string
}

var (
	// ErrHeadersCommitted is returned when a second status line is attempted.
	ErrHeadersCommitted = errors.New("http1: response headers already written")
	// ErrHeadersNotWritten is returned by Write before WriteHeader.
	ErrHeadersNotWritten = errors.New("http1: write before response headers")
)

// ResponseWriter frames a single response on a connection. Every response
// carries Connection: close; bodies are framed by Content-Length only.
type ResponseWriter struct {
	w         *bufio.Writer
	committed bool
	status    int
	written   int64
}

// NewResponseWriter wraps w.
func NewResponseWriter(w io.Writer) *ResponseWriter {
	return &ResponseWriter{w: bufio.NewWriterSize(w, DefaultReadBufferSize)}
}

// WriteHeader writes the status line and fields. Any Connection field in
// fields is replaced by Connection: close.
func (rw *ResponseWriter) WriteHeader(status int, fields []HeaderField) error {
	if rw.committed {
		return ErrHeadersCommitted
	}
	rw.committed = true
	rw.status = status

	text := http.StatusText(status)
	if text == "" {
		text = "Status " + strconv.Itoa(status)
	}
	if _, err := fmt.Fprintf(rw.w, "HTTP/1.1 %d %s\r\n", status, text); err != nil {
		return err
	}
	for _, f := range fields {
		if strings.EqualFold(f.Name, "Connection") {
			continue
		}
		if _, err := fmt.Fprintf(rw.w, "%s: %s\r\n", f.Name, sanitizeFieldValue(f.Value)); err != nil {
			return err
		}
	}
	_, err := rw.w.WriteString("Connection: close\r\n\r\n")
	return err
}

// Write sends body bytes after WriteHeader.
func (rw *ResponseWriter) Write(p []byte) (int, error) {
	if !rw.committed {
		return 0, ErrHeadersNotWritten
	}
	n, err := rw.w.Write(p)
	rw.written += int64(n)
	return n, err
}

// SendResponse writes a complete response whose Content-Length is the byte
// length of body.
func (rw *ResponseWriter) SendResponse(status int, body []byte, contentType string) error {
	return rw.SendResponseWithHeaders(status, body, contentType, nil)
}

// SendResponseWithHeaders is SendResponse with additional header fields.
func (rw *ResponseWriter) SendResponseWithHeaders(status int, body []byte, contentType string, extra []HeaderField) error {
	fields := make([]HeaderField, 0, len(extra)+2)
	fields = append(fields,
		HeaderField{Name: "Content-Type", Value: contentType},
		HeaderField{Name: "Content-Length", Value: strconv.Itoa(len(body))},
	)
	fields = append(fields, extra...)
	if err := rw.WriteHeader(status, fields); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := rw.Write(body); err != nil {
			return err
		}
	}
	return rw.Flush()
}

// Flush pushes buffered bytes to the connection.
func (rw *ResponseWriter) Flush() error {
	return rw.w.Flush()
}

// Committed reports whether the status line has been written.
func (rw *ResponseWriter) Committed() bool { return rw.committed }

// Status returns the status written, or 0.
func (rw *ResponseWriter) Status() int { return rw.status }

// BytesWritten returns the number of body bytes accepted so far.
func (rw *ResponseWriter) BytesWritten() int64 { return rw.written }

func sanitizeFieldValue(v string) string {
	if !strings.ContainsAny(v, "\r\n") {
		return v
	}
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
