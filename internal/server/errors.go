package server

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"example.com/fileshare/internal/http1"
	"example.com/fileshare/internal/logger"
)

// jsonMarshalFunc is swapped out by tests.
var jsonMarshalFunc = json.Marshal

const (
	htmlErrorContentType = "text/html; charset=utf-8"
	jsonErrorContentType = "application/json; charset=utf-8"
)

// ErrorDetail is the "error" object of a JSON error body.
type ErrorDetail struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
}

// ErrorResponseJSON is the JSON error body.
type ErrorResponseJSON struct {
	Error ErrorDetail `json:"error"`
}

// errorExplanations holds the sentence shown under the heading of the HTML
// page for each status the browser produces.
var errorExplanations = map[int]string{
	http.StatusBadRequest:                   "The server cannot or will not process the request due to an apparent client error.",
	http.StatusForbidden:                    "You do not have permission to access this resource.",
	http.StatusNotFound:                     "The requested resource was not found on this server.",
	http.StatusRequestedRangeNotSatisfiable: "The requested byte range lies outside the file.",
	http.StatusInternalServerError:          "The server encountered an internal error and was unable to complete your request.",
}

// noStoreHeaders keep error pages out of every cache.
var noStoreHeaders = []http1.HeaderField{
	{Name: "Cache-Control", Value: "no-cache, no-store, must-revalidate"},
	{Name: "Pragma", Value: "no-cache"},
	{Name: "Expires", Value: "0"},
}

type acceptRange struct {
	mediaType string
	q         float64
	wildcard  bool
	order     int
}

// parseAccept returns the acceptable media ranges of an Accept value,
// dropping those with q=0. A malformed q counts as q=0.
func parseAccept(value string) []acceptRange {
	var ranges []acceptRange
	for i, part := range strings.Split(value, ",") {
		mediaType, params, _ := strings.Cut(part, ";")
		mediaType = strings.ToLower(strings.TrimSpace(mediaType))
		if mediaType == "" {
			continue
		}
		q := 1.0
		for _, param := range strings.Split(params, ";") {
			name, val, ok := strings.Cut(strings.TrimSpace(param), "=")
			if !ok || strings.TrimSpace(name) != "q" {
				continue
			}
			parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if err != nil || parsed < 0 || parsed > 1 {
				parsed = 0
			}
			q = parsed
			break
		}
		if q == 0 {
			continue
		}
		ranges = append(ranges, acceptRange{
			mediaType: mediaType,
			q:         q,
			wildcard:  mediaType == "*/*" || strings.HasSuffix(mediaType, "/*"),
			order:     i,
		})
	}
	return ranges
}

// PrefersJSON reports whether the most preferred media range of an Accept
// value is application/json. Ties on q go to the more specific range, then
// to the one listed first.
func PrefersJSON(accept string) bool {
	ranges := parseAccept(accept)
	if len(ranges) == 0 {
		return false
	}
	sort.SliceStable(ranges, func(i, j int) bool {
		a, b := ranges[i], ranges[j]
		if a.q != b.q {
			return a.q > b.q
		}
		if a.wildcard != b.wildcard {
			return !a.wildcard
		}
		return a.order < b.order
	})
	return ranges[0].mediaType == "application/json"
}

// WriteErrorResponse sends a complete error response for statusCode. The
// body is JSON when accept prefers it and an HTML page otherwise; detail is
// appended to the page or set as the JSON "detail". extra carries headers
// the error itself requires, such as Content-Range on a 416.
func WriteErrorResponse(rw *http1.ResponseWriter, statusCode int, accept, detail string, extra []http1.HeaderField, log *logger.Logger) error {
	body, contentType := htmlErrorBody(statusCode, detail), htmlErrorContentType
	if PrefersJSON(accept) {
		if b, err := jsonErrorBody(statusCode, detail); err == nil {
			body, contentType = b, jsonErrorContentType
		} else if log != nil {
			log.Error("Failed to marshal JSON error response, falling back to HTML.", logger.LogFields{"error": err.Error(), "status_code": statusCode})
		}
	}

	headers := make([]http1.HeaderField, 0, len(noStoreHeaders)+len(extra))
	headers = append(headers, noStoreHeaders...)
	headers = append(headers, extra...)
	if err := rw.SendResponseWithHeaders(statusCode, body, contentType, headers); err != nil {
		return fmt.Errorf("failed to send error response (status %d): %w", statusCode, err)
	}
	return nil
}

func statusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Error"
}

func jsonErrorBody(statusCode int, detail string) ([]byte, error) {
	return jsonMarshalFunc(ErrorResponseJSON{Error: ErrorDetail{
		StatusCode: statusCode,
		Message:    statusText(statusCode),
		Detail:     detail,
	}})
}

// htmlErrorBody renders the error page. For statuses without a canned
// explanation the detail replaces it.
func htmlErrorBody(statusCode int, detail string) []byte {
	text := statusText(statusCode)
	message, known := errorExplanations[statusCode]
	switch {
	case detail == "" && !known:
		message = "The server encountered an error processing your request."
	case detail != "" && known:
		message += " " + html.EscapeString(detail)
	case detail != "":
		message = html.EscapeString(detail)
	}
	return GenerateHTMLResponseBody(fmt.Sprintf("%d %s", statusCode, text), text, message)
}

// GenerateHTMLResponseBody creates a minimal HTML page. message must
// already be escaped.
func GenerateHTMLResponseBody(title, heading, message string) []byte {
	return []byte(fmt.Sprintf(`<html><head><title>%s</title></head><body><h1>%s</h1><p>%s</p></body></html>`,
		html.EscapeString(title), html.EscapeString(heading), message))
}

// TestingOnlySetJSONMarshal replaces the JSON marshaller and returns the previous one.
func TestingOnlySetJSONMarshal(fn func(v interface{}) ([]byte, error)) func(v interface{}) ([]byte, error) {
	previous := jsonMarshalFunc
	jsonMarshalFunc = fn
	return previous
}
