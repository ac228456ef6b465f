package filebrowser

import (
	"bufio"
	"bytes"
	"html"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/fileshare/internal/config"
	"example.com/fileshare/internal/http1"
	"example.com/fileshare/internal/volumes"
)

// newTestTree creates a share with a nested directory and a few files.
func newTestTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Photos", "2024"), 0o755))
	files := map[string]string{
		"notes.txt":               "hello from the share\n",
		"Photos/beach.jpg":        "\xff\xd8\xff\xe0 not really a jpeg",
		"data.bin":                "0123456789abcdefghijklmnopqrstuvwxyz",
		"Photos/2024/summary.txt": "<b>bold?</b>",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, filepath.FromSlash(name)), []byte(content), 0o644))
	}
	return root
}

func newTestBrowser(t *testing.T, root string) *Browser {
	t.Helper()
	return NewBrowser(Options{
		Policy:  NewRootsPolicy(root),
		Volumes: volumes.Paths(root),
	})
}

// serve runs one request through h and parses what it wrote.
func serve(t *testing.T, h interface {
	ServeHTTP1(*http1.ResponseWriter, *http1.Request) error
}, raw string) (*http.Response, []byte, error) {
	t.Helper()
	req, err := http1.ParseRequest([]byte(raw))
	require.NoError(t, err)

	var buf bytes.Buffer
	rw := http1.NewResponseWriter(&buf)
	serveErr := h.ServeHTTP1(rw, req)
	require.NoError(t, rw.Flush())
	if buf.Len() == 0 {
		return nil, nil, serveErr
	}

	resp, err := http.ReadResponse(bufio.NewReader(&buf), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body, serveErr
}

func get(target string, headers ...string) string {
	var sb strings.Builder
	sb.WriteString("GET " + target + " HTTP/1.1\r\nHost: localhost\r\n")
	for _, h := range headers {
		sb.WriteString(h + "\r\n")
	}
	sb.WriteString("\r\n")
	return sb.String()
}

func TestBrowser_VolumesWhenNoPath(t *testing.T) {
	root := newTestTree(t)
	b := NewBrowser(Options{
		Policy: NewRootsPolicy(root),
		Volumes: volumes.ListerFunc(func() ([]volumes.Volume, error) {
			return []volumes.Volume{
				{Path: root, Label: "Share"},
				{Path: "/elsewhere", Label: "Hidden"},
			}, nil
		}),
	})

	resp, body, err := serve(t, b, get("/"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.True(t, resp.Close)
	assert.Contains(t, string(body), "Share ("+root+")")
	assert.NotContains(t, string(body), "Hidden")
}

func TestBrowser_DirectoryListing(t *testing.T) {
	root := newTestTree(t)
	b := newTestBrowser(t, root)

	resp, body, err := serve(t, b, get(BrowseURL(root)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	page := string(body)
	photos := strings.Index(page, ">Photos<")
	data := strings.Index(page, ">data.bin<")
	notes := strings.Index(page, ">notes.txt<")
	require.True(t, photos > 0 && data > 0 && notes > 0, "listing misses entries:\n%s", page)
	assert.Less(t, photos, data, "directories come first")
	assert.Less(t, data, notes)

	assert.Contains(t, page, `action="/download"`)
	assert.Contains(t, page, `class="file-checkbox" value="`+http1.Escape(filepath.Join(root, "notes.txt"))+`"`)
	// The parent of the root is outside the policy, so Back leads to the volume list.
	assert.Contains(t, page, `<a href="/">Back</a>`)
}

func TestBrowser_NestedDirectoryParentLink(t *testing.T) {
	root := newTestTree(t)
	b := newTestBrowser(t, root)

	nested := filepath.Join(root, "Photos", "2024")
	resp, body, err := serve(t, b, get(BrowseURL(nested)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `href="`+BrowseURL(filepath.Join(root, "Photos"))+`">Back</a>`)
	assert.Contains(t, string(body), ">summary.txt<")
}

func TestBrowser_PreviewText(t *testing.T) {
	root := newTestTree(t)
	b := newTestBrowser(t, root)

	path := filepath.Join(root, "Photos", "2024", "summary.txt")
	resp, body, err := serve(t, b, get(PreviewURL(path)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "<pre>&lt;b&gt;bold?&lt;/b&gt;</pre>")
	assert.Contains(t, string(body), `href="`+html.EscapeString(DownloadURL(path))+`"`)
}

func TestBrowser_PreviewIsDefaultAndEmbedsImages(t *testing.T) {
	root := newTestTree(t)
	b := newTestBrowser(t, root)

	path := filepath.Join(root, "Photos", "beach.jpg")
	resp, body, err := serve(t, b, get(BrowseURL(path)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `<img class="preview" src="`+html.EscapeString(RawURL(path))+`"`)
}

func TestBrowser_PreviewTruncatesLongText(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "big.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("a", 64)+"TAIL"), 0o644))
	b := NewBrowser(Options{Policy: NewRootsPolicy(root), PreviewTextMaxBytes: 64})

	_, body, err := serve(t, b, get(PreviewURL(path)))
	require.NoError(t, err)
	assert.Contains(t, string(body), strings.Repeat("a", 64))
	assert.NotContains(t, string(body), "TAIL")
	assert.Contains(t, string(body), "Only the beginning of the file is shown.")
}

func TestBrowser_DownloadRoundTrip(t *testing.T) {
	root := newTestTree(t)
	b := newTestBrowser(t, root)

	path := filepath.Join(root, "notes.txt")
	resp, body, err := serve(t, b, get(DownloadURL(path)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	want, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, body)
	assert.Equal(t, `attachment; filename="notes.txt"; filename*=UTF-8''notes.txt`, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, int64(len(want)), resp.ContentLength)
}

func TestBrowser_RawBeatsDownload(t *testing.T) {
	root := newTestTree(t)
	b := newTestBrowser(t, root)

	path := filepath.Join(root, "data.bin")
	resp, _, err := serve(t, b, get(BrowseURL(path)+"&download=1&raw=1&preview=1"))
	require.NoError(t, err)
	assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))
	assert.Empty(t, resp.Header.Get("Content-Disposition"))
}

func TestBrowser_Errors(t *testing.T) {
	root := newTestTree(t)
	b := newTestBrowser(t, root)

	tests := []struct {
		name   string
		target string
		kind   http1.ErrorKind
	}{
		{"missing file", BrowseURL(filepath.Join(root, "missing.txt")), http1.KindNotFound},
		{"dot dot", BrowseURL(root + "/Photos/../notes.txt"), http1.KindForbidden},
		{"outside roots", BrowseURL(filepath.Dir(root)), http1.KindForbidden},
		{"bad range", RawURL(filepath.Join(root, "data.bin")), http1.KindRangeNotSatisfiable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers []string
			if tt.kind == http1.KindRangeNotSatisfiable {
				headers = append(headers, "Range: bytes=100-")
			}
			resp, _, err := serve(t, b, get(tt.target, headers...))
			assert.Nil(t, resp, "nothing may be written before the error is returned")
			require.Error(t, err)
			assert.Equal(t, tt.kind, http1.KindOf(err))
		})
	}
}

func TestPolicyFromConfig(t *testing.T) {
	root := t.TempDir()
	allowAll, deny := true, false

	_, _, err := PolicyFromConfig(&config.BrowserConfig{AllowAllPaths: &deny})
	assert.Error(t, err)

	p, lister, err := PolicyFromConfig(&config.BrowserConfig{AllowedRoots: []string{root}, AllowAllPaths: &deny})
	require.NoError(t, err)
	assert.True(t, p.Allow(filepath.Join(root, "x")))
	assert.False(t, p.Allow(filepath.Dir(root)))
	vols, err := lister.List()
	require.NoError(t, err)
	require.Len(t, vols, 1)
	assert.Equal(t, root, vols[0].Path)

	p, _, err = PolicyFromConfig(&config.BrowserConfig{AllowAllPaths: &allowAll})
	require.NoError(t, err)
	assert.True(t, p.Allow(filepath.Dir(root)))
}

func TestNewFromConfig_MimeTypesPathError(t *testing.T) {
	root := t.TempDir()
	missing := filepath.Join(root, "nope.json")
	_, err := NewFromConfig(&config.BrowserConfig{AllowedRoots: []string{root}, MimeTypesPath: &missing}, nil)
	require.Error(t, err)
	var cfgErr *config.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
