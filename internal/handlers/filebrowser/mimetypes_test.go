package filebrowser_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/fileshare/internal/config"
	"example.com/fileshare/internal/handlers/filebrowser"
)

func TestMimeTypeResolver_GetMimeType(t *testing.T) {
	resolver, err := filebrowser.NewMimeTypeResolver(&config.BrowserConfig{
		MimeTypes: map[string]string{".MKV": "video/x-custom"},
	})
	require.NoError(t, err)

	tests := map[string]string{
		"movie.mkv":     "video/x-custom",
		"README.TXT":    "text/plain; charset=utf-8",
		"clip.mp4":      "video/mp4",
		"song.flac":     "audio/flac",
		"no-extension":  "application/octet-stream",
		"archive.weird": "application/octet-stream",
	}
	for name, want := range tests {
		assert.Equal(t, want, resolver.GetMimeType(name), "GetMimeType(%q)", name)
	}
}

func TestMimeTypeResolver_NilIsUsable(t *testing.T) {
	var resolver *filebrowser.MimeTypeResolver
	assert.Equal(t, "image/png", resolver.GetMimeType("/x/a.png"))
}

func TestNewMimeTypeResolver_FileOverridesInline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mime.json")
	require.NoError(t, os.WriteFile(path, []byte(`{".Custom": "application/x-from-file"}`), 0o644))

	resolver, err := filebrowser.NewMimeTypeResolver(&config.BrowserConfig{
		MimeTypes:     map[string]string{".custom": "application/x-inline"},
		MimeTypesPath: &path,
	})
	require.NoError(t, err)
	assert.Equal(t, "application/x-from-file", resolver.GetMimeType("a.custom"))
}

func TestLoadCustomMimeTypesFromFile_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"bad-json.json": `{".a": `,
		"no-dot.json":   `{"txt": "text/plain"}`,
		"empty-mt.json": `{".txt": ""}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			_, err := filebrowser.LoadCustomMimeTypesFromFile(path)
			assert.Error(t, err)
		})
	}

	_, err := filebrowser.LoadCustomMimeTypesFromFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := map[string]filebrowser.FileKind{
		"image/jpeg":                    filebrowser.KindImage,
		"video/mp4":                     filebrowser.KindVideo,
		"audio/mpeg":                    filebrowser.KindAudio,
		"application/pdf":               filebrowser.KindPDF,
		"application/msword":            filebrowser.KindDocument,
		"application/vnd.ms-excel":      filebrowser.KindSpreadsheet,
		"application/vnd.ms-powerpoint": filebrowser.KindPresentation,
		"text/plain; charset=utf-8":     filebrowser.KindText,
		"application/json":              filebrowser.KindText,
		"application/zip":               filebrowser.KindOther,
		"application/octet-stream":      filebrowser.KindOther,
	}
	for ct, want := range tests {
		assert.Equal(t, want, filebrowser.Classify(ct), "Classify(%q)", ct)
	}
	assert.Equal(t, "🖼️", filebrowser.KindImage.Icon())
	assert.Equal(t, "📄", filebrowser.KindText.Icon())
}
