package filebrowser

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"example.com/fileshare/internal/http1"
	"example.com/fileshare/internal/logger"
)

// servePreview renders the preview page for a regular file. Media and PDF
// files are embedded through their raw URL; text-like files are inlined up
// to the preview limit.
func (b *Browser) servePreview(rw *http1.ResponseWriter, fsPath string, fi os.FileInfo) error {
	mimeType := b.mimes.GetMimeType(fsPath)
	p := FilePreview{
		Path:     fsPath,
		Name:     filepath.Base(fsPath),
		Dir:      b.browsable(filepath.Dir(fsPath)),
		Size:     fi.Size(),
		ModTime:  fi.ModTime(),
		MimeType: mimeType,
		Kind:     Classify(mimeType),
		Crumbs:   b.crumbs(fsPath),
	}
	if p.Kind == KindText {
		text, truncated, err := readPreviewText(fsPath, b.previewLimit)
		if err != nil {
			return http1.WrapError(http1.KindIOFailure, err, "reading preview of %s", fsPath)
		}
		p.Text, p.Truncated = text, truncated
	}

	body, err := b.assembler.Preview(p)
	if err != nil {
		return http1.WrapError(http1.KindIOFailure, err, "rendering preview of %s", fsPath)
	}
	b.log.Debug("Rendered preview", logger.LogFields{"path": fsPath, "mime_type": mimeType, "truncated": p.Truncated})
	return rw.SendResponse(http.StatusOK, body, htmlContentType)
}

// readPreviewText returns at most limit bytes of the file as valid UTF-8 and
// whether the file holds more than that.
func readPreviewText(fsPath string, limit int64) (string, bool, error) {
	f, err := os.Open(fsPath)
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return "", false, err
	}
	truncated := int64(len(data)) > limit
	if truncated {
		data = data[:limit]
	}
	return strings.ToValidUTF8(string(data), "�"), truncated, nil
}
