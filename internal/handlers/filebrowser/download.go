package filebrowser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"example.com/fileshare/internal/http1"
)

var quotedStringEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\r", "", "\n", "")

// AttachmentDisposition builds a Content-Disposition value carrying name both
// as a quoted filename and as an RFC 5987 UTF-8 filename*.
func AttachmentDisposition(name string) string {
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, quotedStringEscaper.Replace(name), http1.Escape(name))
}

// serveAttachment sends the whole file with a Content-Disposition that makes
// browsers save it.
func (b *Browser) serveAttachment(rw *http1.ResponseWriter, fsPath string, fi os.FileInfo) error {
	f, err := os.Open(fsPath)
	if err != nil {
		return http1.WrapError(http1.KindIOFailure, err, "opening %s", fsPath)
	}
	defer f.Close()

	return b.streamWhole(rw, f, fsPath, fi.Size(), []http1.HeaderField{
		{Name: "Content-Type", Value: b.mimes.GetMimeType(fsPath)},
		{Name: "Content-Disposition", Value: AttachmentDisposition(filepath.Base(fsPath))},
	})
}
