package filebrowser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"example.com/fileshare/internal/http1"
	"example.com/fileshare/internal/logger"
)

// ArchiveFileName is the name offered for multi-file downloads.
const ArchiveFileName = "files.zip"

// Archiver answers POST /download by zipping the selected files in memory.
type Archiver struct {
	resolver *Resolver
	log      *logger.Logger
}

// NewArchiver returns an Archiver that resolves every requested path through resolver.
func NewArchiver(resolver *Resolver, lg *logger.Logger) *Archiver {
	if lg == nil {
		lg = logger.NewDiscardLogger()
	}
	return &Archiver{resolver: resolver, log: lg}
}

// ParseArchiveRequest extracts the file list from a form body of the shape
// files=<comma separated, individually percent-encoded paths>.
func ParseArchiveRequest(body []byte) ([]string, error) {
	form := http1.ParseQuery(string(body))
	raw, ok := form["files"]
	if !ok {
		return nil, http1.NewError(http1.KindMalformedRequest, "form field 'files' is missing")
	}
	var paths []string
	for _, p := range strings.Split(raw, ",") {
		if p = http1.Unescape(strings.TrimSpace(p)); p != "" {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

func (a *Archiver) ServeHTTP1(rw *http1.ResponseWriter, req *http1.Request) error {
	paths, err := ParseArchiveRequest(req.Body)
	if err != nil {
		return err
	}

	body, added, err := a.Build(paths)
	if err != nil {
		return err
	}
	a.log.Info("Built archive", logger.LogFields{"requested": len(paths), "added": added, "bytes": len(body)})

	return rw.SendResponseWithHeaders(http.StatusOK, body, "application/zip", []http1.HeaderField{
		{Name: "Content-Disposition", Value: fmt.Sprintf(`attachment; filename="%s"`, ArchiveFileName)},
	})
}

// Build writes the regular files among paths into a ZIP archive and returns
// it with the number of entries. Paths that are refused, missing or not
// regular files are skipped. Each entry is named by its base name as is, so
// files sharing a base name yield entries with the same name.
func (a *Archiver) Build(paths []string) ([]byte, int, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	added := 0

	for _, p := range paths {
		fsPath, err := a.resolver.Canonicalize(p)
		if err != nil {
			a.log.Warn("Skipping archive entry", logger.LogFields{"path": p, "error": err.Error()})
			continue
		}
		fi, err := os.Stat(fsPath)
		if err != nil || !fi.Mode().IsRegular() {
			a.log.Warn("Skipping archive entry that is not a regular file", logger.LogFields{"path": fsPath})
			continue
		}
		f, err := os.Open(fsPath)
		if err != nil {
			a.log.Warn("Skipping unreadable archive entry", logger.LogFields{"path": fsPath, "error": err.Error()})
			continue
		}
		err = addEntry(zw, filepath.Base(fsPath), fi, f)
		f.Close()
		if err != nil {
			return nil, 0, http1.WrapError(http1.KindIOFailure, err, "adding %s to archive", fsPath)
		}
		added++
	}

	if err := zw.Close(); err != nil {
		return nil, 0, http1.WrapError(http1.KindIOFailure, err, "finishing archive")
	}
	return buf.Bytes(), added, nil
}

func addEntry(zw *zip.Writer, name string, fi os.FileInfo, r io.Reader) error {
	hdr, err := zip.FileInfoHeader(fi)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, r)
	return err
}
