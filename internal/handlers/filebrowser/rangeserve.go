package filebrowser

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"example.com/fileshare/internal/http1"
	"example.com/fileshare/internal/logger"
)

// chunkSize is the read size used when streaming file bodies.
const chunkSize = 8192

// RangeSpec is an inclusive byte range.
type RangeSpec struct {
	Start int64
	End   int64
}

// Length is the number of bytes the range covers.
func (r RangeSpec) Length() int64 { return r.End - r.Start + 1 }

// ContentRange formats the Content-Range value for a file of total bytes.
func (r RangeSpec) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

// ParseRange interprets a Range header value against a file of total bytes.
// Only the single-range form "bytes=<start>-[end]" is served; ok is false when
// the header asks for several ranges and should be ignored. A missing end,
// or one past the last byte, is clamped to total-1.
func ParseRange(header string, total int64) (spec RangeSpec, ok bool, err error) {
	unit, set, found := strings.Cut(strings.TrimSpace(header), "=")
	if !found || !strings.EqualFold(strings.TrimSpace(unit), "bytes") {
		return RangeSpec{}, false, http1.NewError(http1.KindMalformedRequest, "unsupported range %q", header)
	}
	if strings.Contains(set, ",") {
		return RangeSpec{}, false, nil
	}

	startStr, endStr, found := strings.Cut(strings.TrimSpace(set), "-")
	if !found {
		return RangeSpec{}, false, http1.NewError(http1.KindMalformedRequest, "malformed range %q", header)
	}
	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil || start < 0 {
		return RangeSpec{}, false, http1.NewError(http1.KindMalformedRequest, "malformed range start in %q", header)
	}

	end := total - 1
	if endStr = strings.TrimSpace(endStr); endStr != "" {
		e, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || e < 0 {
			return RangeSpec{}, false, http1.NewError(http1.KindMalformedRequest, "malformed range end in %q", header)
		}
		if e < end {
			end = e
		}
	}

	if start > end {
		return RangeSpec{}, false, &http1.Error{
			Kind:    http1.KindRangeNotSatisfiable,
			Message: fmt.Sprintf("range %q not satisfiable for %d bytes", header, total),
			Headers: []http1.HeaderField{{Name: "Content-Range", Value: fmt.Sprintf("bytes */%d", total)}},
		}
	}
	return RangeSpec{Start: start, End: end}, true, nil
}

// serveRaw streams the file at fsPath, honouring a single byte range.
func (b *Browser) serveRaw(rw *http1.ResponseWriter, req *http1.Request, fsPath string, fi os.FileInfo) error {
	total := fi.Size()
	contentType := b.mimes.GetMimeType(fsPath)

	var spec RangeSpec
	partial := false
	if header, ok := req.Header("Range"); ok {
		var err error
		spec, partial, err = ParseRange(header, total)
		if err != nil {
			return err
		}
	}

	f, err := os.Open(fsPath)
	if err != nil {
		return http1.WrapError(http1.KindIOFailure, err, "opening %s", fsPath)
	}
	defer f.Close()

	if !partial {
		return b.streamWhole(rw, f, fsPath, total, []http1.HeaderField{
			{Name: "Content-Type", Value: contentType},
			{Name: "Accept-Ranges", Value: "bytes"},
		})
	}

	if _, err := f.Seek(spec.Start, io.SeekStart); err != nil {
		return http1.WrapError(http1.KindIOFailure, err, "seeking %s to %d", fsPath, spec.Start)
	}
	headers := []http1.HeaderField{
		{Name: "Content-Type", Value: contentType},
		{Name: "Content-Length", Value: strconv.FormatInt(spec.Length(), 10)},
		{Name: "Content-Range", Value: spec.ContentRange(total)},
		{Name: "Accept-Ranges", Value: "bytes"},
	}
	if err := rw.WriteHeader(http.StatusPartialContent, headers); err != nil {
		return http1.WrapError(http1.KindIOFailure, err, "writing headers")
	}
	b.log.Debug("Serving byte range", logger.LogFields{"path": fsPath, "start": spec.Start, "end": spec.End, "total": total})
	return copyChunks(rw, f, spec.Length())
}

// streamWhole sends a 200 with Content-Length total followed by the file body.
func (b *Browser) streamWhole(rw *http1.ResponseWriter, f io.Reader, fsPath string, total int64, fields []http1.HeaderField) error {
	headers := append([]http1.HeaderField{{Name: "Content-Length", Value: strconv.FormatInt(total, 10)}}, fields...)
	if err := rw.WriteHeader(http.StatusOK, headers); err != nil {
		return http1.WrapError(http1.KindIOFailure, err, "writing headers")
	}
	b.log.Debug("Streaming file", logger.LogFields{"path": fsPath, "size": total})
	return copyChunks(rw, f, total)
}

// copyChunks copies exactly n bytes from r to w in chunks of at most chunkSize.
// A source that ends early is an error; the response is already committed
// by then and the connection must be abandoned.
func copyChunks(w io.Writer, r io.Reader, n int64) error {
	buf := make([]byte, chunkSize)
	remaining := n
	for remaining > 0 {
		want := int64(len(buf))
		if remaining < want {
			want = remaining
		}
		read, err := r.Read(buf[:want])
		if read > 0 {
			if _, werr := w.Write(buf[:read]); werr != nil {
				return http1.WrapError(http1.KindIOFailure, werr, "writing body")
			}
			remaining -= int64(read)
		}
		if err == io.EOF {
			if remaining > 0 {
				return http1.WrapError(http1.KindIOFailure, io.ErrUnexpectedEOF, "file ended %d bytes early", remaining)
			}
			break
		}
		if err != nil {
			return http1.WrapError(http1.KindIOFailure, err, "reading body")
		}
	}
	return nil
}
