package filebrowser

import (
	"errors"
	"path/filepath"
	"strings"

	"example.com/fileshare/internal/http1"
)

// ErrNoTarget is returned by Resolve when the request names no path; the
// caller shows the volume list instead.
var ErrNoTarget = errors.New("filebrowser: no path requested")

// RenderMode selects how a regular file is answered.
type RenderMode int

const (
	// RenderPreview shows an HTML page describing or embedding the file.
	RenderPreview RenderMode = iota
	// RenderDownload sends the file as an attachment.
	RenderDownload
	// RenderRaw streams the bytes, honouring Range.
	RenderRaw
)

func (m RenderMode) String() string {
	switch m {
	case RenderRaw:
		return "raw"
	case RenderDownload:
		return "download"
	default:
		return "preview"
	}
}

// ResolvedTarget is a request path after canonicalization and policy checks.
type ResolvedTarget struct {
	// LogicalPath is the path as the client sent it, decoded.
	LogicalPath string
	// FSPath is the canonical absolute filesystem path.
	FSPath   string
	Download bool
	Preview  bool
	Raw      bool
}

// Mode returns the render mode; raw beats download, which beats preview.
func (t ResolvedTarget) Mode() RenderMode {
	switch {
	case t.Raw:
		return RenderRaw
	case t.Download:
		return RenderDownload
	default:
		return RenderPreview
	}
}

// Resolver maps client supplied paths onto the filesystem. Every path the
// browser and the archive builder touch goes through Canonicalize.
type Resolver struct {
	policy Policy
}

// NewResolver returns a Resolver enforcing policy. A nil policy denies everything.
func NewResolver(policy Policy) *Resolver {
	if policy == nil {
		policy = NewRootsPolicy()
	}
	return &Resolver{policy: policy}
}

// Allowed reports whether policy admits absPath.
func (r *Resolver) Allowed(absPath string) bool {
	return r.policy.Allow(absPath)
}

// Resolve reads the path and flag parameters of a decoded query.
func (r *Resolver) Resolve(query map[string]string) (ResolvedTarget, error) {
	logical := query["path"]
	fsPath, err := r.Canonicalize(logical)
	if err != nil {
		return ResolvedTarget{}, err
	}
	return ResolvedTarget{
		LogicalPath: logical,
		FSPath:      fsPath,
		Download:    query["download"] == "1",
		Preview:     query["preview"] == "1",
		Raw:         query["raw"] == "1",
	}, nil
}

// Canonicalize turns a decoded client path into an absolute host path.
// Any ".." substring is refused outright, before any normalization.
func (r *Resolver) Canonicalize(logical string) (string, error) {
	if logical == "" {
		return "", ErrNoTarget
	}
	if strings.Contains(logical, "..") {
		return "", http1.NewError(http1.KindForbidden, "path %q contains '..'", logical)
	}

	p := normalizeSeparators(logical)
	if isDriveRoot(p) {
		p += string(filepath.Separator)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", http1.WrapError(http1.KindIOFailure, err, "canonicalizing %q", logical)
	}
	if !r.policy.Allow(abs) {
		return "", http1.NewError(http1.KindForbidden, "path %q is outside the allowed roots", abs)
	}
	return abs, nil
}

func normalizeSeparators(p string) string {
	sep := string(filepath.Separator)
	return strings.NewReplacer("/", sep, `\`, sep).Replace(p)
}

// isDriveRoot reports whether p is a bare drive designator such as "C:".
func isDriveRoot(p string) bool {
	if len(p) != 2 || p[1] != ':' {
		return false
	}
	c := p[0] | 0x20
	return c >= 'a' && c <= 'z'
}
