// Package filebrowser serves the host filesystem over the http1 subset: the
// volume list, directory listings, previews, downloads, ranged raw streams
// and multi-file ZIP archives.
package filebrowser

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"example.com/fileshare/internal/config"
	"example.com/fileshare/internal/http1"
	"example.com/fileshare/internal/logger"
	"example.com/fileshare/internal/volumes"
)

const htmlContentType = "text/html; charset=utf-8"

// DefaultPreviewTextMaxBytes bounds the text shown inline on preview pages.
const DefaultPreviewTextMaxBytes int64 = 1 << 20

// Options configures a Browser. Zero fields get defaults.
type Options struct {
	Policy              Policy
	Mimes               *MimeTypeResolver
	Assembler           Assembler
	Volumes             volumes.Lister
	Logger              *logger.Logger
	PreviewTextMaxBytes int64
}

// Browser answers GET requests on the browse route.
type Browser struct {
	resolver     *Resolver
	mimes        *MimeTypeResolver
	assembler    Assembler
	volumes      volumes.Lister
	log          *logger.Logger
	previewLimit int64
}

// NewBrowser builds a Browser from opts.
func NewBrowser(opts Options) *Browser {
	b := &Browser{
		resolver:     NewResolver(opts.Policy),
		mimes:        opts.Mimes,
		assembler:    opts.Assembler,
		volumes:      opts.Volumes,
		log:          opts.Logger,
		previewLimit: opts.PreviewTextMaxBytes,
	}
	if b.mimes == nil {
		b.mimes, _ = NewMimeTypeResolver(nil)
	}
	if b.assembler == nil {
		b.assembler = NewHTMLAssembler()
	}
	if b.volumes == nil {
		b.volumes = volumes.System()
	}
	if b.log == nil {
		b.log = logger.NewDiscardLogger()
	}
	if b.previewLimit <= 0 {
		b.previewLimit = DefaultPreviewTextMaxBytes
	}
	return b
}

// PolicyFromConfig derives the access policy and the matching volume lister
// from the browser section. With allow_all_paths every host volume is listed;
// otherwise the allowed roots stand in for volumes.
func PolicyFromConfig(cfg *config.BrowserConfig) (Policy, volumes.Lister, error) {
	if cfg == nil {
		return nil, nil, errors.New("browser configuration is missing")
	}
	if cfg.AllowAllPaths != nil && *cfg.AllowAllPaths {
		return AllowAll(), volumes.System(), nil
	}
	if len(cfg.AllowedRoots) == 0 {
		return nil, nil, errors.New("browser.allowed_roots is empty and browser.allow_all_paths is false, nothing could be served")
	}
	p := NewRootsPolicy(cfg.AllowedRoots...)
	return p, volumes.Paths(p.Roots()...), nil
}

// NewFromConfig builds the Browser described by the browser section.
func NewFromConfig(cfg *config.BrowserConfig, lg *logger.Logger) (*Browser, error) {
	policy, lister, err := PolicyFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("FileBrowser: %w", err)
	}
	mimes, err := NewMimeTypeResolver(cfg)
	if err != nil {
		return nil, fmt.Errorf("FileBrowser: %w", err)
	}
	opts := Options{Policy: policy, Mimes: mimes, Volumes: lister, Logger: lg}
	if cfg.PreviewTextMaxBytes != nil {
		opts.PreviewTextMaxBytes = *cfg.PreviewTextMaxBytes
	}
	return NewBrowser(opts), nil
}

// NewArchiverFromConfig builds the Archiver sharing the browser's policy.
func NewArchiverFromConfig(cfg *config.BrowserConfig, lg *logger.Logger) (*Archiver, error) {
	policy, _, err := PolicyFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("ArchiveDownload: %w", err)
	}
	return NewArchiver(NewResolver(policy), lg), nil
}

func (b *Browser) ServeHTTP1(rw *http1.ResponseWriter, req *http1.Request) error {
	target, err := b.resolver.Resolve(req.Query)
	if errors.Is(err, ErrNoTarget) {
		return b.serveVolumes(rw)
	}
	if err != nil {
		return err
	}

	fi, err := os.Stat(target.FSPath)
	if err != nil {
		return statError(target.FSPath, err)
	}

	switch {
	case fi.IsDir():
		return b.serveDirectory(rw, target.FSPath)
	case fi.Mode().IsRegular():
		b.log.Debug("Serving file", logger.LogFields{"path": target.FSPath, "mode": target.Mode().String()})
		switch target.Mode() {
		case RenderRaw:
			return b.serveRaw(rw, req, target.FSPath, fi)
		case RenderDownload:
			return b.serveAttachment(rw, target.FSPath, fi)
		default:
			return b.servePreview(rw, target.FSPath, fi)
		}
	default:
		return http1.NewError(http1.KindNotFound, "%s is neither a directory nor a regular file", target.FSPath)
	}
}

func (b *Browser) serveVolumes(rw *http1.ResponseWriter) error {
	all, err := b.volumes.List()
	if err != nil {
		return http1.WrapError(http1.KindIOFailure, err, "enumerating volumes")
	}
	vols := make([]volumes.Volume, 0, len(all))
	for _, v := range all {
		if b.resolver.Allowed(v.Path) {
			vols = append(vols, v)
		}
	}
	body, err := b.assembler.Volumes(vols)
	if err != nil {
		return http1.WrapError(http1.KindIOFailure, err, "rendering volume list")
	}
	return rw.SendResponse(http.StatusOK, body, htmlContentType)
}

func (b *Browser) serveDirectory(rw *http1.ResponseWriter, dir string) error {
	entries, warnings, err := readDirectory(dir, b.mimes)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return http1.WrapError(http1.KindForbidden, err, "listing %s", dir)
		}
		return http1.WrapError(http1.KindIOFailure, err, "listing %s", dir)
	}
	for _, w := range warnings {
		b.log.Warn("Skipping unreadable directory entry", logger.LogFields{"detail": w})
	}

	parent := filepath.Dir(dir)
	listing := DirectoryListing{
		Path:    dir,
		AtRoot:  parent == dir,
		Parent:  b.browsable(parent),
		Crumbs:  b.crumbs(dir),
		Entries: entries,
	}
	body, err := b.assembler.Directory(listing)
	if err != nil {
		return http1.WrapError(http1.KindIOFailure, err, "rendering listing of %s", dir)
	}
	return rw.SendResponse(http.StatusOK, body, htmlContentType)
}

// browsable returns p when the policy admits it, else "" so links fall back
// to the volume list.
func (b *Browser) browsable(p string) string {
	if b.resolver.Allowed(p) {
		return p
	}
	return ""
}

// crumbs returns the breadcrumb trail of p restricted to admitted paths.
func (b *Browser) crumbs(p string) []Crumb {
	all := breadcrumbs(p)
	out := all[:0]
	for _, c := range all {
		if b.resolver.Allowed(c.Path) {
			out = append(out, c)
		}
	}
	return out
}

func statError(fsPath string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return http1.WrapError(http1.KindNotFound, err, "%s does not exist", fsPath)
	case errors.Is(err, fs.ErrPermission):
		return http1.WrapError(http1.KindForbidden, err, "%s is not accessible", fsPath)
	default:
		return http1.WrapError(http1.KindIOFailure, err, "stat %s", fsPath)
	}
}
