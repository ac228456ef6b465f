package filebrowser

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"example.com/fileshare/internal/http1"
	"example.com/fileshare/internal/volumes"
)

// Assembler renders the structured pages the browser produces. Output is
// opaque to the server and sent as text/html.
type Assembler interface {
	Volumes(vols []volumes.Volume) ([]byte, error)
	Directory(listing DirectoryListing) ([]byte, error)
	Preview(preview FilePreview) ([]byte, error)
}

// Entry is one item of a directory listing.
type Entry struct {
	Name     string
	Path     string // absolute filesystem path
	IsDir    bool
	Size     int64
	ModTime  time.Time
	MimeType string
	Kind     FileKind
}

// Crumb is one step of a breadcrumb trail.
type Crumb struct {
	Name string
	Path string
}

// DirectoryListing describes a directory page.
type DirectoryListing struct {
	Path string
	// Parent is the directory one level up, or "" when the parent is not
	// browsable and the link should lead back to the volume list.
	Parent  string
	AtRoot  bool
	Crumbs  []Crumb
	Entries []Entry
}

// FilePreview describes a preview page.
type FilePreview struct {
	Path     string
	Name     string
	Dir      string
	Size     int64
	ModTime  time.Time
	MimeType string
	Kind     FileKind
	// Text holds the leading bytes of text-like files.
	Text      string
	Truncated bool
	Crumbs    []Crumb
}

// BrowseURL links to the browser page for path.
func BrowseURL(path string) string {
	if path == "" {
		return "/"
	}
	return "/?path=" + http1.Escape(path)
}

// RawURL links to the raw, range-capable stream of path.
func RawURL(path string) string { return BrowseURL(path) + "&raw=1" }

// DownloadURL links to the attachment download of path.
func DownloadURL(path string) string { return BrowseURL(path) + "&download=1" }

// PreviewURL links to the preview page of path.
func PreviewURL(path string) string { return BrowseURL(path) + "&preview=1" }

// TruncateName shortens name to at most max runes, ending in "...".
func TruncateName(name string, max int) string {
	r := []rune(name)
	if len(r) <= max || max < 4 {
		return name
	}
	return string(r[:max-3]) + "..."
}

// readDirectory lists dir: directories first, then files, each group
// ordered case-insensitively. Entries whose metadata cannot be read are
// skipped and returned as warnings.
func readDirectory(dir string, mimes *MimeTypeResolver) ([]Entry, []string, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("could not read directory %s: %w", dir, err)
	}

	var warnings []string
	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		full := filepath.Join(dir, de.Name())
		var info os.FileInfo
		if de.Type()&os.ModeSymlink != 0 {
			info, err = os.Stat(full)
		} else {
			info, err = de.Info()
		}
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", full, err))
			continue
		}
		e := Entry{
			Name:    de.Name(),
			Path:    full,
			IsDir:   info.IsDir(),
			ModTime: info.ModTime(),
		}
		if !e.IsDir {
			e.Size = info.Size()
			e.MimeType = mimes.GetMimeType(full)
			e.Kind = Classify(e.MimeType)
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	return entries, warnings, nil
}

// breadcrumbs returns the trail from the filesystem root down to p.
func breadcrumbs(p string) []Crumb {
	var crumbs []Crumb
	for {
		parent := filepath.Dir(p)
		if parent == p {
			crumbs = append(crumbs, Crumb{Name: strings.TrimRight(p, `/\`) + string(filepath.Separator), Path: p})
			break
		}
		crumbs = append(crumbs, Crumb{Name: filepath.Base(p), Path: p})
		p = parent
	}
	for i, j := 0, len(crumbs)-1; i < j; i, j = i+1, j-1 {
		crumbs[i], crumbs[j] = crumbs[j], crumbs[i]
	}
	return crumbs
}
