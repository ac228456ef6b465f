package filebrowser

import (
	"path/filepath"
	"runtime"
	"strings"
)

// Policy decides whether a canonical absolute path may be served.
type Policy interface {
	Allow(absPath string) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(absPath string) bool

func (f PolicyFunc) Allow(absPath string) bool { return f(absPath) }

// AllowAll permits every path on the host.
func AllowAll() Policy {
	return PolicyFunc(func(string) bool { return true })
}

// RootsPolicy permits a path when it is one of roots or lies beneath one.
// Containment is by whole path components, so root /srv/share does not
// admit /srv/shared.
type RootsPolicy struct {
	roots []string
}

// NewRootsPolicy cleans roots and makes them absolute.
func NewRootsPolicy(roots ...string) *RootsPolicy {
	p := &RootsPolicy{}
	for _, r := range roots {
		if r == "" {
			continue
		}
		if abs, err := filepath.Abs(r); err == nil {
			r = abs
		}
		p.roots = append(p.roots, filepath.Clean(r))
	}
	return p
}

// Roots returns the cleaned roots.
func (p *RootsPolicy) Roots() []string {
	return append([]string(nil), p.roots...)
}

func (p *RootsPolicy) Allow(absPath string) bool {
	absPath = filepath.Clean(absPath)
	for _, root := range p.roots {
		if within(absPath, root) {
			return true
		}
	}
	return false
}

func within(path, root string) bool {
	if runtime.GOOS == "windows" {
		path, root = strings.ToLower(path), strings.ToLower(root)
	}
	if path == root {
		return true
	}
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}
	return strings.HasPrefix(path, root)
}
