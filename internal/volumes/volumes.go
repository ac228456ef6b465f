// Package volumes enumerates the mounted volumes a browser can start from.
package volumes

import (
	"os"
	"strings"
)

// DefaultLabel is shown for volumes without a label of their own.
const DefaultLabel = "Local Disk"

// Volume is a ready, browsable filesystem root.
type Volume struct {
	// Path is the mount point, for example "/" or "C:\".
	Path       string
	Label      string
	Device     string
	FSType     string
	TotalBytes uint64
	FreeBytes  uint64
}

// DisplayName returns "Label (Path)".
func (v Volume) DisplayName() string {
	label := v.Label
	if label == "" {
		label = DefaultLabel
	}
	return label + " (" + v.Path + ")"
}

// Lister enumerates volumes. Only ready volumes are returned.
type Lister interface {
	List() ([]Volume, error)
}

// ListerFunc adapts a function to Lister.
type ListerFunc func() ([]Volume, error)

func (f ListerFunc) List() ([]Volume, error) { return f() }

// System returns the Lister for the host operating system.
func System() Lister {
	return ListerFunc(listSystem)
}

// Paths returns a Lister presenting each existing directory among paths as a
// volume. Capacity is filled in where the platform can report it.
func Paths(paths ...string) Lister {
	return ListerFunc(func() ([]Volume, error) {
		var vols []Volume
		for _, p := range paths {
			fi, err := os.Stat(p)
			if err != nil || !fi.IsDir() {
				continue
			}
			v := Volume{Path: p, Label: labelFor(p)}
			capacity(&v)
			vols = append(vols, v)
		}
		return vols, nil
	})
}

func labelFor(path string) string {
	if path == "/" {
		return DefaultLabel
	}
	trimmed := strings.TrimRight(path, `/\`)
	if i := strings.LastIndexAny(trimmed, `/\`); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	if trimmed == "" || strings.HasSuffix(trimmed, ":") {
		return DefaultLabel
	}
	return trimmed
}
