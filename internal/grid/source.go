// Package grid turns a result tree, or a bare folder of images, into a
// renderable grid: headers, cell addressing and per-cell image sources.
package grid

import (
	"errors"
	"strings"

	"github.com/AaronLay10/xyzplot/internal/manifest"
)

// ErrMissingImageSource marks a cell whose image cannot be resolved. It is
// rendered as a placeholder, never returned to callers of Build.
var ErrMissingImageSource = errors.New("missing image source")

// SourceKind tells where an image reference came from.
type SourceKind string

const (
	SourceLocal    SourceKind = "local"
	SourceExplicit SourceKind = "explicit"
	SourceServer   SourceKind = "server"
)

// Source is a resolved image location.
type Source struct {
	Kind SourceKind `json:"kind"`
	Ref  string     `json:"ref"`
}

// LocalLookup finds a filename in a locally picked folder.
type LocalLookup interface {
	Lookup(filename string) (string, bool)
}

// Resolver resolves image references, in order: a local file of the same
// name, an explicit absolute source, then a server view URL built from the
// filename and folder.
type Resolver struct {
	Local  LocalLookup // optional
	Folder string
}

// Resolve returns the source of img or ErrMissingImageSource.
func (r Resolver) Resolve(img *manifest.ImageRef) (Source, error) {
	if img == nil {
		return Source{}, ErrMissingImageSource
	}
	if img.Filename != "" && r.Local != nil {
		if ref, ok := r.Local.Lookup(img.Filename); ok {
			return Source{Kind: SourceLocal, Ref: ref}, nil
		}
	}
	if IsExplicit(img.Src) {
		return Source{Kind: SourceExplicit, Ref: img.Src}, nil
	}
	if img.Filename != "" && r.Folder != "" {
		return Source{Kind: SourceServer, Ref: manifest.ViewURL(img.Filename, r.Folder)}, nil
	}
	if img.Src != "" {
		return Source{Kind: SourceServer, Ref: img.Src}, nil
	}
	return Source{}, ErrMissingImageSource
}

// IsExplicit reports whether src is usable verbatim: an object reference,
// embedded data or a full URL.
func IsExplicit(src string) bool {
	for _, prefix := range []string{"blob:", "data:", "http://", "https://"} {
		if strings.HasPrefix(src, prefix) {
			return true
		}
	}
	return false
}
