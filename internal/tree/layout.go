package tree

import (
	"fmt"
	"path"
	"strings"
)

// Layout maps record keys of one kind to paths relative to the tree root.
type Layout interface {
	// RelPath returns the file path for key.
	RelPath(key string) (string, error)

	// Key returns the record key for a file path and whether this layout
	// owns the file at all.
	Key(rel string) (string, bool)
}

// ContentLayout stores each record at "<slug><Ext>".
type ContentLayout struct {
	Ext string
}

// RelPath appends the extension to the slug.
func (l ContentLayout) RelPath(slug string) (string, error) {
	if err := ValidateSlug(slug); err != nil {
		return "", err
	}

	return slug + l.Ext, nil
}

// Key strips the extension. Files with another extension are not owned.
func (l ContentLayout) Key(rel string) (string, bool) {
	slug, ok := strings.CutSuffix(rel, l.Ext)
	if !ok || slug == "" || strings.HasSuffix(slug, "/") {
		return "", false
	}

	if ValidateSlug(slug) != nil {
		return "", false
	}

	return slug, true
}

// MetaFileName is the per-directory sidecar file name.
const MetaFileName = "meta.json"

// MetaRootKey is the key of the sidecar in the root directory itself.
const MetaRootKey = "."

// MetaLayout stores each record at "<dir>/meta.json". The root directory's
// sidecar has key [MetaRootKey].
type MetaLayout struct{}

// RelPath joins the directory key with the sidecar file name.
func (MetaLayout) RelPath(dir string) (string, error) {
	if dir == MetaRootKey {
		return MetaFileName, nil
	}

	if err := ValidateSlug(dir); err != nil {
		return "", err
	}

	return dir + "/" + MetaFileName, nil
}

// Key returns the containing directory of a meta.json file.
func (MetaLayout) Key(rel string) (string, bool) {
	if path.Base(rel) != MetaFileName {
		return "", false
	}

	dir := path.Dir(rel)
	if dir != MetaRootKey && ValidateSlug(dir) != nil {
		return "", false
	}

	return dir, true
}

// ValidateSlug checks that slug is a clean, relative, slash-separated path
// without "." or ".." segments.
func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("%w: empty slug", ErrInvalidPath)
	}

	if strings.HasPrefix(slug, "/") || strings.HasSuffix(slug, "/") {
		return fmt.Errorf("%w: slug %q has leading or trailing slash", ErrInvalidPath, slug)
	}

	if strings.Contains(slug, "\\") {
		return fmt.Errorf("%w: slug %q contains a backslash", ErrInvalidPath, slug)
	}

	for _, seg := range strings.Split(slug, "/") {
		switch {
		case seg == "":
			return fmt.Errorf("%w: slug %q has an empty segment", ErrInvalidPath, slug)
		case seg == "." || seg == "..":
			return fmt.Errorf("%w: slug %q has a relative segment", ErrInvalidPath, slug)
		case strings.HasPrefix(seg, "."):
			return fmt.Errorf("%w: slug %q has a hidden segment", ErrInvalidPath, slug)
		}
	}

	return nil
}
