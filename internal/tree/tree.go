// Package tree manages the mirrored document tree on disk.
//
// [Writer] owns a root directory and exposes idempotent write and remove
// operations on paths relative to it. Removing a file prunes directories
// that became empty, up to but never including the root. [Layout] maps record
// keys to relative paths and back.
package tree

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	dfs "github.com/calvinalkan/docsync/pkg/fs"
)

// ErrInvalidPath indicates a relative path failed validation.
var ErrInvalidPath = errors.New("invalid path")

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Writer applies file writes and removals below a fixed root.
//
// All operations are safe to repeat: writing identical bytes twice or
// removing an absent file has no further effect. Concurrent callers touching
// different paths do not interfere; callers touching the same path must
// order their calls themselves.
type Writer struct {
	fs   dfs.FS
	root string
}

// NewWriter returns a Writer rooted at root. The root is not created until
// the first write.
func NewWriter(fsys dfs.FS, root string) *Writer {
	if fsys == nil {
		panic("fs is nil")
	}

	return &Writer{fs: fsys, root: filepath.Clean(root)}
}

// Root returns the absolute or cleaned root directory.
func (w *Writer) Root() string {
	return w.root
}

// Abs returns the filesystem path for rel.
func (w *Writer) Abs(rel string) (string, error) {
	if err := validateRel(rel); err != nil {
		return "", err
	}

	return filepath.Join(w.root, filepath.FromSlash(rel)), nil
}

// Write ensures every directory along rel exists, then atomically replaces
// the file at rel with data.
func (w *Writer) Write(rel string, data []byte) error {
	abs, err := w.Abs(rel)
	if err != nil {
		return err
	}

	if err := w.fs.MkdirAll(filepath.Dir(abs), dirPerm); err != nil {
		return fmt.Errorf("create parent dirs: fs: %w", err)
	}

	if err := w.fs.WriteFileAtomic(abs, data, filePerm); err != nil {
		return fmt.Errorf("write %s: fs: %w", rel, err)
	}

	return nil
}

// Read returns the bytes stored at rel.
func (w *Writer) Read(rel string) ([]byte, error) {
	abs, err := w.Abs(rel)
	if err != nil {
		return nil, err
	}

	data, err := w.fs.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: fs: %w", rel, err)
	}

	return data, nil
}

// Remove deletes the file at rel if present, then removes each ancestor
// directory that is now empty, stopping at the first non-empty directory or
// at the root.
func (w *Writer) Remove(rel string) error {
	abs, err := w.Abs(rel)
	if err != nil {
		return err
	}

	err = w.fs.Remove(abs)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: fs: %w", rel, err)
	}

	return w.pruneEmptyDirs(filepath.Dir(abs))
}

// pruneEmptyDirs walks upward from dir deleting empty directories. A
// directory that vanished concurrently counts as removed.
func (w *Writer) pruneEmptyDirs(dir string) error {
	for dir != w.root && isBelow(w.root, dir) {
		entries, err := w.fs.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			dir = filepath.Dir(dir)

			continue
		}

		if err != nil {
			return fmt.Errorf("read dir: fs: %w", err)
		}

		if len(entries) > 0 {
			return nil
		}

		err = w.fs.Remove(dir)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			// A sibling may have been written between ReadDir and Remove.
			if isNotEmpty(err) {
				return nil
			}

			return fmt.Errorf("remove dir: fs: %w", err)
		}

		dir = filepath.Dir(dir)
	}

	return nil
}

// File is a regular file found by [Writer.Walk].
type File struct {
	// Rel is the slash-separated path relative to the root.
	Rel string
}

// Walk calls fn for every regular file below the root in lexical order.
// Entries whose name starts with a dot are skipped, as are their subtrees.
// Returns an error satisfying errors.Is(err, os.ErrNotExist) when the root
// does not exist.
func (w *Writer) Walk(fn func(f File) error) error {
	info, err := w.fs.Stat(w.root)
	if err != nil {
		return fmt.Errorf("stat root: fs: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("root %s: not a directory", w.root)
	}

	return w.walkDir(w.root, "", fn)
}

func (w *Writer) walkDir(abs, rel string, fn func(f File) error) error {
	entries, err := w.fs.ReadDir(abs)
	if err != nil {
		return fmt.Errorf("read dir: fs: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		childRel := name
		if rel != "" {
			childRel = rel + "/" + name
		}

		childAbs := filepath.Join(abs, name)

		switch {
		case entry.IsDir():
			if err := w.walkDir(childAbs, childRel, fn); err != nil {
				return err
			}
		case entry.Type()&fs.ModeType == 0:
			if err := fn(File{Rel: childRel}); err != nil {
				return err
			}
		}
	}

	return nil
}

func validateRel(rel string) error {
	if rel == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}

	native := filepath.FromSlash(rel)

	if filepath.IsAbs(native) || strings.HasPrefix(rel, "/") {
		return fmt.Errorf("%w: absolute path %q", ErrInvalidPath, rel)
	}

	if filepath.Clean(native) != native {
		return fmt.Errorf("%w: path must be clean: %q", ErrInvalidPath, rel)
	}

	if native == "." || native == ".." || strings.HasPrefix(native, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: path escapes root: %q", ErrInvalidPath, rel)
	}

	return nil
}

func isBelow(root, dir string) bool {
	r, err := filepath.Rel(root, dir)
	if err != nil {
		return false
	}

	return r != "." && r != ".." && !strings.HasPrefix(r, ".."+string(filepath.Separator))
}

func isNotEmpty(err error) bool {
	return errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST)
}
