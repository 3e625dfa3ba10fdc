// Package publicfs resolves public:// paths against a local public files root
// and provides the idempotent directory and file primitives used to build
// static bundles.
package publicfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Scheme prefixes virtual paths rooted at the public files directory.
const Scheme = "public://"

// ErrOutsideRoot reports a virtual path that escapes the public root.
var ErrOutsideRoot = errors.New("path escapes public root")

// Entry is one directory entry as seen by ReadDirEntries.
type Entry struct {
	Name    string
	ModTime time.Time
	IsDir   bool
	Size    int64
}

// Local implements the public files abstraction on the local disk.
type Local struct {
	root string
}

// NewLocal returns a Local rooted at root, which is made absolute.
func NewLocal(root string) (*Local, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("public root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve public root: %w", err)
	}
	return &Local{root: abs}, nil
}

// Root returns the absolute public files root.
func (l *Local) Root() string {
	return l.root
}

// Virtual returns the public:// form of a root-relative path.
func Virtual(rel string) string {
	return Scheme + strings.TrimLeft(filepath.ToSlash(rel), "/")
}

// RealPath maps public://rel to <root>/rel. Absolute paths are returned
// cleaned; relative paths without the scheme are resolved against the root.
func (l *Local) RealPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(path) && !strings.HasPrefix(path, Scheme) {
		return filepath.Clean(path), nil
	}
	rel := strings.TrimPrefix(path, Scheme)
	rel = filepath.FromSlash(strings.TrimLeft(rel, "/"))
	resolved := filepath.Join(l.root, rel)
	if resolved != l.root && !strings.HasPrefix(resolved, l.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", path, ErrOutsideRoot)
	}
	return resolved, nil
}

// EnsureDirectory creates path and its parents. An existing directory is
// not an error; an existing non-directory is.
func (l *Local) EnsureDirectory(path string) error {
	real, err := l.RealPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(real, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", real, err)
	}
	return nil
}

// WriteFile replaces path with data through a temp file and rename, so
// readers never observe a half-written page.
func (l *Local) WriteFile(path string, data []byte) error {
	real, err := l.RealPath(path)
	if err != nil {
		return err
	}
	return writeAtomic(real, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// ReadDirEntries lists path sorted by name.
func (l *Local) ReadDirEntries(path string) ([]Entry, error) {
	real, err := l.RealPath(path)
	if err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(real)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", real, err)
	}
	entries := make([]Entry, 0, len(dirEntries))
	for _, dirEntry := range dirEntries {
		info, err := dirEntry.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", dirEntry.Name(), err)
		}
		entries = append(entries, Entry{
			Name:    dirEntry.Name(),
			ModTime: info.ModTime(),
			IsDir:   dirEntry.IsDir(),
			Size:    info.Size(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// CopyFile copies src over dst and stamps dst with the source modification
// time, so an unchanged source compares equal on the next sync.
func (l *Local) CopyFile(src, dst string) error {
	realSrc, err := l.RealPath(src)
	if err != nil {
		return err
	}
	realDst, err := l.RealPath(dst)
	if err != nil {
		return err
	}

	in, err := os.Open(realSrc)
	if err != nil {
		return fmt.Errorf("open %s: %w", realSrc, err)
	}
	defer func() { _ = in.Close() }()
	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", realSrc, err)
	}
	if info.IsDir() {
		return fmt.Errorf("copy %s: source is a directory", realSrc)
	}

	if err := writeAtomic(realDst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	}); err != nil {
		return err
	}
	if err := os.Chtimes(realDst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("stamp %s: %w", realDst, err)
	}
	return nil
}

func writeAtomic(dst string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", dst, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp for %s: %w", dst, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod %s: %w", dst, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		cleanup()
		return fmt.Errorf("rename into %s: %w", dst, err)
	}
	return nil
}
