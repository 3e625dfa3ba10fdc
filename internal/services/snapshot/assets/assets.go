// Package assets mirrors public asset directories into a snapshot bundle.
package assets

import (
	"context"
	"log"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/louisbranch/pagesnap/internal/platform/errors"
	"github.com/louisbranch/pagesnap/internal/platform/storage/publicfs"
)

// Category is one mirrored asset directory. Name is the directory created
// under the bundle; Source is a public:// or absolute path.
type Category struct {
	Name   string
	Source string
}

// DefaultCategories mirrors public://css and public://js.
func DefaultCategories() []Category {
	return CategoriesFromNames([]string{"css", "js"})
}

// CategoriesFromNames maps each name to public://<name>. Blank and
// duplicate names are dropped.
func CategoriesFromNames(names []string) []Category {
	seen := make(map[string]struct{}, len(names))
	categories := make([]Category, 0, len(names))
	for _, name := range names {
		name = strings.Trim(strings.TrimSpace(name), "/")
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		categories = append(categories, Category{Name: name, Source: publicfs.Virtual(name)})
	}
	return categories
}

// Filesystem is the subset of the public files abstraction used by Sync.
type Filesystem interface {
	EnsureDirectory(path string) error
	ReadDirEntries(path string) ([]publicfs.Entry, error)
	CopyFile(src, dst string) error
}

// CategoryError records a failure scoped to one category, and optionally
// one file within it.
type CategoryError struct {
	Category string
	File     string
	Err      error
}

func (e CategoryError) Error() string {
	if e.File != "" {
		return e.Category + "/" + e.File + ": " + e.Err.Error()
	}
	return e.Category + ": " + e.Err.Error()
}

func (e CategoryError) Unwrap() error {
	return e.Err
}

// Result lists copied and skipped files as <category>/<name>.
type Result struct {
	Copied   []string
	Skipped  []string
	Failures []CategoryError
}

// Synchronizer copies new or updated files from each category source into
// the bundle. It never deletes and does not descend into subdirectories.
type Synchronizer struct {
	fs         Filesystem
	categories []Category
	logf       func(string, ...any)
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogf overrides the logger used for per-category failures.
func WithLogf(logf func(string, ...any)) Option {
	return func(s *Synchronizer) {
		if logf != nil {
			s.logf = logf
		}
	}
}

// NewSynchronizer builds a synchronizer. Nil or empty categories use
// DefaultCategories.
func NewSynchronizer(fs Filesystem, categories []Category, opts ...Option) *Synchronizer {
	if len(categories) == 0 {
		categories = DefaultCategories()
	}
	s := &Synchronizer{
		fs:         fs,
		categories: append([]Category(nil), categories...),
		logf:       log.Printf,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Categories returns the configured categories.
func (s *Synchronizer) Categories() []Category {
	return append([]Category(nil), s.categories...)
}

// Sync mirrors every category into bundleDir/<name>. Category failures are
// reported in the result and do not stop other categories; the returned
// error is only ever the context's.
func (s *Synchronizer) Sync(ctx context.Context, bundleDir string) (Result, error) {
	var result Result
	if s == nil || s.fs == nil {
		return result, nil
	}
	for _, category := range s.categories {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.syncCategory(ctx, bundleDir, category, &result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (s *Synchronizer) syncCategory(ctx context.Context, bundleDir string, category Category, result *Result) error {
	target := filepath.Join(bundleDir, category.Name)
	if err := s.fs.EnsureDirectory(target); err != nil {
		s.fail(result, category.Name, "", apperrors.WrapWithMetadata(apperrors.CodeAssetSync, "create asset directory", map[string]string{"category": category.Name}, err))
		return nil
	}
	sources, err := s.fs.ReadDirEntries(category.Source)
	if err != nil {
		s.fail(result, category.Name, "", apperrors.WrapWithMetadata(apperrors.CodeAssetSync, "read asset source", map[string]string{"category": category.Name}, err))
		return nil
	}
	existing, err := s.fs.ReadDirEntries(target)
	if err != nil {
		s.fail(result, category.Name, "", apperrors.WrapWithMetadata(apperrors.CodeAssetSync, "read asset target", map[string]string{"category": category.Name}, err))
		return nil
	}
	targetTimes := make(map[string]time.Time, len(existing))
	for _, entry := range existing {
		if !entry.IsDir {
			targetTimes[entry.Name] = entry.ModTime
		}
	}

	for _, entry := range sources {
		if entry.IsDir {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel := category.Name + "/" + entry.Name
		if modTime, ok := targetTimes[entry.Name]; ok && !entry.ModTime.After(modTime) {
			result.Skipped = append(result.Skipped, rel)
			continue
		}
		src := joinSource(category.Source, entry.Name)
		if err := s.fs.CopyFile(src, filepath.Join(target, entry.Name)); err != nil {
			s.fail(result, category.Name, entry.Name, apperrors.WrapWithMetadata(apperrors.CodeAssetSync, "copy asset", map[string]string{"category": category.Name, "file": entry.Name}, err))
			continue
		}
		result.Copied = append(result.Copied, rel)
	}
	return nil
}

func (s *Synchronizer) fail(result *Result, category, file string, err error) {
	s.logf("asset sync %s: %v", category, err)
	result.Failures = append(result.Failures, CategoryError{Category: category, File: file, Err: err})
}

// joinSource appends name without collapsing the "//" of a public:// path.
func joinSource(source, name string) string {
	if strings.HasPrefix(source, publicfs.Scheme) {
		return strings.TrimRight(source, "/") + "/" + name
	}
	return filepath.Join(source, name)
}
