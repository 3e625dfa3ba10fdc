package assets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	apperrors "github.com/louisbranch/pagesnap/internal/platform/errors"
	"github.com/louisbranch/pagesnap/internal/platform/storage/publicfs"
)

var (
	older = time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	newer = time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
)

func TestSyncCopiesMissingFiles(t *testing.T) {
	root, fs := newPublic(t)
	writeAt(t, filepath.Join(root, "css", "a.css"), "a", older)
	writeAt(t, filepath.Join(root, "js", "app.js"), "app", older)
	bundle := filepath.Join(root, "preview")

	result, err := NewSynchronizer(fs, nil, WithLogf(t.Logf)).Sync(context.Background(), bundle)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if diff := cmp.Diff([]string{"css/a.css", "js/app.js"}, result.Copied); diff != "" {
		t.Fatalf("copied mismatch (-want +got):\n%s", diff)
	}
	assertContent(t, filepath.Join(bundle, "css", "a.css"), "a")
	assertContent(t, filepath.Join(bundle, "js", "app.js"), "app")
}

func TestSyncModTimeRules(t *testing.T) {
	root, fs := newPublic(t)
	bundle := filepath.Join(root, "preview")
	// a: target older, copied. b: same time, skipped. c: target newer, skipped.
	writeAt(t, filepath.Join(root, "css", "a.css"), "a-new", newer)
	writeAt(t, filepath.Join(bundle, "css", "a.css"), "a-old", older)
	writeAt(t, filepath.Join(root, "css", "b.css"), "b-src", older)
	writeAt(t, filepath.Join(bundle, "css", "b.css"), "b-dst", older)
	writeAt(t, filepath.Join(root, "css", "c.css"), "c-src", older)
	writeAt(t, filepath.Join(bundle, "css", "c.css"), "c-dst", newer)

	result, err := NewSynchronizer(fs, CategoriesFromNames([]string{"css"}), WithLogf(t.Logf)).Sync(context.Background(), bundle)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if diff := cmp.Diff([]string{"css/a.css"}, result.Copied); diff != "" {
		t.Fatalf("copied mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"css/b.css", "css/c.css"}, result.Skipped); diff != "" {
		t.Fatalf("skipped mismatch (-want +got):\n%s", diff)
	}
	assertContent(t, filepath.Join(bundle, "css", "a.css"), "a-new")
	assertContent(t, filepath.Join(bundle, "css", "b.css"), "b-dst")
	assertContent(t, filepath.Join(bundle, "css", "c.css"), "c-dst")

	info, err := os.Stat(filepath.Join(bundle, "css", "a.css"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !info.ModTime().Equal(newer) {
		t.Fatalf("copied mtime = %v, want %v", info.ModTime(), newer)
	}
}

func TestSyncSecondRunCopiesNothing(t *testing.T) {
	root, fs := newPublic(t)
	writeAt(t, filepath.Join(root, "css", "a.css"), "a", older)
	bundle := filepath.Join(root, "preview")
	sync := NewSynchronizer(fs, CategoriesFromNames([]string{"css"}), WithLogf(t.Logf))

	if _, err := sync.Sync(context.Background(), bundle); err != nil {
		t.Fatalf("first Sync() error = %v", err)
	}
	result, err := sync.Sync(context.Background(), bundle)
	if err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}
	if len(result.Copied) != 0 || len(result.Skipped) != 1 {
		t.Fatalf("second sync result = %+v", result)
	}
}

func TestSyncNeverDeletesAndSkipsSubdirectories(t *testing.T) {
	root, fs := newPublic(t)
	writeAt(t, filepath.Join(root, "css", "a.css"), "a", older)
	writeAt(t, filepath.Join(root, "css", "vendor", "x.css"), "x", older)
	bundle := filepath.Join(root, "preview")
	writeAt(t, filepath.Join(bundle, "css", "stale.css"), "stale", older)

	if _, err := NewSynchronizer(fs, CategoriesFromNames([]string{"css"}), WithLogf(t.Logf)).Sync(context.Background(), bundle); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	assertContent(t, filepath.Join(bundle, "css", "stale.css"), "stale")
	if _, err := os.Stat(filepath.Join(bundle, "css", "vendor")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected subdirectory to be skipped, stat err = %v", err)
	}
}

func TestSyncMissingSourceFailsOnlyThatCategory(t *testing.T) {
	root, fs := newPublic(t)
	writeAt(t, filepath.Join(root, "js", "app.js"), "app", older)
	bundle := filepath.Join(root, "preview")

	result, err := NewSynchronizer(fs, nil, WithLogf(t.Logf)).Sync(context.Background(), bundle)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if len(result.Failures) != 1 || result.Failures[0].Category != "css" {
		t.Fatalf("failures = %+v", result.Failures)
	}
	if !apperrors.HasCode(result.Failures[0], apperrors.CodeAssetSync) {
		t.Fatalf("failure code = %s", apperrors.CodeOf(result.Failures[0]))
	}
	if diff := cmp.Diff([]string{"js/app.js"}, result.Copied); diff != "" {
		t.Fatalf("copied mismatch (-want +got):\n%s", diff)
	}
}

func TestSyncCopyFailureContinues(t *testing.T) {
	fs := &failingCopyFS{
		entries: map[string][]publicfs.Entry{
			"public://css": {{Name: "a.css", ModTime: older}, {Name: "b.css", ModTime: older}},
		},
		failOn: "a.css",
	}

	result, err := NewSynchronizer(fs, CategoriesFromNames([]string{"css"}), WithLogf(t.Logf)).Sync(context.Background(), "/bundle")
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if len(result.Failures) != 1 || result.Failures[0].File != "a.css" {
		t.Fatalf("failures = %+v", result.Failures)
	}
	if diff := cmp.Diff([]string{"css/b.css"}, result.Copied); diff != "" {
		t.Fatalf("copied mismatch (-want +got):\n%s", diff)
	}
}

func TestSyncHonorsCanceledContext(t *testing.T) {
	_, fs := newPublic(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSynchronizer(fs, nil).Sync(ctx, t.TempDir())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Sync() error = %v, want context.Canceled", err)
	}
}

func TestCategoriesFromNames(t *testing.T) {
	got := CategoriesFromNames([]string{"css", " js ", "", "css", "/fonts/"})
	want := []Category{
		{Name: "css", Source: "public://css"},
		{Name: "js", Source: "public://js"},
		{Name: "fonts", Source: "public://fonts"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}
}

type failingCopyFS struct {
	entries map[string][]publicfs.Entry
	failOn  string
}

func (f *failingCopyFS) EnsureDirectory(string) error { return nil }

func (f *failingCopyFS) ReadDirEntries(path string) ([]publicfs.Entry, error) {
	return f.entries[path], nil
}

func (f *failingCopyFS) CopyFile(src, _ string) error {
	if filepath.Base(src) == f.failOn {
		return errors.New("disk full")
	}
	return nil
}

func newPublic(t *testing.T) (string, *publicfs.Local) {
	t.Helper()
	root := t.TempDir()
	fs, err := publicfs.NewLocal(root)
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	return root, fs
}

func writeAt(t *testing.T, path, content string, modTime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func assertContent(t *testing.T, path, want string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if string(data) != want {
		t.Fatalf("%s = %q, want %q", path, data, want)
	}
}
