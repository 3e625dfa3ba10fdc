package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/storage"
)

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenIsRepeatable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "site.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = second.Close()
}

func TestPutGetEntityRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, time.October, 1, 9, 0, 0, 0, time.UTC)
	input := storage.Entity{ID: "7", Title: "About", Body: "<p>hi</p>", Alias: "/about/", Published: true, UpdatedAt: now}
	if err := store.PutEntity(context.Background(), input); err != nil {
		t.Fatalf("put entity: %v", err)
	}

	got, err := store.GetEntity(context.Background(), "7")
	if err != nil {
		t.Fatalf("get entity: %v", err)
	}
	want := input
	want.Alias = "about"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("entity mismatch (-want +got):\n%s", diff)
	}

	byAlias, err := store.GetEntityByAlias(context.Background(), "/about")
	if err != nil {
		t.Fatalf("get entity by alias: %v", err)
	}
	if byAlias.ID != "7" {
		t.Fatalf("alias lookup id = %q", byAlias.ID)
	}
}

func TestPutEntityUpdatesExisting(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	if err := store.PutEntity(ctx, storage.Entity{ID: "7", Title: "Old", Published: true}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.PutEntity(ctx, storage.Entity{ID: "7", Title: "New"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := store.GetEntity(ctx, "7")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "New" || got.Published {
		t.Fatalf("entity = %+v", got)
	}
}

func TestPutEntityRejectsDuplicateAlias(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	if err := store.PutEntity(ctx, storage.Entity{ID: "1", Title: "A", Alias: "about"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	err := store.PutEntity(ctx, storage.Entity{ID: "2", Title: "B", Alias: "about"})
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestPutEntityValidates(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if err := store.PutEntity(context.Background(), storage.Entity{Title: "x"}); err == nil {
		t.Fatal("expected id error")
	}
	if err := store.PutEntity(context.Background(), storage.Entity{ID: "1"}); err == nil {
		t.Fatal("expected title error")
	}
}

func TestPutEntityRejectsShadowedAliases(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	for _, alias := range []string{"node/8", "/up", "admin/snapshot", "sites/default/files/css", "about?x=1", "about#top", "a//b"} {
		err := store.PutEntity(ctx, storage.Entity{ID: "20", Title: "Twenty", Alias: alias, Published: true})
		if !errors.Is(err, storage.ErrInvalidAlias) {
			t.Fatalf("PutEntity(alias %q) error = %v, want ErrInvalidAlias", alias, err)
		}
	}
	if _, err := store.GetEntity(ctx, "20"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("rejected entity was stored: %v", err)
	}
	if err := store.PutEntity(ctx, storage.Entity{ID: "20", Title: "Twenty", Alias: "nodes/updates"}); err != nil {
		t.Fatalf("PutEntity(nodes/updates) error = %v", err)
	}
}

func TestPutEntityRejectsCustomPublicPathAlias(t *testing.T) {
	t.Parallel()

	store, err := Open(filepath.Join(t.TempDir(), "site.db"), WithPublicPath("/files"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	if err := store.PutEntity(ctx, storage.Entity{ID: "1", Title: "A", Alias: "files/js/app.js"}); !errors.Is(err, storage.ErrInvalidAlias) {
		t.Fatalf("expected ErrInvalidAlias, got %v", err)
	}
	if err := store.PutEntity(ctx, storage.Entity{ID: "1", Title: "A", Alias: "sites/default/files/notes"}); err != nil {
		t.Fatalf("default public path should be free with a custom one: %v", err)
	}
}

func TestGetEntityNotFound(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if _, err := store.GetEntity(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetEntityByAlias(context.Background(), ""); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for blank alias, got %v", err)
	}
}

func TestListEntities(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	mustPut(t, store, storage.Entity{ID: "2", Title: "Beta", Published: true})
	mustPut(t, store, storage.Entity{ID: "1", Title: "Alpha", Published: true})
	mustPut(t, store, storage.Entity{ID: "3", Title: "Draft"})

	all, err := store.ListEntities(ctx, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := entityIDs(all); !cmp.Equal(got, []string{"1", "2", "3"}) {
		t.Fatalf("all ids = %v", got)
	}
	published, err := store.ListEntities(ctx, true)
	if err != nil {
		t.Fatalf("list published: %v", err)
	}
	if got := entityIDs(published); !cmp.Equal(got, []string{"1", "2"}) {
		t.Fatalf("published ids = %v", got)
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	mustPut(t, store, storage.Entity{ID: "7", Title: "Seven", Published: true})
	mustPut(t, store, storage.Entity{ID: "12", Title: "Home", Alias: "home", Published: true})
	mustPut(t, store, storage.Entity{ID: "13", Title: "Draft"})

	got, err := store.Resolve(context.Background(), []string{"12", "7", "13", "999"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := map[string]storage.ResolvedEntity{
		"7":  {ID: "7", CanonicalURL: "/node/7", Renderable: true},
		"12": {ID: "12", CanonicalURL: "/home", Renderable: true},
		"13": {ID: "13", CanonicalURL: "/node/13", Renderable: false},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("resolve mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveEmpty(t *testing.T) {
	t.Parallel()

	got, err := openTempStore(t).Resolve(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("Resolve(nil) = %v, %v", got, err)
	}
}

func TestFrontPage(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()

	if _, ok, err := store.FrontPageID(ctx); err != nil || ok {
		t.Fatalf("FrontPageID() before set = %v, %v", ok, err)
	}
	if err := store.SetFrontPage(ctx, "12"); err != nil {
		t.Fatalf("set front page: %v", err)
	}
	if err := store.SetFrontPage(ctx, "14"); err != nil {
		t.Fatalf("replace front page: %v", err)
	}
	id, ok, err := store.FrontPageID(ctx)
	if err != nil || !ok || id != "14" {
		t.Fatalf("FrontPageID() = %q, %v, %v", id, ok, err)
	}
	if err := store.SetFrontPage(ctx, ""); err != nil {
		t.Fatalf("clear front page: %v", err)
	}
	if _, ok, _ := store.FrontPageID(ctx); ok {
		t.Fatal("expected front page cleared")
	}
}

func TestRecordAndListRuns(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	base := time.Date(2026, time.October, 1, 9, 0, 0, 0, time.UTC)
	older := storage.RunRecord{
		ID:        "run-1",
		Directory: "preview",
		Status:    storage.RunCompleted,
		Entities: []storage.RunEntity{
			{EntityID: "12", Outcome: storage.OutcomeWritten},
			{EntityID: "7", Outcome: storage.OutcomeWritten},
		},
		AssetsCopied: 3,
		StartedAt:    base,
		FinishedAt:   base.Add(time.Second),
	}
	newer := storage.RunRecord{
		ID:        "run-2",
		Directory: "preview",
		Status:    storage.RunPartial,
		Entities: []storage.RunEntity{
			{EntityID: "5", Outcome: storage.OutcomeFailed, Code: "RECURSIVE_RENDER", Message: "render would recurse"},
			{EntityID: "999", Outcome: storage.OutcomeSkipped, Code: "UNRESOLVED_ENTITY"},
		},
		AssetFailures: 1,
		StartedAt:     base.Add(time.Hour),
		FinishedAt:    base.Add(time.Hour + time.Second),
	}
	for _, run := range []storage.RunRecord{older, newer} {
		if err := store.RecordRun(ctx, run); err != nil {
			t.Fatalf("record run %s: %v", run.ID, err)
		}
	}

	runs, err := store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if diff := cmp.Diff([]storage.RunRecord{newer, older}, runs); diff != "" {
		t.Fatalf("runs mismatch (-want +got):\n%s", diff)
	}

	limited, err := store.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("list runs limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "run-2" {
		t.Fatalf("limited runs = %+v", limited)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if diff := cmp.Diff(older, got); diff != "" {
		t.Fatalf("run mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordRunKeepsAbortReason(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	run := storage.RunRecord{
		ID:         "run-1",
		Directory:  "preview",
		Status:     storage.RunAborted,
		ReasonCode: "UNRESOLVED_ENTITY",
		Reason:     "resolve entities: database is locked",
		StartedAt:  time.Date(2026, time.October, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := store.RecordRun(ctx, run); err != nil {
		t.Fatalf("record run: %v", err)
	}
	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Status != storage.RunAborted || got.ReasonCode != run.ReasonCode || got.Reason != run.Reason {
		t.Fatalf("run = %+v", got)
	}
}

func TestRecordRunRejectsDuplicateID(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	run := storage.RunRecord{ID: "run-1", Status: storage.RunCompleted, StartedAt: time.Now()}
	if err := store.RecordRun(context.Background(), run); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.RecordRun(context.Background(), run); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	if _, err := openTempStore(t).GetRun(context.Background(), "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.ListEntities(ctx, false); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNilStoreIsNotConfigured(t *testing.T) {
	t.Parallel()

	var store *Store
	if _, _, err := store.FrontPageID(context.Background()); err == nil {
		t.Fatal("expected not configured error")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close nil store: %v", err)
	}
}

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "site.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func mustPut(t *testing.T, store *Store, entity storage.Entity) {
	t.Helper()
	if err := store.PutEntity(context.Background(), entity); err != nil {
		t.Fatalf("put entity %s: %v", entity.ID, err)
	}
}

func entityIDs(entities []storage.Entity) []string {
	ids := make([]string, 0, len(entities))
	for _, entity := range entities {
		ids = append(ids, entity.ID)
	}
	return ids
}
