// Package sqlite provides the SQLite-backed content, settings and run
// history store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/pagesnap/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/rewrite"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/storage"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const settingFrontPage = "front_page_id"

// Store persists site content and snapshot history in SQLite.
type Store struct {
	sqlDB      *sql.DB
	publicPath string
}

// Option configures a Store.
type Option func(*Store)

// WithPublicPath sets the public files path that aliases may not shadow.
// Blank keeps the default.
func WithPublicPath(publicPath string) Option {
	return func(s *Store) {
		if strings.TrimSpace(publicPath) != "" {
			s.publicPath = publicPath
		}
	}
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store and applies embedded migrations.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	store := &Store{sqlDB: sqlDB, publicPath: rewrite.DefaultPublicPath}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// PutEntity inserts or replaces one entity.
func (s *Store) PutEntity(ctx context.Context, entity storage.Entity) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	id := strings.TrimSpace(entity.ID)
	title := strings.TrimSpace(entity.Title)
	alias := strings.Trim(strings.TrimSpace(entity.Alias), "/")
	if id == "" {
		return fmt.Errorf("entity id is required")
	}
	if title == "" {
		return fmt.Errorf("entity title is required")
	}
	if err := storage.CheckAlias(alias, s.publicPath); err != nil {
		return err
	}
	updatedAt := entity.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO entities (id, title, body, alias, published, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title,
		   body = excluded.body,
		   alias = excluded.alias,
		   published = excluded.published,
		   updated_at = excluded.updated_at`,
		id,
		title,
		entity.Body,
		alias,
		boolToInt(entity.Published),
		toMillis(updatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("put entity: %w", err)
	}
	return nil
}

// GetEntity returns one entity by id.
func (s *Store) GetEntity(ctx context.Context, id string) (storage.Entity, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Entity{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.Entity{}, fmt.Errorf("entity id is required")
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, title, body, alias, published, updated_at
		   FROM entities
		  WHERE id = ?`,
		id,
	)
	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Entity{}, storage.ErrNotFound
		}
		return storage.Entity{}, fmt.Errorf("get entity: %w", err)
	}
	return entity, nil
}

// GetEntityByAlias returns the entity published under alias.
func (s *Store) GetEntityByAlias(ctx context.Context, alias string) (storage.Entity, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Entity{}, err
	}
	alias = strings.Trim(strings.TrimSpace(alias), "/")
	if alias == "" {
		return storage.Entity{}, storage.ErrNotFound
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, title, body, alias, published, updated_at
		   FROM entities
		  WHERE alias = ?`,
		alias,
	)
	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Entity{}, storage.ErrNotFound
		}
		return storage.Entity{}, fmt.Errorf("get entity by alias: %w", err)
	}
	return entity, nil
}

// ListEntities returns entities ordered by title then id.
func (s *Store) ListEntities(ctx context.Context, publishedOnly bool) ([]storage.Entity, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	query := `SELECT id, title, body, alias, published, updated_at
	            FROM entities`
	if publishedOnly {
		query += ` WHERE published = 1`
	}
	query += ` ORDER BY title ASC, id ASC`

	rows, err := s.sqlDB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	entities := make([]storage.Entity, 0)
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("list entities: %w", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	return entities, nil
}

// Resolve maps the requested ids that exist to their canonical URLs.
func (s *Store) Resolve(ctx context.Context, ids []string) (map[string]storage.ResolvedEntity, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	resolved := make(map[string]storage.ResolvedEntity, len(ids))
	if len(ids) == 0 {
		return resolved, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = strings.TrimSpace(id)
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, title, body, alias, published, updated_at
		   FROM entities
		  WHERE id IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("resolve entities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("resolve entities: %w", err)
		}
		resolved[entity.ID] = storage.ResolvedEntity{
			ID:           entity.ID,
			CanonicalURL: entity.CanonicalURL(),
			Renderable:   entity.Published,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("resolve entities: %w", err)
	}
	return resolved, nil
}

// SetFrontPage stores the front-page entity id. An empty id clears it.
func (s *Store) SetFrontPage(ctx context.Context, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM site_settings WHERE key = ?`, settingFrontPage); err != nil {
			return fmt.Errorf("clear front page: %w", err)
		}
		return nil
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO site_settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		settingFrontPage,
		id,
	)
	if err != nil {
		return fmt.Errorf("set front page: %w", err)
	}
	return nil
}

// FrontPageID returns the configured front-page entity id.
func (s *Store) FrontPageID(ctx context.Context) (string, bool, error) {
	if err := s.ready(ctx); err != nil {
		return "", false, err
	}
	var id string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT value FROM site_settings WHERE key = ?`, settingFrontPage).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get front page: %w", err)
	}
	id = strings.TrimSpace(id)
	return id, id != "", nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (storage.Entity, error) {
	var entity storage.Entity
	var published int
	var updatedAt int64
	if err := row.Scan(
		&entity.ID,
		&entity.Title,
		&entity.Body,
		&entity.Alias,
		&published,
		&updatedAt,
	); err != nil {
		return storage.Entity{}, err
	}
	entity.Published = published != 0
	entity.UpdatedAt = fromMillis(updatedAt)
	return entity, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var (
	_ storage.EntityStore   = (*Store)(nil)
	_ storage.SettingsStore = (*Store)(nil)
)
