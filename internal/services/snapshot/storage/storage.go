// Package storage defines persistence contracts for site content, site
// settings and snapshot run history.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness constraint, such as an alias,
	// is already taken.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrInvalidAlias indicates an alias the site could never serve as the
	// entity's own page.
	ErrInvalidAlias = errors.New("invalid alias")
)

// ReservedAliasPrefixes are site routes matched before aliases.
var ReservedAliasPrefixes = []string{"node", "up", "admin"}

// CheckAlias validates a slash-trimmed alias. It must be a clean relative
// path without query or fragment characters, and must not fall under a
// reserved prefix or any extra prefix such as the public files path.
func CheckAlias(alias string, extra ...string) error {
	if alias == "" {
		return nil
	}
	if strings.ContainsAny(alias, "?#\\\x00") || strings.IndexFunc(alias, unicode.IsSpace) >= 0 {
		return fmt.Errorf("alias %q: %w", alias, ErrInvalidAlias)
	}
	for _, segment := range strings.Split(alias, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return fmt.Errorf("alias %q: %w", alias, ErrInvalidAlias)
		}
	}
	prefixes := append(append([]string(nil), ReservedAliasPrefixes...), extra...)
	for _, prefix := range prefixes {
		prefix = strings.Trim(strings.TrimSpace(prefix), "/")
		if prefix == "" {
			continue
		}
		if alias == prefix || strings.HasPrefix(alias, prefix+"/") {
			return fmt.Errorf("alias %q is served by the /%s route: %w", alias, prefix, ErrInvalidAlias)
		}
	}
	return nil
}

// Entity is one renderable content item of the live site.
type Entity struct {
	ID        string
	Title     string
	Body      string
	Alias     string
	Published bool
	UpdatedAt time.Time
}

// CanonicalURL is the entity's path on the live site: its alias when set,
// otherwise /node/<id>.
func (e Entity) CanonicalURL() string {
	alias := strings.TrimSpace(e.Alias)
	if alias != "" {
		return "/" + strings.TrimLeft(alias, "/")
	}
	return "/node/" + e.ID
}

// ResolvedEntity is an entity id mapped to the URL a snapshot renders.
type ResolvedEntity struct {
	ID           string
	CanonicalURL string
	Renderable   bool
}

// EntityStore persists site content.
type EntityStore interface {
	PutEntity(ctx context.Context, entity Entity) error
	GetEntity(ctx context.Context, id string) (Entity, error)
	GetEntityByAlias(ctx context.Context, alias string) (Entity, error)
	ListEntities(ctx context.Context, publishedOnly bool) ([]Entity, error)
	// Resolve returns the requested ids that exist. Unpublished entities
	// are returned with Renderable false.
	Resolve(ctx context.Context, ids []string) (map[string]ResolvedEntity, error)
}

// SettingsStore persists site-wide settings.
type SettingsStore interface {
	SetFrontPage(ctx context.Context, id string) error
	// FrontPageID reports the configured front-page entity, if any.
	FrontPageID(ctx context.Context) (string, bool, error)
}

// RunStatus summarizes how a snapshot run ended.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunAborted   RunStatus = "aborted"
	RunCanceled  RunStatus = "canceled"
)

// Outcome is what happened to one requested entity.
type Outcome string

const (
	OutcomeWritten Outcome = "written"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// RunEntity is the outcome for one requested entity, in request order.
type RunEntity struct {
	EntityID string
	Outcome  Outcome
	Code     string
	Message  string
}

// RunRecord is one persisted snapshot run. ReasonCode and Reason explain
// an aborted or canceled run.
type RunRecord struct {
	ID            string
	Directory     string
	Status        RunStatus
	ReasonCode    string
	Reason        string
	Entities      []RunEntity
	AssetsCopied  int
	AssetFailures int
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Count returns how many entities ended with outcome.
func (r RunRecord) Count(outcome Outcome) int {
	n := 0
	for _, entity := range r.Entities {
		if entity.Outcome == outcome {
			n++
		}
	}
	return n
}

// RunStore persists snapshot run history.
type RunStore interface {
	RecordRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, error)
	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}
