package site

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/pagesnap/internal/platform/storage/publicfs"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/ambient"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/assets"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/generator"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/render"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/rewrite"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/storage"
)

// Store is every persistence contract the site and its snapshots need.
type Store interface {
	storage.EntityStore
	storage.SettingsStore
	storage.RunStore
}

// SnapshotConfig wires the snapshot pipeline over the site.
type SnapshotConfig struct {
	Site          Config
	BaseURL       string
	Categories    []string
	RenderTimeout time.Duration
	MaxDepth      int
	Host          *ambient.Host
	Logf          func(string, ...any)
}

// NewGenerator builds a snapshot generator that renders pages through the
// site handler and writes bundles under the site's public files root.
//
// The render handler has no admin routes, so the admin form can never be
// captured into a bundle.
func NewGenerator(cfg SnapshotConfig, store Store) (*generator.Generator, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if strings.TrimSpace(cfg.Site.PublicRoot) == "" {
		return nil, errors.New("public root is required")
	}
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}

	fs, err := publicfs.NewLocal(cfg.Site.PublicRoot)
	if err != nil {
		return nil, fmt.Errorf("open public files: %w", err)
	}
	renderHandler, err := NewHandler(cfg.Site, Dependencies{Entities: store, Settings: store})
	if err != nil {
		return nil, fmt.Errorf("build render handler: %w", err)
	}

	var harnessOpts []render.Option
	if cfg.MaxDepth > 0 {
		harnessOpts = append(harnessOpts, render.WithMaxDepth(cfg.MaxDepth))
	}
	if cfg.RenderTimeout > 0 {
		harnessOpts = append(harnessOpts, render.WithTimeout(cfg.RenderTimeout))
	}
	categories := assets.CategoriesFromNames(cfg.Categories)
	if len(categories) == 0 {
		categories = assets.DefaultCategories()
	}
	names := make([]string, 0, len(categories))
	for _, category := range categories {
		names = append(names, category.Name)
	}

	return generator.New(generator.Config{
		Content:    store,
		FrontPage:  FrontPage{Override: cfg.Site.FrontPageID, Settings: store},
		Guard:      ambient.NewGuard(cfg.Host, ambient.WithBaseURL(cfg.BaseURL)),
		Renderer:   render.NewHarness(render.HandlerEngine{Handler: renderHandler}, harnessOpts...),
		Rewriter:   rewrite.New(normalizePublicPath(cfg.Site.PublicPath), names...),
		Assets:     assets.NewSynchronizer(fs, categories, assets.WithLogf(logf)),
		Filesystem: fs,
		Recorder:   store,
		Logf:       logf,
	})
}
