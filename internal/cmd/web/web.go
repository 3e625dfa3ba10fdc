// Package web parses site service flags and launches the live site with its
// snapshot admin form.
package web

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/pagesnap/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/pagesnap/internal/platform/grpc"
	"github.com/louisbranch/pagesnap/internal/platform/timeouts"
	"github.com/louisbranch/pagesnap/internal/services/site"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/ambient"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/storage/sqlite"
)

// Config holds web command configuration.
type Config struct {
	HTTPAddr      string        `env:"WEB_HTTP_ADDR" envDefault:"localhost:8080"`
	HealthAddr    string        `env:"WEB_HEALTH_ADDR" envDefault:"localhost:8081"`
	DBPath        string        `env:"DB_PATH" envDefault:"data/pagesnap.db"`
	PublicRoot    string        `env:"PUBLIC_ROOT" envDefault:"data/public"`
	PublicPath    string        `env:"PUBLIC_PATH" envDefault:"/sites/default/files"`
	SiteName      string        `env:"SITE_NAME"`
	FrontPageID   string        `env:"FRONT_PAGE_ID"`
	BaseURL       string        `env:"BASE_URL" envDefault:"/"`
	Categories    []string      `env:"ASSET_CATEGORIES" envDefault:"css,js"`
	RenderTimeout time.Duration `env:"RENDER_TIMEOUT" envDefault:"30s"`
	MaxDepth      int           `env:"RENDER_MAX_DEPTH" envDefault:"8"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.HealthAddr, "health-addr", cfg.HealthAddr, "gRPC health listen address (empty disables)")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to the sqlite database")
	fs.StringVar(&cfg.PublicRoot, "public-root", cfg.PublicRoot, "public files directory; bundles are written beneath it")
	fs.StringVar(&cfg.PublicPath, "public-path", cfg.PublicPath, "URL path the public files are served from")
	fs.StringVar(&cfg.FrontPageID, "front-page", cfg.FrontPageID, "front-page entity id, overriding the stored setting")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SiteConfig maps the command configuration onto the site service.
func (c Config) SiteConfig() site.Config {
	return site.Config{
		SiteName:    c.SiteName,
		PublicRoot:  c.PublicRoot,
		PublicPath:  c.PublicPath,
		FrontPageID: c.FrontPageID,
	}
}

// SnapshotConfig maps the command configuration onto the snapshot pipeline.
func (c Config) SnapshotConfig() site.SnapshotConfig {
	return site.SnapshotConfig{
		Site:          c.SiteConfig(),
		BaseURL:       c.BaseURL,
		Categories:    c.Categories,
		RenderTimeout: c.RenderTimeout,
		MaxDepth:      c.MaxDepth,
	}
}

// Run starts the site and its health endpoint.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWeb, func(ctx context.Context) error {
		store, err := OpenStore(cfg.DBPath, sqlite.WithPublicPath(cfg.PublicPath))
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("close store: %v", err)
			}
		}()
		if err := os.MkdirAll(cfg.PublicRoot, 0o755); err != nil {
			return fmt.Errorf("create public root: %w", err)
		}

		host := &ambient.Host{}
		snapshotConfig := cfg.SnapshotConfig()
		snapshotConfig.Host = host
		gen, err := site.NewGenerator(snapshotConfig, store)
		if err != nil {
			return fmt.Errorf("init snapshot generator: %w", err)
		}
		handler, err := site.NewHandler(cfg.SiteConfig(), site.Dependencies{
			Entities:  store,
			Settings:  store,
			Runs:      store,
			Snapshots: gen,
			Host:      host,
		})
		if err != nil {
			return fmt.Errorf("init site handler: %w", err)
		}
		server, err := site.NewServer(cfg.HTTPAddr, handler)
		if err != nil {
			return fmt.Errorf("init site server: %w", err)
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		healthDone := make(chan error, 1)
		if addr := strings.TrimSpace(cfg.HealthAddr); addr != "" {
			health, err := platformgrpc.ListenHealth(addr, entrypoint.ServiceWeb)
			if err != nil {
				return fmt.Errorf("listen health: %w", err)
			}
			go func() {
				healthDone <- health.Serve(ctx)
			}()
		} else {
			healthDone <- nil
		}

		serveErr := server.ListenAndServe(ctx)
		cancel()
		select {
		case err := <-healthDone:
			if err != nil {
				log.Printf("health server: %v", err)
			}
		case <-time.After(timeouts.Shutdown):
			log.Printf("health server did not stop within %s", timeouts.Shutdown)
		}
		if serveErr != nil {
			return fmt.Errorf("serve site: %w", serveErr)
		}
		return nil
	})
}

// OpenStore opens the sqlite store at path, creating its directory.
func OpenStore(path string, opts ...sqlite.Option) (*sqlite.Store, error) {
	cleanPath := filepath.Clean(strings.TrimSpace(path))
	if cleanPath == "." || cleanPath == "" {
		return nil, errors.New("db path is required")
	}
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(cleanPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return store, nil
}
