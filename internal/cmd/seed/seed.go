// Package seed loads YAML fixtures into the site database and its public
// files directory for local development.
package seed

import (
	"context"
	"embed"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	webcmd "github.com/louisbranch/pagesnap/internal/cmd/web"
	entrypoint "github.com/louisbranch/pagesnap/internal/platform/cmd"
	"github.com/louisbranch/pagesnap/internal/platform/storage/publicfs"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/storage"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/storage/sqlite"
	"gopkg.in/yaml.v3"
)

//go:embed fixtures/*.yaml
var fixtureFS embed.FS

// Config holds seed command configuration.
type Config struct {
	DBPath     string `env:"DB_PATH" envDefault:"data/pagesnap.db"`
	PublicRoot string `env:"PUBLIC_ROOT" envDefault:"data/public"`
	PublicPath string `env:"PUBLIC_PATH" envDefault:"/sites/default/files"`

	Fixture string
	File    string
	List    bool
	Verbose bool
}

// Fixture is one seed data set.
type Fixture struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	FrontPage   string          `yaml:"front_page"`
	Entities    []FixtureEntity `yaml:"entities"`
	Assets      []FixtureAsset  `yaml:"assets"`
}

// FixtureEntity is one content entity in a fixture.
type FixtureEntity struct {
	ID        string `yaml:"id"`
	Title     string `yaml:"title"`
	Alias     string `yaml:"alias"`
	Published bool   `yaml:"published"`
	Body      string `yaml:"body"`
}

// FixtureAsset is one file written under the public root.
type FixtureAsset struct {
	Path    string `yaml:"path"`
	Content string `yaml:"content"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to the sqlite database")
	fs.StringVar(&cfg.PublicRoot, "public-root", cfg.PublicRoot, "public files directory")
	fs.StringVar(&cfg.Fixture, "fixture", "demo", "embedded fixture to load")
	fs.StringVar(&cfg.File, "file", "", "fixture file to load instead of an embedded one")
	fs.BoolVar(&cfg.List, "list", false, "list embedded fixtures")
	fs.BoolVar(&cfg.Verbose, "v", false, "verbose output")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the seed command.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if cfg.List {
		fixtures, err := ListFixtures()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "Available fixtures:")
		for _, fixture := range fixtures {
			fmt.Fprintf(out, "  %-8s %s\n", fixture.Name, fixture.Description)
		}
		return nil
	}

	fixture, err := loadFixture(cfg)
	if err != nil {
		return err
	}
	store, err := webcmd.OpenStore(cfg.DBPath, sqlite.WithPublicPath(cfg.PublicPath))
	if err != nil {
		return err
	}
	defer store.Close()
	files, err := publicfs.NewLocal(cfg.PublicRoot)
	if err != nil {
		return err
	}

	if err := Apply(ctx, fixture, store, files, out, cfg.Verbose); err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %q: %d entities, %d files\n", fixture.Name, len(fixture.Entities), len(fixture.Assets))
	return nil
}

// ListFixtures returns the embedded fixtures sorted by name.
func ListFixtures() ([]Fixture, error) {
	names, err := fs.Glob(fixtureFS, "fixtures/*.yaml")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	fixtures := make([]Fixture, 0, len(names))
	for _, name := range names {
		data, err := fixtureFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		fixture, err := ParseFixture(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		fixtures = append(fixtures, fixture)
	}
	return fixtures, nil
}

// ParseFixture decodes and validates a YAML fixture.
func ParseFixture(data []byte) (Fixture, error) {
	var fixture Fixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	if strings.TrimSpace(fixture.Name) == "" {
		return Fixture{}, errors.New("fixture name is required")
	}
	seen := make(map[string]bool, len(fixture.Entities))
	for i, entity := range fixture.Entities {
		id := strings.TrimSpace(entity.ID)
		if id == "" {
			return Fixture{}, fmt.Errorf("entity %d: id is required", i)
		}
		if seen[id] {
			return Fixture{}, fmt.Errorf("entity %s: duplicate id", id)
		}
		if err := storage.CheckAlias(strings.Trim(strings.TrimSpace(entity.Alias), "/")); err != nil {
			return Fixture{}, fmt.Errorf("entity %s: %w", id, err)
		}
		seen[id] = true
	}
	if front := strings.TrimSpace(fixture.FrontPage); front != "" && !seen[front] {
		return Fixture{}, fmt.Errorf("front page %s is not a fixture entity", front)
	}
	for _, asset := range fixture.Assets {
		if err := validAssetPath(asset.Path); err != nil {
			return Fixture{}, err
		}
	}
	return fixture, nil
}

// Store is the content persistence a fixture is written to.
type Store interface {
	storage.EntityStore
	storage.SettingsStore
}

// Apply writes fixture into store and files.
func Apply(ctx context.Context, fixture Fixture, store Store, files *publicfs.Local, out io.Writer, verbose bool) error {
	for _, entity := range fixture.Entities {
		if err := store.PutEntity(ctx, storage.Entity{
			ID:        entity.ID,
			Title:     entity.Title,
			Body:      entity.Body,
			Alias:     entity.Alias,
			Published: entity.Published,
		}); err != nil {
			return fmt.Errorf("put entity %s: %w", entity.ID, err)
		}
		if verbose {
			fmt.Fprintf(out, "  entity %s %q\n", entity.ID, entity.Title)
		}
	}
	if err := store.SetFrontPage(ctx, strings.TrimSpace(fixture.FrontPage)); err != nil {
		return fmt.Errorf("set front page: %w", err)
	}
	for _, asset := range fixture.Assets {
		target := publicfs.Virtual(asset.Path)
		if err := files.EnsureDirectory(publicfs.Virtual(path.Dir(asset.Path))); err != nil {
			return err
		}
		if err := files.WriteFile(target, []byte(asset.Content)); err != nil {
			return err
		}
		if verbose {
			fmt.Fprintf(out, "  file %s\n", target)
		}
	}
	return nil
}

func loadFixture(cfg Config) (Fixture, error) {
	if file := strings.TrimSpace(cfg.File); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return Fixture{}, fmt.Errorf("read fixture: %w", err)
		}
		return ParseFixture(data)
	}
	name := strings.TrimSpace(cfg.Fixture)
	if name == "" || strings.ContainsAny(name, `/\`) {
		return Fixture{}, fmt.Errorf("unknown fixture %q", cfg.Fixture)
	}
	data, err := fixtureFS.ReadFile("fixtures/" + name + ".yaml")
	if err != nil {
		return Fixture{}, fmt.Errorf("unknown fixture %q", cfg.Fixture)
	}
	return ParseFixture(data)
}

func validAssetPath(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return errors.New("asset path is required")
	}
	if filepath.IsAbs(value) || strings.HasPrefix(value, "/") || !fs.ValidPath(value) {
		return fmt.Errorf("asset path %q must be relative to the public root", value)
	}
	return nil
}
