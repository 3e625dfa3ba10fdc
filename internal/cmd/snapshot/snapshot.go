// Package snapshot parses snapshot command flags and runs one static bundle
// generation, or lists run history, from the command line.
package snapshot

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	webcmd "github.com/louisbranch/pagesnap/internal/cmd/web"
	entrypoint "github.com/louisbranch/pagesnap/internal/platform/cmd"
	"github.com/louisbranch/pagesnap/internal/platform/i18n"
	"github.com/louisbranch/pagesnap/internal/services/site"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/generator"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/storage"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/storage/sqlite"
	"golang.org/x/text/message"
)

// ErrIncomplete reports a run that finished with failed entities or asset
// categories that could not be mirrored.
var ErrIncomplete = errors.New("snapshot incomplete")

// Config holds snapshot command configuration.
type Config struct {
	DBPath        string        `env:"DB_PATH" envDefault:"data/pagesnap.db"`
	PublicRoot    string        `env:"PUBLIC_ROOT" envDefault:"data/public"`
	PublicPath    string        `env:"PUBLIC_PATH" envDefault:"/sites/default/files"`
	SiteName      string        `env:"SITE_NAME"`
	FrontPageID   string        `env:"FRONT_PAGE_ID"`
	BaseURL       string        `env:"BASE_URL" envDefault:"/"`
	Categories    []string      `env:"ASSET_CATEGORIES" envDefault:"css,js"`
	RenderTimeout time.Duration `env:"RENDER_TIMEOUT" envDefault:"30s"`
	MaxDepth      int           `env:"RENDER_MAX_DEPTH" envDefault:"8"`
	Lang          string        `env:"LANG_TAG" envDefault:"en-US"`

	EntityIDs    []string
	Directory    string
	History      bool
	HistoryLimit int
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	var ids string
	fs.StringVar(&ids, "ids", "", "comma-separated entity ids to snapshot")
	fs.StringVar(&cfg.Directory, "dir", "", "bundle directory name under the public root")
	fs.BoolVar(&cfg.History, "history", false, "list recent snapshot runs instead of generating")
	fs.IntVar(&cfg.HistoryLimit, "limit", 10, "number of runs listed by -history")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to the sqlite database")
	fs.StringVar(&cfg.PublicRoot, "public-root", cfg.PublicRoot, "public files directory")
	fs.StringVar(&cfg.FrontPageID, "front-page", cfg.FrontPageID, "front-page entity id, overriding the stored setting")
	fs.StringVar(&cfg.Lang, "lang", cfg.Lang, "output language")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	cfg.EntityIDs = splitCSV(ids)
	cfg.Directory = strings.TrimSpace(cfg.Directory)
	if !cfg.History && len(cfg.EntityIDs) == 0 {
		return Config{}, errors.New("-ids is required")
	}
	if !cfg.History && cfg.Directory == "" {
		return Config{}, errors.New("-dir is required")
	}
	if cfg.HistoryLimit <= 0 {
		return Config{}, errors.New("-limit must be positive")
	}
	return cfg, nil
}

// Run generates the requested bundle, or prints history, to out.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSnapshot, func(ctx context.Context) error {
		store, err := webcmd.OpenStore(cfg.DBPath, sqlite.WithPublicPath(cfg.PublicPath))
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("close store: %v", err)
			}
		}()

		tag, ok := i18n.ParseTag(cfg.Lang)
		if !ok {
			tag = i18n.DefaultTag()
		}
		printer := i18n.Printer(tag)
		if cfg.History {
			return printHistory(ctx, store, cfg.HistoryLimit, printer, out)
		}

		gen, err := site.NewGenerator(site.SnapshotConfig{
			Site: site.Config{
				SiteName:    cfg.SiteName,
				PublicRoot:  cfg.PublicRoot,
				PublicPath:  cfg.PublicPath,
				FrontPageID: cfg.FrontPageID,
			},
			BaseURL:       cfg.BaseURL,
			Categories:    cfg.Categories,
			RenderTimeout: cfg.RenderTimeout,
			MaxDepth:      cfg.MaxDepth,
		}, store)
		if err != nil {
			return fmt.Errorf("init snapshot generator: %w", err)
		}
		report, err := gen.Generate(ctx, generator.Request{EntityIDs: cfg.EntityIDs, Directory: cfg.Directory})
		if err != nil {
			return fmt.Errorf("generate snapshot: %w", err)
		}
		printReport(report, printer, out)
		if !complete(report) {
			return ErrIncomplete
		}
		return nil
	})
}

// complete reports whether every resolved entity was written and every
// asset category synced. Unresolved ids are listed but do not fail the run.
func complete(report generator.Report) bool {
	return len(report.Failed) == 0 && len(report.AssetFailures) == 0
}

func printReport(report generator.Report, printer *message.Printer, out io.Writer) {
	printer.Fprintf(out, "snapshot.summary", report.RunID, report.BundlePath, len(report.Succeeded), len(report.Failed), len(report.SkippedUnresolved), report.AssetsCopied)
	fmt.Fprintln(out)
	for _, failure := range report.Failed {
		printer.Fprintf(out, "snapshot.failed", failure.ID, failure.Code, failure.Message)
		fmt.Fprintln(out)
	}
	for _, id := range report.SkippedUnresolved {
		printer.Fprintf(out, "snapshot.skipped", id)
		fmt.Fprintln(out)
	}
	for _, failure := range report.AssetFailures {
		printer.Fprintf(out, "snapshot.asset_failed", failure.Category, failure.Message)
		fmt.Fprintln(out)
	}
}

func printHistory(ctx context.Context, runs storage.RunStore, limit int, printer *message.Printer, out io.Writer) error {
	records, err := runs.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(records) == 0 {
		printer.Fprintf(out, "snapshot.history.empty")
		fmt.Fprintln(out)
		return nil
	}
	for _, run := range records {
		printer.Fprintf(out, "snapshot.history.row",
			run.StartedAt.UTC().Format(time.RFC3339), run.ID, string(run.Status),
			run.Count(storage.OutcomeWritten), run.Count(storage.OutcomeFailed), run.Count(storage.OutcomeSkipped),
			run.AssetsCopied)
		fmt.Fprintln(out)
		if run.Reason != "" {
			printer.Fprintf(out, "snapshot.history.reason", run.ReasonCode, run.Reason)
			fmt.Fprintln(out)
		}
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	output := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		output = append(output, trimmed)
	}
	return output
}
