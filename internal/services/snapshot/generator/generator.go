// Package generator orchestrates snapshot runs: it renders selected
// entities as an anonymous visitor, rewrites their asset references and
// writes them with mirrored assets into a bundle directory.
package generator

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/pagesnap/internal/platform/errors"
	"github.com/louisbranch/pagesnap/internal/platform/id"
	"github.com/louisbranch/pagesnap/internal/platform/storage/publicfs"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/ambient"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/assets"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/render"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/storage"
)

const tracerName = "github.com/louisbranch/pagesnap/internal/services/snapshot/generator"

// ContentStore resolves entity ids to canonical URLs.
type ContentStore interface {
	Resolve(ctx context.Context, ids []string) (map[string]storage.ResolvedEntity, error)
}

// FrontPageConfig reports the site's front-page entity.
type FrontPageConfig interface {
	FrontPageID(ctx context.Context) (string, bool, error)
}

// Renderer renders one URL within an entered scope.
type Renderer interface {
	Render(ctx context.Context, scope *ambient.Scope, url string) (render.Result, error)
}

// Rewriter rewrites asset references in rendered markup.
type Rewriter interface {
	Rewrite(html string) string
}

// AssetSyncer mirrors asset categories into a bundle.
type AssetSyncer interface {
	Sync(ctx context.Context, bundleDir string) (assets.Result, error)
	Categories() []assets.Category
}

// Filesystem is the subset of the public files abstraction used for pages.
type Filesystem interface {
	EnsureDirectory(path string) error
	RealPath(path string) (string, error)
	WriteFile(path string, data []byte) error
}

// RunRecorder persists run history.
type RunRecorder interface {
	RecordRun(ctx context.Context, run storage.RunRecord) error
}

// Config wires a Generator. Content, Guard, Renderer and Filesystem are
// required.
type Config struct {
	Content    ContentStore
	FrontPage  FrontPageConfig
	Guard      *ambient.Guard
	Renderer   Renderer
	Rewriter   Rewriter
	Assets     AssetSyncer
	Filesystem Filesystem
	Recorder   RunRecorder
	Logf       func(string, ...any)
	Now        func() time.Time
	NewRunID   func() string
}

// Generator runs snapshots.
type Generator struct {
	content   ContentStore
	frontPage FrontPageConfig
	guard     *ambient.Guard
	renderer  Renderer
	rewriter  Rewriter
	assets    AssetSyncer
	fs        Filesystem
	recorder  RunRecorder
	logf      func(string, ...any)
	now       func() time.Time
	newRunID  func() string
	tracer    trace.Tracer
}

// New validates cfg and returns a Generator.
func New(cfg Config) (*Generator, error) {
	if cfg.Content == nil {
		return nil, fmt.Errorf("content store is required")
	}
	if cfg.Guard == nil {
		return nil, fmt.Errorf("context guard is required")
	}
	if cfg.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if cfg.Filesystem == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	g := &Generator{
		content:   cfg.Content,
		frontPage: cfg.FrontPage,
		guard:     cfg.Guard,
		renderer:  cfg.Renderer,
		rewriter:  cfg.Rewriter,
		assets:    cfg.Assets,
		fs:        cfg.Filesystem,
		recorder:  cfg.Recorder,
		logf:      cfg.Logf,
		now:       cfg.Now,
		newRunID:  cfg.NewRunID,
		tracer:    otel.Tracer(tracerName),
	}
	if g.logf == nil {
		g.logf = log.Printf
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.newRunID == nil {
		g.newRunID = newRunID
	}
	return g, nil
}

// Generate runs one snapshot. Only an invalid request, an unreachable
// content store or an unusable bundle directory return an error before any
// page is attempted; per-entity and per-category failures are reported in
// the returned Report. Cancellation stops the run and returns ctx.Err()
// with the partial report. Ambient state is restored on every path.
func (g *Generator) Generate(ctx context.Context, req Request) (Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	report := Report{RunID: g.newRunID(), Directory: req.Directory, StartedAt: g.now()}
	if err := req.Validate(); err != nil {
		report.FinishedAt = g.now()
		return report, err
	}
	if err := g.checkBundleIsolation(req.Directory); err != nil {
		report.FinishedAt = g.now()
		return report, err
	}

	ctx, span := g.tracer.Start(ctx, "snapshot.Generate", trace.WithAttributes(
		attribute.String("snapshot.run_id", report.RunID),
		attribute.String("snapshot.directory", req.Directory),
		attribute.Int("snapshot.entities", len(req.EntityIDs)),
	))
	defer span.End()

	outcomes := make(map[string]storage.RunEntity, len(req.EntityIDs))
	status, err := g.run(ctx, req, &report, outcomes)
	report.FinishedAt = g.now()

	span.SetAttributes(
		attribute.Int("snapshot.succeeded", len(report.Succeeded)),
		attribute.Int("snapshot.failed", len(report.Failed)),
		attribute.Int("snapshot.skipped", len(report.SkippedUnresolved)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	g.logf("snapshot %s: %s into %s: %d written, %d failed, %d skipped, %d assets copied",
		report.RunID, status, req.Directory, len(report.Succeeded), len(report.Failed), len(report.SkippedUnresolved), report.AssetsCopied)
	g.record(ctx, req, report, status, outcomes, err)
	return report, err
}

func (g *Generator) run(ctx context.Context, req Request, report *Report, outcomes map[string]storage.RunEntity) (storage.RunStatus, error) {
	resolved, err := g.content.Resolve(ctx, req.EntityIDs)
	if err != nil {
		return storage.RunAborted, apperrors.Wrap(apperrors.CodeUnresolvedEntity, "resolve entities", err)
	}
	targets := make([]storage.ResolvedEntity, 0, len(req.EntityIDs))
	for _, id := range req.EntityIDs {
		entity, ok := resolved[id]
		switch {
		case !ok:
			g.skip(report, outcomes, id, "entity not found")
		case !entity.Renderable:
			g.skip(report, outcomes, id, "entity is not published")
		default:
			targets = append(targets, entity)
		}
	}

	frontID, hasFront := g.frontPageID(ctx)

	virtual := publicfs.Virtual(req.Directory)
	if err := g.fs.EnsureDirectory(virtual); err != nil {
		return storage.RunAborted, apperrors.WrapWithMetadata(apperrors.CodeFilesystem, "create bundle directory", map[string]string{"directory": req.Directory}, err)
	}
	bundlePath, err := g.fs.RealPath(virtual)
	if err != nil {
		return storage.RunAborted, apperrors.WrapWithMetadata(apperrors.CodeFilesystem, "resolve bundle directory", map[string]string{"directory": req.Directory}, err)
	}
	report.BundlePath = bundlePath

	scope, err := g.guard.Enter(ctx)
	if err != nil {
		return storage.RunCanceled, err
	}
	defer scope.Exit()

	for _, entity := range targets {
		if err := ctx.Err(); err != nil {
			return storage.RunCanceled, err
		}
		g.renderEntity(ctx, scope, bundlePath, entity, hasFront && entity.ID == frontID, report, outcomes)
	}
	if err := ctx.Err(); err != nil {
		return storage.RunCanceled, err
	}

	if g.assets != nil {
		result, err := g.assets.Sync(ctx, bundlePath)
		report.AssetsCopied = len(result.Copied)
		for _, failure := range result.Failures {
			report.AssetFailures = append(report.AssetFailures, AssetFailure{
				Category: failure.Category,
				File:     failure.File,
				Message:  failure.Err.Error(),
			})
		}
		if err != nil {
			return storage.RunCanceled, err
		}
	}

	if report.OK() {
		return storage.RunCompleted, nil
	}
	return storage.RunPartial, nil
}

func (g *Generator) renderEntity(ctx context.Context, scope *ambient.Scope, bundlePath string, entity storage.ResolvedEntity, front bool, report *Report, outcomes map[string]storage.RunEntity) {
	ctx, span := g.tracer.Start(ctx, "snapshot.Entity", trace.WithAttributes(
		attribute.String("snapshot.entity_id", entity.ID),
		attribute.String("snapshot.url", entity.CanonicalURL),
		attribute.Bool("snapshot.front_page", front),
	))
	defer span.End()

	fail := func(err error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		code := apperrors.CodeOf(err)
		g.logf("snapshot %s: entity %s failed: %v", report.RunID, entity.ID, err)
		report.Failed = append(report.Failed, Failure{ID: entity.ID, Code: code, Message: err.Error()})
		outcomes[entity.ID] = storage.RunEntity{EntityID: entity.ID, Outcome: storage.OutcomeFailed, Code: string(code), Message: err.Error()}
	}

	filename := entity.ID + ".html"
	if front {
		filename = IndexFile
	} else if strings.EqualFold(filename, IndexFile) {
		fail(apperrors.WithMetadata(apperrors.CodeFilesystem, "file name "+IndexFile+" is reserved for the front page", map[string]string{"id": entity.ID}))
		return
	}

	result, err := g.renderer.Render(ctx, scope, entity.CanonicalURL)
	if err != nil {
		var domainErr *apperrors.Error
		if !stderrors.As(err, &domainErr) {
			err = apperrors.Wrap(apperrors.CodeRenderEngine, "render "+entity.CanonicalURL, err)
		}
		fail(err)
		return
	}
	html := result.HTML
	if g.rewriter != nil {
		html = g.rewriter.Rewrite(html)
	}
	if err := g.fs.WriteFile(filepath.Join(bundlePath, filename), []byte(html)); err != nil {
		fail(apperrors.WrapWithMetadata(apperrors.CodeFilesystem, "write "+filename, map[string]string{"id": entity.ID}, err))
		return
	}
	report.Succeeded = append(report.Succeeded, entity.ID)
	outcomes[entity.ID] = storage.RunEntity{EntityID: entity.ID, Outcome: storage.OutcomeWritten}
}

// checkBundleIsolation rejects a bundle directory that is, contains or sits
// inside an asset category source, so the mirror stays one-way.
func (g *Generator) checkBundleIsolation(directory string) error {
	if g.assets == nil {
		return nil
	}
	bundlePath, err := g.fs.RealPath(publicfs.Virtual(directory))
	if err != nil {
		return invalid("directory name cannot be resolved", directory)
	}
	for _, category := range g.assets.Categories() {
		source, err := g.fs.RealPath(category.Source)
		if err != nil {
			continue
		}
		if overlaps(bundlePath, source) {
			return invalid("directory name is used by the "+category.Name+" asset files", directory)
		}
	}
	return nil
}

func overlaps(a, b string) bool {
	a, b = filepath.Clean(a), filepath.Clean(b)
	if a == b {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(a, strings.TrimSuffix(b, sep)+sep) || strings.HasPrefix(b, strings.TrimSuffix(a, sep)+sep)
}

func (g *Generator) skip(report *Report, outcomes map[string]storage.RunEntity, id, reason string) {
	g.logf("snapshot %s: skipping entity %s: %s", report.RunID, id, reason)
	report.SkippedUnresolved = append(report.SkippedUnresolved, id)
	outcomes[id] = storage.RunEntity{EntityID: id, Outcome: storage.OutcomeSkipped, Code: string(apperrors.CodeUnresolvedEntity), Message: reason}
}

func (g *Generator) frontPageID(ctx context.Context) (string, bool) {
	if g.frontPage == nil {
		return "", false
	}
	id, ok, err := g.frontPage.FrontPageID(ctx)
	if err != nil {
		g.logf("snapshot: front page lookup failed, writing every entity as <id>.html: %v", err)
		return "", false
	}
	return id, ok && id != ""
}

func (g *Generator) record(ctx context.Context, req Request, report Report, status storage.RunStatus, outcomes map[string]storage.RunEntity, runErr error) {
	if g.recorder == nil {
		return
	}
	run := storage.RunRecord{
		ID:            report.RunID,
		Directory:     req.Directory,
		Status:        status,
		AssetsCopied:  report.AssetsCopied,
		AssetFailures: len(report.AssetFailures),
		StartedAt:     report.StartedAt,
		FinishedAt:    report.FinishedAt,
	}
	if runErr != nil {
		run.Reason = runErr.Error()
		switch {
		case stderrors.Is(runErr, context.Canceled), stderrors.Is(runErr, context.DeadlineExceeded):
			run.ReasonCode = "CANCELED"
		default:
			run.ReasonCode = string(apperrors.CodeOf(runErr))
		}
	}
	for _, id := range req.EntityIDs {
		if outcome, ok := outcomes[id]; ok {
			run.Entities = append(run.Entities, outcome)
		}
	}
	// A canceled run is still recorded.
	recordCtx := context.WithoutCancel(ctx)
	if err := g.recorder.RecordRun(recordCtx, run); err != nil {
		g.logf("snapshot %s: record run: %v", report.RunID, err)
	}
}

func newRunID() string {
	if value, err := id.NewID(); err == nil {
		return value
	}
	return uuid.NewString()
}
