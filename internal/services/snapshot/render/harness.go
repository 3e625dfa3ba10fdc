// Package render renders site pages through in-process sub-requests bound
// to an ambient scope.
package render

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/pagesnap/internal/platform/errors"
	"github.com/louisbranch/pagesnap/internal/platform/requestctx"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/ambient"
)

// DefaultMaxDepth bounds nested renders.
const DefaultMaxDepth = 8

const tracerName = "github.com/louisbranch/pagesnap/internal/services/snapshot/render"

// Result is one rendered page.
type Result struct {
	HTML        string
	URL         string
	StatusCode  int
	ContentType string
}

// Harness renders URLs through an Engine within an ambient scope.
type Harness struct {
	engine   Engine
	maxDepth int
	timeout  time.Duration
	tracer   trace.Tracer
}

// Option configures a Harness.
type Option func(*Harness)

// WithMaxDepth bounds how deep nested renders may go.
func WithMaxDepth(depth int) Option {
	return func(h *Harness) {
		if depth > 0 {
			h.maxDepth = depth
		}
	}
}

// WithTimeout caps each top-level render, nested renders included.
func WithTimeout(timeout time.Duration) Option {
	return func(h *Harness) {
		h.timeout = timeout
	}
}

// NewHarness returns a harness dispatching to engine.
func NewHarness(engine Engine, opts ...Option) *Harness {
	h := &Harness{
		engine:   engine,
		maxDepth: DefaultMaxDepth,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Render dispatches GET rawURL as the active request of scope and returns
// the body. A URL equal to the currently active request fails with
// CodeRecursiveRender without dispatching.
func (h *Harness) Render(ctx context.Context, scope *ambient.Scope, rawURL string) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if h == nil || h.engine == nil {
		return Result{}, apperrors.New(apperrors.CodeRenderEngine, "render engine is not configured")
	}
	if scope == nil {
		return Result{}, apperrors.New(apperrors.CodeRenderEngine, "render scope is required")
	}
	meta := map[string]string{"url": rawURL}
	target, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, apperrors.WrapWithMetadata(apperrors.CodeRenderEngine, "parse render url", meta, err)
	}
	if current := scope.Current(); current != nil && requestURI(current.URL) == requestURI(target) {
		return Result{}, apperrors.WithMetadata(apperrors.CodeRecursiveRender, "render would recurse into "+requestURI(target), meta)
	}

	parent := frameFromContext(ctx)
	depth := 1
	if parent != nil {
		depth = parent.depth + 1
	}
	if depth > h.maxDepth {
		return Result{}, apperrors.WithMetadata(apperrors.CodeRenderEngine, "render nesting exceeds depth "+strconv.Itoa(h.maxDepth), meta)
	}

	ctx, span := h.tracer.Start(ctx, "render.Render", trace.WithAttributes(
		attribute.String("render.url", rawURL),
		attribute.Int("render.depth", depth),
	))
	defer span.End()

	if depth == 1 && h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	current := &frame{harness: h, scope: scope, depth: depth}
	reqCtx := ambient.WithScope(ctx, scope)
	reqCtx = requestctx.WithAccount(reqCtx, scope.Account())
	reqCtx = requestctx.WithSessionID(reqCtx, scope.Session().ID)
	reqCtx = context.WithValue(reqCtx, frameContextKey{}, current)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{}, h.fail(span, apperrors.WrapWithMetadata(apperrors.CodeRenderEngine, "build render request", meta, err))
	}
	req.RequestURI = requestURI(target)

	resp, err := h.dispatch(scope, req)

	if nestedErr := current.err(); nestedErr != nil {
		return Result{}, h.fail(span, nestedErr)
	}
	if err != nil {
		return Result{}, h.fail(span, apperrors.WrapWithMetadata(apperrors.CodeRenderEngine, "dispatch "+rawURL, meta, err))
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, h.fail(span, apperrors.WrapWithMetadata(apperrors.CodeRenderEngine, "render "+rawURL, meta, ctxErr))
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, h.fail(span, apperrors.WithMetadata(apperrors.CodeRenderEngine, fmt.Sprintf("render %s: status %d", rawURL, resp.StatusCode), meta))
	}
	return Result{
		HTML:        string(resp.Body),
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.ContentType,
	}, nil
}

func (h *Harness) dispatch(scope *ambient.Scope, req *http.Request) (Response, error) {
	scope.Push(req)
	defer scope.Pop()
	return h.engine.Dispatch(req)
}

func (h *Harness) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Nested renders rawURL from inside a page being rendered by a Harness,
// sharing its scope. A failure is also recorded on the enclosing render,
// which then fails with the same error regardless of its status code.
func Nested(ctx context.Context, rawURL string) (Result, error) {
	parent := frameFromContext(ctx)
	if parent == nil {
		return Result{}, apperrors.WithMetadata(apperrors.CodeRenderEngine, "nested render outside of a render", map[string]string{"url": rawURL})
	}
	result, err := parent.harness.Render(ctx, parent.scope, rawURL)
	if err != nil {
		parent.record(err)
	}
	return result, err
}

// InRender reports whether ctx belongs to a request dispatched by a Harness.
func InRender(ctx context.Context) bool {
	return frameFromContext(ctx) != nil
}

// Depth returns the nesting depth of the render ctx belongs to: 1 for a
// top-level render, 0 outside of any render.
func Depth(ctx context.Context) int {
	if f := frameFromContext(ctx); f != nil {
		return f.depth
	}
	return 0
}

type frameContextKey struct{}

type frame struct {
	harness *Harness
	scope   *ambient.Scope
	depth   int

	mu       sync.Mutex
	firstErr error
}

func (f *frame) record(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.firstErr == nil {
		f.firstErr = err
	}
}

func (f *frame) err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.firstErr
}

func frameFromContext(ctx context.Context) *frame {
	if ctx == nil {
		return nil
	}
	f, _ := ctx.Value(frameContextKey{}).(*frame)
	return f
}

func requestURI(u *url.URL) string {
	if u == nil {
		return "/"
	}
	uri := u.RequestURI()
	if uri == "" {
		return "/"
	}
	return uri
}
