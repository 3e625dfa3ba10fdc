// Package site serves the live content site that snapshots are rendered
// from, its public files and the snapshot admin form.
package site

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"

	"github.com/a-h/templ"
	"github.com/louisbranch/pagesnap/internal/platform/branding"
	"github.com/louisbranch/pagesnap/internal/platform/i18n"
	"github.com/louisbranch/pagesnap/internal/services/site/templates"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/ambient"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/generator"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/render"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/rewrite"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/storage"
)

// embedPattern matches [[embed:<id>]] tokens in entity bodies.
var embedPattern = regexp.MustCompile(`\[\[embed:([A-Za-z0-9_.-]+)\]\]`)

// Config defines the inputs for the site handler.
type Config struct {
	SiteName    string
	PublicRoot  string
	PublicPath  string
	FrontPageID string
}

// Snapshotter runs snapshot generations for the admin form.
type Snapshotter interface {
	Generate(ctx context.Context, req generator.Request) (generator.Report, error)
}

// Dependencies are the stores and services the handler reads. Host, when
// set, receives the live state of admin requests; pass the same host to
// NewGenerator through SnapshotConfig.Host.
type Dependencies struct {
	Entities  storage.EntityStore
	Settings  storage.SettingsStore
	Runs      storage.RunStore
	Snapshots Snapshotter
	Host      *ambient.Host
}

type handler struct {
	config    Config
	entities  storage.EntityStore
	frontPage FrontPage
	runs      storage.RunStore
	snapshots Snapshotter
}

// NewHandler builds the site routes. The admin form is only mounted when a
// Snapshotter is provided.
func NewHandler(config Config, deps Dependencies) (http.Handler, error) {
	if deps.Entities == nil {
		return nil, errors.New("entity store is required")
	}
	config.PublicPath = normalizePublicPath(config.PublicPath)
	if strings.TrimSpace(config.SiteName) == "" {
		config.SiteName = branding.AppName
	}

	h := &handler{
		config:    config,
		entities:  deps.Entities,
		frontPage: FrontPage{Override: config.FrontPageID, Settings: deps.Settings},
		runs:      deps.Runs,
		snapshots: deps.Snapshots,
	}

	mux := http.NewServeMux()
	if root := strings.TrimSpace(config.PublicRoot); root != "" {
		mux.Handle("GET "+config.PublicPath+"/", http.StripPrefix(config.PublicPath, http.FileServer(http.Dir(root))))
	}
	mux.HandleFunc("GET /{$}", h.handleFront)
	mux.HandleFunc("GET /node/{id}", h.handleNode)
	if h.snapshots != nil {
		admin := withAmbient(deps.Host)
		mux.Handle("GET /admin/snapshot", admin(http.HandlerFunc(h.handleAdminForm)))
		mux.Handle("POST /admin/snapshot", admin(http.HandlerFunc(h.handleAdminGenerate)))
	}
	mux.HandleFunc("GET /up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /", h.handleAlias)
	return mux, nil
}

func normalizePublicPath(publicPath string) string {
	publicPath = strings.Trim(strings.TrimSpace(publicPath), "/")
	if publicPath == "" {
		publicPath = strings.Trim(rewrite.DefaultPublicPath, "/")
	}
	return "/" + publicPath
}

func (h *handler) pageContext(r *http.Request) templates.PageContext {
	tag := i18n.ResolveTag(r)
	return templates.PageContext{
		Lang:        tag.String(),
		Loc:         i18n.Printer(tag),
		SiteName:    h.config.SiteName,
		PublicPath:  h.config.PublicPath,
		CurrentPath: r.URL.Path,
	}
}

func (h *handler) handleFront(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page := h.pageContext(r)
	id, ok, err := h.frontPage.FrontPageID(ctx)
	if err != nil {
		log.Printf("front page lookup: %v", err)
	}
	if ok {
		entity, err := h.entities.GetEntity(ctx, id)
		if err == nil && entity.Published {
			h.writeEntity(w, r, entity)
			return
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			h.renderError(w, r, http.StatusInternalServerError, err)
			return
		}
	}

	entities, err := h.entities.ListEntities(ctx, true)
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, err)
		return
	}
	nodes := make([]templates.NodeView, 0, len(entities))
	for _, entity := range entities {
		nodes = append(nodes, templates.NodeView{ID: entity.ID, Title: entity.Title, URL: entity.CanonicalURL()})
	}
	writePage(w, r, http.StatusOK, templates.FrontListing(page, nodes))
}

func (h *handler) handleNode(w http.ResponseWriter, r *http.Request) {
	entity, err := h.entities.GetEntity(r.Context(), r.PathValue("id"))
	h.serveEntity(w, r, entity, err)
}

func (h *handler) handleAlias(w http.ResponseWriter, r *http.Request) {
	entity, err := h.entities.GetEntityByAlias(r.Context(), r.URL.Path)
	h.serveEntity(w, r, entity, err)
}

func (h *handler) serveEntity(w http.ResponseWriter, r *http.Request, entity storage.Entity, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrNotFound) {
			status = http.StatusNotFound
		}
		h.renderError(w, r, status, err)
		return
	}
	if !entity.Published {
		h.renderError(w, r, http.StatusNotFound, storage.ErrNotFound)
		return
	}
	h.writeEntity(w, r, entity)
}

// writeEntity writes the entity as a full page, or as an embed fragment when
// r is a nested render.
func (h *handler) writeEntity(w http.ResponseWriter, r *http.Request, entity storage.Entity) {
	page := h.pageContext(r)
	node := templates.NodeView{
		ID:        entity.ID,
		Title:     entity.Title,
		URL:       entity.CanonicalURL(),
		UpdatedAt: entity.UpdatedAt,
	}
	body, err := h.expandEmbeds(r.Context(), page.Loc, entity, map[string]bool{entity.ID: true})
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, err)
		return
	}
	node.Body = body
	if render.Depth(r.Context()) > 1 {
		writePage(w, r, http.StatusOK, templates.EmbedFragment(node))
		return
	}
	writePage(w, r, http.StatusOK, templates.NodePage(page, node))
}

// expandEmbeds replaces embed tokens in the entity body. Inside a snapshot
// render each embed is a nested render of the embedded entity's canonical
// URL, and its failure fails the page. On the live site embeds are read from
// the store and visited breaks cycles.
func (h *handler) expandEmbeds(ctx context.Context, loc templates.Localizer, entity storage.Entity, visited map[string]bool) (string, error) {
	matches := embedPattern.FindAllStringSubmatchIndex(entity.Body, -1)
	if len(matches) == 0 {
		return entity.Body, nil
	}
	var out strings.Builder
	last := 0
	for _, m := range matches {
		out.WriteString(entity.Body[last:m[0]])
		last = m[1]
		id := entity.Body[m[2]:m[3]]

		fragment, err := h.embed(ctx, loc, id, visited)
		if err != nil {
			return "", err
		}
		out.WriteString(fragment)
	}
	out.WriteString(entity.Body[last:])
	return out.String(), nil
}

func (h *handler) embed(ctx context.Context, loc templates.Localizer, id string, visited map[string]bool) (string, error) {
	embedded, err := h.entities.GetEntity(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !embedded.Published) {
		return componentString(ctx, templates.EmbedUnavailable(loc, id))
	}
	if err != nil {
		return "", fmt.Errorf("load embed %s: %w", id, err)
	}

	if render.InRender(ctx) {
		result, err := render.Nested(ctx, embedded.CanonicalURL())
		if err != nil {
			return "", err
		}
		return result.HTML, nil
	}

	if visited[id] {
		return componentString(ctx, templates.EmbedUnavailable(loc, id))
	}
	visited[id] = true
	defer delete(visited, id)
	body, err := h.expandEmbeds(ctx, loc, embedded, visited)
	if err != nil {
		return "", err
	}
	return componentString(ctx, templates.EmbedFragment(templates.NodeView{ID: embedded.ID, Title: embedded.Title, Body: body}))
}

func (h *handler) renderError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		log.Printf("site %s: %v", r.URL.Path, err)
	}
	page := h.pageContext(r)
	title := templates.T(page.Loc, "site.error.title")
	message := http.StatusText(status)
	if status == http.StatusNotFound {
		message = templates.T(page.Loc, "site.error.not_found")
	}
	writePage(w, r, status, templates.ErrorPage(page, title, message))
}

func componentString(ctx context.Context, c templ.Component) (string, error) {
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// writePage renders c into a buffer before writing so a render error can
// still produce a 500.
func writePage(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	var buf bytes.Buffer
	if err := c.Render(r.Context(), &buf); err != nil {
		log.Printf("render %s: %v", r.URL.Path, err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
