package site

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"unicode"

	apperrors "github.com/louisbranch/pagesnap/internal/platform/errors"
	errori18n "github.com/louisbranch/pagesnap/internal/platform/errors/i18n"
	"github.com/louisbranch/pagesnap/internal/platform/i18n"
	"github.com/louisbranch/pagesnap/internal/services/site/templates"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/generator"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/storage"
)

// recentRuns is how many history rows the admin form shows.
const recentRuns = 10

func (h *handler) handleAdminForm(w http.ResponseWriter, r *http.Request) {
	h.writeAdmin(w, r, http.StatusOK, templates.AdminView{}, nil)
}

func (h *handler) handleAdminGenerate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeAdmin(w, r, http.StatusBadRequest, templates.AdminView{
			Error: errorMessage(r, apperrors.WrapWithMetadata(apperrors.CodeInvalidRequest, "parse form", map[string]string{"reason": "malformed form"}, err)),
		}, nil)
		return
	}
	req := generator.Request{
		EntityIDs: formIDs(r.PostForm["entities"]),
		Directory: strings.TrimSpace(r.PostFormValue("directory")),
	}
	view := templates.AdminView{Directory: req.Directory}

	report, err := h.snapshots.Generate(r.Context(), req)
	if err == nil || report.BundlePath != "" {
		view.Report = reportView(r, report)
	}
	if err != nil {
		status := apperrors.CodeOf(err).HTTPStatus()
		if status >= http.StatusInternalServerError {
			log.Printf("snapshot %q: %v", req.Directory, err)
		}
		view.Error = errorMessage(r, err)
		h.writeAdmin(w, r, status, view, req.EntityIDs)
		return
	}
	h.writeAdmin(w, r, http.StatusOK, view, req.EntityIDs)
}

func (h *handler) writeAdmin(w http.ResponseWriter, r *http.Request, status int, view templates.AdminView, selected []string) {
	ctx := r.Context()
	entities, err := h.entities.ListEntities(ctx, false)
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, err)
		return
	}
	frontID, hasFront, err := h.frontPage.FrontPageID(ctx)
	if err != nil {
		log.Printf("front page lookup: %v", err)
	}
	isSelected := make(map[string]bool, len(selected))
	for _, id := range selected {
		isSelected[id] = true
	}
	view.Options = make([]templates.EntityOption, 0, len(entities))
	for _, entity := range entities {
		view.Options = append(view.Options, templates.EntityOption{
			ID:        entity.ID,
			Title:     entity.Title,
			Published: entity.Published,
			FrontPage: hasFront && entity.ID == frontID,
			Selected:  isSelected[entity.ID],
		})
	}

	if h.runs != nil {
		runs, err := h.runs.ListRuns(ctx, recentRuns)
		if err != nil {
			log.Printf("list snapshot runs: %v", err)
		}
		view.Runs = runViews(runs)
	}
	writePage(w, r, status, templates.AdminPage(h.pageContext(r), view))
}

// formIDs accepts repeated fields as well as comma or space separated lists.
func formIDs(values []string) []string {
	var ids []string
	for _, value := range values {
		ids = append(ids, strings.FieldsFunc(value, func(r rune) bool {
			return r == ',' || unicode.IsSpace(r)
		})...)
	}
	return ids
}

func errorMessage(r *http.Request, err error) string {
	catalog := errori18n.GetCatalog(localeOf(r))
	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) {
		return catalog.Format(string(apperrors.CodeUnknown), nil)
	}
	return catalog.Format(string(domainErr.Code), domainErr.Metadata)
}

func localeOf(r *http.Request) string {
	return i18n.ResolveTag(r).String()
}

func reportView(r *http.Request, report generator.Report) *templates.ReportView {
	catalog := errori18n.GetCatalog(localeOf(r))
	view := &templates.ReportView{
		RunID:        report.RunID,
		BundlePath:   report.BundlePath,
		Written:      len(report.Succeeded),
		Failed:       len(report.Failed),
		Skipped:      len(report.SkippedUnresolved),
		AssetsCopied: report.AssetsCopied,
	}
	for _, failure := range report.Failed {
		view.Messages = append(view.Messages, catalog.Format(string(failure.Code), map[string]string{"id": failure.ID}))
	}
	for _, id := range report.SkippedUnresolved {
		view.Messages = append(view.Messages, catalog.Format(string(apperrors.CodeUnresolvedEntity), map[string]string{"id": id}))
	}
	for _, failure := range report.AssetFailures {
		view.AssetMessages = append(view.AssetMessages, catalog.Format(string(apperrors.CodeAssetSync), map[string]string{"category": failure.Category}))
	}
	return view
}

func runViews(runs []storage.RunRecord) []templates.RunView {
	views := make([]templates.RunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, templates.RunView{
			ID:        run.ID,
			Directory: run.Directory,
			Status:    string(run.Status),
			Written:   run.Count(storage.OutcomeWritten),
			Failed:    run.Count(storage.OutcomeFailed),
			Skipped:   run.Count(storage.OutcomeSkipped),
			StartedAt: run.StartedAt,
		})
	}
	return views
}
