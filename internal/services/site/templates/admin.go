package templates

import (
	"context"
	"io"
	"time"

	"github.com/a-h/templ"
)

// EntityOption is one selectable entity in the snapshot form.
type EntityOption struct {
	ID        string
	Title     string
	Published bool
	FrontPage bool
	Selected  bool
}

// ReportView is a finished run as shown to the operator.
type ReportView struct {
	RunID         string
	BundlePath    string
	Written       int
	Failed        int
	Skipped       int
	AssetsCopied  int
	Messages      []string
	AssetMessages []string
}

// RunView is one row of run history.
type RunView struct {
	ID        string
	Directory string
	Status    string
	Written   int
	Failed    int
	Skipped   int
	StartedAt time.Time
}

// AdminView is the snapshot form state.
type AdminView struct {
	Options   []EntityOption
	Directory string
	Error     string
	Report    *ReportView
	Runs      []RunView
}

// AdminPage renders the snapshot form, the last report and run history.
func AdminPage(page PageContext, view AdminView) templ.Component {
	page.Title = T(page.Loc, "admin.title")
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		h.raw(`<section class="admin-snapshot"><h1>`)
		h.text(T(page.Loc, "admin.title"))
		h.raw(`</h1>`)
		if view.Error != "" {
			h.raw(`<p class="error" role="alert">`)
			h.text(view.Error)
			h.raw(`</p>`)
		}
		if view.Report != nil {
			h.component(ctx, reportSummary(page.Loc, *view.Report))
		}

		h.raw(`<form method="post" action="/admin/snapshot"><label for="entities">`)
		h.text(T(page.Loc, "admin.entities"))
		h.raw(`</label><select id="entities" name="entities" multiple size="10">`)
		for _, option := range view.Options {
			h.raw(`<option`)
			h.attr("value", option.ID)
			if option.Selected {
				h.raw(` selected`)
			}
			h.raw(`>`)
			label := option.Title
			if option.FrontPage {
				label += " (" + T(page.Loc, "admin.front_page") + ")"
			}
			if !option.Published {
				label += " (" + T(page.Loc, "admin.unpublished") + ")"
			}
			h.text(label)
			h.raw(`</option>`)
		}
		h.raw(`</select><p class="help">`)
		h.text(T(page.Loc, "admin.entities_help"))
		h.raw(`</p><label for="directory">`)
		h.text(T(page.Loc, "admin.directory"))
		h.raw(`</label><input id="directory" name="directory" type="text" required`)
		h.attr("value", view.Directory)
		h.raw(`><p class="help">`)
		h.text(T(page.Loc, "admin.directory_help"))
		h.raw(`</p><button type="submit">`)
		h.text(T(page.Loc, "admin.submit"))
		h.raw(`</button></form>`)

		h.raw(`<section class="runs"><h2>`)
		h.text(T(page.Loc, "admin.runs.heading"))
		h.raw(`</h2>`)
		if len(view.Runs) == 0 {
			h.raw(`<p>`)
			h.text(T(page.Loc, "admin.runs.empty"))
			h.raw(`</p>`)
		} else {
			h.raw(`<ul>`)
			for _, run := range view.Runs {
				h.raw(`<li`)
				h.attr("data-run", run.ID)
				h.raw(`>`)
				h.text(T(page.Loc, "admin.runs.row", run.StartedAt.UTC().Format(time.RFC3339), run.Directory, run.Status, run.Written, run.Failed, run.Skipped))
				h.raw(`</li>`)
			}
			h.raw(`</ul>`)
		}
		h.raw(`</section></section>`)
		return h.err
	})
	return withLayout(page, body)
}

func reportSummary(loc Localizer, report ReportView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		h.raw(`<section class="report"`)
		h.attr("data-run", report.RunID)
		h.raw(`><h2>`)
		h.text(T(loc, "admin.report.heading", report.RunID))
		h.raw(`</h2>`)
		if report.BundlePath != "" {
			h.raw(`<p>`)
			h.text(T(loc, "admin.report.bundle", report.BundlePath))
			h.raw(`</p>`)
		}
		h.raw(`<ul class="counts"><li>`)
		h.text(T(loc, "admin.report.written", report.Written))
		h.raw(`</li><li>`)
		h.text(T(loc, "admin.report.failed", report.Failed))
		h.raw(`</li><li>`)
		h.text(T(loc, "admin.report.skipped", report.Skipped))
		h.raw(`</li><li>`)
		h.text(T(loc, "admin.report.assets", report.AssetsCopied))
		h.raw(`</li></ul>`)
		for _, msg := range append(append([]string(nil), report.Messages...), report.AssetMessages...) {
			h.raw(`<p class="warning">`)
			h.text(msg)
			h.raw(`</p>`)
		}
		h.raw(`</section>`)
		return h.err
	})
}
