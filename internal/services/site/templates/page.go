// Package templates holds the templ components of the live site and its
// snapshot admin form.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
	"golang.org/x/text/message"
)

// Localizer provides translated strings for templ components.
type Localizer interface {
	Sprintf(key message.Reference, args ...any) string
}

// T returns a translated string or a key-derived fallback.
func T(loc Localizer, key message.Reference, args ...any) string {
	if loc != nil {
		return loc.Sprintf(key, args...)
	}
	if keyString, ok := key.(string); ok {
		if len(args) > 0 {
			return fmt.Sprintf(keyString, args...)
		}
		return keyString
	}
	return ""
}

// PageContext provides shared layout context for pages.
type PageContext struct {
	Lang        string
	Loc         Localizer
	SiteName    string
	PublicPath  string
	CurrentPath string
	Title       string
}

func (p PageContext) assetURL(category, name string) string {
	return strings.TrimRight(p.PublicPath, "/") + "/" + category + "/" + name
}

// html writes markup and keeps the first write error.
type html struct {
	w   io.Writer
	err error
}

func (h *html) raw(s string) {
	if h.err != nil {
		return
	}
	_, h.err = io.WriteString(h.w, s)
}

func (h *html) text(s string) {
	h.raw(templ.EscapeString(s))
}

func (h *html) attr(name, value string) {
	h.raw(" " + name + `="` + templ.EscapeString(value) + `"`)
}

func (h *html) component(ctx context.Context, c templ.Component) {
	if h.err != nil || c == nil {
		return
	}
	h.err = c.Render(ctx, h.w)
}

// Layout wraps its children in the site chrome: stylesheet, navigation and
// the site script, all served from the public files path.
func Layout(page PageContext) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		lang := page.Lang
		if lang == "" {
			lang = "en-US"
		}
		siteName := page.SiteName
		if siteName == "" {
			siteName = T(page.Loc, "core.site_name")
		}
		title := siteName
		if page.Title != "" {
			title = page.Title + " | " + siteName
		}

		h.raw("<!DOCTYPE html>\n<html")
		h.attr("lang", lang)
		h.raw(`><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>`)
		h.text(title)
		h.raw(`</title><link rel="stylesheet"`)
		h.attr("href", page.assetURL("css", "site.css"))
		h.raw(`></head><body><header class="site-header"><a class="site-name" href="/">`)
		h.text(siteName)
		h.raw(`</a><nav><a href="/">`)
		h.text(T(page.Loc, "site.nav.home"))
		h.raw(`</a></nav></header><main>`)
		h.component(ctx, templ.GetChildren(ctx))
		h.raw(`</main><script`)
		h.attr("src", page.assetURL("js", "site.js"))
		h.raw("></script></body></html>\n")
		return h.err
	})
}

// ErrorPage renders a titled error message inside the layout.
func ErrorPage(page PageContext, title, message string) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		h.raw(`<section class="error"><h1>`)
		h.text(title)
		h.raw(`</h1><p>`)
		h.text(message)
		h.raw(`</p></section>`)
		return h.err
	})
	page.Title = title
	return withLayout(page, body)
}

func withLayout(page PageContext, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return Layout(page).Render(templ.WithChildren(ctx, body), w)
	})
}
