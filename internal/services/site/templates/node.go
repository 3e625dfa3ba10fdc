package templates

import (
	"context"
	"io"
	"time"

	"github.com/a-h/templ"
)

// NodeView is one entity ready for display. Body is trusted markup with
// embeds already expanded.
type NodeView struct {
	ID        string
	Title     string
	Body      string
	URL       string
	UpdatedAt time.Time
}

// NodeArticle renders the entity body.
func NodeArticle(loc Localizer, node NodeView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		h.raw(`<article class="node"`)
		h.attr("id", "node-"+node.ID)
		h.raw(`><h1>`)
		h.text(node.Title)
		h.raw(`</h1><div class="node-body">`)
		h.component(ctx, templ.Raw(node.Body))
		h.raw(`</div>`)
		if !node.UpdatedAt.IsZero() {
			h.raw(`<footer><time`)
			h.attr("datetime", node.UpdatedAt.UTC().Format(time.RFC3339))
			h.raw(`>`)
			h.text(T(loc, "site.node.updated", node.UpdatedAt.UTC().Format("2006-01-02")))
			h.raw(`</time></footer>`)
		}
		h.raw(`</article>`)
		return h.err
	})
}

// NodePage renders the entity as a full page.
func NodePage(page PageContext, node NodeView) templ.Component {
	page.Title = node.Title
	return withLayout(page, NodeArticle(page.Loc, node))
}

// EmbedFragment renders an entity embedded in another page.
func EmbedFragment(node NodeView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		h.raw(`<section class="embed"`)
		h.attr("data-node", node.ID)
		h.raw(`><h2>`)
		h.text(node.Title)
		h.raw(`</h2>`)
		h.component(ctx, templ.Raw(node.Body))
		h.raw(`</section>`)
		return h.err
	})
}

// EmbedUnavailable replaces an embed that could not be rendered.
func EmbedUnavailable(loc Localizer, id string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		h.raw(`<p class="embed embed-unavailable">`)
		h.text(T(loc, "site.embed.unavailable", id))
		h.raw(`</p>`)
		return h.err
	})
}

// FrontListing lists published entities when no front page is configured.
func FrontListing(page PageContext, nodes []NodeView) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		h.raw(`<section class="front"><h1>`)
		h.text(T(page.Loc, "site.front.heading"))
		h.raw(`</h1>`)
		if len(nodes) == 0 {
			h.raw(`<p>`)
			h.text(T(page.Loc, "site.front.empty"))
			h.raw(`</p>`)
		} else {
			h.raw(`<ul>`)
			for _, node := range nodes {
				h.raw(`<li><a`)
				h.attr("href", node.URL)
				h.raw(`>`)
				h.text(node.Title)
				h.raw(`</a></li>`)
			}
			h.raw(`</ul>`)
		}
		h.raw(`</section>`)
		return h.err
	})
	return withLayout(page, body)
}
