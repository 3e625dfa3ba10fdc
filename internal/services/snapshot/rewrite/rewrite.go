// Package rewrite turns absolute public-file asset references in rendered
// markup into paths relative to the snapshot bundle root.
package rewrite

import (
	"regexp"
	"strings"
)

// DefaultPublicPath is where the site publishes public files.
const DefaultPublicPath = "/sites/default/files"

// DefaultCategories are the asset directories mirrored into every bundle.
var DefaultCategories = []string{"css", "js"}

// Rule rewrites every match of Pattern using Template, which may reference
// submatches with the regexp.Expand syntax.
type Rule struct {
	Pattern  *regexp.Regexp
	Template string
}

// Rewriter applies an ordered rule table to markup.
type Rewriter struct {
	rules []Rule
}

// New builds a rewriter with one rule per asset category under publicPath.
// An empty category list uses DefaultCategories.
func New(publicPath string, categories ...string) *Rewriter {
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	rules := make([]Rule, 0, len(categories))
	for _, category := range categories {
		category = strings.Trim(strings.TrimSpace(category), "/")
		if category == "" {
			continue
		}
		rules = append(rules, CategoryRule(publicPath, category))
	}
	return &Rewriter{rules: rules}
}

// CategoryRule matches [scheme:][//host]<publicPath>/<category>/ when it
// starts the text, an attribute value, element text, a url( argument, a
// srcset entry or follows a character reference such as &quot;, and keeps
// only <category>/. Host-less output cannot match again.
func CategoryRule(publicPath, category string) Rule {
	pattern := `(^|["'(=\s,>;])(?:(?:[a-zA-Z][a-zA-Z0-9+.-]*:)?//[^/"'\s()=,<>;]+)?` +
		regexp.QuoteMeta(normalizePublicPath(publicPath)) + `/` +
		regexp.QuoteMeta(category) + `/`
	return Rule{
		Pattern:  regexp.MustCompile(pattern),
		Template: "${1}" + strings.ReplaceAll(category, "$", "$$") + "/",
	}
}

// WithRule returns a copy of r with rule appended to the table.
func (r *Rewriter) WithRule(rule Rule) *Rewriter {
	rules := make([]Rule, 0, len(r.rules)+1)
	rules = append(rules, r.rules...)
	rules = append(rules, rule)
	return &Rewriter{rules: rules}
}

// Rules returns a copy of the rule table.
func (r *Rewriter) Rules() []Rule {
	return append([]Rule(nil), r.rules...)
}

// Rewrite applies every rule in order. Text no rule matches is unchanged.
func (r *Rewriter) Rewrite(html string) string {
	if r == nil {
		return html
	}
	for _, rule := range r.rules {
		if rule.Pattern == nil {
			continue
		}
		html = rule.Pattern.ReplaceAllString(html, rule.Template)
	}
	return html
}

func normalizePublicPath(publicPath string) string {
	publicPath = strings.TrimSpace(publicPath)
	if publicPath == "" {
		publicPath = DefaultPublicPath
	}
	publicPath = "/" + strings.Trim(publicPath, "/")
	if publicPath == "/" {
		return ""
	}
	return publicPath
}
