// Package i18n resolves the display language for requests and commands and
// returns printers bound to the embedded catalogs.
package i18n

import (
	"net/http"
	"strings"

	"github.com/louisbranch/pagesnap/internal/platform/i18n/catalog"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// LangParam is the query parameter used to select a language.
const LangParam = "lang"

var (
	supported = []language.Tag{language.AmericanEnglish, language.BrazilianPortuguese}
	matcher   = language.NewMatcher(supported)
)

// SupportedTags returns the languages the catalogs cover, default first.
func SupportedTags() []language.Tag {
	return append([]language.Tag(nil), supported...)
}

// DefaultTag returns the fallback language.
func DefaultTag() language.Tag {
	return supported[0]
}

// ParseTag parses value and reports whether it matches a supported language.
func ParseTag(value string) (language.Tag, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return language.Und, false
	}
	tag, err := language.Parse(value)
	if err != nil {
		return language.Und, false
	}
	_, index, confidence := matcher.Match(tag)
	if confidence == language.No {
		return language.Und, false
	}
	return supported[index], true
}

// MatchTags returns the best supported language for tags.
func MatchTags(tags []language.Tag) language.Tag {
	if len(tags) == 0 {
		return DefaultTag()
	}
	_, index, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return DefaultTag()
	}
	return supported[index]
}

// Printer returns a message printer for tag.
func Printer(tag language.Tag) *message.Printer {
	_ = catalog.Default()
	return message.NewPrinter(tag)
}

// ResolveTag picks the language for r from the lang query parameter, then
// Accept-Language, then the default.
func ResolveTag(r *http.Request) language.Tag {
	if r == nil {
		return DefaultTag()
	}
	if tag, ok := ParseTag(r.URL.Query().Get(LangParam)); ok {
		return tag
	}
	if accept := strings.TrimSpace(r.Header.Get("Accept-Language")); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil {
			return MatchTags(tags)
		}
	}
	return DefaultTag()
}
