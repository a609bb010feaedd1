// internal/app/system/htmlsanitize/htmlsanitize.go
//
// Package htmlsanitize wraps bluemonday with the policy used for any
// rich text rendered by the web pages. Values that arrive from the
// identity provider are never trusted to be safe HTML.
package htmlsanitize

import (
	"html"
	"html/template"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var policy = buildPolicy()

func buildPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()

	// UGCPolicy covers formatting, links, lists, tables and images.
	// Additionally allow class everywhere and inline style on table
	// elements so formatted descriptions render as authored.
	p.AllowAttrs("class").Globally()
	p.AllowAttrs("style").OnElements("table", "thead", "tbody", "tr", "td", "th")
	p.AllowElements("u", "s", "sub", "sup", "mark", "hr")

	return p
}

// Sanitize strips dangerous markup from a fragment of HTML.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	return policy.Sanitize(s)
}

// SanitizeToHTML sanitizes a fragment and marks it safe for templates.
func SanitizeToHTML(s string) template.HTML {
	return template.HTML(Sanitize(s))
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// IsPlainText reports whether the string carries no HTML tags.
func IsPlainText(s string) bool {
	return !tagPattern.MatchString(s)
}

// PlainTextToHTML escapes a plain string and wraps it in a paragraph,
// converting newlines to <br>.
func PlainTextToHTML(s string) string {
	if s == "" {
		return ""
	}
	escaped := html.EscapeString(s)
	escaped = strings.ReplaceAll(escaped, "\n", "<br>")
	return "<p>" + escaped + "</p>"
}

// PrepareForDisplay renders a value for templates: plain text is
// escaped and paragraph-wrapped, HTML is sanitized.
func PrepareForDisplay(s string) template.HTML {
	if s == "" {
		return ""
	}
	if IsPlainText(s) {
		return template.HTML(PlainTextToHTML(s))
	}
	return SanitizeToHTML(s)
}
