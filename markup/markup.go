package markup

import (
	"bytes"
	"html"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

// AllowedTags is the fixed set of elements that survive sanitization.
var AllowedTags = []string{
	"a", "abbr", "acronym", "b", "blockquote", "code", "em", "i", "li",
	"ol", "pre", "strong", "ul", "h1", "h2", "h3", "p",
}

// markdown renderer configured with Goldmark and useful extensions
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,     // tables, strikethrough, task lists, autolinks (GFM set)
		extension.Linkify, // linkify raw URLs
	),
	goldmark.WithRendererOptions(
		// raw HTML is passed through here and removed by the policy below
		htmlrenderer.WithUnsafe(),
	),
)

var policy = newPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(AllowedTags...)
	p.AllowAttrs("href", "title").OnElements("a")
	p.AllowAttrs("title").OnElements("abbr", "acronym")
	p.AllowStandardURLs()
	p.RequireNoFollowOnLinks(true)
	return p
}

// Render converts a Markdown body into sanitized HTML. Bare URLs become links.
func Render(raw string) string {
	if raw == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := md.Convert([]byte(raw), &buf); err != nil {
		// fall back to escaped text so nothing unsanitized is ever returned
		return policy.Sanitize("<p>" + html.EscapeString(raw) + "</p>")
	}
	return policy.Sanitize(buf.String())
}
