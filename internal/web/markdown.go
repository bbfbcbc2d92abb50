// ABOUTME: Markdown rendering for assistant replies in the chat UI
// ABOUTME: Uses goldmark with GFM extensions and escapes raw HTML

package web

import (
	"bytes"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(
		html.WithHardWraps(),
	),
)

// renderMarkdown converts reply text to sanitized HTML. Raw HTML in the
// input is escaped by goldmark's default renderer. Falls back to escaped
// plain text if conversion fails.
func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return escapedText(text)
	}
	return template.HTML(buf.String())
}

// escapedText wraps plain text in a paragraph with HTML escaping
func escapedText(text string) template.HTML {
	return template.HTML("<p>" + template.HTMLEscapeString(text) + "</p>")
}
