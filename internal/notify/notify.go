// Package notify implements the delivery sinks: Telegram (bot API) and
// Discord (webhook). Each sink owns its channel's formatting; the engine
// only hands over normalized items.
package notify

import (
	"regexp"
	"strings"
)

var tagRE = regexp.MustCompile(`<[^>]*>`)

// StripMarkup flattens site-provided markup to plain text for channels that
// render their own. Crude on purpose: tracker bodies are short snippets,
// not documents.
func StripMarkup(s string) string {
	s = tagRE.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	return strings.TrimSpace(s)
}

// Truncate caps s for channels with hard payload limits.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max < 4 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
