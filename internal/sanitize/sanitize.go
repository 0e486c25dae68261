// Package sanitize strips markup from user-entered text before it is stored.
// Log titles, event notes and tags are plain text in Memz; any HTML a user
// types is removed rather than rendered.
package sanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

// getPolicy returns the shared strict policy, initializing it on first call.
func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// Text removes every HTML element from input and returns the remaining text
// unescaped, so "Fish & Chips" survives as-is. The result is plain text and
// must still be escaped when rendered.
func Text(input string) string {
	if input == "" {
		return ""
	}
	return html.UnescapeString(getPolicy().Sanitize(input))
}

// Line is Text followed by trimming and collapsing newlines into spaces. Used
// for single-line fields such as titles.
func Line(input string) string {
	s := Text(input)
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
