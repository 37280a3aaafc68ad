package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var htmlStripper = bluemonday.StrictPolicy()

// StripHTML removes tags, decodes entities and caps the result at maxLen
// bytes. A maxLen of zero disables the cap.
func StripHTML(s string, maxLen int) string {
	s = htmlStripper.Sanitize(s)
	s = html.UnescapeString(s)
	s = strings.Join(strings.Fields(s), " ")

	if maxLen > 3 && len(s) > maxLen {
		s = s[:maxLen-3] + "..."
	}

	return s
}
