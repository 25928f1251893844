// Package compose renders outreach messages from templates, spintax and the
// model-written draft.
package compose

import (
	"regexp"
	"strings"
)

var (
	varPattern  = regexp.MustCompile(`{{\s*([\w.]+)\s*}}`)
	spinPattern = regexp.MustCompile(`\{([^{}]*)\}`)
)

// Render replaces {{name}} placeholders with vars. Unknown names are kept.
func Render(tmpl string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := varPattern.FindStringSubmatch(match)[1]
		if v, ok := vars[key]; ok {
			return v
		}
		return match
	})
}

// Spin resolves {a|b|c} groups, innermost first, using pick to choose an
// option index in [0, n).
func Spin(text string, pick func(n int) int) string {
	for {
		loc := spinPattern.FindStringSubmatchIndex(text)
		if loc == nil {
			return text
		}
		options := strings.Split(text[loc[2]:loc[3]], "|")
		for i := range options {
			options[i] = strings.TrimSpace(options[i])
		}
		idx := pick(len(options))
		if idx < 0 || idx >= len(options) {
			idx = 0
		}
		text = text[:loc[0]] + options[idx] + text[loc[1]:]
	}
}
