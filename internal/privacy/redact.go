// Package privacy masks sensitive substrings in exported post text.
package privacy

import (
	"fmt"
	"regexp"

	"github.com/ppiankov/feedcast/internal/source"
)

const redactedPlaceholder = "[REDACTED]"

// Redactor replaces every match of its patterns with a placeholder.
// A nil or empty Redactor leaves text unchanged.
type Redactor struct {
	patterns []*regexp.Regexp
}

// Compile builds a Redactor from regex pattern strings.
func Compile(patterns []string) (*Redactor, error) {
	r := &Redactor{patterns: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile redact pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

// Len reports the number of compiled patterns.
func (r *Redactor) Len() int {
	if r == nil {
		return 0
	}
	return len(r.patterns)
}

// Redact masks all pattern matches in text.
func (r *Redactor) Redact(text string) string {
	if r == nil {
		return text
	}
	for _, re := range r.patterns {
		text = re.ReplaceAllString(text, redactedPlaceholder)
	}
	return text
}

// Posts returns copies of posts with their text redacted. The input is not modified.
func (r *Redactor) Posts(posts []source.Post) []source.Post {
	out := make([]source.Post, len(posts))
	for i, p := range posts {
		p.Text = r.Redact(p.Text)
		out[i] = p
	}
	return out
}
