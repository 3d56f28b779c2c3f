// Package speech turns news items into text suitable for a speech synthesizer.
package speech

import (
	"regexp"
	"strings"

	"github.com/ppiankov/feedcast/internal/news"
)

var (
	urlRe       = regexp.MustCompile(`https?://\S+`)
	periodRunRe = regexp.MustCompile(`。{2,}`)

	// Brackets are dropped before anything else so that removing them
	// cannot assemble a new "・・・" or "\r\n" for a later pass to find.
	openBrackets = strings.NewReplacer("【", "", "「", "")
	punctuation  = strings.NewReplacer(
		"】", "。",
		"」", "。",
		"…", "。",
		"・・・", "。",
		"\r\n", "。",
		"\n", "。",
	)
)

// Normalize cleans raw text into speakable prose. URLs are removed before
// closing brackets, ellipses, and newlines become full stops, so a URL at
// the end of a line never reaches into the next one. Runs of full stops
// collapse to one and surrounding whitespace is trimmed.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	text = openBrackets.Replace(text)
	text = urlRe.ReplaceAllString(text, "")
	text = punctuation.Replace(text)
	text = periodRunRe.ReplaceAllString(text, "。")
	return strings.TrimSpace(text)
}

// Builder composes the narration for a news item.
type Builder struct {
	SummaryLimit    int    // maximum summary length in runes
	CategorySuffix  string // appended to the category, e.g. "のニュースなのだ。"
	TitleSuffix     string // appended to the title
	TruncatedSuffix string // appended to a summary cut at SummaryLimit
}

// Build returns category, title, and summary as one narration string.
// Each field is normalized; empty category and summary are omitted.
func (b Builder) Build(item news.Item) string {
	var sb strings.Builder

	if category := Normalize(item.Category); category != "" {
		sb.WriteString(category)
		sb.WriteString(b.CategorySuffix)
	}

	sb.WriteString(Normalize(item.Title))
	sb.WriteString(b.TitleSuffix)

	if summary := Normalize(item.Summary); summary != "" {
		sb.WriteString(b.truncate(summary))
	}

	return sb.String()
}

func (b Builder) truncate(s string) string {
	if b.SummaryLimit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= b.SummaryLimit {
		return s
	}
	return string(runes[:b.SummaryLimit]) + b.TruncatedSuffix
}
