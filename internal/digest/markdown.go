package digest

import (
	"bufio"
	"bytes"
	"fmt"
	"html"
	"io"
	"net/url"
	"time"

	"github.com/ppiankov/feedcast/internal/source"
	"github.com/yuin/goldmark"
)

const (
	headingLayout = "2006-01-02 15:04"
	permalinkBase = "https://x.com"
)

var _ Formatter = (*MarkdownFormatter)(nil)

// MarkdownFormatter formats posts as a flat Markdown document, one section per post.
type MarkdownFormatter struct {
	username string
	days     int
	loc      *time.Location
}

// NewMarkdown creates a Markdown formatter. Post times are rendered in loc
// (UTC when nil); days is the window length named in the title.
func NewMarkdown(username string, days int, loc *time.Location) *MarkdownFormatter {
	if loc == nil {
		loc = time.UTC
	}
	return &MarkdownFormatter{username: username, days: days, loc: loc}
}

// Format writes the posts in the given order.
func (f *MarkdownFormatter) Format(w io.Writer, posts []source.Post) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "# %s\n\n", f.Title())
	for _, p := range posts {
		fmt.Fprintf(bw, "## %s\n", p.PostedAt.In(f.loc).Format(headingLayout))
		fmt.Fprintf(bw, "%s\n\n", p.Text)
		fmt.Fprintf(bw, "[Original Post](%s)\n", f.Permalink(p))
		fmt.Fprint(bw, "---\n\n")
	}

	return bw.Flush()
}

// Permalink returns the public URL of a post.
func (f *MarkdownFormatter) Permalink(p source.Post) string {
	return fmt.Sprintf("%s/%s/status/%s", permalinkBase, url.PathEscape(f.username), url.PathEscape(p.ID))
}

// Title returns the document title.
func (f *MarkdownFormatter) Title() string {
	return fmt.Sprintf("X Posts (Past %d days)", f.days)
}

// RenderHTML converts a Markdown document to a standalone HTML page.
func RenderHTML(w io.Writer, title string, markdown []byte) error {
	var body bytes.Buffer
	if err := goldmark.Convert(markdown, &body); err != nil {
		return fmt.Errorf("render html: %w", err)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n", html.EscapeString(title))
	_, _ = body.WriteTo(bw)
	fmt.Fprint(bw, "</body>\n</html>\n")
	return bw.Flush()
}
