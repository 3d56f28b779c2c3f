package digest

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/feedcast/internal/source"
)

func testPosts() []source.Post {
	return []source.Post{
		{ID: "1002", Text: "Day 049 shipped the timer\n✅ pause button", PostedAt: time.Date(2026, 2, 18, 14, 30, 0, 0, time.UTC)},
		{ID: "1001", Text: "hello", PostedAt: time.Date(2026, 2, 17, 15, 5, 0, 0, time.UTC)},
	}
}

func TestMarkdownFormat_Full(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	f := NewMarkdown("someone", 50, jst)

	var buf bytes.Buffer
	if err := f.Format(&buf, testPosts()); err != nil {
		t.Fatalf("format: %v", err)
	}

	want := "# X Posts (Past 50 days)\n\n" +
		"## 2026-02-18 23:30\n" +
		"Day 049 shipped the timer\n✅ pause button\n\n" +
		"[Original Post](https://x.com/someone/status/1002)\n" +
		"---\n\n" +
		"## 2026-02-18 00:05\n" +
		"hello\n\n" +
		"[Original Post](https://x.com/someone/status/1001)\n" +
		"---\n\n"

	if got := buf.String(); got != want {
		t.Errorf("output mismatch\n--- got ---\n%s\n--- want ---\n%s", got, want)
	}
}

func TestMarkdownFormat_Deterministic(t *testing.T) {
	f := NewMarkdown("someone", 7, time.UTC)
	posts := testPosts()

	var first, second bytes.Buffer
	if err := f.Format(&first, posts); err != nil {
		t.Fatalf("format: %v", err)
	}
	if err := f.Format(&second, posts); err != nil {
		t.Fatalf("format: %v", err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("repeated formatting produced different bytes")
	}
}

func TestMarkdownFormat_Empty(t *testing.T) {
	f := NewMarkdown("someone", 50, nil)

	var buf bytes.Buffer
	if err := f.Format(&buf, nil); err != nil {
		t.Fatalf("format: %v", err)
	}
	if got := buf.String(); got != "# X Posts (Past 50 days)\n\n" {
		t.Errorf("output = %q, want title only", got)
	}
}

func TestMarkdownFormat_NilLocationIsUTC(t *testing.T) {
	f := NewMarkdown("someone", 1, nil)

	var buf bytes.Buffer
	if err := f.Format(&buf, testPosts()[1:]); err != nil {
		t.Fatalf("format: %v", err)
	}
	if !strings.Contains(buf.String(), "## 2026-02-17 15:05\n") {
		t.Errorf("missing UTC heading\n\nfull output:\n%s", buf.String())
	}
}

func TestPermalink(t *testing.T) {
	f := NewMarkdown("some one", 1, nil)
	got := f.Permalink(source.Post{ID: "99"})
	if got != "https://x.com/some%20one/status/99" {
		t.Errorf("permalink = %q", got)
	}
}

func TestRenderHTML(t *testing.T) {
	f := NewMarkdown("someone", 50, time.UTC)

	var md bytes.Buffer
	if err := f.Format(&md, testPosts()); err != nil {
		t.Fatalf("format: %v", err)
	}

	var out bytes.Buffer
	if err := RenderHTML(&out, f.Title(), md.Bytes()); err != nil {
		t.Fatalf("render: %v", err)
	}

	html := out.String()
	checks := []string{
		"<title>X Posts (Past 50 days)</title>",
		"<h1>X Posts (Past 50 days)</h1>",
		"<h2>2026-02-18 14:30</h2>",
		`<a href="https://x.com/someone/status/1001">Original Post</a>`,
		"</html>",
	}
	for _, want := range checks {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q\n\nfull output:\n%s", want, html)
		}
	}
}

func TestRenderHTML_EscapesTitle(t *testing.T) {
	var out bytes.Buffer
	if err := RenderHTML(&out, "<script>", []byte("text")); err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(out.String(), "<title><script>") {
		t.Errorf("title not escaped: %s", out.String())
	}
}
