package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/feedcast/internal/store"
	"github.com/spf13/cobra"
)

const xCreatedAtLayout = "Mon Jan 02 15:04:05 -0700 2006"

func tweetJSON(id string, at time.Time, text string) string {
	body, _ := json.Marshal(text)
	return `{"entryId":"tweet-` + id + `","content":{"itemContent":{"tweet_results":{"result":{
		"__typename":"Tweet","rest_id":"` + id + `",
		"legacy":{"id_str":"` + id + `","created_at":"` + at.UTC().Format(xCreatedAtLayout) + `","full_text":` + string(body) + `}}}}}}`
}

func newFakeX(t *testing.T, entries []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Csrf-Token") != "csrf" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/UserByScreenName"):
			_, _ = io.WriteString(w, `{"data":{"user":{"result":{"rest_id":"42"}}}}`)
		case strings.HasSuffix(r.URL.Path, "/UserTweets"):
			all := append(append([]string{}, entries...),
				`{"entryId":"cursor-bottom-1","content":{"value":"next"}}`)
			_, _ = io.WriteString(w, `{"data":{"user":{"result":{"timeline_v2":{"timeline":{"instructions":[
				{"type":"TimelineAddEntries","entries":[`+strings.Join(all, ",")+`]}]}}}}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeExportConfig(t *testing.T, dir, baseURL string) {
	t.Helper()
	writeTestFile(t, filepath.Join(dir, "config.yaml"), `
export:
  base_url: `+baseURL+`
  days: 50
  page_delay: 1ms
  timezone: UTC
  output: `+filepath.Join(dir, "out", "posts.md")+`
  redact:
    enabled: true
    patterns: ["secret-\\d+"]
storage:
  path: `+filepath.Join(dir, "feedcast.db")+`
`)
}

func TestExportAction(t *testing.T) {
	dir := t.TempDir()
	useConfigDir(t, dir)
	setXCredentials(t)

	now := time.Now()
	srv := newFakeX(t, []string{
		tweetJSON("3", now.Add(-time.Hour), "newest with secret-123"),
		tweetJSON("2", now.Add(-48*time.Hour), "two days old"),
		tweetJSON("1", now.Add(-100*24*time.Hour), "too old"),
	})
	writeExportConfig(t, dir, srv.URL)
	exportHTML = filepath.Join(dir, "out", "posts.html")

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	out, err := captureStdout(t, func() error { return exportAction(cmd, nil) })
	if err != nil {
		t.Fatalf("export: %v\n%s", err, out)
	}
	requireContains(t, out, "Looking up @someone")
	requireContains(t, out, "Exported 2 posts to ")

	md, err := os.ReadFile(filepath.Join(dir, "out", "posts.md"))
	if err != nil {
		t.Fatalf("read markdown: %v", err)
	}
	doc := string(md)
	requireContains(t, doc, "# X Posts (Past 50 days)\n\n")
	requireContains(t, doc, "newest with [REDACTED]")
	requireContains(t, doc, "[Original Post](https://x.com/someone/status/3)")
	requireContains(t, doc, "two days old")
	if strings.Contains(doc, "too old") {
		t.Errorf("post outside the window exported:\n%s", doc)
	}
	if strings.Index(doc, "status/3") > strings.Index(doc, "status/2") {
		t.Error("posts not in arrival order")
	}

	html, err := os.ReadFile(exportHTML)
	if err != nil {
		t.Fatalf("read html: %v", err)
	}
	requireContains(t, string(html), "<h1>X Posts (Past 50 days)</h1>")

	st, err := store.Open(filepath.Join(dir, "feedcast.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = st.Close() }()

	n, err := st.CountPosts(context.Background(), "someone")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("archived %d posts, want 2", n)
	}
	runs, err := st.RecentRuns(context.Background(), 5)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Kind != store.KindExport || runs[0].Counts.Total != 2 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestExportAction_MissingCredentials(t *testing.T) {
	dir := t.TempDir()
	useConfigDir(t, dir)
	t.Setenv("X_USERNAME", "")
	t.Setenv("X_AUTH_TOKEN", "")
	t.Setenv("X_CT0", "csrf")

	err := exportAction(&cobra.Command{}, nil)
	if err == nil {
		t.Fatal("expected credentials error")
	}
	requireContains(t, err.Error(), "X_USERNAME, X_AUTH_TOKEN")
}

func TestExportAction_FailsFast(t *testing.T) {
	dir := t.TempDir()
	useConfigDir(t, dir)
	setXCredentials(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/UserByScreenName") {
			_, _ = io.WriteString(w, `{"data":{"user":{"result":{"rest_id":"42"}}}}`)
			return
		}
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	writeExportConfig(t, dir, srv.URL)

	_, err := captureStdout(t, func() error { return exportAction(&cobra.Command{}, nil) })
	if err == nil || !strings.Contains(err.Error(), "status 429") {
		t.Fatalf("error = %v, want status 429", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "out", "posts.md")); !os.IsNotExist(statErr) {
		t.Error("markdown written after a failed fetch")
	}

	st, err := store.Open(filepath.Join(dir, "feedcast.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = st.Close() }()
	runs, err := st.RecentRuns(context.Background(), 1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("runs = %+v, %v", runs, err)
	}
	if !strings.Contains(runs[0].Error, "status 429") || runs[0].FinishedAt.IsZero() {
		t.Errorf("failed run not recorded: %+v", runs[0])
	}
}
