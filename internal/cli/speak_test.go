package cli

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ppiankov/feedcast/internal/manifest"
	"github.com/ppiankov/feedcast/internal/news"
	"github.com/ppiankov/feedcast/internal/store"
	"github.com/spf13/cobra"
)

// fakeEngine fails synthesis for any text containing "壊".
type fakeEngine struct {
	mu      sync.Mutex
	queries []string
}

func (e *fakeEngine) texts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.queries...)
}

func newFakeEngine(t *testing.T) (*fakeEngine, *httptest.Server) {
	t.Helper()
	e := &fakeEngine{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/version":
			_, _ = io.WriteString(w, `"0.21.1"`)
		case "/audio_query":
			text := r.URL.Query().Get("text")
			e.mu.Lock()
			e.queries = append(e.queries, text)
			e.mu.Unlock()
			if strings.Contains(text, "壊") {
				http.Error(w, "engine error", http.StatusInternalServerError)
				return
			}
			_, _ = io.WriteString(w, `{"speedScale":1.0,"intonationScale":1.0}`)
		case "/synthesis":
			_, _ = io.WriteString(w, "RIFF")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return e, srv
}

func writeSpeakConfig(t *testing.T, dir, engineURL string) {
	t.Helper()
	writeTestFile(t, filepath.Join(dir, "config.yaml"), `
speak:
  input: `+filepath.Join(dir, "data.json")+`
  output_dir: `+filepath.Join(dir, "audio")+`
  delay: 1ms
  voicevox:
    url: `+engineURL+`
storage:
  path: `+filepath.Join(dir, "feedcast.db")+`
`)
}

const testFeed = `[
  {"id": "a", "title": "最初", "category": "テック", "summary": "要約。"},
  {"id": "b", "title": "壊れる記事"},
  {"id": "c", "title": "既存"}
]`

func TestSpeakAction(t *testing.T) {
	dir := t.TempDir()
	useConfigDir(t, dir)
	engine, srv := newFakeEngine(t)
	writeSpeakConfig(t, dir, srv.URL)
	writeTestFile(t, filepath.Join(dir, "data.json"), testFeed)
	writeTestFile(t, filepath.Join(dir, "audio", "c.wav"), "old audio")

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	out, err := captureStdout(t, func() error { return speakAction(cmd, nil) })
	if err != nil {
		t.Fatalf("speak: %v\n%s", err, out)
	}
	requireContains(t, out, "Loaded 3 items")
	requireContains(t, out, "Done: 2 entries (1 generated, 1 skipped, 1 failed, 4 B)")

	texts := engine.texts()
	if len(texts) != 2 {
		t.Fatalf("engine saw %d queries, want 2 (existing file skipped): %q", len(texts), texts)
	}
	if texts[0] != "テックのニュースなのだ。最初。要約。" {
		t.Errorf("narration = %q", texts[0])
	}

	entries, err := manifest.Read(filepath.Join(dir, "audio", "manifest.json"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "a" || entries[1].ID != "c" {
		t.Fatalf("manifest = %+v, want a and c", entries)
	}
	if entries[0].AudioFile != "../audio/a.wav" {
		t.Errorf("audioFile = %q", entries[0].AudioFile)
	}

	data, err := os.ReadFile(filepath.Join(dir, "audio", "a.wav"))
	if err != nil || string(data) != "RIFF" {
		t.Errorf("a.wav = %q, %v", data, err)
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
	want := store.RunCounts{Total: 3, Generated: 1, Skipped: 1, Failed: 1, Bytes: 4}
	if runs[0].Counts != want {
		t.Errorf("counts = %+v, want %+v", runs[0].Counts, want)
	}
	recs, err := st.ItemRecords(context.Background(), runs[0].ID)
	if err != nil {
		t.Fatalf("item records: %v", err)
	}
	if len(recs) != 3 || recs[1].Status != "failed" || !strings.Contains(recs[1].Error, "500") {
		t.Errorf("records = %+v", recs)
	}

	// A second run only retries the failed item.
	_, err = captureStdout(t, func() error { return speakAction(cmd, nil) })
	if err != nil {
		t.Fatalf("second speak: %v", err)
	}
	if got := len(engine.texts()); got != 3 {
		t.Errorf("engine queries after rerun = %d, want 3", got)
	}
}

func TestSpeakAction_MissingFeed(t *testing.T) {
	dir := t.TempDir()
	useConfigDir(t, dir)
	_, srv := newFakeEngine(t)
	writeSpeakConfig(t, dir, srv.URL)

	out, err := captureStdout(t, func() error { return speakAction(&cobra.Command{}, nil) })
	if !errors.Is(err, news.ErrFeedNotFound) {
		t.Fatalf("error = %v, want ErrFeedNotFound", err)
	}
	requireContains(t, out, "News feed not found")
	if _, statErr := os.Stat(filepath.Join(dir, "audio", "manifest.json")); !os.IsNotExist(statErr) {
		t.Error("manifest written without a feed")
	}
}

func TestSpeakAction_FlagOverrides(t *testing.T) {
	dir := t.TempDir()
	useConfigDir(t, dir)
	_, srv := newFakeEngine(t)
	writeSpeakConfig(t, dir, srv.URL)

	speakInput = filepath.Join(dir, "other.json")
	speakOutputDir = filepath.Join(dir, "elsewhere")
	speakManifest = filepath.Join(dir, "elsewhere", "index.json")
	writeTestFile(t, speakInput, `[{"id": 7, "title": "数値ID"}]`)

	out, err := captureStdout(t, func() error { return speakAction(&cobra.Command{}, nil) })
	if err != nil {
		t.Fatalf("speak: %v\n%s", err, out)
	}
	if _, err := os.Stat(filepath.Join(dir, "elsewhere", "7.wav")); err != nil {
		t.Errorf("audio not in overridden dir: %v", err)
	}
	entries, err := manifest.Read(speakManifest)
	if err != nil || len(entries) != 1 || entries[0].ID != "7" || !entries[0].NumericID {
		t.Errorf("manifest = %+v, %v", entries, err)
	}
	data, err := os.ReadFile(speakManifest)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	requireContains(t, string(data), `"id": 7,`)
}
