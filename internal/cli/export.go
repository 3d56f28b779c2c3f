package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/feedcast/internal/config"
	"github.com/ppiankov/feedcast/internal/digest"
	"github.com/ppiankov/feedcast/internal/export"
	"github.com/ppiankov/feedcast/internal/privacy"
	"github.com/ppiankov/feedcast/internal/source"
	"github.com/ppiankov/feedcast/internal/store"
	"github.com/spf13/cobra"
)

var (
	exportDays   int
	exportOutput string
	exportHTML   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recent X posts to Markdown",
	Long: "export walks the user's timeline newest-first, stops at the first post older than the " +
		"day window, and writes the collected posts as a Markdown document.",
	RunE: exportAction,
}

func init() {
	exportCmd.Flags().IntVar(&exportDays, "days", 0, "window in days (default from config)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "markdown output file (default from config)")
	exportCmd.Flags().StringVar(&exportHTML, "html", "", "also render the document to this HTML file")
	rootCmd.AddCommand(exportCmd)
}

func exportAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ex := cfg.Export
	if exportDays > 0 {
		ex.Days = exportDays
	}
	if exportOutput != "" {
		ex.Output = exportOutput
	}
	if exportHTML != "" {
		ex.HTMLOutput = exportHTML
	}
	if err := ex.CheckCredentials(); err != nil {
		return err
	}

	var redactor *privacy.Redactor
	if ex.Redact.Enabled {
		redactor, err = privacy.Compile(ex.Redact.Patterns)
		if err != nil {
			return err
		}
	}

	client, err := source.NewX(ex.BaseURL,
		source.Session{AuthToken: ex.AuthToken, CSRFToken: ex.CT0},
		source.QueryIDs{UserByScreenName: ex.QueryIDs.UserByScreenName, UserTweets: ex.QueryIDs.UserTweets},
	)
	if err != nil {
		return err
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := commandContext(cmd)

	var run store.Run
	if db != nil {
		if run, err = db.StartRun(ctx, store.KindExport); err != nil {
			return fmt.Errorf("start run: %w", err)
		}
	}

	count, err := exportPosts(ctx, ex, client, redactor, db)
	if err != nil {
		failRun(ctx, db, run.ID, err)
		return err
	}
	if db != nil {
		if err := db.FinishRun(ctx, run.ID, store.RunCounts{Total: count}); err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
	}

	fmt.Printf("Exported %d posts to %s\n", count, ex.Output)
	return nil
}

// exportPosts collects, writes, and archives the posts. It returns the
// number of posts exported.
func exportPosts(ctx context.Context, ex config.ExportConfig, client *source.XClient, redactor *privacy.Redactor, db *store.Store) (int, error) {
	fmt.Printf("Looking up @%s...\n", ex.Username)
	userID, err := client.UserID(ctx, ex.Username)
	if err != nil {
		return 0, err
	}
	slog.Debug("resolved user", "username", ex.Username, "id", userID)

	fmt.Printf("Collecting posts from the past %d days...\n", ex.Days)
	posts, err := export.Collect(ctx, client, userID, export.Options{
		Window:    time.Duration(ex.Days) * 24 * time.Hour,
		PageSize:  ex.PageSize,
		PageDelay: ex.PageDelay.Duration,
		Strict:    ex.StrictOrder,
		OnPage: func(n int) {
			fmt.Printf("  %d posts collected...\n", n)
		},
	})
	if err != nil {
		return 0, err
	}
	if redactor.Len() > 0 {
		posts = redactor.Posts(posts)
	}

	formatter := digest.NewMarkdown(ex.Username, ex.Days, ex.Location())
	var doc bytes.Buffer
	if err := formatter.Format(&doc, posts); err != nil {
		return 0, fmt.Errorf("format markdown: %w", err)
	}
	if err := writeFile(ex.Output, doc.Bytes()); err != nil {
		return 0, err
	}

	if ex.HTMLOutput != "" {
		var page bytes.Buffer
		if err := digest.RenderHTML(&page, formatter.Title(), doc.Bytes()); err != nil {
			return 0, fmt.Errorf("render html: %w", err)
		}
		if err := writeFile(ex.HTMLOutput, page.Bytes()); err != nil {
			return 0, err
		}
		fmt.Printf("Rendered HTML to %s\n", ex.HTMLOutput)
	}

	if db != nil {
		if err := archivePosts(ctx, db, ex.Username, formatter, posts); err != nil {
			return 0, err
		}
	}

	return len(posts), nil
}

func archivePosts(ctx context.Context, db *store.Store, account string, f *digest.MarkdownFormatter, posts []source.Post) error {
	fetchedAt := time.Now()
	for _, p := range posts {
		_, err := db.InsertPost(ctx, store.PostInput{
			Account:    account,
			ExternalID: p.ID,
			Text:       p.Text,
			URL:        f.Permalink(p),
			PostedAt:   p.PostedAt,
			FetchedAt:  fetchedAt,
		})
		if err != nil {
			return fmt.Errorf("archive post %s: %w", p.ID, err)
		}
	}
	return nil
}

// failRun closes a ledger run with err. The write ignores cancellation so
// an interrupted run is still closed.
func failRun(ctx context.Context, db *store.Store, runID string, err error) {
	if db == nil {
		return
	}
	if ferr := db.FailRun(context.WithoutCancel(ctx), runID, err); ferr != nil {
		slog.Warn("record failed run", "run", runID, "error", ferr)
	}
}

// openStore returns nil when storage is disabled.
func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg.Storage.Disabled {
		return nil, nil
	}
	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return db, nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
