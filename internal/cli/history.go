package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/ppiankov/feedcast/internal/config"
	"github.com/ppiankov/feedcast/internal/generate"
	"github.com/ppiankov/feedcast/internal/store"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show archived posts and recent runs",
	RunE:  historyAction,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func historyAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Storage.Disabled {
		return errors.New("storage is disabled in config")
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := commandContext(cmd)

	account := cfg.Export.Username
	count, err := db.CountPosts(ctx, account)
	if err != nil {
		return err
	}
	if account == "" {
		fmt.Printf("Archived posts: %s\n", humanize.Comma(int64(count)))
	} else {
		fmt.Printf("Archived posts for @%s: %s\n", account, humanize.Comma(int64(count)))
		latest, err := db.LatestPosts(ctx, account, 1)
		if err != nil {
			return err
		}
		if len(latest) > 0 {
			fmt.Printf("Newest archived post: %s\n", humanize.Time(latest[0].PostedAt))
		}
	}

	runs, err := db.RecentRuns(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("\nNo runs recorded yet.")
		return nil
	}

	fmt.Printf("\nRecent runs:\n")
	for _, r := range runs {
		fmt.Printf("  %-6s  %-14s  %s  %s\n", r.Kind, humanize.Time(r.StartedAt), shortID(r.ID), describeRun(r))
	}

	return printFailedItems(ctx, db, runs)
}

// printFailedItems lists the items that failed in the most recent speak run
// among runs.
func printFailedItems(ctx context.Context, db *store.Store, runs []store.Run) error {
	for _, r := range runs {
		if r.Kind != store.KindSpeak {
			continue
		}
		if r.Counts.Failed == 0 {
			return nil
		}
		recs, err := db.ItemRecords(ctx, r.ID)
		if err != nil {
			return err
		}
		fmt.Printf("\nFailed items in run %s:\n", shortID(r.ID))
		for _, rec := range recs {
			if rec.Status == generate.Failed.String() {
				fmt.Printf("  %s: %s\n", rec.Key, rec.Error)
			}
		}
		return nil
	}
	return nil
}

func describeRun(r store.Run) string {
	if r.Error != "" {
		return "failed: " + r.Error
	}
	if r.FinishedAt.IsZero() {
		return "incomplete"
	}
	c := r.Counts
	if r.Kind == store.KindExport {
		return fmt.Sprintf("%d posts", c.Total)
	}
	return fmt.Sprintf("%d items: %d generated, %d skipped, %d failed, %s",
		c.Total, c.Generated, c.Skipped, c.Failed, humanize.Bytes(uint64(c.Bytes)))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
