package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/ppiankov/feedcast/internal/config"
	"github.com/ppiankov/feedcast/internal/generate"
	"github.com/ppiankov/feedcast/internal/manifest"
	"github.com/ppiankov/feedcast/internal/news"
	"github.com/ppiankov/feedcast/internal/speech"
	"github.com/ppiankov/feedcast/internal/store"
	"github.com/ppiankov/feedcast/internal/voicevox"
	"github.com/spf13/cobra"
)

var (
	speakInput     string
	speakFormat    string
	speakOutputDir string
	speakManifest  string
)

var speakCmd = &cobra.Command{
	Use:   "speak",
	Short: "Generate VOICEVOX narration for each news item",
	Long: "speak reads the news feed, synthesizes one WAV file per item that does not already " +
		"have one, and rewrites the manifest. A failed item is logged and left out; the rest " +
		"of the batch continues.",
	RunE: speakAction,
}

func init() {
	speakCmd.Flags().StringVarP(&speakInput, "input", "i", "", "news feed file (default from config)")
	speakCmd.Flags().StringVar(&speakFormat, "format", "", "input format: json or feed")
	speakCmd.Flags().StringVar(&speakOutputDir, "output-dir", "", "audio output directory (default from config)")
	speakCmd.Flags().StringVar(&speakManifest, "manifest", "", "manifest file (default from config)")
	rootCmd.AddCommand(speakCmd)
}

func speakAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	sp := cfg.Speak
	if speakInput != "" {
		sp.Input = speakInput
	}
	if speakFormat != "" {
		sp.InputFormat = speakFormat
	}
	if speakOutputDir != "" {
		sp.OutputDir = speakOutputDir
	}
	if speakManifest != "" {
		sp.Manifest = speakManifest
	}

	items, err := news.Load(sp.Input, sp.InputFormat)
	if errors.Is(err, news.ErrFeedNotFound) {
		fmt.Printf("News feed not found: %s\n", sp.Input)
		return err
	}
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d items from %s\n", len(items), sp.Input)

	synth, err := voicevox.New(sp.Voicevox.URL, voicevox.Options{
		Speaker:          sp.Voicevox.SpeakerID(),
		SpeedScale:       sp.Voicevox.SpeedScale,
		IntonationScale:  sp.Voicevox.IntonationScale,
		QueryTimeout:     sp.Voicevox.QueryTimeout.Duration,
		SynthesisTimeout: sp.Voicevox.SynthesisTimeout.Duration,
	})
	if err != nil {
		return err
	}

	gen := &generate.Generator{
		Synth: synth,
		Builder: speech.Builder{
			SummaryLimit:    sp.SummaryLimit,
			CategorySuffix:  sp.Phrases.Category,
			TitleSuffix:     sp.Phrases.Title,
			TruncatedSuffix: sp.Phrases.Truncated,
		},
		OutputDir:   sp.OutputDir,
		AudioPrefix: sp.AudioPrefix,
		Delay:       sp.Delay.Duration,
		Logger:      slog.Default(),
		Out:         os.Stdout,
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := commandContext(cmd)

	var run store.Run
	if db != nil {
		if run, err = db.StartRun(ctx, store.KindSpeak); err != nil {
			return fmt.Errorf("start run: %w", err)
		}
		gen.Recorder = runRecorder{db: db, runID: run.ID}
	}

	report, err := gen.Run(ctx, items)
	if err == nil {
		err = manifest.Write(sp.Manifest, report.Entries)
	}
	if err != nil {
		failRun(ctx, db, run.ID, err)
		return err
	}
	fmt.Printf("Wrote manifest %s\n", sp.Manifest)

	counts := store.RunCounts{
		Total:     len(items),
		Generated: report.Count(generate.Generated),
		Skipped:   report.Count(generate.SkippedExisting),
		Failed:    report.Count(generate.Failed),
		Bytes:     report.Bytes,
	}
	if db != nil {
		if err := db.FinishRun(ctx, run.ID, counts); err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
		if n, err := db.PruneRuns(ctx, cfg.Storage.RetainDays); err != nil {
			slog.Warn("prune runs", "error", err)
		} else if n > 0 {
			slog.Debug("pruned old runs", "count", n)
		}
	}

	fmt.Printf("Done: %d entries (%d generated, %d skipped, %d failed, %s)\n",
		len(report.Entries), counts.Generated, counts.Skipped, counts.Failed,
		humanize.Bytes(uint64(report.Bytes)))
	return nil
}

// runRecorder files generation results under one ledger run.
type runRecorder struct {
	db    *store.Store
	runID string
}

func (r runRecorder) Record(ctx context.Context, res generate.Result) error {
	rec := store.ItemRecord{
		Key:    res.Key,
		File:   res.File,
		Status: res.Status.String(),
		Bytes:  res.Bytes,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	return r.db.RecordItem(ctx, r.runID, rec)
}
