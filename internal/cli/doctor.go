package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/feedcast/internal/config"
	"github.com/ppiankov/feedcast/internal/manifest"
	"github.com/ppiankov/feedcast/internal/news"
	"github.com/ppiankov/feedcast/internal/store"
	"github.com/ppiankov/feedcast/internal/voicevox"
	"github.com/spf13/cobra"
)

const doctorProbeTimeout = 5 * time.Second

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, credentials, and the VOICEVOX engine",
	RunE:  doctorAction,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printInfo("config directory %s not found, using defaults (run feedcast init)", configDir)
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	// Config file
	cfg, err := config.Load(configDir)
	if err != nil {
		printCheck(false, "config.yaml: %v", err)
		return fmt.Errorf("some checks failed")
	}
	printCheck(true, "config (export %d days, speak from %s)", cfg.Export.Days, cfg.Speak.Input)

	// X credentials
	if err := cfg.Export.CheckCredentials(); err != nil {
		printCheck(false, "%v", err)
		ok = false
	} else {
		printCheck(true, "X credentials for @%s", cfg.Export.Username)
	}

	// Database
	if cfg.Storage.Disabled {
		printInfo("storage disabled")
	} else if db, err := store.Open(cfg.Storage.Path); err != nil {
		printCheck(false, "database: %v", err)
		ok = false
	} else {
		printCheck(true, "database %s", cfg.Storage.Path)
		_ = db.Close()
	}

	ctx := commandContext(cmd)

	// VOICEVOX engine
	if !checkVoicevox(ctx, cfg) {
		ok = false
	}

	// News feed
	items, err := news.Load(cfg.Speak.Input, cfg.Speak.InputFormat)
	if err != nil {
		printCheck(false, "news feed: %v", err)
		ok = false
	} else {
		printCheck(true, "news feed %s (%d items)", cfg.Speak.Input, len(items))
	}

	// Existing manifest (info only)
	if entries, err := manifest.Read(cfg.Speak.Manifest); err != nil {
		printInfo("manifest %s unreadable: %v", cfg.Speak.Manifest, err)
	} else if entries != nil {
		printInfo("manifest %s lists %d entries", cfg.Speak.Manifest, len(entries))
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

func checkVoicevox(ctx context.Context, cfg *config.Config) bool {
	vv := cfg.Speak.Voicevox
	client, err := voicevox.New(vv.URL, voicevox.Options{
		Speaker:      vv.SpeakerID(),
		QueryTimeout: doctorProbeTimeout,
	})
	if err != nil {
		printCheck(false, "voicevox: %v", err)
		return false
	}
	version, err := client.Version(ctx)
	if err != nil {
		printCheck(false, "voicevox engine at %s: %v", vv.URL, err)
		return false
	}
	printCheck(true, "voicevox engine %s at %s (speaker %d)", version, vv.URL, vv.SpeakerID())
	return true
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}
