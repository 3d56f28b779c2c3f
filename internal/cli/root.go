// Package cli provides the command-line interface for feedcast.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/ppiankov/feedcast/internal/config"
	"github.com/spf13/cobra"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var (
	configDir string
	envFile   string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "feedcast",
	Short: "Export X posts to Markdown and narrate news feeds with VOICEVOX",
	Long: "feedcast exports a user's recent X posts into a Markdown archive and turns a news feed " +
		"into per-item WAV narrations plus a manifest for a playback front end.",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("feedcast %s (%s)\n", Version, Commit)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configDir, "config-dir", config.DefaultConfigDir, "directory holding config.yaml")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file with credentials (optional)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
}

// setup loads the dotenv file and installs the default logger before any
// command runs. A missing dotenv file is fine; the environment may already
// carry the credentials.
func setup(_ *cobra.Command, _ []string) error {
	slog.SetDefault(newLogger(os.Stderr, verbose))

	if envFile == "" {
		return nil
	}
	err := godotenv.Load(envFile)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("no env file", "path", envFile)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	slog.Debug("loaded env file", "path", envFile)
	return nil
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Execute runs the root command. Cancelling ctx stops pagination and
// synthesis between requests.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
