package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

var (
	runEvery string

	// Swapped in tests.
	runExportAction = exportAction
	runSpeakAction  = speakAction
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Export posts then generate narration",
	Long: "run performs export followed by speak. With --every it repeats on that interval " +
		"until interrupted; a failed cycle is logged and the next one still runs.",
	RunE: runAction,
}

func init() {
	runCmd.Flags().StringVar(&runEvery, "every", "", "repeat interval (e.g. 6h); runs once when empty")
	rootCmd.AddCommand(runCmd)
}

func runAction(cmd *cobra.Command, args []string) error {
	every, err := parseRunEvery(runEvery)
	if err != nil {
		return err
	}

	once := func() error {
		if err := runExportAction(cmd, args); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		if err := runSpeakAction(cmd, args); err != nil {
			return fmt.Errorf("speak: %w", err)
		}
		return nil
	}

	if every == 0 {
		return once()
	}
	return runWatch(commandContext(cmd), every, func() error {
		if err := once(); err != nil {
			slog.Error("run cycle failed", "error", err)
		}
		return nil
	})
}

func parseRunEvery(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse --every: %w", err)
	}
	if d <= 0 {
		return 0, errors.New("--every must be positive")
	}
	return d, nil
}

// runWatch calls runOnce immediately and then every interval until ctx is
// cancelled or runOnce returns an error.
func runWatch(ctx context.Context, interval time.Duration, runOnce func() error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := runOnce(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
