package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/feedcast/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with example files",
	RunE:  initAction,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	created := 0

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(configPath, []byte(exampleConfig))
	if err != nil {
		return err
	}
	if wrote {
		created++
	}

	envPath := filepath.Join(filepath.Dir(envFile), ".env.example")
	wrote, err = writeIfNotExists(envPath, []byte(exampleEnv))
	if err != nil {
		return err
	}
	if wrote {
		created++
	}

	if created == 0 {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	} else {
		fmt.Printf("Initialized %s with %d example files.\n", configDir, created)
		fmt.Printf("Copy %s to %s and fill in your X session cookies.\n", envPath, envFile)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# feedcast configuration

export:
  username_env: X_USERNAME
  auth_token_env: X_AUTH_TOKEN
  ct0_env: X_CT0
  days: 50
  page_size: 20
  page_delay: 2s
  timezone: Asia/Tokyo
  output: my_tweets.md
  # html_output: my_tweets.html
  strict_order: false
  # query_ids rotate with X web deployments; override here when lookups start failing.
  # query_ids:
  #   user_by_screen_name: NimuplG1OB7Fd2btCLdBOw
  #   user_tweets: QWF3SzpHmykQHsQMixG0cg
  redact:
    enabled: false
    patterns: []

speak:
  input: docs/api/data.json
  input_format: json   # json or feed (RSS, Atom, JSON Feed)
  output_dir: docs/audio
  # manifest: docs/audio/manifest.json
  audio_prefix: ../audio/
  summary_limit: 300
  delay: 500ms
  voicevox:
    url: http://localhost:50021
    speaker: 3
    speed_scale: 1.1
    intonation_scale: 1.2
    query_timeout: 30s
    synthesis_timeout: 60s
  phrases:
    category: のニュースなのだ。
    title: 。
    truncated: 。以上なのだ

storage:
  path: .feedcast/feedcast.db
  disabled: false
  retain_days: 90
`

const exampleEnv = `# X session cookies, copied from a logged-in browser.
X_USERNAME=
X_AUTH_TOKEN=
X_CT0=
`
