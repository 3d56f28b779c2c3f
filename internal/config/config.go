package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigDir   = ".feedcast"
	DefaultConfigFile  = "config.yaml"
	DefaultStoragePath = ".feedcast/feedcast.db"

	DefaultUsernameEnv  = "X_USERNAME"
	DefaultAuthTokenEnv = "X_AUTH_TOKEN"
	DefaultCT0Env       = "X_CT0"
	DefaultDays         = 50
	DefaultPageSize     = 20
	DefaultPageDelay    = 2 * time.Second
	DefaultTimezone     = "Asia/Tokyo"
	DefaultExportOutput = "my_tweets.md"
	DefaultXBaseURL     = "https://x.com"
	DefaultUserQueryID  = "NimuplG1OB7Fd2btCLdBOw"
	DefaultPostsQueryID = "QWF3SzpHmykQHsQMixG0cg"

	DefaultInput            = "docs/api/data.json"
	DefaultInputFormat      = "json"
	DefaultOutputDir        = "docs/audio"
	DefaultManifestFile     = "manifest.json"
	DefaultAudioPrefix      = "../audio/"
	DefaultVoicevoxURL      = "http://localhost:50021"
	DefaultSpeaker          = 3
	DefaultSpeedScale       = 1.1
	DefaultIntonationScale  = 1.2
	DefaultQueryTimeout     = 30 * time.Second
	DefaultSynthesisTimeout = 60 * time.Second
	DefaultSummaryLimit     = 300
	DefaultSpeakDelay       = 500 * time.Millisecond
	DefaultCategorySuffix   = "のニュースなのだ。"
	DefaultTitleSuffix      = "。"
	DefaultTruncatedSuffix  = "。以上なのだ"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "2s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Export  ExportConfig  `yaml:"export"`
	Speak   SpeakConfig   `yaml:"speak"`
	Storage StorageConfig `yaml:"storage"`
}

type ExportConfig struct {
	UsernameEnv  string       `yaml:"username_env"`
	AuthTokenEnv string       `yaml:"auth_token_env"`
	CT0Env       string       `yaml:"ct0_env"`
	Days         int          `yaml:"days"`
	PageSize     int          `yaml:"page_size"`
	PageDelay    Duration     `yaml:"page_delay"`
	Timezone     string       `yaml:"timezone"`
	Output       string       `yaml:"output"`
	HTMLOutput   string       `yaml:"html_output"`
	StrictOrder  bool         `yaml:"strict_order"`
	BaseURL      string       `yaml:"base_url"`
	QueryIDs     QueryIDs     `yaml:"query_ids"`
	Redact       RedactConfig `yaml:"redact"`

	// Resolved from env vars at load time.
	Username  string `yaml:"-"`
	AuthToken string `yaml:"-"`
	CT0       string `yaml:"-"`
}

// QueryIDs are the GraphQL operation ids of the X web client. They rotate
// with web deployments, so they are overridable without a rebuild.
type QueryIDs struct {
	UserByScreenName string `yaml:"user_by_screen_name"`
	UserTweets       string `yaml:"user_tweets"`
}

type RedactConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Patterns []string `yaml:"patterns"`
}

type SpeakConfig struct {
	Input        string         `yaml:"input"`
	InputFormat  string         `yaml:"input_format"`
	OutputDir    string         `yaml:"output_dir"`
	Manifest     string         `yaml:"manifest"`
	AudioPrefix  string         `yaml:"audio_prefix"`
	SummaryLimit int            `yaml:"summary_limit"`
	Delay        Duration       `yaml:"delay"`
	Voicevox     VoicevoxConfig `yaml:"voicevox"`
	Phrases      PhrasesConfig  `yaml:"phrases"`
}

type VoicevoxConfig struct {
	URL              string   `yaml:"url"`
	Speaker          *int     `yaml:"speaker"`
	SpeedScale       float64  `yaml:"speed_scale"`
	IntonationScale  float64  `yaml:"intonation_scale"`
	QueryTimeout     Duration `yaml:"query_timeout"`
	SynthesisTimeout Duration `yaml:"synthesis_timeout"`
}

// SpeakerID returns the configured voice id.
func (v VoicevoxConfig) SpeakerID() int {
	if v.Speaker == nil {
		return DefaultSpeaker
	}
	return *v.Speaker
}

type PhrasesConfig struct {
	Category  string `yaml:"category"`
	Title     string `yaml:"title"`
	Truncated string `yaml:"truncated"`
}

type StorageConfig struct {
	Path       string `yaml:"path"`
	Disabled   bool   `yaml:"disabled"`
	RetainDays int    `yaml:"retain_days"` // 0 keeps the run ledger forever
}

// Load reads config.yaml from dir, applies defaults, resolves env vars, and validates.
// A missing config file is not an error: the defaults describe a working setup.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	var cfg Config

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	ex := &cfg.Export
	if ex.UsernameEnv == "" {
		ex.UsernameEnv = DefaultUsernameEnv
	}
	if ex.AuthTokenEnv == "" {
		ex.AuthTokenEnv = DefaultAuthTokenEnv
	}
	if ex.CT0Env == "" {
		ex.CT0Env = DefaultCT0Env
	}
	if ex.Days == 0 {
		ex.Days = DefaultDays
	}
	if ex.PageSize == 0 {
		ex.PageSize = DefaultPageSize
	}
	if ex.PageDelay.Duration == 0 {
		ex.PageDelay.Duration = DefaultPageDelay
	}
	if ex.Timezone == "" {
		ex.Timezone = DefaultTimezone
	}
	if ex.Output == "" {
		ex.Output = DefaultExportOutput
	}
	if ex.BaseURL == "" {
		ex.BaseURL = DefaultXBaseURL
	}
	if ex.QueryIDs.UserByScreenName == "" {
		ex.QueryIDs.UserByScreenName = DefaultUserQueryID
	}
	if ex.QueryIDs.UserTweets == "" {
		ex.QueryIDs.UserTweets = DefaultPostsQueryID
	}

	sp := &cfg.Speak
	if sp.Input == "" {
		sp.Input = DefaultInput
	}
	if sp.InputFormat == "" {
		sp.InputFormat = DefaultInputFormat
	}
	if sp.OutputDir == "" {
		sp.OutputDir = DefaultOutputDir
	}
	if sp.Manifest == "" {
		sp.Manifest = filepath.Join(sp.OutputDir, DefaultManifestFile)
	}
	if sp.AudioPrefix == "" {
		sp.AudioPrefix = DefaultAudioPrefix
	}
	if sp.SummaryLimit == 0 {
		sp.SummaryLimit = DefaultSummaryLimit
	}
	if sp.Delay.Duration == 0 {
		sp.Delay.Duration = DefaultSpeakDelay
	}
	if sp.Voicevox.URL == "" {
		sp.Voicevox.URL = DefaultVoicevoxURL
	}
	if sp.Voicevox.SpeedScale == 0 {
		sp.Voicevox.SpeedScale = DefaultSpeedScale
	}
	if sp.Voicevox.IntonationScale == 0 {
		sp.Voicevox.IntonationScale = DefaultIntonationScale
	}
	if sp.Voicevox.QueryTimeout.Duration == 0 {
		sp.Voicevox.QueryTimeout.Duration = DefaultQueryTimeout
	}
	if sp.Voicevox.SynthesisTimeout.Duration == 0 {
		sp.Voicevox.SynthesisTimeout.Duration = DefaultSynthesisTimeout
	}
	if sp.Phrases.Category == "" {
		sp.Phrases.Category = DefaultCategorySuffix
	}
	if sp.Phrases.Title == "" {
		sp.Phrases.Title = DefaultTitleSuffix
	}
	if sp.Phrases.Truncated == "" {
		sp.Phrases.Truncated = DefaultTruncatedSuffix
	}

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
}

func resolveEnv(cfg *Config) {
	cfg.Export.Username = strings.TrimPrefix(strings.TrimSpace(os.Getenv(cfg.Export.UsernameEnv)), "@")
	cfg.Export.AuthToken = strings.TrimSpace(os.Getenv(cfg.Export.AuthTokenEnv))
	cfg.Export.CT0 = strings.TrimSpace(os.Getenv(cfg.Export.CT0Env))
}

func validate(cfg *Config) error {
	if cfg.Export.Days < 0 {
		return fmt.Errorf("export.days: must be positive, got %d", cfg.Export.Days)
	}
	if cfg.Export.PageSize < 0 {
		return fmt.Errorf("export.page_size: must be positive, got %d", cfg.Export.PageSize)
	}
	if cfg.Export.PageDelay.Duration < 0 {
		return fmt.Errorf("export.page_delay: must not be negative")
	}
	if _, err := time.LoadLocation(cfg.Export.Timezone); err != nil {
		return fmt.Errorf("export.timezone: %w", err)
	}
	if cfg.Export.Redact.Enabled {
		for _, p := range cfg.Export.Redact.Patterns {
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("export.redact: pattern %q: %w", p, err)
			}
		}
	}

	switch cfg.Speak.InputFormat {
	case "json", "feed":
		// valid
	default:
		return fmt.Errorf("speak.input_format: unknown format %q (want json or feed)", cfg.Speak.InputFormat)
	}
	if cfg.Speak.SummaryLimit < 0 {
		return fmt.Errorf("speak.summary_limit: must be positive, got %d", cfg.Speak.SummaryLimit)
	}
	if cfg.Speak.Delay.Duration < 0 {
		return fmt.Errorf("speak.delay: must not be negative")
	}
	if cfg.Speak.Voicevox.SpeakerID() < 0 {
		return fmt.Errorf("speak.voicevox.speaker: must not be negative, got %d", cfg.Speak.Voicevox.SpeakerID())
	}
	if cfg.Storage.RetainDays < 0 {
		return fmt.Errorf("storage.retain_days: must not be negative, got %d", cfg.Storage.RetainDays)
	}

	return nil
}

// Location returns the export time zone. Load has already validated it.
func (e ExportConfig) Location() *time.Location {
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CheckCredentials reports which X credentials are missing from the environment.
func (e ExportConfig) CheckCredentials() error {
	var missing []string
	if e.Username == "" {
		missing = append(missing, e.UsernameEnv)
	}
	if e.AuthToken == "" {
		missing = append(missing, e.AuthTokenEnv)
	}
	if e.CT0 == "" {
		missing = append(missing, e.CT0Env)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing X credentials: set %s", strings.Join(missing, ", "))
	}
	return nil
}
