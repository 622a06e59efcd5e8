// Package config loads the pipeline configuration from a YAML file.
//
// The file may reference environment variables as ${NAME}; they are expanded
// once at load time after an optional .env file has been read. Nothing else
// in the module reads the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/models"
)

// Default configuration values.
const (
	defaultTrendsProvider   = "youtube"
	defaultTrendsMaxResults = 25
	defaultGenAIBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	defaultTextModel        = "gemini-2.5-flash"
	defaultVideoModel       = "veo-3.0-fast-generate-001"
	defaultTemperature      = 0.9
	defaultRequestTimeout   = 60 * time.Second
	defaultMaxRetries       = 3
	defaultPollInterval     = 10 * time.Second
	defaultMaxPollAttempts  = 60
	defaultAspectRatio      = "9:16"
	defaultCategoryID       = "22"
	defaultTitleMaxChars    = 100
	defaultLanguage         = "en"
	defaultHistoryDSN       = "shorts.db"
	defaultMetricsAddr      = ":9090"
)

// Config holds all configuration for the application.
type Config struct {
	Logging  LoggingConfig          `yaml:"logging"`
	Trends   TrendsConfig           `yaml:"trends"`
	GenAI    GenAIConfig            `yaml:"genai"`
	Render   RenderConfig           `yaml:"render"`
	Stitch   StitchConfig           `yaml:"stitch"`
	Upload   UploadConfig           `yaml:"upload"`
	History  HistoryConfig          `yaml:"history"`
	Metrics  MetricsConfig          `yaml:"metrics"`
	Channels []models.ChannelConfig `yaml:"channels"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `yaml:"level"`  // debug, info, warn, error
	Format    string `yaml:"format"` // json, text
	AddSource bool   `yaml:"add_source"`
}

// TrendsConfig selects and configures the trend data provider.
type TrendsConfig struct {
	Provider        string `yaml:"provider"` // youtube, reddit, mock
	MaxResults      int    `yaml:"max_results"`
	YouTubeAPIKey   string `yaml:"youtube_api_key"`
	RedditUserAgent string `yaml:"reddit_user_agent"`
}

// GenAIConfig configures the text and video generation backends.
type GenAIConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	TextModel      string        `yaml:"text_model"`
	VideoModel     string        `yaml:"video_model"`
	Temperature    float64       `yaml:"temperature"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

// RenderConfig bounds the render poll loop.
type RenderConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPollAttempts int           `yaml:"max_poll_attempts"`
	Segments        int           `yaml:"segments"`
	AspectRatio     string        `yaml:"aspect_ratio"`
}

// Timeout is the longest the renderer will wait for one job.
func (c RenderConfig) Timeout() time.Duration {
	return c.PollInterval * time.Duration(c.MaxPollAttempts)
}

// StitchConfig configures the external concatenation tools.
type StitchConfig struct {
	FFmpegPath   string `yaml:"ffmpeg_path"`
	FFprobePath  string `yaml:"ffprobe_path"`
	WorkDir      string `yaml:"work_dir"` // empty = os.TempDir()
	VerifyCodecs bool   `yaml:"verify_codecs"`
}

// UploadConfig holds platform upload defaults.
type UploadConfig struct {
	CategoryID        string `yaml:"category_id"`
	MadeForKids       bool   `yaml:"made_for_kids"`
	NotifySubscribers bool   `yaml:"notify_subscribers"`
	DefaultLanguage   string `yaml:"default_language"`
	TitleMaxChars     int    `yaml:"title_max_chars"`
}

// HistoryConfig configures the run history store.
type HistoryConfig struct {
	DSN string `yaml:"dsn"` // empty disables history
}

// MetricsConfig configures the daemon's metrics endpoint.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Load reads the YAML file at path, expanding ${VAR} references. A .env file
// next to the config file or in the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	for _, env := range []string{filepath.Join(filepath.Dir(path), ".env"), ".env"} {
		if err := godotenv.Load(env); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", env, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration from YAML bytes, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// Defaults returns the settings whose zero value is meaningful, so they are
// seeded before decoding instead of filled in afterwards. An explicit
// temperature of 0 or max_retries of 0 in the file is kept.
func Defaults() Config {
	return Config{
		GenAI: GenAIConfig{
			Temperature: defaultTemperature,
			MaxRetries:  defaultMaxRetries,
		},
	}
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Trends.Provider == "" {
		c.Trends.Provider = defaultTrendsProvider
	}
	if c.Trends.MaxResults == 0 {
		c.Trends.MaxResults = defaultTrendsMaxResults
	}
	if c.Trends.RedditUserAgent == "" {
		c.Trends.RedditUserAgent = "shorts-pipeline/1.0"
	}

	if c.GenAI.BaseURL == "" {
		c.GenAI.BaseURL = defaultGenAIBaseURL
	}
	if c.GenAI.TextModel == "" {
		c.GenAI.TextModel = defaultTextModel
	}
	if c.GenAI.VideoModel == "" {
		c.GenAI.VideoModel = defaultVideoModel
	}
	if c.GenAI.RequestTimeout == 0 {
		c.GenAI.RequestTimeout = defaultRequestTimeout
	}

	if c.Render.PollInterval == 0 {
		c.Render.PollInterval = defaultPollInterval
	}
	if c.Render.MaxPollAttempts == 0 {
		c.Render.MaxPollAttempts = defaultMaxPollAttempts
	}
	if c.Render.Segments == 0 {
		c.Render.Segments = 1
	}
	if c.Render.AspectRatio == "" {
		c.Render.AspectRatio = defaultAspectRatio
	}

	if c.Stitch.FFmpegPath == "" {
		c.Stitch.FFmpegPath = "ffmpeg"
	}
	if c.Stitch.FFprobePath == "" {
		c.Stitch.FFprobePath = "ffprobe"
	}

	if c.Upload.CategoryID == "" {
		c.Upload.CategoryID = defaultCategoryID
	}
	if c.Upload.DefaultLanguage == "" {
		c.Upload.DefaultLanguage = defaultLanguage
	}
	if c.Upload.TitleMaxChars == 0 {
		c.Upload.TitleMaxChars = defaultTitleMaxChars
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = defaultMetricsAddr
	}

	for i := range c.Channels {
		ch := &c.Channels[i]
		if ch.Region == "" {
			ch.Region = "US"
		}
		if ch.Schedule.Privacy == "" {
			ch.Schedule.Privacy = models.PrivacyPublic
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	validProviders := map[string]bool{"youtube": true, "reddit": true, "mock": true}
	if !validProviders[c.Trends.Provider] {
		return fmt.Errorf("trends.provider must be one of: youtube, reddit, mock")
	}
	if c.Trends.MaxResults < 1 {
		return fmt.Errorf("trends.max_results must be at least 1")
	}

	if c.GenAI.Temperature < 0 || c.GenAI.Temperature > 2 {
		return fmt.Errorf("genai.temperature must be between 0 and 2")
	}
	if c.GenAI.MaxRetries < 0 {
		return fmt.Errorf("genai.max_retries must not be negative")
	}

	if c.Render.PollInterval <= 0 {
		return fmt.Errorf("render.poll_interval must be positive")
	}
	if c.Render.MaxPollAttempts < 1 {
		return fmt.Errorf("render.max_poll_attempts must be at least 1")
	}
	if c.Render.Segments < 1 {
		return fmt.Errorf("render.segments must be at least 1")
	}

	if c.Upload.TitleMaxChars < 4 {
		return fmt.Errorf("upload.title_max_chars must be at least 4")
	}

	seen := make(map[string]bool, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.ID == "" {
			return fmt.Errorf("channels[%d].id is required", i)
		}
		if seen[ch.ID] {
			return fmt.Errorf("channels[%d].id %q is duplicated", i, ch.ID)
		}
		seen[ch.ID] = true

		if err := validateSchedule(ch.Schedule); err != nil {
			return fmt.Errorf("channels[%d].schedule: %w", i, err)
		}
	}

	return nil
}

func validateSchedule(s models.ScheduleConfig) error {
	switch s.Privacy {
	case models.PrivacyPublic, models.PrivacyUnlisted, models.PrivacyPrivate:
	default:
		return fmt.Errorf("privacy must be one of: public, unlisted, private")
	}
	if s.PublishAt != "" {
		if _, err := time.Parse(time.RFC3339, s.PublishAt); err != nil {
			return fmt.Errorf("publish_at must be RFC 3339: %w", err)
		}
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	if s.Active && s.PublishAt == "" && s.PublishSlot == "" {
		return fmt.Errorf("active schedule needs publish_at or publish_slot")
	}
	return nil
}

// Channel returns the channel with the given id.
func (c *Config) Channel(id string) (models.ChannelConfig, error) {
	for _, ch := range c.Channels {
		if ch.ID == id {
			return ch, nil
		}
	}
	return models.ChannelConfig{}, fmt.Errorf("channel %q not found in config", id)
}
