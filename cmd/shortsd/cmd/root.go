// Package cmd implements the CLI commands for shortsd.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/config"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/observability"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "shortsd",
	Short:   "Trend-driven short video pipeline",
	Version: version.Short(),
	Long: `shortsd turns trending content into short vertical videos.

Each run fetches trending videos for a channel, extracts the patterns that
make them work, proposes and scores new concepts, renders the winner with a
generative video model and uploads it, either immediately or scheduled.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error); overrides the config file")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json); overrides the config file")
}

// loadConfig reads the config file and builds the logger. Log flags win over
// the file only when set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		level, _ := flags.GetString("log-level")
		cfg.Logging.Level = strings.ToLower(level)
	}
	if flags.Changed("log-format") {
		format, _ := flags.GetString("log-format")
		cfg.Logging.Format = strings.ToLower(format)
	}

	logger := observability.NewLoggerWithWriter(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
