package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/stitch"
)

var stitchCmd = &cobra.Command{
	Use:   "stitch -o OUTPUT SEGMENT SEGMENT [SEGMENT...]",
	Short: "Concatenate video segments without re-encoding",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runStitch,
}

func init() {
	rootCmd.AddCommand(stitchCmd)
	stitchCmd.Flags().StringP("output", "o", "", "output file (required)")
	_ = stitchCmd.MarkFlagRequired("output")
}

func runStitch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	output, _ := cmd.Flags().GetString("output")

	segments := make([][]byte, len(args))
	for i, path := range args {
		if segments[i], err = os.ReadFile(path); err != nil {
			return fmt.Errorf("reading segment: %w", err)
		}
	}

	merged, err := stitch.NewFromConfig(cfg.Stitch, logger).Stitch(cmd.Context(), segments)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, merged, 0o644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	logger.Info("segments stitched",
		slog.Int("segments", len(segments)),
		slog.String("output", output),
		slog.Int("bytes", len(merged)),
	)
	return nil
}
