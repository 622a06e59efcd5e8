package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once for a channel",
	Long: `Run the pipeline once for the given channel and print the result as JSON.

With --mock the trend stage uses the built-in sample dataset instead of the
configured provider. The command exits non-zero when the run fails.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("channel", "", "channel id from the config file (required)")
	runCmd.Flags().Bool("mock", false, "use sample trend data")
	_ = runCmd.MarkFlagRequired("channel")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	channelID, _ := cmd.Flags().GetString("channel")
	forceMock, _ := cmd.Flags().GetBool("mock")

	ch, err := cfg.Channel(channelID)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, closeFn, err := buildOrchestrator(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer closeFn()

	res := orch.Run(ctx, ch, forceMock)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("pipeline failed at %s", res.FailedStage)
	}
	return nil
}
