package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent pipeline runs",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().String("channel", "", "only show runs for this channel")
	historyCmd.Flags().Int("limit", 20, "maximum number of runs")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.History.DSN == "" {
		return errors.New("history is disabled (history.dsn is empty)")
	}
	channelID, _ := cmd.Flags().GetString("channel")
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := history.Open(cfg.History.DSN, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Recent(cmd.Context(), channelID, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tCHANNEL\tSTATUS\tWINNER\tVIDEO")
	for _, r := range runs {
		status := "ok"
		if !r.Success {
			status = "failed at " + r.FailedStage
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.ChannelID, status, r.WinnerSubject, r.VideoURL)
	}
	return w.Flush()
}
