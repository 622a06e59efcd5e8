package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/metrics"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/models"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/observability"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/scheduler"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/version"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run channels on their cron schedules",
	Long: `Start the scheduler. Every channel with a cron expression is run on that
schedule; a run still in progress when the next tick fires is skipped.

Prometheus metrics are served on metrics.listen_addr at /metrics.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.Flags().Duration("shutdown-timeout", 5*time.Minute, "how long to wait for running pipelines on shutdown")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(version.Version)
	orch, closeFn, err := buildOrchestrator(ctx, cfg, logger, m)
	if err != nil {
		return err
	}
	defer closeFn()

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:              cfg.Metrics.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()

	d := scheduler.NewDaemon(cfg.Channels, func(ctx context.Context, ch models.ChannelConfig) models.PipelineResult {
		return orch.Run(ctx, ch, false)
	}, observability.WithComponent(logger, "scheduler"))
	if err := d.Start(ctx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("starting scheduler: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", slog.String("error", err.Error()))
	}
	if err := d.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stopping scheduler: %w", err)
	}
	return nil
}
