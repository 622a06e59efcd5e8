package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/models"
)

// RunFunc executes one pipeline run for a channel.
type RunFunc func(ctx context.Context, ch models.ChannelConfig) models.PipelineResult

// Daemon runs each channel that has a cron expression on its schedule. A run
// that is still going when the next tick fires is skipped for that channel.
type Daemon struct {
	mu sync.Mutex

	channels []models.ChannelConfig
	run      RunFunc
	logger   *slog.Logger

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewDaemon creates a daemon over the given channels.
func NewDaemon(channels []models.ChannelConfig, run RunFunc, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{channels: channels, run: run, logger: logger}
}

// Start schedules every channel with a cron expression and starts the cron
// loop. It returns an error if an expression is invalid or no channel has one.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cron != nil {
		return fmt.Errorf("daemon already started")
	}

	c := cron.New(cron.WithParser(parser), cron.WithLogger(cronLogger{d.logger}))
	d.ctx, d.cancel = context.WithCancel(ctx)

	scheduled := 0
	for _, ch := range d.channels {
		if ch.Cron == "" {
			continue
		}
		schedule, err := parser.Parse(ch.Cron)
		if err != nil {
			d.cancel()
			return fmt.Errorf("channel %s: invalid cron %q: %w", ch.ID, ch.Cron, err)
		}
		id := c.Schedule(schedule, d.job(ch))
		d.logger.Info("channel scheduled",
			slog.String("channel_id", ch.ID),
			slog.String("cron", ch.Cron),
			slog.Time("next_run", c.Entry(id).Schedule.Next(time.Now())),
		)
		scheduled++
	}
	if scheduled == 0 {
		d.cancel()
		return errors.New("no channel has a cron schedule")
	}

	d.cron = c
	c.Start()
	d.logger.Info("daemon started", slog.Int("channels", scheduled))
	return nil
}

// Stop stops scheduling and waits for running pipelines. If ctx ends first
// the running pipelines are cancelled and ctx's error is returned.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	c, cancel := d.cron, d.cancel
	d.cron = nil
	d.mu.Unlock()

	if c == nil {
		return nil
	}
	defer cancel()

	select {
	case <-c.Stop().Done():
		d.logger.Info("daemon stopped")
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// job wraps one channel's run so overlapping ticks are skipped.
func (d *Daemon) job(ch models.ChannelConfig) cron.Job {
	run := cron.FuncJob(func() {
		res := d.run(d.ctx, ch)
		attrs := []any{
			slog.String("channel_id", ch.ID),
			slog.String("run_id", res.RunID),
			slog.Bool("success", res.Success),
		}
		if res.Success {
			d.logger.Info("scheduled run finished", append(attrs, slog.String("video_url", res.VideoURL))...)
			return
		}
		d.logger.Warn("scheduled run failed", append(attrs,
			slog.String("failed_stage", res.FailedStage),
			slog.String("error", res.Error),
		)...)
	})
	return cron.NewChain(cron.SkipIfStillRunning(cronLogger{d.logger.With(slog.String("channel_id", ch.ID))})).Then(run)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, slog.Any("error", err))...)
}
