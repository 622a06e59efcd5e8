package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/config"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/genai"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/history"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/metrics"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/observability"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/pipeline"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/render"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/stages/candidates"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/stages/prompt"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/stages/signals"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/stages/weights"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/stitch"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/trends"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/upload"
)

// buildOrchestrator wires every stage from the configuration. The returned
// close function releases the history store.
func buildOrchestrator(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Collector) (*pipeline.Orchestrator, func(), error) {
	provider, err := trends.NewProvider(ctx, cfg.Trends, observability.WithComponent(logger, "trends"))
	if err != nil {
		return nil, nil, fmt.Errorf("creating trend provider: %w", err)
	}

	gen := genai.NewClient(cfg.GenAI, genai.WithLogger(observability.WithComponent(logger, "genai")))

	stages := pipeline.Stages{
		Trends:     trends.NewSource(provider, observability.WithComponent(logger, "trends")),
		Signals:    signals.New(gen, observability.WithComponent(logger, signals.StageName)),
		Candidates: candidates.New(gen, candidates.DefaultCount, observability.WithComponent(logger, candidates.StageName)),
		Weights:    weights.New(weights.NewGenAIScorer(gen), observability.WithComponent(logger, weights.StageName)),
		Prompt:     prompt.New(gen, observability.WithComponent(logger, prompt.StageName)),
		Render:     render.New(gen, cfg.Render, observability.WithComponent(logger, render.StageName)),
		Stitcher:   stitch.NewFromConfig(cfg.Stitch, observability.WithComponent(logger, stitch.StageName)),
		Upload: upload.New(
			upload.NewYouTube(cfg.Upload, observability.WithComponent(logger, "youtube")),
			cfg.Upload,
			observability.WithComponent(logger, upload.StageName),
		),
	}

	opts := []pipeline.Option{
		pipeline.WithSegments(cfg.Render.Segments),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(m),
	}

	closeFn := func() {}
	if cfg.History.DSN != "" {
		store, err := history.Open(cfg.History.DSN, observability.WithComponent(logger, "history"))
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, pipeline.WithHistory(store))
		closeFn = func() {
			if err := store.Close(); err != nil {
				logger.Warn("failed to close history store", slog.String("error", err.Error()))
			}
		}
	}

	o, err := pipeline.New(stages, opts...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return o, closeFn, nil
}
