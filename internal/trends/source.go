// Package trends fetches content performance records for a channel.
//
// Providers may fail for any reason (missing key, quota, network). Source
// turns every such failure into one logged decision to use the built-in
// sample dataset, so the pipeline always has records to work with.
package trends

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/config"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/models"
)

// ErrNoCredentials is returned by providers that are not configured.
var ErrNoCredentials = errors.New("trend provider credentials not configured")

// Provider fetches records from one external service.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, ch models.ChannelConfig) ([]models.PerformanceRecord, error)
}

// Result is the outcome of Source.Fetch.
type Result struct {
	Records []models.PerformanceRecord
	// Provider names where the records came from ("mock" on fallback).
	Provider string
	// FallbackReason is set when the sample dataset was used.
	FallbackReason string
}

// Mocked reports whether the sample dataset was used.
func (r Result) Mocked() bool { return r.FallbackReason != "" }

// Source wraps a Provider with the mock fallback.
type Source struct {
	provider Provider
	logger   *slog.Logger
	now      func() time.Time
}

// NewSource creates a Source. provider may be nil, in which case every
// fetch uses the sample dataset.
func NewSource(provider Provider, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{provider: provider, logger: logger, now: time.Now}
}

// Fetch returns records for the channel. It never fails: forceMock, a
// missing provider, a provider error and an empty result all fall back to
// the sample dataset, and the reason is reported in the result.
func (s *Source) Fetch(ctx context.Context, ch models.ChannelConfig, forceMock bool) Result {
	records, reason := s.fetch(ctx, ch, forceMock)
	if reason == "" {
		return Result{Records: records, Provider: s.provider.Name()}
	}

	s.logger.WarnContext(ctx, "using sample trend data",
		slog.String("channel_id", ch.ID),
		slog.String("reason", reason),
	)
	return Result{
		Records:        SampleRecords(ch.Region, s.now()),
		Provider:       MockProviderName,
		FallbackReason: reason,
	}
}

func (s *Source) fetch(ctx context.Context, ch models.ChannelConfig, forceMock bool) ([]models.PerformanceRecord, string) {
	if forceMock {
		return nil, "mock forced"
	}
	if s.provider == nil || s.provider.Name() == MockProviderName {
		return nil, "no trend provider configured"
	}

	records, err := s.provider.Fetch(ctx, ch)
	if err != nil {
		return nil, fmt.Sprintf("%s fetch failed: %v", s.provider.Name(), err)
	}
	if len(records) == 0 {
		return nil, fmt.Sprintf("%s returned no records", s.provider.Name())
	}
	return records, ""
}

// NewProvider builds the provider named in cfg. The mock provider yields a
// nil Provider, which Source treats as "always use the sample dataset".
func NewProvider(ctx context.Context, cfg config.TrendsConfig, logger *slog.Logger) (Provider, error) {
	switch cfg.Provider {
	case "youtube":
		p, err := NewYouTubeProvider(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "reddit":
		p, err := NewRedditProvider(cfg, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case MockProviderName, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown trend provider %q", cfg.Provider)
	}
}

// growthPerHour returns count divided by the hours elapsed since published,
// with a one-hour floor. Never negative.
func growthPerHour(count float64, published, now time.Time) float64 {
	if count <= 0 {
		return 0
	}
	hours := now.Sub(published).Hours()
	if hours < 1 {
		hours = 1
	}
	return count / hours
}
