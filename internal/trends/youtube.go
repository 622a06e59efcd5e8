package trends

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/config"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/models"
)

// YouTubeProvider reads the mostPopular chart for the channel's region.
type YouTubeProvider struct {
	svc        *youtube.Service
	maxResults int64
	now        func() time.Time
}

// NewYouTubeProvider creates a provider authenticated with an API key. A
// missing key is not an error here; Fetch reports ErrNoCredentials instead.
func NewYouTubeProvider(ctx context.Context, cfg config.TrendsConfig, opts ...option.ClientOption) (*YouTubeProvider, error) {
	p := &YouTubeProvider{maxResults: int64(cfg.MaxResults), now: time.Now}
	if cfg.YouTubeAPIKey == "" {
		return p, nil
	}

	opts = append([]option.ClientOption{option.WithAPIKey(cfg.YouTubeAPIKey)}, opts...)
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	p.svc = svc
	return p, nil
}

// Name implements Provider.
func (p *YouTubeProvider) Name() string { return "youtube" }

// Fetch implements Provider.
func (p *YouTubeProvider) Fetch(ctx context.Context, ch models.ChannelConfig) ([]models.PerformanceRecord, error) {
	if p.svc == nil {
		return nil, ErrNoCredentials
	}

	resp, err := p.svc.Videos.List([]string{"snippet", "statistics"}).
		Chart("mostPopular").
		RegionCode(ch.Region).
		MaxResults(p.maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("listing popular videos: %w", err)
	}

	now := p.now()
	records := make([]models.PerformanceRecord, 0, len(resp.Items))
	for _, v := range resp.Items {
		if rec, ok := videoToRecord(v, ch.Region, now); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func videoToRecord(v *youtube.Video, region string, now time.Time) (models.PerformanceRecord, bool) {
	if v == nil || v.Snippet == nil {
		return models.PerformanceRecord{}, false
	}

	rec := models.PerformanceRecord{
		ID:     v.Id,
		Title:  v.Snippet.Title,
		Tags:   v.Snippet.Tags,
		Region: region,
		Source: "youtube",
	}
	if v.Statistics != nil {
		rec.ViewCount = v.Statistics.ViewCount
	}
	if t, err := time.Parse(time.RFC3339, v.Snippet.PublishedAt); err == nil {
		rec.PublishedAt = t
		rec.GrowthRate = growthPerHour(float64(rec.ViewCount), t, now)
	}
	return rec, true
}
