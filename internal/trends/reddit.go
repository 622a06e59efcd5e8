package trends

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vartanbeno/go-reddit/v2/reddit"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/config"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/models"
)

// RedditProvider reads hot posts from the channel's subreddits. Reddit has
// no public view counts, so the post score stands in for views.
type RedditProvider struct {
	client *reddit.Client
	limit  int
	logger *slog.Logger
	now    func() time.Time
}

// NewRedditProvider creates a read-only Reddit provider.
func NewRedditProvider(cfg config.TrendsConfig, logger *slog.Logger) (*RedditProvider, error) {
	client, err := reddit.NewReadonlyClient(reddit.WithUserAgent(cfg.RedditUserAgent))
	if err != nil {
		return nil, fmt.Errorf("reddit client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedditProvider{client: client, limit: cfg.MaxResults, logger: logger, now: time.Now}, nil
}

// Name implements Provider.
func (p *RedditProvider) Name() string { return "reddit" }

// Fetch implements Provider. A failing subreddit is logged and skipped; the
// call fails only when every subreddit failed.
func (p *RedditProvider) Fetch(ctx context.Context, ch models.ChannelConfig) ([]models.PerformanceRecord, error) {
	if len(ch.Subreddits) == 0 {
		return nil, fmt.Errorf("channel %q has no subreddits", ch.ID)
	}

	now := p.now()
	var records []models.PerformanceRecord
	var lastErr error
	failed := 0
	for _, sub := range ch.Subreddits {
		posts, _, err := p.client.Subreddit.HotPosts(ctx, sub, &reddit.ListOptions{Limit: p.limit})
		if err != nil {
			p.logger.WarnContext(ctx, "subreddit fetch failed",
				slog.String("subreddit", sub),
				slog.String("error", err.Error()),
			)
			lastErr = err
			failed++
			continue
		}
		for _, post := range posts {
			if rec, ok := postToRecord(post, ch.Region, now); ok {
				records = append(records, rec)
			}
		}
	}

	if failed == len(ch.Subreddits) {
		return nil, fmt.Errorf("all %d subreddits failed: %w", failed, lastErr)
	}
	return records, nil
}

func postToRecord(post *reddit.Post, region string, now time.Time) (models.PerformanceRecord, bool) {
	if post == nil || post.Stickied || post.NSFW {
		return models.PerformanceRecord{}, false
	}

	score := post.Score
	if score < 0 {
		score = 0
	}
	rec := models.PerformanceRecord{
		ID:        "reddit_" + post.ID,
		Title:     post.Title,
		Tags:      []string{post.SubredditName},
		ViewCount: uint64(score),
		Region:    region,
		Source:    "r/" + post.SubredditName,
	}
	if post.Created != nil {
		rec.PublishedAt = post.Created.Time
		rec.GrowthRate = growthPerHour(float64(score), post.Created.Time, now)
	}
	return rec, true
}
