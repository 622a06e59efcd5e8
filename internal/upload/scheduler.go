// Package upload publishes rendered videos, either immediately or held for
// a scheduled publish time.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/config"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/models"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/pipeline/core"
)

// StageName identifies the stage in logs and errors.
const StageName = "upload"

const shortsTag = "#Shorts"

// Metadata is what the platform shows for the video.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
	MimeType    string
}

// Platform performs one authenticated upload. When schedule.Active is set the
// platform must hold publication until schedule.PublishAt.
type Platform interface {
	Name() string
	Upload(ctx context.Context, payload []byte, meta Metadata, schedule models.ScheduleConfig, creds models.Credentials) (remoteID, remoteURL string, err error)
}

// Request is the stage input.
type Request struct {
	Asset       models.VideoAsset
	Plan        models.PromptOutput
	Schedule    models.ScheduleConfig
	Credentials models.Credentials
}

// Scheduler is the UploadScheduler stage.
type Scheduler struct {
	platform Platform
	cfg      config.UploadConfig
	logger   *slog.Logger
	now      func() time.Time
}

var _ core.Stage[Request, models.UploadResult] = (*Scheduler)(nil)

// New creates a Scheduler.
func New(platform Platform, cfg config.UploadConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{platform: platform, cfg: cfg, logger: logger, now: time.Now}
}

// WithClock returns a copy of s that reads the time from now.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	c := *s
	c.now = now
	return &c
}

// Name implements core.Stage.
func (s *Scheduler) Name() string { return StageName }

// Execute implements core.Stage.
func (s *Scheduler) Execute(ctx context.Context, req Request) (models.UploadResult, error) {
	return s.Publish(ctx, req.Asset, req.Plan, req.Schedule, req.Credentials)
}

// Publish uploads the asset. Inactive schedules publish now with the given
// privacy; active schedules upload now and publish at schedule.PublishAt,
// which is echoed back unchanged in the result.
func (s *Scheduler) Publish(ctx context.Context, asset models.VideoAsset, plan models.PromptOutput, schedule models.ScheduleConfig, creds models.Credentials) (models.UploadResult, error) {
	if asset.Status != models.AssetGenerated {
		return models.UploadResult{}, core.Errorf(core.ErrInvalidInput, StageName, "invalid video asset: status is %q, want %q", asset.Status, models.AssetGenerated)
	}
	if len(asset.Data) == 0 {
		return models.UploadResult{}, core.Errorf(core.ErrInvalidInput, StageName, "invalid video asset: payload is empty")
	}

	schedule, err := NormalizeSchedule(schedule, s.now())
	if err != nil {
		return models.UploadResult{}, err
	}

	meta := s.buildMetadata(asset, plan)
	remoteID, remoteURL, err := s.platform.Upload(ctx, asset.Data, meta, schedule, creds)
	if err != nil {
		return models.UploadResult{}, core.Wrap(core.ErrUploadFailed, StageName, err, s.platform.Name()+" rejected the upload")
	}
	if remoteID == "" {
		return models.UploadResult{}, core.Errorf(core.ErrUploadFailed, StageName, "%s returned no video id", s.platform.Name())
	}

	result := models.UploadResult{
		Platform:   s.platform.Name(),
		RemoteID:   remoteID,
		RemoteURL:  remoteURL,
		Status:     models.UploadUploaded,
		UploadedAt: s.now().UTC(),
	}
	if schedule.Active {
		result.Status = models.UploadScheduled
		result.ScheduledFor = schedule.PublishAt
	}

	s.logger.InfoContext(ctx, "video published",
		slog.String("platform", result.Platform),
		slog.String("remote_id", remoteID),
		slog.String("status", string(result.Status)),
		slog.String("scheduled_for", result.ScheduledFor),
	)
	return result, nil
}

// NormalizeSchedule fills in the default privacy and checks that an active
// schedule carries an RFC 3339 publish_at no earlier than now.
func NormalizeSchedule(sc models.ScheduleConfig, now time.Time) (models.ScheduleConfig, error) {
	switch sc.Privacy {
	case "":
		sc.Privacy = models.PrivacyPublic
	case models.PrivacyPublic, models.PrivacyUnlisted, models.PrivacyPrivate:
	default:
		return sc, core.Errorf(core.ErrInvalidInput, StageName, "unknown privacy %q", sc.Privacy)
	}

	if !sc.Active {
		return sc, nil
	}
	if sc.PublishAt == "" {
		return sc, core.Errorf(core.ErrInvalidInput, StageName, "scheduled publish requires publish_at")
	}
	at, err := time.Parse(time.RFC3339, sc.PublishAt)
	if err != nil {
		return sc, core.Wrap(core.ErrInvalidInput, StageName, err, "publish_at is not RFC 3339")
	}
	if at.Before(now) {
		return sc, core.Errorf(core.ErrInvalidInput, StageName, "publish_at %s is before now (%s)", sc.PublishAt, now.UTC().Format(time.RFC3339))
	}
	return sc, nil
}

func (s *Scheduler) buildMetadata(asset models.VideoAsset, plan models.PromptOutput) Metadata {
	desc := plan.DescriptionTemplate
	if !strings.Contains(strings.ToLower(desc), strings.ToLower(shortsTag)) {
		desc = strings.TrimSpace(desc + "\n\n" + shortsTag)
	}
	return Metadata{
		Title:       TruncateTitle(plan.TitleTemplate, s.cfg.TitleMaxChars),
		Description: desc,
		Tags:        plan.Tags,
		MimeType:    asset.MimeType,
	}
}

// TruncateTitle shortens title to at most limit runes, ending in "..." when
// cut. limit <= 0 leaves the title unchanged.
func TruncateTitle(title string, limit int) string {
	title = strings.TrimSpace(title)
	if limit <= 0 || utf8.RuneCountInString(title) <= limit {
		return title
	}
	if limit <= 3 {
		return string([]rune(title)[:limit])
	}
	return strings.TrimSpace(string([]rune(title)[:limit-3])) + "..."
}

// VideoURL is the public watch URL for a YouTube video id.
func VideoURL(id string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", id)
}
