package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/config"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/models"
)

// ErrIncompleteCredentials is returned when a channel's OAuth credentials
// are missing a field.
var ErrIncompleteCredentials = errors.New("client id, client secret and refresh token are all required")

// YouTube uploads through the YouTube Data API v3. A new OAuth client is
// built from the supplied credentials on every call.
type YouTube struct {
	cfg        config.UploadConfig
	endpoint   oauth2.Endpoint
	clientOpts []option.ClientOption
	logger     *slog.Logger
}

// YouTubeOption configures a YouTube platform.
type YouTubeOption func(*YouTube)

// WithOAuthEndpoint overrides the OAuth token endpoint.
func WithOAuthEndpoint(ep oauth2.Endpoint) YouTubeOption {
	return func(y *YouTube) { y.endpoint = ep }
}

// WithClientOptions appends API client options (e.g. a test endpoint).
func WithClientOptions(opts ...option.ClientOption) YouTubeOption {
	return func(y *YouTube) { y.clientOpts = append(y.clientOpts, opts...) }
}

// NewYouTube creates the YouTube platform.
func NewYouTube(cfg config.UploadConfig, logger *slog.Logger, opts ...YouTubeOption) *YouTube {
	if logger == nil {
		logger = slog.Default()
	}
	y := &YouTube{cfg: cfg, endpoint: google.Endpoint, logger: logger}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

// Name implements Platform.
func (y *YouTube) Name() string { return "youtube" }

// Upload implements Platform.
func (y *YouTube) Upload(ctx context.Context, payload []byte, meta Metadata, schedule models.ScheduleConfig, creds models.Credentials) (string, string, error) {
	if !creds.Complete() {
		return "", "", ErrIncompleteCredentials
	}

	y.logger.DebugContext(ctx, "authenticating with youtube", slog.Any("credentials", creds))
	svc, err := youtube.NewService(ctx, append([]option.ClientOption{option.WithHTTPClient(y.oauthClient(ctx, creds))}, y.clientOpts...)...)
	if err != nil {
		return "", "", fmt.Errorf("youtube service: %w", err)
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                meta.Title,
			Description:          meta.Description,
			Tags:                 meta.Tags,
			CategoryId:           y.cfg.CategoryID,
			DefaultLanguage:      y.cfg.DefaultLanguage,
			DefaultAudioLanguage: y.cfg.DefaultLanguage,
		},
		Status: videoStatus(y.cfg, schedule),
	}

	mime := meta.MimeType
	if mime == "" {
		mime = "video/mp4"
	}

	y.logger.InfoContext(ctx, "uploading video",
		slog.String("title", meta.Title),
		slog.Float64("size_mb", float64(len(payload))/1024/1024),
		slog.String("publish_at", video.Status.PublishAt),
	)

	uploaded, err := y.insert(ctx, svc, video, payload, mime)
	if err != nil {
		return "", "", err
	}
	return uploaded.Id, VideoURL(uploaded.Id), nil
}

func (y *YouTube) insert(ctx context.Context, svc *youtube.Service, video *youtube.Video, payload []byte, mime string) (*youtube.Video, error) {
	call := svc.Videos.Insert([]string{"snippet", "status"}, video).
		NotifySubscribers(y.cfg.NotifySubscribers).
		Media(bytes.NewReader(payload), googleapi.ContentType(mime)).
		Context(ctx)

	uploaded, err := call.Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return nil, fmt.Errorf("youtube upload: HTTP %d: %s", gerr.Code, gerr.Message)
		}
		return nil, fmt.Errorf("youtube upload: %w", err)
	}
	return uploaded, nil
}

// videoStatus maps the schedule onto the API. Scheduled videos must be
// private until PublishAt.
func videoStatus(cfg config.UploadConfig, schedule models.ScheduleConfig) *youtube.VideoStatus {
	status := &youtube.VideoStatus{
		PrivacyStatus:           schedule.Privacy,
		SelfDeclaredMadeForKids: cfg.MadeForKids,
	}
	if status.PrivacyStatus == "" {
		status.PrivacyStatus = models.PrivacyPublic
	}
	if schedule.Active {
		status.PrivacyStatus = models.PrivacyPrivate
		status.PublishAt = schedule.PublishAt
	}
	return status
}

// oauthClient builds an HTTP client that exchanges the refresh token on
// first use.
func (y *YouTube) oauthClient(ctx context.Context, creds models.Credentials) *http.Client {
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     y.endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope},
	}
	token := &oauth2.Token{
		RefreshToken: creds.RefreshToken,
		Expiry:       time.Now().Add(-time.Hour), // force refresh
	}
	return conf.Client(ctx, token)
}
