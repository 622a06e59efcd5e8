// Package render drives the generative video backend: submit a job, poll it
// at a fixed interval for a bounded number of attempts, download the result.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/config"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/genai"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/models"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/pipeline/core"
)

// StageName identifies the stage in logs and errors.
const StageName = "render"

// MimeType of rendered assets.
const MimeType = "video/mp4"

// Backend is the video generation service.
type Backend interface {
	SubmitVideoJob(ctx context.Context, prompt string, opts genai.VideoOptions) (genai.JobHandle, error)
	PollVideoJob(ctx context.Context, job genai.JobHandle) (genai.JobStatus, error)
	DownloadVideo(ctx context.Context, uri string) ([]byte, error)
}

// Renderer is the VideoRenderer stage.
type Renderer struct {
	backend Backend
	cfg     config.RenderConfig
	logger  *slog.Logger
	now     func() time.Time
}

var _ core.Stage[models.PromptOutput, models.VideoAsset] = (*Renderer)(nil)

// New creates a Renderer.
func New(backend Backend, cfg config.RenderConfig, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{backend: backend, cfg: cfg, logger: logger, now: time.Now}
}

// Name implements core.Stage.
func (r *Renderer) Name() string { return StageName }

// Execute renders one video for the prompt. The returned asset always has
// status generated; failures are returned as errors.
func (r *Renderer) Execute(ctx context.Context, p models.PromptOutput) (models.VideoAsset, error) {
	if err := validate(p); err != nil {
		return models.VideoAsset{}, err
	}
	return r.render(ctx, p.CandidateID, p.Prompt)
}

// RenderSegments renders n clips of the same concept in order, each prompt
// tagged with its part number.
func (r *Renderer) RenderSegments(ctx context.Context, p models.PromptOutput, n int) ([]models.VideoAsset, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, core.Errorf(core.ErrInvalidInput, StageName, "segment count must be at least 1, got %d", n)
	}
	if n == 1 {
		asset, err := r.render(ctx, p.CandidateID, p.Prompt)
		if err != nil {
			return nil, err
		}
		return []models.VideoAsset{asset}, nil
	}

	assets := make([]models.VideoAsset, 0, n)
	for i := 1; i <= n; i++ {
		prompt := fmt.Sprintf("%s\n\nThis is part %d of %d; continue seamlessly from the previous part.", p.Prompt, i, n)
		asset, err := r.render(ctx, p.CandidateID, prompt)
		if err != nil {
			return nil, fmt.Errorf("segment %d/%d: %w", i, n, err)
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

func validate(p models.PromptOutput) error {
	if strings.TrimSpace(p.Prompt) == "" {
		return core.Errorf(core.ErrInvalidInput, StageName, "prompt text is empty")
	}
	if p.CandidateID == "" {
		return core.Errorf(core.ErrInvalidInput, StageName, "candidate reference is missing")
	}
	return nil
}

func (r *Renderer) render(ctx context.Context, candidateID, prompt string) (models.VideoAsset, error) {
	job, err := r.backend.SubmitVideoJob(ctx, prompt, genai.VideoOptions{AspectRatio: r.cfg.AspectRatio})
	if err != nil {
		return models.VideoAsset{}, err
	}

	status, err := r.wait(ctx, job)
	if err != nil {
		return models.VideoAsset{}, err
	}

	data, err := r.backend.DownloadVideo(ctx, status.ResultURI)
	if err != nil {
		return models.VideoAsset{}, err
	}
	if len(data) == 0 {
		return models.VideoAsset{}, core.Errorf(core.ErrGeneration, StageName, "backend returned an empty video")
	}

	r.logger.InfoContext(ctx, "video rendered",
		slog.String("candidate_id", candidateID),
		slog.String("job", string(job)),
		slog.Int("bytes", len(data)),
	)
	return models.VideoAsset{
		CandidateID: candidateID,
		Data:        data,
		MimeType:    MimeType,
		Status:      models.AssetGenerated,
		GeneratedAt: r.now().UTC(),
		SourceURI:   status.ResultURI,
	}, nil
}

// wait polls job every PollInterval, at most MaxPollAttempts times. A poll
// error ends the wait immediately.
func (r *Renderer) wait(ctx context.Context, job genai.JobHandle) (genai.JobStatus, error) {
	policy := retrypolicy.NewBuilder[genai.JobStatus]().
		HandleIf(func(s genai.JobStatus, err error) bool {
			return err == nil && !s.Done
		}).
		WithDelay(r.cfg.PollInterval).
		WithMaxAttempts(r.cfg.MaxPollAttempts).
		OnRetry(func(e failsafe.ExecutionEvent[genai.JobStatus]) {
			r.logger.DebugContext(ctx, "video job pending",
				slog.String("job", string(job)),
				slog.Int("attempt", e.Attempts()),
			)
		}).
		Build()

	status, err := failsafe.With(policy).WithContext(ctx).Get(func() (genai.JobStatus, error) {
		return r.backend.PollVideoJob(ctx, job)
	})
	switch {
	case errors.Is(err, retrypolicy.ErrExceeded):
		return genai.JobStatus{}, core.Errorf(core.ErrTimeout, StageName,
			"job %s not done after %d polls (%s)", job, r.cfg.MaxPollAttempts, r.cfg.Timeout())
	case errors.Is(err, context.DeadlineExceeded):
		return genai.JobStatus{}, core.Wrap(core.ErrTimeout, StageName, err, "render deadline exceeded")
	case errors.Is(err, context.Canceled):
		return genai.JobStatus{}, core.Wrap(core.ErrTimeout, StageName, err, "render cancelled while waiting for job")
	case err != nil:
		return genai.JobStatus{}, err
	}
	if status.ResultURI == "" {
		return genai.JobStatus{}, core.Errorf(core.ErrGeneration, StageName, "job %s finished without a result", job)
	}
	return status, nil
}
