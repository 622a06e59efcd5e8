// Package pipeline runs the stages of one shorts pipeline run in order:
// trends, signals, candidates, weights, prompt, render, stitch (segmented
// renders only) and upload.
//
// A run halts at the first failing stage. The result always carries the
// human-readable log of the stages that completed, plus the failure.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/metrics"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/models"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/observability"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/pipeline/core"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/scheduler"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/stages/candidates"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/stages/weights"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/trends"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/upload"
)

// recentSubjectsWindow is how many past winners are fed back to scoring.
const recentSubjectsWindow = 10

// TrendSource supplies performance records. It never fails.
type TrendSource interface {
	Fetch(ctx context.Context, ch models.ChannelConfig, forceMock bool) trends.Result
}

// Renderer renders one clip, or several clips for stitching.
type Renderer interface {
	core.Stage[models.PromptOutput, models.VideoAsset]
	RenderSegments(ctx context.Context, p models.PromptOutput, n int) ([]models.VideoAsset, error)
}

// History persists finished runs and recalls recent winners.
type History interface {
	Record(ctx context.Context, res models.PipelineResult) error
	RecentSubjects(ctx context.Context, channelID string, n int) ([]string, error)
}

// Stages are the collaborators of a run. All fields except Stitcher are
// required; Stitcher is only used when more than one segment is rendered.
type Stages struct {
	Trends     TrendSource
	Signals    core.Stage[[]models.PerformanceRecord, models.TrendSignals]
	Candidates core.Stage[candidates.Request, []models.CandidateTheme]
	Weights    core.Stage[weights.Request, models.ScoredCandidateBatch]
	Prompt     core.Stage[models.CandidateTheme, models.PromptOutput]
	Render     Renderer
	Stitcher   core.Stage[[]models.VideoAsset, models.VideoAsset]
	Upload     core.Stage[upload.Request, models.UploadResult]
}

// Orchestrator is the PipelineOrchestrator. It holds no per-run state and
// may run several channels concurrently.
type Orchestrator struct {
	stages   Stages
	segments int
	history  History
	metrics  *metrics.Collector
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSegments sets how many clips are rendered and stitched per run.
func WithSegments(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.segments = n
		}
	}
}

// WithHistory records every run and feeds recent winners back into scoring.
func WithHistory(h History) Option {
	return func(o *Orchestrator) { o.history = h }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator.
func New(stages Stages, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		stages:   stages,
		segments: 1,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	var missing []string
	for name, set := range map[string]bool{
		"trends":     stages.Trends != nil,
		"signals":    stages.Signals != nil,
		"candidates": stages.Candidates != nil,
		"weights":    stages.Weights != nil,
		"prompt":     stages.Prompt != nil,
		"render":     stages.Render != nil,
		"upload":     stages.Upload != nil,
		"stitch":     o.segments == 1 || stages.Stitcher != nil,
	} {
		if !set {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("pipeline: missing stages: %s", strings.Join(missing, ", "))
	}
	return o, nil
}

// run carries the per-run state.
type run struct {
	o      *Orchestrator
	logger *slog.Logger
	result models.PipelineResult
}

func (r *run) log(stage, format string, args ...any) {
	r.result.Logs = append(r.result.Logs, stage+": "+fmt.Sprintf(format, args...))
}

// Run executes one pipeline run for the channel. forceMock makes the trend
// stage use the sample dataset. On failure Success is false and Error,
// FailedStage and the partial Logs are set.
func (o *Orchestrator) Run(ctx context.Context, ch models.ChannelConfig, forceMock bool) models.PipelineResult {
	r := &run{
		o: o,
		result: models.PipelineResult{
			RunID:     uuid.NewString(),
			ChannelID: ch.ID,
			Logs:      []string{},
			StartedAt: o.now().UTC(),
		},
	}
	r.logger = observability.WithRun(o.logger, r.result.RunID, ch.ID)
	r.logger.InfoContext(ctx, "pipeline run starting", slog.Bool("force_mock", forceMock))

	if err := r.execute(ctx, ch, forceMock); err != nil {
		r.fail(ctx, err)
	} else {
		r.result.Success = true
		r.logger.InfoContext(ctx, "pipeline run completed",
			slog.String("video_url", r.result.VideoURL),
			slog.String("upload_id", r.result.UploadID),
		)
	}

	r.result.CompletedAt = o.now().UTC()
	o.metrics.IncRun(ch.ID, r.result.Success)
	o.record(ctx, r.logger, r.result)
	return r.result
}

func (r *run) execute(ctx context.Context, ch models.ChannelConfig, forceMock bool) error {
	o := r.o

	// A schedule that cannot be published fails before any generation work.
	if _, err := r.schedule(ch); err != nil {
		return err
	}

	fetched := o.stages.Trends.Fetch(ctx, ch, forceMock)
	o.metrics.IncTrendFetch(fetched.Provider, fetched.Mocked())
	if fetched.Mocked() {
		r.log("trends", "using %d sample records (%s)", len(fetched.Records), fetched.FallbackReason)
	} else {
		r.log("trends", "fetched %d records from %s", len(fetched.Records), fetched.Provider)
	}

	signals, err := runStage(ctx, r, o.stages.Signals, fetched.Records)
	if err != nil {
		return err
	}
	r.log(o.stages.Signals.Name(), "extracted %d subjects, %d verbs, %d structures (top subjects: %s)",
		len(signals.Subjects), len(signals.Verbs), len(signals.Structures),
		strings.Join(models.RankedKeys(signals.Subjects, 3), ", "))

	state := ch.State()
	state.RecentSubjects = mergeSubjects(state.RecentSubjects, o.recentSubjects(ctx, r.logger, ch.ID))

	cands, err := runStage(ctx, r, o.stages.Candidates, candidates.Request{Signals: signals, Channel: state})
	if err != nil {
		return err
	}
	r.log(o.stages.Candidates.Name(), "generated %d candidates", len(cands))

	batch, err := runStage(ctx, r, o.stages.Weights, weights.Request{Candidates: cands, Channel: state})
	if err != nil {
		return err
	}
	winner, ok := batch.Winner()
	if !ok {
		return core.NewStageError(o.stages.Weights.Name(),
			core.Errorf(core.ErrNoWinnerSelected, "pipeline", "%d of %d candidates selected", batch.SelectedCount(), len(batch.Candidates)))
	}
	r.result.Winner = winner.Subject
	r.log(o.stages.Weights.Name(), "selected %s %q (score %.1f of %d candidates)",
		winner.ID, strings.TrimSpace(winner.Subject+" "+winner.Action+" "+winner.Object), winner.TotalScore, len(batch.Candidates))

	plan, err := runStage(ctx, r, o.stages.Prompt, winner)
	if err != nil {
		return err
	}
	r.log(o.stages.Prompt.Name(), "composed %q", plan.TitleTemplate)

	asset, err := r.produce(ctx, plan)
	if err != nil {
		return err
	}

	schedule, err := r.schedule(ch)
	if err != nil {
		return err
	}

	up, err := runStage(ctx, r, o.stages.Upload, upload.Request{
		Asset:       asset,
		Plan:        plan,
		Schedule:    schedule,
		Credentials: ch.Credentials,
	})
	platform := up.Platform
	if platform == "" {
		platform = "unknown"
	}
	o.metrics.IncUpload(platform, err)
	if err != nil {
		return err
	}
	r.result.UploadID = up.RemoteID
	r.result.VideoURL = up.RemoteURL
	if up.Status == models.UploadScheduled {
		r.log(o.stages.Upload.Name(), "scheduled %s for %s (%s)", up.RemoteID, up.ScheduledFor, up.RemoteURL)
	} else {
		r.log(o.stages.Upload.Name(), "uploaded %s (%s)", up.RemoteID, up.RemoteURL)
	}
	return nil
}

// schedule resolves the channel's publish slot against the current time and
// checks the result the same way the upload stage will.
func (r *run) schedule(ch models.ChannelConfig) (models.ScheduleConfig, error) {
	o := r.o
	now := o.now()
	sc, err := scheduler.ResolveSchedule(ch.Schedule, now)
	if err != nil {
		return sc, core.NewStageError(o.stages.Upload.Name(), core.Wrap(core.ErrInvalidInput, "pipeline", err, "resolving publish slot"))
	}
	if _, err := upload.NormalizeSchedule(sc, now); err != nil {
		return sc, core.NewStageError(o.stages.Upload.Name(), err)
	}
	return sc, nil
}

// produce renders the plan, stitching segments when configured.
func (r *run) produce(ctx context.Context, plan models.PromptOutput) (models.VideoAsset, error) {
	o := r.o
	if o.segments <= 1 {
		asset, err := runStage[models.PromptOutput, models.VideoAsset](ctx, r, o.stages.Render, plan)
		if err != nil {
			return asset, err
		}
		r.log(o.stages.Render.Name(), "generated %s video", megabytes(len(asset.Data)))
		return asset, nil
	}

	segments, err := runStage[models.PromptOutput, []models.VideoAsset](ctx, r, segmentStage{o.stages.Render, o.segments}, plan)
	if err != nil {
		return models.VideoAsset{}, err
	}
	r.log(o.stages.Render.Name(), "generated %d segments", len(segments))

	merged, err := runStage(ctx, r, o.stages.Stitcher, segments)
	o.metrics.IncStitch(err)
	if err != nil {
		return merged, err
	}
	r.log(o.stages.Stitcher.Name(), "merged %d segments into %s", len(segments), megabytes(len(merged.Data)))
	return merged, nil
}

// runStage executes one stage with timing, structured logging and metrics,
// and wraps failures with the stage name.
func runStage[In, Out any](ctx context.Context, r *run, stage core.Stage[In, Out], in In) (Out, error) {
	name := stage.Name()
	start := time.Now()
	r.logger.DebugContext(ctx, "stage starting", slog.String("stage", name))

	out, err := stage.Execute(ctx, in)
	elapsed := time.Since(start)
	r.o.metrics.ObserveStage(name, elapsed, err)

	if err != nil {
		return out, core.NewStageError(name, err)
	}
	r.logger.InfoContext(ctx, "stage completed",
		slog.String("stage", name),
		slog.Duration("duration", elapsed),
	)
	return out, nil
}

func (r *run) fail(ctx context.Context, err error) {
	r.result.Success = false
	r.result.Error = err.Error()

	var se *core.StageError
	if errors.As(err, &se) {
		r.result.FailedStage = se.Stage
		r.log(se.Stage, "failed: %v", se.Err)
	}

	attrs := []any{
		slog.String("failed_stage", r.result.FailedStage),
		slog.String("error", r.result.Error),
	}
	if kind := core.KindOf(err); kind != nil {
		attrs = append(attrs, slog.String("kind", kind.Error()))
	}
	r.logger.ErrorContext(ctx, "pipeline run failed", attrs...)
}

func (o *Orchestrator) recentSubjects(ctx context.Context, logger *slog.Logger, channelID string) []string {
	if o.history == nil {
		return nil
	}
	subjects, err := o.history.RecentSubjects(ctx, channelID, recentSubjectsWindow)
	if err != nil {
		logger.WarnContext(ctx, "failed to load recent subjects", slog.String("error", err.Error()))
		return nil
	}
	return subjects
}

func (o *Orchestrator) record(ctx context.Context, logger *slog.Logger, res models.PipelineResult) {
	if o.history == nil {
		return
	}
	if err := o.history.Record(context.WithoutCancel(ctx), res); err != nil {
		logger.WarnContext(ctx, "failed to record run history", slog.String("error", err.Error()))
	}
}

// segmentStage adapts RenderSegments to the stage contract.
type segmentStage struct {
	r Renderer
	n int
}

func (s segmentStage) Name() string { return s.r.Name() }

func (s segmentStage) Execute(ctx context.Context, p models.PromptOutput) ([]models.VideoAsset, error) {
	return s.r.RenderSegments(ctx, p, s.n)
}

// mergeSubjects appends extra to base, skipping case-insensitive duplicates.
func mergeSubjects(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, s := range append(append([]string(nil), base...), extra...) {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

func megabytes(n int) string {
	return fmt.Sprintf("%.1f MB", float64(n)/1024/1024)
}
