package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/config"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/genai"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/history"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/metrics"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/models"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/observability"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/pipeline/core"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/render"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/stages/candidates"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/stages/prompt"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/stages/signals"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/stages/weights"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/stitch"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/trends"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/upload"
)

// scriptedGenerator answers each stage by the shape of the requested schema.
type scriptedGenerator struct {
	mu      sync.Mutex
	scores  string
	prompts []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt, _ string, schema *genai.Schema) (json.RawMessage, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	switch {
	case schema.Properties["records"] != nil:
		return json.RawMessage(`{"records": [
			{"id": "mock_1", "verb": "crushes", "subject": "hydraulic press", "object": "bowling ball", "structure": "experiment", "algorithm_signals": ["slow motion"]},
			{"id": "mock_2", "verb": "did", "subject": "dog", "object": "homework", "structure": "story", "algorithm_signals": ["pets"]},
			{"id": "mock_3", "verb": "cooking", "subject": "steak", "object": "toaster", "structure": "experiment", "algorithm_signals": ["question hook"]},
			{"id": "mock_4", "verb": "reacts", "subject": "dog", "object": "owner", "structure": "reaction", "algorithm_signals": ["pets", "emotional"]}
		]}`), nil
	case schema.Properties["candidates"] != nil:
		return json.RawMessage(`{"candidates": [
			{"id": "cand_1", "subject": "hydraulic press", "action": "crushes", "object": "frozen pizza", "structure_type": "experiment", "signals": ["slow motion"]},
			{"id": "cand_2", "subject": "dog", "action": "reacts to", "object": "robot vacuum", "structure_type": "reaction", "signals": ["pets"]},
			{"id": "cand_3", "subject": "toaster", "action": "cooks", "object": "egg", "structure_type": "experiment", "signals": ["question hook"]}
		]}`), nil
	case schema.Properties["scores"] != nil:
		if g.scores != "" {
			return json.RawMessage(g.scores), nil
		}
		return json.RawMessage(`{"scores": [
			{"id": "cand_1", "virality": 7, "feasibility": 8, "trend_alignment": 7, "reasoning": "proven format"},
			{"id": "cand_2", "virality": 9, "feasibility": 8, "trend_alignment": 9, "reasoning": "pets plus reaction"},
			{"id": "cand_3", "virality": 6, "feasibility": 9, "trend_alignment": 5, "reasoning": "weak hook"}
		]}`), nil
	case schema.Properties["prompt"] != nil:
		return json.RawMessage(`{
			"prompt": "Vertical 9:16 handheld shot of a golden retriever meeting a robot vacuum for the first time.",
			"title": "My dog meets a robot vacuum",
			"description": "He was not ready.",
			"tags": ["#dogs", "robot vacuum"]
		}`), nil
	}
	return nil, errors.New("unexpected schema")
}

type fakeBackend struct {
	mu      sync.Mutex
	err     error
	submits int
}

func (b *fakeBackend) SubmitVideoJob(context.Context, string, genai.VideoOptions) (genai.JobHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	b.submits++
	return genai.JobHandle("operations/job"), nil
}

func (b *fakeBackend) PollVideoJob(context.Context, genai.JobHandle) (genai.JobStatus, error) {
	return genai.JobStatus{Done: true, ResultURI: "https://example.test/video.mp4"}, nil
}

func (b *fakeBackend) DownloadVideo(context.Context, string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return []byte("clip" + strings.Repeat("!", b.submits)), nil
}

type fakePlatform struct {
	mu    sync.Mutex
	calls int
	meta  upload.Metadata
}

func (p *fakePlatform) Name() string { return "fake" }

func (p *fakePlatform) Upload(_ context.Context, _ []byte, meta upload.Metadata, _ models.ScheduleConfig, _ models.Credentials) (string, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.meta = meta
	return "vid_123", upload.VideoURL("vid_123"), nil
}

type appendConcat struct{}

func (appendConcat) Concat(_ context.Context, manifestPath, outputPath string) error {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}
	var out []byte
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		data, err := os.ReadFile(strings.TrimSuffix(strings.TrimPrefix(line, "file '"), "'"))
		if err != nil {
			return err
		}
		out = append(out, data...)
	}
	return os.WriteFile(outputPath, out, 0o600)
}

type harness struct {
	gen      *scriptedGenerator
	backend  *fakeBackend
	platform *fakePlatform
	stages   Stages
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := observability.Discard()
	h := &harness{gen: &scriptedGenerator{}, backend: &fakeBackend{}, platform: &fakePlatform{}}
	h.stages = Stages{
		Trends:     trends.NewSource(nil, log),
		Signals:    signals.New(h.gen, log),
		Candidates: candidates.New(h.gen, 3, log),
		Weights:    weights.New(weights.NewGenAIScorer(h.gen), log),
		Prompt:     prompt.New(h.gen, log),
		Render:     render.New(h.backend, config.RenderConfig{PollInterval: time.Millisecond, MaxPollAttempts: 3, AspectRatio: "9:16"}, log),
		Stitcher:   stitch.New(appendConcat{}, stitch.WithWorkDir(t.TempDir()), stitch.WithLogger(log)),
		Upload:     upload.New(h.platform, config.UploadConfig{TitleMaxChars: 100}, log),
	}
	return h
}

func channel() models.ChannelConfig {
	return models.ChannelConfig{ID: "pets", Niche: "pets and experiments", Region: "US"}
}

func TestRun_EndToEndWithMockTrends(t *testing.T) {
	h := newHarness(t)
	o, err := New(h.stages, WithLogger(observability.Discard()), WithMetrics(metrics.New("test")))
	require.NoError(t, err)

	res := o.Run(context.Background(), channel(), true)

	require.True(t, res.Success, res.Error)
	assert.GreaterOrEqual(t, len(res.Logs), 6)
	assert.NotEmpty(t, res.UploadID)
	assert.Equal(t, "https://www.youtube.com/watch?v=vid_123", res.VideoURL)
	assert.Equal(t, "dog", res.Winner)
	assert.Empty(t, res.Error)
	assert.Empty(t, res.FailedStage)
	assert.NotEmpty(t, res.RunID)
	assert.False(t, res.CompletedAt.Before(res.StartedAt))

	assert.Contains(t, res.Logs[0], "trends: using 4 sample records (mock forced)")
	assert.True(t, strings.HasPrefix(res.Logs[len(res.Logs)-1], "upload: uploaded vid_123"))
	assert.Equal(t, 1, h.platform.calls)
	assert.Equal(t, "My dog meets a robot vacuum", h.platform.meta.Title)

	// The sample dataset reached the extractor.
	require.NotEmpty(t, h.gen.prompts)
	assert.Contains(t, h.gen.prompts[0], "Hydraulic press crushes a bowling ball")
	assert.Contains(t, h.gen.prompts[0], "My dog actually did my homework")
	assert.Contains(t, h.gen.prompts[0], "Cooking a steak in a toaster")
	assert.Contains(t, h.gen.prompts[0], "Dog reacts to seeing its owner")
}

func TestRun_RenderFailureStopsBeforeUpload(t *testing.T) {
	h := newHarness(t)
	h.backend.err = errors.New("backend unavailable")
	o, err := New(h.stages, WithLogger(observability.Discard()))
	require.NoError(t, err)

	res := o.Run(context.Background(), channel(), true)

	assert.False(t, res.Success)
	assert.Equal(t, render.StageName, res.FailedStage)
	assert.Contains(t, res.Error, "stage render")
	assert.Contains(t, res.Error, "backend unavailable")
	assert.Empty(t, res.UploadID)
	assert.Zero(t, h.platform.calls)

	require.NotEmpty(t, res.Logs)
	assert.True(t, strings.HasPrefix(res.Logs[len(res.Logs)-1], "render: failed"))
	for _, line := range res.Logs {
		assert.False(t, strings.HasPrefix(line, "upload:"), line)
	}
}

// noWinner returns a batch with nothing selected.
type noWinner struct{}

func (noWinner) Name() string { return weights.StageName }

func (noWinner) Execute(_ context.Context, req weights.Request) (models.ScoredCandidateBatch, error) {
	return models.ScoredCandidateBatch{Candidates: req.Candidates}, nil
}

func TestRun_NoWinnerSelected(t *testing.T) {
	h := newHarness(t)
	h.stages.Weights = noWinner{}
	o, err := New(h.stages, WithLogger(observability.Discard()))
	require.NoError(t, err)

	res := o.Run(context.Background(), channel(), true)

	assert.False(t, res.Success)
	assert.Equal(t, weights.StageName, res.FailedStage)
	assert.Contains(t, res.Error, core.ErrNoWinnerSelected.Error())
	assert.Zero(t, h.platform.calls)
}

func TestRun_StageErrorKeepsKind(t *testing.T) {
	h := newHarness(t)
	h.gen.scores = `{"scores": [{"id": "cand_1", "virality": 5, "feasibility": 5, "trend_alignment": 5}]}`
	o, err := New(h.stages, WithLogger(observability.Discard()))
	require.NoError(t, err)

	res := o.Run(context.Background(), channel(), true)

	assert.False(t, res.Success)
	assert.Equal(t, weights.StageName, res.FailedStage)
	assert.Contains(t, res.Error, core.ErrGeneration.Error())
	assert.Len(t, res.Logs, 4) // trends, signals, candidates, weights failure
}

func TestRun_SegmentsAreStitched(t *testing.T) {
	h := newHarness(t)
	o, err := New(h.stages, WithSegments(3), WithLogger(observability.Discard()))
	require.NoError(t, err)

	res := o.Run(context.Background(), channel(), true)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, 3, h.backend.submits)

	var stitched bool
	for _, line := range res.Logs {
		if strings.HasPrefix(line, "stitch: merged 3 segments") {
			stitched = true
		}
	}
	assert.True(t, stitched, "logs: %v", res.Logs)
}

func TestRun_ScheduledWithPublishSlot(t *testing.T) {
	h := newHarness(t)
	clock := func() time.Time { return time.Date(2025, 3, 5, 10, 30, 0, 0, time.UTC) }
	h.stages.Upload = upload.New(h.platform, config.UploadConfig{TitleMaxChars: 100}, observability.Discard()).WithClock(clock)
	o, err := New(h.stages, WithLogger(observability.Discard()), WithClock(clock))
	require.NoError(t, err)

	ch := channel()
	ch.Schedule = models.ScheduleConfig{Active: true, PublishSlot: "0 14 * * *", Privacy: models.PrivacyPublic}
	res := o.Run(context.Background(), ch, true)

	require.True(t, res.Success, res.Error)
	assert.Contains(t, res.Logs[len(res.Logs)-1], "scheduled vid_123 for 2025-03-05T14:00:00Z")
}

func TestRun_StalePublishAtFailsBeforeGeneration(t *testing.T) {
	h := newHarness(t)
	clock := func() time.Time { return time.Date(2025, 3, 5, 10, 30, 0, 0, time.UTC) }
	o, err := New(h.stages, WithLogger(observability.Discard()), WithClock(clock))
	require.NoError(t, err)

	ch := channel()
	ch.Schedule = models.ScheduleConfig{Active: true, PublishAt: "2025-03-01T12:00:00Z", Privacy: models.PrivacyPublic}
	res := o.Run(context.Background(), ch, true)

	assert.False(t, res.Success)
	assert.Equal(t, upload.StageName, res.FailedStage)
	assert.Contains(t, res.Error, core.ErrInvalidInput.Error())
	assert.Contains(t, res.Error, "before now")
	assert.Empty(t, h.gen.prompts)
	assert.Zero(t, h.backend.submits)
	assert.Zero(t, h.platform.calls)
	require.Len(t, res.Logs, 1)
	assert.True(t, strings.HasPrefix(res.Logs[0], "upload: failed"))
}

func TestRun_RecordsHistoryAndFeedsBackSubjects(t *testing.T) {
	store, err := history.Open(":memory:", observability.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := newHarness(t)
	o, err := New(h.stages, WithLogger(observability.Discard()), WithHistory(store))
	require.NoError(t, err)

	first := o.Run(context.Background(), channel(), true)
	require.True(t, first.Success, first.Error)

	runs, err := store.Recent(context.Background(), "pets", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, first.RunID, runs[0].RunID)

	second := o.Run(context.Background(), channel(), true)
	require.True(t, second.Success, second.Error)

	// The scoring prompt of the second run lists the first winner.
	var scoringPrompts []string
	for _, p := range h.gen.prompts {
		if strings.Contains(p, "cand_1") && strings.Contains(p, "RECENT") {
			scoringPrompts = append(scoringPrompts, p)
		}
	}
	require.NotEmpty(t, scoringPrompts)
	assert.Contains(t, scoringPrompts[len(scoringPrompts)-1], "dog")
}

func TestNew_MissingStages(t *testing.T) {
	_, err := New(Stages{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signals")

	h := newHarness(t)
	h.stages.Stitcher = nil
	_, err = New(h.stages, WithSegments(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stitch")
}

func TestMergeSubjects(t *testing.T) {
	got := mergeSubjects([]string{"Dog", "press"}, []string{"dog", "", "toaster"})
	assert.Equal(t, []string{"Dog", "press", "toaster"}, got)
}
