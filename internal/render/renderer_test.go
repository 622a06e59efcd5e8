package render

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/config"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/genai"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/models"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/observability"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/pipeline/core"
)

type fakeBackend struct {
	doneAfter int // polls needed before done; <0 never finishes
	pollErr   error
	polls     int
	prompts   []string
}

func (f *fakeBackend) SubmitVideoJob(_ context.Context, prompt string, opts genai.VideoOptions) (genai.JobHandle, error) {
	f.prompts = append(f.prompts, prompt)
	return genai.JobHandle("job-1"), nil
}

func (f *fakeBackend) PollVideoJob(context.Context, genai.JobHandle) (genai.JobStatus, error) {
	f.polls++
	if f.pollErr != nil {
		return genai.JobStatus{}, f.pollErr
	}
	if f.doneAfter >= 0 && f.polls >= f.doneAfter {
		return genai.JobStatus{Done: true, ResultURI: "https://files/video.mp4"}, nil
	}
	return genai.JobStatus{}, nil
}

func (f *fakeBackend) DownloadVideo(context.Context, string) ([]byte, error) {
	return []byte("mp4"), nil
}

func testConfig(attempts int) config.RenderConfig {
	return config.RenderConfig{PollInterval: time.Millisecond, MaxPollAttempts: attempts, AspectRatio: "9:16"}
}

var plan = models.PromptOutput{CandidateID: "c1", Prompt: "a press crushes a toaster"}

func TestRenderer_Success(t *testing.T) {
	backend := &fakeBackend{doneAfter: 3}
	asset, err := New(backend, testConfig(5), observability.Discard()).Execute(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, models.AssetGenerated, asset.Status)
	assert.Equal(t, "c1", asset.CandidateID)
	assert.Equal(t, []byte("mp4"), asset.Data)
	assert.Equal(t, MimeType, asset.MimeType)
	assert.False(t, asset.GeneratedAt.IsZero())
	assert.Equal(t, 3, backend.polls)
}

func TestRenderer_TimeoutAfterBoundedAttempts(t *testing.T) {
	backend := &fakeBackend{doneAfter: -1}
	_, err := New(backend, testConfig(4), nil).Execute(context.Background(), plan)

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.Equal(t, 4, backend.polls)
}

func TestRenderer_PollErrorIsNotRetried(t *testing.T) {
	boom := core.Errorf(core.ErrGeneration, "genai", "video job failed")
	backend := &fakeBackend{pollErr: boom}
	_, err := New(backend, testConfig(5), nil).Execute(context.Background(), plan)

	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 1, backend.polls)
}

func TestRenderer_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		p    models.PromptOutput
	}{
		{"empty prompt", models.PromptOutput{CandidateID: "c1", Prompt: "   "}},
		{"missing candidate", models.PromptOutput{Prompt: "p"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{}
			_, err := New(backend, testConfig(1), nil).Execute(context.Background(), tt.p)
			assert.ErrorIs(t, err, core.ErrInvalidInput)
			assert.Empty(t, backend.prompts)
		})
	}
}

func TestRenderer_RenderSegments(t *testing.T) {
	backend := &fakeBackend{doneAfter: 0}
	assets, err := New(backend, testConfig(2), nil).RenderSegments(context.Background(), plan, 3)
	require.NoError(t, err)

	require.Len(t, assets, 3)
	require.Len(t, backend.prompts, 3)
	assert.True(t, strings.Contains(backend.prompts[0], "part 1 of 3"))
	assert.True(t, strings.Contains(backend.prompts[2], "part 3 of 3"))
}

func TestRenderer_CanceledContext(t *testing.T) {
	backend := &fakeBackend{doneAfter: -1}
	cfg := config.RenderConfig{PollInterval: time.Hour, MaxPollAttempts: 10}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := New(backend, cfg, nil).Execute(ctx, plan)
	require.Error(t, err)
	assert.Less(t, backend.polls, 10)
}

func TestRenderer_CancelledWhilePollingHasKind(t *testing.T) {
	backend := &fakeBackend{doneAfter: -1}
	cfg := config.RenderConfig{PollInterval: time.Hour, MaxPollAttempts: 10}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	defer cancel()

	_, err := New(backend, cfg, nil).Execute(ctx, plan)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotNil(t, core.KindOf(err))
}
