package signals

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/genai"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/models"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/pipeline/core"
)

type fakeGenerator struct {
	response string
	err      error
	prompt   string
	calls    int
}

func (f *fakeGenerator) Generate(_ context.Context, prompt, _ string, _ *genai.Schema) (json.RawMessage, error) {
	f.calls++
	f.prompt = prompt
	return json.RawMessage(f.response), f.err
}

func TestExtractor_CountsSignals(t *testing.T) {
	gen := &fakeGenerator{response: `{"records": [
		{"id": "1", "verb": "Crush", "subject": "hydraulic press", "object": "bowling ball", "structure": "experiment", "algorithm_signals": ["slow motion", "satisfying"]},
		{"id": "2", "verb": "react", "subject": "dog", "object": "", "structure": "reaction", "algorithm_signals": ["cute animal"]},
		{"id": "3", "verb": "crush", "subject": "Hydraulic Press ", "object": "phone", "structure": "experiment", "algorithm_signals": ["satisfying"]}
	]}`}

	records := []models.PerformanceRecord{{ID: "1", Title: "a", Tags: []string{"press"}}, {ID: "2", Title: "b"}, {ID: "3", Title: "c"}}
	signals, err := New(gen, nil).Execute(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 2, signals.Verbs["crush"])
	assert.Equal(t, 1, signals.Verbs["react"])
	assert.Equal(t, 2, signals.Subjects["hydraulic press"])
	assert.Equal(t, 2, signals.AlgorithmSignals["satisfying"])
	assert.NotContains(t, signals.Objects, "")
	assert.Equal(t, 2, signals.Structures["experiment"])
	assert.Contains(t, gen.prompt, "tags: press")
}

func TestExtractor_EmptyRecords(t *testing.T) {
	gen := &fakeGenerator{}
	_, err := New(gen, nil).Execute(context.Background(), nil)

	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.Zero(t, gen.calls)
}

func TestExtractor_NothingExtracted(t *testing.T) {
	gen := &fakeGenerator{response: `{"records": [{"id": "1", "verb": " ", "subject": ""}]}`}
	_, err := New(gen, nil).Execute(context.Background(), []models.PerformanceRecord{{ID: "1"}})

	assert.ErrorIs(t, err, core.ErrGeneration)
}

func TestExtractor_MalformedJSON(t *testing.T) {
	gen := &fakeGenerator{response: `{"records": "nope"}`}
	_, err := New(gen, nil).Execute(context.Background(), []models.PerformanceRecord{{ID: "1"}})

	assert.ErrorIs(t, err, core.ErrGeneration)
}
