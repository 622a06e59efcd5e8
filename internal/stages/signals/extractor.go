// Package signals reduces performance records to frequency-based trend signals.
package signals

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/genai"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/models"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/pipeline/core"
)

// StageName identifies the stage in logs and errors.
const StageName = "signals"

const systemInstruction = `You analyze short-form video titles and tags.
For every record, decompose the content into:
- verb: the main action, lowercase infinitive ("crush", "react", "cook")
- subject: who or what performs it ("hydraulic press", "dog")
- object: what the action is done to, or "" if none
- structure: the format, one of "experiment", "reaction", "challenge", "tutorial", "comparison", "story", "compilation"
- algorithm_signals: short traits that drive watch time ("slow motion", "unexpected ending", "cute animal", "satisfying")

Return one entry per record, keyed by the record id. Respond with JSON only.`

var responseSchema = genai.Object(map[string]*genai.Schema{
	"records": genai.ArrayOf(genai.Object(map[string]*genai.Schema{
		"id":                genai.String(),
		"verb":              genai.String(),
		"subject":           genai.String(),
		"object":            genai.String(),
		"structure":         genai.String(),
		"algorithm_signals": genai.ArrayOf(genai.String()),
	})),
})

type decomposition struct {
	Records []struct {
		ID               string   `json:"id"`
		Verb             string   `json:"verb"`
		Subject          string   `json:"subject"`
		Object           string   `json:"object"`
		Structure        string   `json:"structure"`
		AlgorithmSignals []string `json:"algorithm_signals"`
	} `json:"records"`
}

// Extractor is the SignalExtractor stage.
type Extractor struct {
	gen    genai.Generator
	logger *slog.Logger
}

var _ core.Stage[[]models.PerformanceRecord, models.TrendSignals] = (*Extractor)(nil)

// New creates an Extractor.
func New(gen genai.Generator, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{gen: gen, logger: logger}
}

// Name implements core.Stage.
func (e *Extractor) Name() string { return StageName }

// Execute decomposes every record with the generator and counts the parts.
func (e *Extractor) Execute(ctx context.Context, records []models.PerformanceRecord) (models.TrendSignals, error) {
	if len(records) == 0 {
		return models.TrendSignals{}, core.Errorf(core.ErrInvalidInput, StageName, "no performance records")
	}

	out, err := genai.Decode[decomposition](ctx, e.gen, buildPrompt(records), systemInstruction, responseSchema)
	if err != nil {
		return models.TrendSignals{}, err
	}

	signals := models.NewTrendSignals()
	for _, r := range out.Records {
		count(signals.Verbs, r.Verb)
		count(signals.Subjects, r.Subject)
		count(signals.Objects, r.Object)
		count(signals.Structures, r.Structure)
		for _, s := range r.AlgorithmSignals {
			count(signals.AlgorithmSignals, s)
		}
	}
	if signals.Empty() {
		return models.TrendSignals{}, core.Errorf(core.ErrGeneration, StageName, "no signals extracted from %d records", len(records))
	}

	e.logger.DebugContext(ctx, "signals extracted",
		slog.Int("records", len(records)),
		slog.Int("verbs", len(signals.Verbs)),
		slog.Int("subjects", len(signals.Subjects)),
	)
	return signals, nil
}

func buildPrompt(records []models.PerformanceRecord) string {
	var sb strings.Builder
	sb.WriteString("Decompose these trending videos.\n\n")
	for _, r := range records {
		fmt.Fprintf(&sb, "- id: %s\n  title: %s\n", r.ID, r.Title)
		if len(r.Tags) > 0 {
			fmt.Fprintf(&sb, "  tags: %s\n", strings.Join(r.Tags, ", "))
		}
		fmt.Fprintf(&sb, "  views: %d, growth per hour: %.0f\n", r.ViewCount, r.GrowthRate)
	}
	return sb.String()
}

// count increments the normalized key. Blank keys are ignored.
func count(m map[string]int, key string) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return
	}
	m[key]++
}
