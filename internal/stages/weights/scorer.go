package weights

import (
	"context"
	"fmt"
	"strings"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/genai"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/models"
)

const systemInstruction = `You rate short-form video concepts. For each concept give three scores from 0 to 10:
- virality: how likely viewers are to watch to the end and share
- feasibility: how reliably a text-to-video model can render it in under 8 seconds per shot
- trend_alignment: how closely it follows the current trend signals and the channel niche
Penalize concepts whose subject the channel used recently. Score every concept, keyed by its id. Respond with JSON only.`

var responseSchema = genai.Object(map[string]*genai.Schema{
	"scores": genai.ArrayOf(genai.Object(map[string]*genai.Schema{
		"id":              genai.String(),
		"virality":        genai.Number(),
		"feasibility":     genai.Number(),
		"trend_alignment": genai.Number(),
		"reasoning":       genai.String(),
	})),
})

// GenAIScorer scores candidates with a structured generation call.
type GenAIScorer struct {
	gen genai.Generator
}

// NewGenAIScorer creates a GenAIScorer.
func NewGenAIScorer(gen genai.Generator) *GenAIScorer {
	return &GenAIScorer{gen: gen}
}

// Score implements Scorer.
func (s *GenAIScorer) Score(ctx context.Context, cands []models.CandidateTheme, ch models.ChannelState) (map[string]models.ScoreBreakdown, error) {
	out, err := genai.Decode[struct {
		Scores []struct {
			ID string `json:"id"`
			models.ScoreBreakdown
		} `json:"scores"`
	}](ctx, s.gen, buildPrompt(cands, ch), systemInstruction, responseSchema)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]models.ScoreBreakdown, len(out.Scores))
	for _, sc := range out.Scores {
		scores[sc.ID] = sc.ScoreBreakdown
	}
	return scores, nil
}

func buildPrompt(cands []models.CandidateTheme, ch models.ChannelState) string {
	var sb strings.Builder
	if ch.Niche != "" {
		fmt.Fprintf(&sb, "CHANNEL NICHE: %s\n", ch.Niche)
	}
	if len(ch.RecentSubjects) > 0 {
		fmt.Fprintf(&sb, "RECENT SUBJECTS: %s\n", strings.Join(ch.RecentSubjects, ", "))
	}
	sb.WriteString("\nCONCEPTS:\n")
	for _, c := range cands {
		fmt.Fprintf(&sb, "- id: %s\n  %s %s %s (%s)\n", c.ID, c.Subject, c.Action, c.Object, c.StructureType)
		if len(c.Signals) > 0 {
			fmt.Fprintf(&sb, "  signals: %s\n", strings.Join(c.Signals, ", "))
		}
	}
	return sb.String()
}
