// Package candidates expands trend signals into candidate content concepts.
package candidates

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
const StageName = "candidates"

// DefaultCount is how many candidates are requested when none is configured.
const DefaultCount = 5

// topN bounds how many keys per signal map are shown to the model.
const topN = 8

const systemInstruction = `You are a short-form video strategist.
Combine the trend signals you are given into distinct, filmable video concepts
of under 60 seconds. Every concept is one subject performing one action on one
object, in one structure. Prefer combinations that are surprising but still
plausible to render with a text-to-video model. Do not repeat the channel's
recent subjects. Respond with JSON only.`

var responseSchema = genai.Object(map[string]*genai.Schema{
	"candidates": genai.ArrayOf(genai.Object(map[string]*genai.Schema{
		"id":             genai.String(),
		"subject":        genai.String(),
		"action":         genai.String(),
		"object":         genai.String(),
		"structure_type": genai.String(),
		"signals":        genai.ArrayOf(genai.String()),
		"rationale":      genai.String(),
	})),
})

// Request is the stage input.
type Request struct {
	Signals models.TrendSignals
	Channel models.ChannelState
}

// Generator is the CandidateGenerator stage.
type Generator struct {
	gen    genai.Generator
	count  int
	logger *slog.Logger
}

var _ core.Stage[Request, []models.CandidateTheme] = (*Generator)(nil)

// New creates a Generator that asks for count candidates.
func New(gen genai.Generator, count int, logger *slog.Logger) *Generator {
	if count < 1 {
		count = DefaultCount
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{gen: gen, count: count, logger: logger}
}

// Name implements core.Stage.
func (g *Generator) Name() string { return StageName }

// Execute asks the generator for candidates and normalizes them: ids are made
// unique and scoring fields are reset.
func (g *Generator) Execute(ctx context.Context, req Request) ([]models.CandidateTheme, error) {
	if req.Signals.Empty() {
		return nil, core.Errorf(core.ErrInvalidInput, StageName, "trend signals are empty")
	}

	out, err := genai.Decode[struct {
		Candidates []models.CandidateTheme `json:"candidates"`
	}](ctx, g.gen, g.buildPrompt(req), systemInstruction, responseSchema)
	if err != nil {
		return nil, err
	}

	cands := make([]models.CandidateTheme, 0, len(out.Candidates))
	for _, c := range out.Candidates {
		if strings.TrimSpace(c.Subject) == "" || strings.TrimSpace(c.Action) == "" {
			continue
		}
		c.TotalScore = 0
		c.Selected = false
		c.Breakdown = nil
		cands = append(cands, c)
	}
	if len(cands) == 0 {
		return nil, core.Errorf(core.ErrGeneration, StageName, "no usable candidates returned")
	}

	assignIDs(cands)
	g.logger.DebugContext(ctx, "candidates generated", slog.Int("count", len(cands)))
	return cands, nil
}

func (g *Generator) buildPrompt(req Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Propose %d video concepts.\n\n", g.count)
	if req.Channel.Niche != "" {
		fmt.Fprintf(&sb, "CHANNEL NICHE: %s\n", req.Channel.Niche)
	}
	if req.Channel.Region != "" {
		fmt.Fprintf(&sb, "AUDIENCE REGION: %s\n", req.Channel.Region)
	}
	if len(req.Channel.RecentSubjects) > 0 {
		fmt.Fprintf(&sb, "RECENT SUBJECTS (avoid): %s\n", strings.Join(req.Channel.RecentSubjects, ", "))
	}

	sb.WriteString("\nTREND SIGNALS (most frequent first):\n")
	writeSignal(&sb, "verbs", req.Signals.Verbs)
	writeSignal(&sb, "subjects", req.Signals.Subjects)
	writeSignal(&sb, "objects", req.Signals.Objects)
	writeSignal(&sb, "structures", req.Signals.Structures)
	writeSignal(&sb, "algorithm signals", req.Signals.AlgorithmSignals)
	return sb.String()
}

func writeSignal(sb *strings.Builder, label string, m map[string]int) {
	keys := models.RankedKeys(m, topN)
	if len(keys) == 0 {
		return
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s (%d)", k, m[k])
	}
	fmt.Fprintf(sb, "- %s: %s\n", label, strings.Join(parts, ", "))
}

// assignIDs replaces blank or repeated ids with cand_<position>, skipping
// positions already taken.
func assignIDs(cands []models.CandidateTheme) {
	seen := make(map[string]bool, len(cands))
	for i := range cands {
		id := strings.TrimSpace(cands[i].ID)
		if id != "" && !seen[id] {
			cands[i].ID = id
			seen[id] = true
			continue
		}
		n := i + 1
		for {
			id = fmt.Sprintf("cand_%d", n)
			if !seen[id] && !taken(cands[i+1:], id) {
				break
			}
			n++
		}
		cands[i].ID = id
		seen[id] = true
	}
}

func taken(rest []models.CandidateTheme, id string) bool {
	for _, c := range rest {
		if strings.TrimSpace(c.ID) == id {
			return true
		}
	}
	return false
}
