// Package prompt turns the winning candidate into a video generation prompt
// and publish metadata.
package prompt

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
const StageName = "prompt"

const systemInstruction = `You write prompts for a text-to-video model that produces vertical 9:16 clips.
Given one video concept, return:
- prompt: a single paragraph describing the shot, subject, action, camera movement, lighting and pacing. No on-screen text.
- title: a curiosity-driven title under 70 characters
- description: two short sentences and a call to comment
- tags: 5 to 10 lowercase tags without '#'
Respond with JSON only.`

var responseSchema = genai.Object(map[string]*genai.Schema{
	"prompt":      genai.String(),
	"title":       genai.String(),
	"description": genai.String(),
	"tags":        genai.ArrayOf(genai.String()),
})

type composition struct {
	Prompt      string   `json:"prompt"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Composer is the PromptComposer stage.
type Composer struct {
	gen    genai.Generator
	logger *slog.Logger
}

var _ core.Stage[models.CandidateTheme, models.PromptOutput] = (*Composer)(nil)

// New creates a Composer.
func New(gen genai.Generator, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{gen: gen, logger: logger}
}

// Name implements core.Stage.
func (c *Composer) Name() string { return StageName }

// Execute composes the production plan. The candidate must be the selected
// winner.
func (c *Composer) Execute(ctx context.Context, cand models.CandidateTheme) (models.PromptOutput, error) {
	if !cand.Selected {
		return models.PromptOutput{}, core.Errorf(core.ErrPreconditionViolation, StageName, "candidate %q is not selected", cand.ID)
	}

	out, err := genai.Decode[composition](ctx, c.gen, buildPrompt(cand), systemInstruction, responseSchema)
	if err != nil {
		return models.PromptOutput{}, err
	}

	result := models.PromptOutput{
		CandidateID:         cand.ID,
		Candidate:           cand,
		Prompt:              strings.TrimSpace(out.Prompt),
		TitleTemplate:       strings.TrimSpace(out.Title),
		DescriptionTemplate: strings.TrimSpace(out.Description),
		Tags:                cleanTags(out.Tags),
	}
	if err := validate(result); err != nil {
		return models.PromptOutput{}, err
	}

	c.logger.DebugContext(ctx, "prompt composed",
		slog.String("candidate_id", cand.ID),
		slog.String("title", result.TitleTemplate),
	)
	return result, nil
}

func validate(p models.PromptOutput) error {
	var missing []string
	if p.Prompt == "" {
		missing = append(missing, "prompt")
	}
	if p.TitleTemplate == "" {
		missing = append(missing, "title")
	}
	if p.DescriptionTemplate == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return core.Errorf(core.ErrGeneration, StageName, "empty %s in generated plan", strings.Join(missing, ", "))
	}
	return nil
}

func buildPrompt(cand models.CandidateTheme) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CONCEPT: %s %s %s\n", cand.Subject, cand.Action, cand.Object)
	fmt.Fprintf(&sb, "STRUCTURE: %s\n", cand.StructureType)
	if len(cand.Signals) > 0 {
		fmt.Fprintf(&sb, "LEAN INTO: %s\n", strings.Join(cand.Signals, ", "))
	}
	if cand.Rationale != "" {
		fmt.Fprintf(&sb, "WHY IT WORKS: %s\n", cand.Rationale)
	}
	return sb.String()
}

func cleanTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#")))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
