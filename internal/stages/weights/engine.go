// Package weights scores candidates and selects exactly one winner.
//
// Scoring is delegated to a Scorer. Selection is local and deterministic: the
// candidate with the highest total wins, and on a tie the earliest candidate
// in input order wins.
package weights

import (
	"context"
	"log/slog"
	"math"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/models"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/pipeline/core"
)

// StageName identifies the stage in logs and errors.
const StageName = "weights"

// Axis bounds.
const (
	MinAxis = 0.0
	MaxAxis = 10.0
)

// Scorer rates candidates along the three axes, keyed by candidate id.
type Scorer interface {
	Score(ctx context.Context, cands []models.CandidateTheme, ch models.ChannelState) (map[string]models.ScoreBreakdown, error)
}

// Request is the stage input.
type Request struct {
	Candidates []models.CandidateTheme
	Channel    models.ChannelState
}

// Engine is the WeightEngine stage.
type Engine struct {
	scorer Scorer
	logger *slog.Logger
}

var _ core.Stage[Request, models.ScoredCandidateBatch] = (*Engine)(nil)

// New creates an Engine.
func New(scorer Scorer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{scorer: scorer, logger: logger}
}

// Name implements core.Stage.
func (e *Engine) Name() string { return StageName }

// Execute scores a copy of the candidates and marks the winner. The input
// slice is not modified.
func (e *Engine) Execute(ctx context.Context, req Request) (models.ScoredCandidateBatch, error) {
	if len(req.Candidates) == 0 {
		return models.ScoredCandidateBatch{}, core.Errorf(core.ErrInvalidInput, StageName, "candidate list is empty")
	}

	scores, err := e.scorer.Score(ctx, req.Candidates, req.Channel)
	if err != nil {
		return models.ScoredCandidateBatch{}, err
	}

	scored, err := Apply(req.Candidates, scores)
	if err != nil {
		return models.ScoredCandidateBatch{}, err
	}

	batch := models.ScoredCandidateBatch{Candidates: scored}
	if w, ok := batch.Winner(); ok {
		e.logger.InfoContext(ctx, "candidate selected",
			slog.String("candidate_id", w.ID),
			slog.Float64("total_score", w.TotalScore),
			slog.Int("candidates", len(scored)),
		)
	}
	return batch, nil
}

// Apply copies cands, attaches clamped breakdowns and totals, and selects the
// winner. Every candidate must have a score.
func Apply(cands []models.CandidateTheme, scores map[string]models.ScoreBreakdown) ([]models.CandidateTheme, error) {
	if len(cands) == 0 {
		return nil, core.Errorf(core.ErrInvalidInput, StageName, "candidate list is empty")
	}

	out := make([]models.CandidateTheme, len(cands))
	for i, c := range cands {
		b, ok := scores[c.ID]
		if !ok {
			return nil, core.Errorf(core.ErrGeneration, StageName, "no score returned for candidate %q", c.ID)
		}
		b = clampBreakdown(b)
		c.Breakdown = &b
		c.TotalScore = b.Total()
		c.Selected = false
		out[i] = c
	}

	out[SelectWinner(out)].Selected = true
	return out, nil
}

// SelectWinner returns the index of the highest TotalScore. Ties go to the
// lowest index. cands must be non-empty.
func SelectWinner(cands []models.CandidateTheme) int {
	best := 0
	for i := 1; i < len(cands); i++ {
		if cands[i].TotalScore > cands[best].TotalScore {
			best = i
		}
	}
	return best
}

func clampBreakdown(b models.ScoreBreakdown) models.ScoreBreakdown {
	b.Virality = clamp(b.Virality)
	b.Feasibility = clamp(b.Feasibility)
	b.TrendAlignment = clamp(b.TrendAlignment)
	return b
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return MinAxis
	}
	return math.Max(MinAxis, math.Min(MaxAxis, v))
}
