// Package models holds the entities passed between pipeline stages.
package models

import (
	"log/slog"
	"sort"
	"time"
)

// PerformanceRecord is one observed piece of content from a trend source.
type PerformanceRecord struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Tags        []string  `json:"tags"`
	ViewCount   uint64    `json:"view_count"`
	Region      string    `json:"region"`
	GrowthRate  float64   `json:"growth_rate"` // views (or votes) per hour since publish
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// TrendSignals holds frequency counts aggregated over a batch of records.
type TrendSignals struct {
	Verbs            map[string]int `json:"verbs"`
	Subjects         map[string]int `json:"subjects"`
	Objects          map[string]int `json:"objects"`
	Structures       map[string]int `json:"structures"`
	AlgorithmSignals map[string]int `json:"algorithm_signals"`
}

// NewTrendSignals returns signals with all five maps allocated.
func NewTrendSignals() TrendSignals {
	return TrendSignals{
		Verbs:            make(map[string]int),
		Subjects:         make(map[string]int),
		Objects:          make(map[string]int),
		Structures:       make(map[string]int),
		AlgorithmSignals: make(map[string]int),
	}
}

// Empty reports whether no signal was counted at all.
func (s TrendSignals) Empty() bool {
	return len(s.Verbs)+len(s.Subjects)+len(s.Objects)+len(s.Structures)+len(s.AlgorithmSignals) == 0
}

// RankedKeys returns up to n keys of m ordered by count descending, then key
// ascending. n <= 0 returns all keys.
func RankedKeys(m map[string]int, n int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if n > 0 && len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// ScoreBreakdown is the per-axis score of a candidate. Each axis is in [0, 10].
type ScoreBreakdown struct {
	Virality       float64 `json:"virality"`
	Feasibility    float64 `json:"feasibility"`
	TrendAlignment float64 `json:"trend_alignment"`
	Reasoning      string  `json:"reasoning,omitempty"`
}

// Total returns the sum of the three axes.
func (b ScoreBreakdown) Total() float64 {
	return b.Virality + b.Feasibility + b.TrendAlignment
}

// CandidateTheme is a proposed content concept.
type CandidateTheme struct {
	ID            string          `json:"id"`
	Subject       string          `json:"subject"`
	Action        string          `json:"action"`
	Object        string          `json:"object"`
	StructureType string          `json:"structure_type"`
	Signals       []string        `json:"signals"`
	Rationale     string          `json:"rationale,omitempty"`
	TotalScore    float64         `json:"total_score"`
	Selected      bool            `json:"selected"`
	Breakdown     *ScoreBreakdown `json:"score_breakdown,omitempty"`
}

// ScoredCandidateBatch is the output of the weight engine.
type ScoredCandidateBatch struct {
	Candidates []CandidateTheme `json:"candidates"`
}

// SelectedCount returns how many candidates are marked selected.
func (b ScoredCandidateBatch) SelectedCount() int {
	n := 0
	for _, c := range b.Candidates {
		if c.Selected {
			n++
		}
	}
	return n
}

// Winner returns the single selected candidate. ok is false unless exactly
// one candidate is selected.
func (b ScoredCandidateBatch) Winner() (CandidateTheme, bool) {
	if b.SelectedCount() != 1 {
		return CandidateTheme{}, false
	}
	for _, c := range b.Candidates {
		if c.Selected {
			return c, true
		}
	}
	return CandidateTheme{}, false
}

// ChannelState is what the weight engine knows about the target channel.
type ChannelState struct {
	Niche          string   `json:"niche"`
	Region         string   `json:"region"`
	RecentSubjects []string `json:"recent_subjects"`
}

// PromptOutput is the production-ready plan for one video.
type PromptOutput struct {
	CandidateID         string         `json:"candidate_id"`
	Candidate           CandidateTheme `json:"candidate"`
	Prompt              string         `json:"prompt"`
	TitleTemplate       string         `json:"title_template"`
	DescriptionTemplate string         `json:"description_template"`
	Tags                []string       `json:"tags,omitempty"`
}

// AssetStatus is the lifecycle status of a rendered video.
type AssetStatus string

const (
	AssetGenerated AssetStatus = "generated"
	AssetFailed    AssetStatus = "failed"
)

// VideoAsset is a rendered or stitched video held in memory.
type VideoAsset struct {
	CandidateID string      `json:"candidate_id"`
	Data        []byte      `json:"-"`
	MimeType    string      `json:"mime_type"`
	Status      AssetStatus `json:"status"`
	GeneratedAt time.Time   `json:"generated_at"`
	SourceURI   string      `json:"source_uri,omitempty"`
}

// Privacy levels accepted by the upload platform.
const (
	PrivacyPublic   = "public"
	PrivacyUnlisted = "unlisted"
	PrivacyPrivate  = "private"
)

// ScheduleConfig is the publish intent for one run.
type ScheduleConfig struct {
	Active bool `json:"active" yaml:"active"`
	// PublishAt is an RFC 3339 timestamp. Required when Active, unless
	// PublishSlot is set and resolved before upload.
	PublishAt string `json:"publish_at,omitempty" yaml:"publish_at"`
	Privacy   string `json:"privacy" yaml:"privacy"`
	// PublishSlot is a 5-field cron expression for recurring publish times.
	PublishSlot string `json:"publish_slot,omitempty" yaml:"publish_slot"`
	// Timezone is the IANA zone PublishSlot is evaluated in (default UTC).
	Timezone string `json:"timezone,omitempty" yaml:"timezone"`
}

// Credentials authorize uploads to the platform on behalf of a channel.
type Credentials struct {
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`
	RefreshToken string `json:"refresh_token" yaml:"refresh_token"`
}

// LogValue keeps secrets out of structured logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("client_id", c.ClientID),
		slog.Bool("has_secret", c.ClientSecret != ""),
		slog.Bool("has_refresh_token", c.RefreshToken != ""),
	)
}

// Complete reports whether all three fields are set.
func (c Credentials) Complete() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

// UploadStatus is the outcome of a publish attempt.
type UploadStatus string

const (
	UploadUploaded  UploadStatus = "uploaded"
	UploadScheduled UploadStatus = "scheduled"
	UploadFailed    UploadStatus = "failed"
)

// UploadResult is the normalized outcome of a publish attempt.
type UploadResult struct {
	Platform     string       `json:"platform"`
	RemoteID     string       `json:"remote_id"`
	RemoteURL    string       `json:"remote_url"`
	Status       UploadStatus `json:"status"`
	ScheduledFor string       `json:"scheduled_for,omitempty"`
	UploadedAt   time.Time    `json:"uploaded_at"`
}

// ChannelConfig describes one target channel for a pipeline run.
type ChannelConfig struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	Niche          string         `json:"niche" yaml:"niche"`
	Region         string         `json:"region" yaml:"region"`
	Subreddits     []string       `json:"subreddits,omitempty" yaml:"subreddits"`
	Cron           string         `json:"cron,omitempty" yaml:"cron"`
	RecentSubjects []string       `json:"recent_subjects,omitempty" yaml:"recent_subjects"`
	Schedule       ScheduleConfig `json:"schedule" yaml:"schedule"`
	Credentials    Credentials    `json:"-" yaml:"credentials"`
}

// State returns the weight-engine view of the channel.
func (c ChannelConfig) State() ChannelState {
	return ChannelState{
		Niche:          c.Niche,
		Region:         c.Region,
		RecentSubjects: append([]string(nil), c.RecentSubjects...),
	}
}

// PipelineResult is what a caller of the pipeline receives.
type PipelineResult struct {
	RunID       string    `json:"run_id"`
	ChannelID   string    `json:"channel_id"`
	Success     bool      `json:"success"`
	Logs        []string  `json:"logs"`
	VideoURL    string    `json:"video_url,omitempty"`
	UploadID    string    `json:"upload_id,omitempty"`
	Error       string    `json:"error,omitempty"`
	FailedStage string    `json:"failed_stage,omitempty"`
	Winner      string    `json:"winner,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}
