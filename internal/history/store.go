// Package history persists pipeline run results and remembers the subjects
// each channel has already covered.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/models"
)

// Run is one persisted pipeline run.
type Run struct {
	ID            uint   `gorm:"primaryKey"`
	RunID         string `gorm:"uniqueIndex;size:36"`
	ChannelID     string `gorm:"index:idx_runs_channel_started;size:128"`
	Success       bool
	FailedStage   string
	Error         string
	WinnerSubject string
	UploadID      string
	VideoURL      string
	Logs          string    `gorm:"type:text"` // JSON array
	StartedAt     time.Time `gorm:"index:idx_runs_channel_started"`
	CompletedAt   time.Time
}

// TableName implements gorm's tabler.
func (Run) TableName() string { return "runs" }

// Result converts the row back into a PipelineResult.
func (r Run) Result() models.PipelineResult {
	var logs []string
	if r.Logs != "" {
		_ = json.Unmarshal([]byte(r.Logs), &logs)
	}
	return models.PipelineResult{
		RunID:       r.RunID,
		ChannelID:   r.ChannelID,
		Success:     r.Success,
		Logs:        logs,
		VideoURL:    r.VideoURL,
		UploadID:    r.UploadID,
		Error:       r.Error,
		FailedStage: r.FailedStage,
		Winner:      r.WinnerSubject,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}

// Store is a gorm-backed run history.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to the sqlite database at dsn and migrates the schema.
// Use ":memory:" for an ephemeral store.
func Open(dsn string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if dsn != ":memory:" {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	// Each sqlite connection is its own in-memory database.
	if dsn == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
	}
	return NewStore(db, log)
}

// NewStore wraps an existing connection and migrates the schema.
func NewStore(db *gorm.DB, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := db.AutoMigrate(&Run{}); err != nil {
		return nil, fmt.Errorf("migrating history schema: %w", err)
	}
	return &Store{db: db, logger: log}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record persists a finished run.
func (s *Store) Record(ctx context.Context, res models.PipelineResult) error {
	logs, err := json.Marshal(res.Logs)
	if err != nil {
		return fmt.Errorf("encoding logs: %w", err)
	}
	run := Run{
		RunID:         res.RunID,
		ChannelID:     res.ChannelID,
		Success:       res.Success,
		FailedStage:   res.FailedStage,
		Error:         res.Error,
		WinnerSubject: res.Winner,
		UploadID:      res.UploadID,
		VideoURL:      res.VideoURL,
		Logs:          string(logs),
		StartedAt:     res.StartedAt.UTC(),
		CompletedAt:   res.CompletedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("recording run %s: %w", res.RunID, err)
	}
	s.logger.DebugContext(ctx, "run recorded",
		slog.String("run_id", res.RunID),
		slog.String("channel_id", res.ChannelID),
		slog.Bool("success", res.Success),
	)
	return nil
}

// Recent returns up to limit runs, newest first. An empty channelID lists
// all channels.
func (s *Store) Recent(ctx context.Context, channelID string, limit int) ([]Run, error) {
	q := s.db.WithContext(ctx).Order("started_at DESC").Order("id DESC")
	if channelID != "" {
		q = q.Where("channel_id = ?", channelID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var runs []Run
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// RecentSubjects returns the winning subjects of the channel's last n
// successful runs, newest first, without duplicates.
func (s *Store) RecentSubjects(ctx context.Context, channelID string, n int) ([]string, error) {
	var subjects []string
	err := s.db.WithContext(ctx).Model(&Run{}).
		Where("channel_id = ? AND success = ? AND winner_subject <> ''", channelID, true).
		Order("started_at DESC").Order("id DESC").
		Limit(n).
		Pluck("winner_subject", &subjects).Error
	if err != nil {
		return nil, fmt.Errorf("listing recent subjects: %w", err)
	}

	seen := make(map[string]bool, len(subjects))
	out := subjects[:0]
	for _, subj := range subjects {
		key := strings.ToLower(subj)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, subj)
	}
	return out, nil
}
