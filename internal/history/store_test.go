package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/models"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/observability"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", observability.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func run(id, channel string, success bool, winner string, started time.Time) models.PipelineResult {
	return models.PipelineResult{
		RunID:       id,
		ChannelID:   channel,
		Success:     success,
		Winner:      winner,
		Logs:        []string{"signals: extracted", "upload: done"},
		StartedAt:   started,
		CompletedAt: started.Add(time.Minute),
	}
}

func TestStore_RecordAndRecent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, run("r1", "chan-a", true, "dog", base)))
	require.NoError(t, s.Record(ctx, run("r2", "chan-b", false, "", base.Add(time.Hour))))
	require.NoError(t, s.Record(ctx, run("r3", "chan-a", true, "press", base.Add(2*time.Hour))))

	t.Run("all channels newest first", func(t *testing.T) {
		runs, err := s.Recent(ctx, "", 10)
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.Equal(t, "r3", runs[0].RunID)
		assert.Equal(t, "r1", runs[2].RunID)
	})

	t.Run("filtered and limited", func(t *testing.T) {
		runs, err := s.Recent(ctx, "chan-a", 1)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "r3", runs[0].RunID)

		res := runs[0].Result()
		assert.Equal(t, []string{"signals: extracted", "upload: done"}, res.Logs)
		assert.Equal(t, "press", res.Winner)
		assert.True(t, res.StartedAt.Equal(base.Add(2*time.Hour)))
	})
}

func TestStore_DuplicateRunID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Record(ctx, run("dup", "c", true, "x", now)))
	assert.Error(t, s.Record(ctx, run("dup", "c", true, "x", now)))
}

func TestStore_RecentSubjects(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	records := []models.PipelineResult{
		run("a", "c", true, "bowling ball", base),
		run("b", "c", true, "toaster", base.Add(time.Hour)),
		run("c", "c", false, "ignored", base.Add(2*time.Hour)),
		run("d", "c", true, "Toaster", base.Add(3*time.Hour)),
		run("e", "other", true, "dog", base.Add(4*time.Hour)),
	}
	for _, r := range records {
		require.NoError(t, s.Record(ctx, r))
	}

	subjects, err := s.RecentSubjects(ctx, "c", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"Toaster", "bowling ball"}, subjects)

	subjects, err = s.RecentSubjects(ctx, "nobody", 5)
	require.NoError(t, err)
	assert.Empty(t, subjects)
}
