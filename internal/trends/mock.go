package trends

import (
	"time"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/models"
)

// MockProviderName is the provider name reported for sample data.
const MockProviderName = "mock"

// SampleRecords returns the built-in dataset used when no live data is
// available. Timestamps are relative to now.
func SampleRecords(region string, now time.Time) []models.PerformanceRecord {
	if region == "" {
		region = "US"
	}
	return []models.PerformanceRecord{
		{
			ID:          "mock_001",
			Title:       "Hydraulic press crushes a bowling ball in slow motion",
			Tags:        []string{"hydraulic press", "satisfying", "slow motion"},
			ViewCount:   2_450_000,
			Region:      region,
			GrowthRate:  51_000,
			Source:      MockProviderName,
			PublishedAt: now.Add(-48 * time.Hour),
		},
		{
			ID:          "mock_002",
			Title:       "My dog actually did my homework this time",
			Tags:        []string{"dog", "funny", "homework"},
			ViewCount:   1_830_000,
			Region:      region,
			GrowthRate:  76_250,
			Source:      MockProviderName,
			PublishedAt: now.Add(-24 * time.Hour),
		},
		{
			ID:          "mock_003",
			Title:       "Cooking a steak in a toaster: does it work?",
			Tags:        []string{"cooking", "experiment", "steak", "toaster"},
			ViewCount:   960_000,
			Region:      region,
			GrowthRate:  26_667,
			Source:      MockProviderName,
			PublishedAt: now.Add(-36 * time.Hour),
		},
		{
			ID:          "mock_004",
			Title:       "Dog reacts to seeing its owner after a year away",
			Tags:        []string{"dog", "reaction", "wholesome"},
			ViewCount:   3_100_000,
			Region:      region,
			GrowthRate:  43_056,
			Source:      MockProviderName,
			PublishedAt: now.Add(-72 * time.Hour),
		},
	}
}
