// Package scheduler triggers pipeline runs on cron schedules and resolves
// recurring publish slots into concrete publish times.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/models"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCron validates a cron expression.
func ValidateCron(expr string) error {
	_, err := parser.Parse(expr)
	return err
}

// NextPublishSlot returns the first time strictly after now matching the
// 5-field cron expression slot, evaluated in the IANA zone tz (UTC when
// empty). The result is RFC 3339 in UTC.
func NextPublishSlot(slot, tz string, now time.Time) (string, error) {
	loc := time.UTC
	if tz != "" {
		var err error
		if loc, err = time.LoadLocation(tz); err != nil {
			return "", fmt.Errorf("loading timezone %q: %w", tz, err)
		}
	}

	schedule, err := parser.Parse(slot)
	if err != nil {
		return "", fmt.Errorf("invalid publish slot %q: %w", slot, err)
	}
	next := schedule.Next(now.In(loc))
	if next.IsZero() {
		return "", fmt.Errorf("publish slot %q never fires", slot)
	}
	return next.UTC().Format(time.RFC3339), nil
}

// ResolveSchedule fills PublishAt from PublishSlot for active schedules. A
// literal PublishAt is kept as given.
func ResolveSchedule(sc models.ScheduleConfig, now time.Time) (models.ScheduleConfig, error) {
	if !sc.Active || sc.PublishAt != "" || sc.PublishSlot == "" {
		return sc, nil
	}
	at, err := NextPublishSlot(sc.PublishSlot, sc.Timezone, now)
	if err != nil {
		return sc, err
	}
	sc.PublishAt = at
	return sc, nil
}
