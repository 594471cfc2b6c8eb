package service

import (
	"fmt"
	"strings"
	"time"
)

// Ranking periods are derived from the game date: every scored prediction
// contributes to the season-long ranking and to the calendar month of its
// game. Keys look like "season:2025-26" and "month:2026-01".

const (
	seasonPrefix = "season:"
	monthPrefix  = "month:"

	// seasonStartMonth is September: a hockey season spans Sep-Aug.
	seasonStartMonth = time.September
)

// SeasonKey returns the season period key containing the given date.
func SeasonKey(date time.Time) string {
	date = date.UTC()
	year := date.Year()
	if date.Month() < seasonStartMonth {
		year--
	}
	return fmt.Sprintf("%s%d-%02d", seasonPrefix, year, (year+1)%100)
}

// MonthKey returns the calendar-month period key containing the given date.
func MonthKey(date time.Time) string {
	date = date.UTC()
	return fmt.Sprintf("%s%04d-%02d", monthPrefix, date.Year(), date.Month())
}

// PeriodKeysFor returns every period a game dated at the given time
// contributes to.
func PeriodKeysFor(gameDate time.Time) []string {
	return []string{SeasonKey(gameDate), MonthKey(gameDate)}
}

// CurrentPeriods returns the periods active right now, the set the periodic
// reconciliation pass checks.
func CurrentPeriods(now time.Time) []string {
	return PeriodKeysFor(now)
}

// PeriodRange parses a period key back into its half-open [start, end) time
// window in UTC.
func PeriodRange(key string) (time.Time, time.Time, error) {
	switch {
	case strings.HasPrefix(key, seasonPrefix):
		var startYear, endYY int
		if _, err := fmt.Sscanf(strings.TrimPrefix(key, seasonPrefix), "%d-%d", &startYear, &endYY); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, key)
		}
		if endYY != (startYear+1)%100 {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, key)
		}
		start := time.Date(startYear, seasonStartMonth, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0), nil

	case strings.HasPrefix(key, monthPrefix):
		start, err := time.Parse("2006-01", strings.TrimPrefix(key, monthPrefix))
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, key)
		}
		return start, start.AddDate(0, 1, 0), nil

	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, key)
	}
}
