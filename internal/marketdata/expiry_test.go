package marketdata

import (
	"testing"
	"time"
)

func TestNextWeeklyExpiryPicksNextThursday(t *testing.T) {
	// Monday 2024-01-01 is itself a holiday (New Year's Day) — exercised
	// separately below. Start from a plain Tuesday.
	tue := time.Date(2024, 1, 2, 10, 0, 0, 0, ist)
	got := NextWeeklyExpiry(tue)
	if got.Weekday() != time.Thursday {
		t.Fatalf("expected Thursday, got %s", got.Weekday())
	}
	if got.Day() != 4 {
		t.Errorf("expected Jan 4 2024, got %s", got.Format("2006-01-02"))
	}
}

func TestNextWeeklyExpiryOnThursdayRollsToNextWeek(t *testing.T) {
	thu := time.Date(2024, 1, 4, 10, 0, 0, 0, ist)
	got := NextWeeklyExpiry(thu)
	if got.Day() != 11 {
		t.Errorf("expected next Thursday Jan 11, got %s", got.Format("2006-01-02"))
	}
}

func TestNextWeeklyExpiryNeverLandsOnAHoliday(t *testing.T) {
	for day := 1; day <= 31; day++ {
		start := time.Date(2025, 12, day, 10, 0, 0, 0, ist)
		got := NextWeeklyExpiry(start)
		if got.Weekday() != time.Thursday {
			t.Fatalf("from %s: expected a Thursday, got %s (%s)", start.Format("2006-01-02"), got.Format("2006-01-02"), got.Weekday())
		}
		if isMarketHoliday(got) {
			t.Errorf("from %s: expiry landed on a holiday: %s", start.Format("2006-01-02"), got.Format("2006-01-02"))
		}
		if !got.After(start) {
			t.Errorf("from %s: expiry %s is not in the future", start.Format("2006-01-02"), got.Format("2006-01-02"))
		}
	}
}
