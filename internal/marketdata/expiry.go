package marketdata

import "time"

// NextWeeklyExpiry returns the nearest future weekly Thursday expiry,
// rolling forward a further week when that Thursday lands on a market
// holiday. The algorithm and the two hardcoded holidays (Christmas, New
// Year's Day) are grounded on the original Supertrend strategy's
// get_weekly_expiry_date.
func NextWeeklyExpiry(now time.Time) time.Time {
	nowIST := now.In(ist)
	daysUntilThursday := (int(time.Thursday) - int(nowIST.Weekday()) + 7) % 7
	if daysUntilThursday == 0 {
		daysUntilThursday = 7
	}
	expiry := time.Date(nowIST.Year(), nowIST.Month(), nowIST.Day(), 0, 0, 0, 0, ist).AddDate(0, 0, daysUntilThursday)

	for isMarketHoliday(expiry) {
		expiry = expiry.AddDate(0, 0, 7)
	}
	return expiry
}

// isMarketHoliday reports whether the given date is one of the fixed
// holidays that force the expiry to roll forward a week: Dec 25 and Jan 1.
func isMarketHoliday(d time.Time) bool {
	return (d.Month() == time.December && d.Day() == 25) ||
		(d.Month() == time.January && d.Day() == 1)
}
