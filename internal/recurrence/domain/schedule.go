package domain

import "time"

// NextDueDate advances a due date one step. Weekly steps are 7*interval
// days and custom steps are interval days. Monthly steps move interval
// whole months and clamp to the last day of the target month when the
// anchor day does not exist there; because the clamp re-derives from
// anchorDay each step, a rule anchored on the 31st returns to the 31st
// after passing through a short month (Jan 31, Feb 29, Mar 31).
func NextDueDate(current time.Time, frequency Frequency, interval int, anchorDay int) time.Time {
	switch frequency {
	case FrequencyWeekly:
		return current.AddDate(0, 0, 7*interval)
	case FrequencyMonthly:
		year, month, _ := current.Date()
		firstOfTarget := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, interval, 0)
		day := anchorDay
		if last := lastDayOfMonth(firstOfTarget.Year(), firstOfTarget.Month()); day > last {
			day = last
		}
		return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, time.UTC)
	default:
		return current.AddDate(0, 0, interval)
	}
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
