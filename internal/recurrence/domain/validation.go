package domain

import "strings"

// Validate checks a rule definition. Cursor fields are not inspected.
func (r *RecurrenceRule) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return ErrTitleRequired
	}
	if !r.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !r.Direction.Valid() {
		return ErrInvalidDirection
	}
	if !r.Frequency.Valid() {
		return ErrInvalidFrequency
	}
	if r.Interval < 1 {
		return ErrInvalidInterval
	}
	if r.OccurrenceLimit < 0 {
		return ErrInvalidOccurrenceLimit
	}
	if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		return ErrEndBeforeStart
	}
	return nil
}
