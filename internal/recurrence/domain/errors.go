package domain

import "errors"

var (
	ErrRuleNotFound            = errors.New("recurrence_rule_not_found")
	ErrInvalidFrequency        = errors.New("invalid_frequency")
	ErrInvalidInterval         = errors.New("invalid_interval")
	ErrInvalidAmount           = errors.New("invalid_amount")
	ErrInvalidDirection        = errors.New("invalid_direction")
	ErrTitleRequired           = errors.New("title_required")
	ErrEndBeforeStart          = errors.New("end_date_before_start_date")
	ErrInvalidOccurrenceLimit  = errors.New("invalid_occurrence_limit")
	ErrInvalidPropagationScope = errors.New("invalid_propagation_scope")
	ErrInvalidDeletionMode     = errors.New("invalid_deletion_mode")

	// ErrCursorConflict means another writer advanced the rule cursor
	// between read and write. Callers retry once with fresh state.
	ErrCursorConflict = errors.New("rule_cursor_conflict")
)
