package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	transactiondomain "github.com/plinio-cardoso/financeiro/internal/transaction/domain"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Frequency is the cadence of a recurrence rule. CUSTOM uses a plain
// day interval.
type Frequency string

const (
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
	FrequencyCustom  Frequency = "CUSTOM"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyMonthly, FrequencyCustom:
		return true
	}
	return false
}

// PropagationScope controls which existing instances a rule update
// rewrites.
type PropagationScope string

const (
	// PropagationScopeNone leaves existing instances untouched.
	PropagationScopeNone PropagationScope = "NONE"
	// PropagationScopeFuture rewrites pending instances due today or later.
	PropagationScopeFuture PropagationScope = "FUTURE"
	// PropagationScopeAllPending rewrites every pending instance
	// regardless of due date.
	PropagationScopeAllPending PropagationScope = "ALL_PENDING"
)

func ParsePropagationScope(raw string) (PropagationScope, error) {
	switch PropagationScope(strings.ToUpper(strings.TrimSpace(raw))) {
	case "", PropagationScopeNone:
		return PropagationScopeNone, nil
	case PropagationScopeFuture:
		return PropagationScopeFuture, nil
	case PropagationScopeAllPending:
		return PropagationScopeAllPending, nil
	}
	return "", ErrInvalidPropagationScope
}

// DeletionMode controls what happens to a rule's instances when the
// rule is deleted.
type DeletionMode string

const (
	// DeletionModeOnlyRecurrence deletes the rule and detaches every
	// instance, keeping them as standalone transactions.
	DeletionModeOnlyRecurrence DeletionMode = "ONLY_RECURRENCE"
	// DeletionModeFuture deletes pending instances due today or later,
	// then detaches the survivors.
	DeletionModeFuture DeletionMode = "FUTURE"
	// DeletionModeAll deletes the rule and every instance it generated.
	DeletionModeAll DeletionMode = "ALL"
)

func ParseDeletionMode(raw string) (DeletionMode, error) {
	switch DeletionMode(strings.ToUpper(strings.TrimSpace(raw))) {
	case "", DeletionModeOnlyRecurrence:
		return DeletionModeOnlyRecurrence, nil
	case DeletionModeFuture:
		return DeletionModeFuture, nil
	case DeletionModeAll:
		return DeletionModeAll, nil
	}
	return "", ErrInvalidDeletionMode
}

// RecurrenceRule is a template plus a cursor. The template fields are
// copied onto each generated transaction; the cursor fields
// (next_due_date, generated_count) track how far expansion has walked.
type RecurrenceRule struct {
	ID     snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID snowflake.ID `gorm:"index" json:"user_id"`

	Title       string                      `json:"title"`
	Description string                      `json:"description"`
	Amount      decimal.Decimal             `gorm:"type:numeric(12,2)" json:"amount"`
	Direction   transactiondomain.Direction `json:"direction"`

	Frequency Frequency  `json:"frequency"`
	Interval  int        `gorm:"column:interval_count" json:"interval"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`

	// OccurrenceLimit caps the total number of instances ever generated.
	// Zero means unlimited.
	OccurrenceLimit int `json:"occurrence_limit"`

	Active         bool       `json:"active"`
	NextDueDate    *time.Time `json:"next_due_date"`
	GeneratedCount int        `json:"generated_count"`

	Metadata datatypes.JSONMap `json:"metadata"`

	// Version guards the cursor against concurrent writers.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (RecurrenceRule) TableName() string {
	return "recurrence_rules"
}

// AnchorDay is the day-of-month monthly expansion clamps back to. It is
// always derived from the start date, so a clamped step does not drift.
func (r *RecurrenceRule) AnchorDay() int {
	return r.StartDate.Day()
}

// Exhausted reports whether the cursor has walked past every date the
// rule can ever produce.
func (r *RecurrenceRule) Exhausted() bool {
	if r.NextDueDate == nil {
		return true
	}
	if r.EndDate != nil && r.NextDueDate.After(*r.EndDate) {
		return true
	}
	if r.OccurrenceLimit > 0 && r.GeneratedCount >= r.OccurrenceLimit {
		return true
	}
	return false
}

// SnapshotFields returns the template fields copied onto instances.
func (r *RecurrenceRule) SnapshotFields() transactiondomain.SnapshotFields {
	return transactiondomain.SnapshotFields{
		Title:       r.Title,
		Description: r.Description,
		Amount:      r.Amount,
		Direction:   r.Direction,
	}
}
