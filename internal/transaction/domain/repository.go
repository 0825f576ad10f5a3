package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SnapshotFields are the template fields copied from a rule onto its
// instances. Bulk propagation rewrites exactly these.
type SnapshotFields struct {
	Title       string
	Description string
	Amount      decimal.Decimal
	Direction   Direction
}

// ListFilter narrows transaction listings.
type ListFilter struct {
	Status   Status
	RuleID   *snowflake.ID
	DueFrom  *time.Time
	DueTo    *time.Time
	AfterID  snowflake.ID
	PageSize int
}

// Repository is the transaction store. The (rule_id, due_date) pair is
// unique for generated rows, which is what makes generation idempotent.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, transaction *Transaction) error
	FindByID(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*Transaction, error)
	List(ctx context.Context, db *gorm.DB, userID snowflake.ID, filter ListFilter) ([]Transaction, error)
	Update(ctx context.Context, db *gorm.DB, transaction *Transaction) error
	Delete(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) error

	// Exists reports whether an instance was already materialized for the
	// rule at the given due date.
	Exists(ctx context.Context, db *gorm.DB, ruleID snowflake.ID, dueDate time.Time) (bool, error)

	// UpdatePendingByRule rewrites snapshot fields on pending instances of
	// a rule. When onlyFrom is non-nil only instances due on or after that
	// date are touched.
	UpdatePendingByRule(ctx context.Context, db *gorm.DB, ruleID snowflake.ID, onlyFrom *time.Time, fields SnapshotFields) (int64, error)

	// DeletePendingByRuleFrom removes pending instances due on or after the
	// given date. Paid or past instances survive.
	DeletePendingByRuleFrom(ctx context.Context, db *gorm.DB, ruleID snowflake.ID, from time.Time) (int64, error)

	// DeleteByRule removes every instance ever generated from the rule.
	DeleteByRule(ctx context.Context, db *gorm.DB, ruleID snowflake.ID) (int64, error)

	// DetachByRule clears the rule reference, turning the remaining
	// instances into standalone transactions.
	DetachByRule(ctx context.Context, db *gorm.DB, ruleID snowflake.ID) (int64, error)

	// ListReminderCandidates returns pending, not-yet-reminded transactions
	// due on or before dueBefore. When dueFrom is non-nil, instances due
	// before it are left out of the batch entirely.
	ListReminderCandidates(ctx context.Context, db *gorm.DB, dueFrom *time.Time, dueBefore time.Time, limit int) ([]Transaction, error)
	MarkReminded(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) error
}
