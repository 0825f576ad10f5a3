package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type RuleListFilter struct {
	ActiveOnly bool
	AfterID    snowflake.ID
	PageSize   int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rule *RecurrenceRule) error
	FindByID(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*RecurrenceRule, error)
	List(ctx context.Context, db *gorm.DB, userID snowflake.ID, filter RuleListFilter) ([]RecurrenceRule, error)

	// ListActiveIDs returns the ids of every active rule, across users.
	// The engine loads and locks each one in its own transaction.
	ListActiveIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error)

	// FindByIDForUpdate loads a rule under a row lock. Must run inside a
	// transaction.
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*RecurrenceRule, error)

	Update(ctx context.Context, db *gorm.DB, rule *RecurrenceRule) error

	// SaveCursor persists the cursor fields guarded by the version token.
	// Returns ErrCursorConflict when the stored version moved on.
	SaveCursor(ctx context.Context, db *gorm.DB, rule *RecurrenceRule) error

	Delete(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) error
}
