// Package domain contains persistence models for transactions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Status represents the payment lifecycle of a transaction. It is
// independent from the owning recurrence rule: once materialized, a
// transaction is a fully-owned, editable entity.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
)

// Direction distinguishes money leaving from money entering.
type Direction string

const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
)

// Transaction is a dated financial obligation. Standalone transactions
// have a nil RuleID; generated ones carry the id of the recurrence rule
// that produced them plus their 1-based position in that series.
type Transaction struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID      snowflake.ID      `gorm:"not null;index" json:"user_id"`
	RuleID      *snowflake.ID     `gorm:"index;uniqueIndex:ux_transaction_rule_due,priority:1" json:"rule_id,omitempty"`
	Sequence    *int              `gorm:"" json:"sequence,omitempty"`
	DueDate     time.Time         `gorm:"not null;index;uniqueIndex:ux_transaction_rule_due,priority:2" json:"due_date"`
	Status      Status            `gorm:"type:text;not null;default:'PENDING'" json:"status"`
	Title       string            `gorm:"type:text;not null" json:"title"`
	Description string            `gorm:"type:text" json:"description"`
	Amount      decimal.Decimal   `gorm:"type:numeric(12,2);not null" json:"amount"`
	Direction   Direction         `gorm:"type:text;not null" json:"direction"`
	RemindedAt  *time.Time        `gorm:"" json:"reminded_at,omitempty"`
	PaidAt      *time.Time        `gorm:"" json:"paid_at,omitempty"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "transactions" }

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusPaid
}

func (d Direction) Valid() bool {
	return d == DirectionDebit || d == DirectionCredit
}
