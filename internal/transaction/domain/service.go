package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type CreateTransactionRequest struct {
	UserID      snowflake.ID      `json:"-"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Amount      decimal.Decimal   `json:"amount"`
	Direction   Direction         `json:"direction"`
	DueDate     time.Time         `json:"due_date"`
	Metadata    datatypes.JSONMap `json:"metadata"`
}

type UpdateTransactionRequest struct {
	UserID      snowflake.ID       `json:"-"`
	ID          snowflake.ID       `json:"-"`
	Title       *string            `json:"title"`
	Description *string            `json:"description"`
	Amount      *decimal.Decimal   `json:"amount"`
	Direction   *Direction         `json:"direction"`
	DueDate     *time.Time         `json:"due_date"`
	Metadata    *datatypes.JSONMap `json:"metadata"`
}

type ListTransactionsRequest struct {
	UserID    snowflake.ID
	Status    Status
	RuleID    *snowflake.ID
	DueFrom   *time.Time
	DueTo     *time.Time
	PageToken string
	PageSize  int
}

type ListTransactionsResponse struct {
	Transactions  []Transaction `json:"transactions"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateTransactionRequest) (*Transaction, error)
	Get(ctx context.Context, userID, id snowflake.ID) (*Transaction, error)
	List(ctx context.Context, req ListTransactionsRequest) (*ListTransactionsResponse, error)
	Update(ctx context.Context, req UpdateTransactionRequest) (*Transaction, error)
	Delete(ctx context.Context, userID, id snowflake.ID) error

	// Pay marks a pending transaction as paid at the given time.
	Pay(ctx context.Context, userID, id snowflake.ID, paidAt time.Time) (*Transaction, error)
	// Unpay reverts a paid transaction back to pending.
	Unpay(ctx context.Context, userID, id snowflake.ID) (*Transaction, error)
}
