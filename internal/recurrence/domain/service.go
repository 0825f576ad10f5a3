package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	transactiondomain "github.com/plinio-cardoso/financeiro/internal/transaction/domain"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type CreateRuleRequest struct {
	UserID          snowflake.ID                `json:"-"`
	Title           string                      `json:"title"`
	Description     string                      `json:"description"`
	Amount          decimal.Decimal             `json:"amount"`
	Direction       transactiondomain.Direction `json:"direction"`
	Frequency       Frequency                   `json:"frequency"`
	Interval        int                         `json:"interval"`
	StartDate       time.Time                   `json:"start_date"`
	EndDate         *time.Time                  `json:"end_date"`
	OccurrenceLimit int                         `json:"occurrence_limit"`
	Metadata        datatypes.JSONMap           `json:"metadata"`
}

type UpdateRuleRequest struct {
	UserID snowflake.ID `json:"-"`
	ID     snowflake.ID `json:"-"`

	Title           *string                      `json:"title"`
	Description     *string                      `json:"description"`
	Amount          *decimal.Decimal             `json:"amount"`
	Direction       *transactiondomain.Direction `json:"direction"`
	Frequency       *Frequency                   `json:"frequency"`
	Interval        *int                         `json:"interval"`
	StartDate       *time.Time                   `json:"start_date"`
	EndDate         *time.Time                   `json:"end_date"`
	ClearEndDate    bool                         `json:"clear_end_date"`
	OccurrenceLimit *int                         `json:"occurrence_limit"`
	Metadata        *datatypes.JSONMap           `json:"metadata"`

	// PropagationScope selects which already-generated instances pick up
	// the new template fields.
	PropagationScope PropagationScope `json:"-"`
}

type UpdateRuleResponse struct {
	Rule *RecurrenceRule `json:"rule"`
	// Rescheduled is true when a cadence change reset the cursor.
	Rescheduled bool `json:"rescheduled"`
	// PropagatedCount is how many existing instances were rewritten.
	PropagatedCount int64 `json:"propagated_count"`
}

type ListRulesRequest struct {
	UserID     snowflake.ID
	ActiveOnly bool
	PageToken  string
	PageSize   int
}

type ListRulesResponse struct {
	Rules         []RecurrenceRule `json:"rules"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

// GenerateRequest asks the engine to materialize pending instances. A
// zero HorizonDays falls back to the configured horizon. Force retries
// every due date inside the horizon even when an instance looks
// materialized already; the unique index keeps the result exact.
type GenerateRequest struct {
	UserID      snowflake.ID
	RuleID      *snowflake.ID
	HorizonDays int
	Force       bool
}

type GenerateResponse struct {
	RulesProcessed   int                             `json:"rules_processed"`
	RulesFailed      int                             `json:"rules_failed"`
	RulesExhausted   int                             `json:"rules_exhausted"`
	InstancesCreated int                             `json:"instances_created"`
	Created          []transactiondomain.Transaction `json:"created,omitempty"`
}

type DeleteRuleRequest struct {
	UserID snowflake.ID
	ID     snowflake.ID
	Mode   DeletionMode
}

type DeleteRuleResponse struct {
	InstancesDeleted  int64 `json:"instances_deleted"`
	InstancesDetached int64 `json:"instances_detached"`
}

type Service interface {
	Create(ctx context.Context, req CreateRuleRequest) (*RecurrenceRule, error)
	Get(ctx context.Context, userID, id snowflake.ID) (*RecurrenceRule, error)
	List(ctx context.Context, req ListRulesRequest) (*ListRulesResponse, error)
	Update(ctx context.Context, req UpdateRuleRequest) (*UpdateRuleResponse, error)
	Delete(ctx context.Context, req DeleteRuleRequest) (*DeleteRuleResponse, error)

	Activate(ctx context.Context, userID, id snowflake.ID) (*RecurrenceRule, error)
	Deactivate(ctx context.Context, userID, id snowflake.ID) (*RecurrenceRule, error)

	// Generate walks every active rule (or a single rule when RuleID is
	// set) and materializes due instances. Safe to call repeatedly.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// GenerateAll is the scheduler entry point: every active rule across
	// all users, default horizon.
	GenerateAll(ctx context.Context) (*GenerateResponse, error)
}
