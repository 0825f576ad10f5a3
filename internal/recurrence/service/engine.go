package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/plinio-cardoso/financeiro/internal/clock"
	"github.com/plinio-cardoso/financeiro/internal/observability/metrics"
	"github.com/plinio-cardoso/financeiro/internal/recurrence/domain"
	transactiondomain "github.com/plinio-cardoso/financeiro/internal/transaction/domain"
	"github.com/plinio-cardoso/financeiro/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ruleOutcome is what one locked walk over a single rule produced.
type ruleOutcome struct {
	created   []transactiondomain.Transaction
	exhausted bool
}

func (s *Service) GenerateAll(ctx context.Context) (*domain.GenerateResponse, error) {
	return s.Generate(ctx, domain.GenerateRequest{})
}

func (s *Service) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	horizonDays := req.HorizonDays
	if horizonDays <= 0 {
		horizonDays = s.config.Get().HorizonDays
	}
	today := clock.Today(s.clock)
	horizonEnd := today.AddDate(0, 0, horizonDays)

	var ruleIDs []snowflake.ID
	if req.RuleID != nil {
		ruleIDs = []snowflake.ID{*req.RuleID}
	} else {
		ids, err := s.repo.ListActiveIDs(ctx, s.db)
		if err != nil {
			return nil, err
		}
		ruleIDs = ids
	}

	resp := &domain.GenerateResponse{}
	var errs error
	for _, ruleID := range ruleIDs {
		outcome, err := s.generateRuleWithRetry(ctx, ruleID, req, horizonEnd)
		if err != nil {
			if errors.Is(err, domain.ErrRuleNotFound) {
				if req.RuleID != nil {
					return nil, err
				}
				continue
			}
			metrics.Scheduler().IncRuleError()
			s.log.Error("rule generation failed",
				zap.String("rule_id", ruleID.String()),
				zap.Error(err),
			)
			resp.RulesFailed++
			errs = errors.Join(errs, err)
			continue
		}

		resp.RulesProcessed++
		resp.InstancesCreated += len(outcome.created)
		resp.Created = append(resp.Created, outcome.created...)
		if outcome.exhausted {
			resp.RulesExhausted++
			metrics.Scheduler().IncRuleExhausted()
		}
	}

	metrics.Scheduler().AddRulesProcessed(resp.RulesProcessed)
	metrics.Scheduler().AddInstancesCreated(resp.InstancesCreated)

	// A single-rule request surfaces its failure. The bulk walk reports
	// partial progress and lets the next run pick up the stragglers,
	// but when no rule went through at all the store itself is the
	// likely culprit and the caller needs to hear about it.
	if errs != nil {
		if req.RuleID != nil {
			return nil, errs
		}
		if resp.RulesProcessed == 0 {
			return resp, errs
		}
	}
	return resp, nil
}

// generateRuleWithRetry absorbs one cursor conflict by reloading the
// rule and walking again. A second conflict is returned to the caller.
func (s *Service) generateRuleWithRetry(ctx context.Context, ruleID snowflake.ID, req domain.GenerateRequest, horizonEnd time.Time) (*ruleOutcome, error) {
	outcome, err := s.generateRule(ctx, ruleID, req, horizonEnd)
	if errors.Is(err, domain.ErrCursorConflict) {
		s.log.Warn("cursor conflict, retrying rule", zap.String("rule_id", ruleID.String()))
		outcome, err = s.generateRule(ctx, ruleID, req, horizonEnd)
	}
	return outcome, err
}

func (s *Service) generateRule(ctx context.Context, ruleID snowflake.ID, req domain.GenerateRequest, horizonEnd time.Time) (*ruleOutcome, error) {
	outcome := &ruleOutcome{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rule, err := s.repo.FindByIDForUpdate(ctx, tx, ruleID)
		if err != nil {
			return err
		}
		if req.UserID != 0 && rule.UserID != req.UserID {
			return domain.ErrRuleNotFound
		}
		if !rule.Active || rule.NextDueDate == nil {
			return nil
		}

		for {
			dueDate := *rule.NextDueDate
			if rule.EndDate != nil && dueDate.After(*rule.EndDate) {
				outcome.exhausted = true
				break
			}
			if rule.OccurrenceLimit > 0 && rule.GeneratedCount >= rule.OccurrenceLimit {
				outcome.exhausted = true
				break
			}
			if dueDate.After(horizonEnd) {
				break
			}

			created, err := s.materialize(ctx, tx, rule, dueDate, req.Force)
			if err != nil {
				return err
			}
			if created != nil {
				rule.GeneratedCount++
				outcome.created = append(outcome.created, *created)
			}

			nextDue := domain.NextDueDate(dueDate, rule.Frequency, rule.Interval, rule.AnchorDay())
			rule.NextDueDate = &nextDue
		}

		if outcome.exhausted {
			rule.Active = false
			rule.NextDueDate = nil
		}
		return s.repo.SaveCursor(ctx, tx, rule)
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// materialize inserts the instance for one due date. An already
// materialized date is not an error; the cursor just walks past it and
// the generated count stays put, so sequence numbers keep lining up
// after a reschedule. Force skips the existence pre-check and leaves
// deduplication to the unique (rule_id, due_date) index.
func (s *Service) materialize(ctx context.Context, tx *gorm.DB, rule *domain.RecurrenceRule, dueDate time.Time, force bool) (*transactiondomain.Transaction, error) {
	if !force {
		exists, err := s.txRepo.Exists(ctx, tx, rule.ID, dueDate)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, nil
		}
	}

	sequence := rule.GeneratedCount + 1
	now := s.clock.Now()
	instance := &transactiondomain.Transaction{
		ID:          s.genID.Generate(),
		UserID:      rule.UserID,
		RuleID:      &rule.ID,
		Sequence:    &sequence,
		Title:       rule.Title,
		Description: rule.Description,
		Amount:      rule.Amount,
		Direction:   rule.Direction,
		DueDate:     dueDate,
		Status:      transactiondomain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// The unique index on (rule_id, due_date) backstops the existence
	// check. The savepoint keeps a duplicate from poisoning the outer
	// transaction on postgres.
	err := tx.Transaction(func(inner *gorm.DB) error {
		return s.txRepo.Insert(ctx, inner, instance)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, nil
		}
		return nil, err
	}
	return instance, nil
}
