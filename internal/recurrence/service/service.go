package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/plinio-cardoso/financeiro/internal/clock"
	"github.com/plinio-cardoso/financeiro/internal/config"
	"github.com/plinio-cardoso/financeiro/internal/recurrence/domain"
	transactiondomain "github.com/plinio-cardoso/financeiro/internal/transaction/domain"
	"github.com/plinio-cardoso/financeiro/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Config *config.GenerationConfigHolder
	Repo   domain.Repository
	TxRepo transactiondomain.Repository
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	config *config.GenerationConfigHolder
	repo   domain.Repository
	txRepo transactiondomain.Repository
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("recurrence.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		config: p.Config,
		repo:   p.Repo,
		txRepo: p.TxRepo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRuleRequest) (*domain.RecurrenceRule, error) {
	now := s.clock.Now()
	startDate := clock.DateOf(req.StartDate)

	rule := &domain.RecurrenceRule{
		ID:              s.genID.Generate(),
		UserID:          req.UserID,
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		Amount:          req.Amount,
		Direction:       req.Direction,
		Frequency:       req.Frequency,
		Interval:        req.Interval,
		StartDate:       startDate,
		OccurrenceLimit: req.OccurrenceLimit,
		Metadata:        req.Metadata,
		Active:          true,
		NextDueDate:     &startDate,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.EndDate != nil {
		endDate := clock.DateOf(*req.EndDate)
		rule.EndDate = &endDate
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Insert(ctx, s.db, rule); err != nil {
		return nil, err
	}

	// Materialize the instances already inside the horizon so the rule
	// shows up on the calendar immediately.
	if _, err := s.Generate(ctx, domain.GenerateRequest{UserID: req.UserID, RuleID: &rule.ID}); err != nil {
		s.log.Warn("initial generation failed",
			zap.String("rule_id", rule.ID.String()),
			zap.Error(err),
		)
	}
	return s.repo.FindByID(ctx, s.db, req.UserID, rule.ID)
}

func (s *Service) Get(ctx context.Context, userID, id snowflake.ID) (*domain.RecurrenceRule, error) {
	return s.repo.FindByID(ctx, s.db, userID, id)
}

func (s *Service) List(ctx context.Context, req domain.ListRulesRequest) (*domain.ListRulesResponse, error) {
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	limit := page.Limit()

	filter := domain.RuleListFilter{
		ActiveOnly: req.ActiveOnly,
		PageSize:   limit + 1,
	}
	if cursor, err := pagination.DecodeCursor(page.PageToken); err == nil && cursor.ID != "" {
		if id, err := snowflake.ParseString(cursor.ID); err == nil {
			filter.AfterID = id
		}
	}

	rules, err := s.repo.List(ctx, s.db, req.UserID, filter)
	if err != nil {
		return nil, err
	}

	rules, pageInfo := pagination.BuildCursorPageInfo(rules, limit, func(r domain.RecurrenceRule) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: r.ID.String()})
		return token
	})
	resp := &domain.ListRulesResponse{Rules: rules}
	if pageInfo.HasMore {
		resp.NextPageToken = pageInfo.NextPageToken
	}
	return resp, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRuleRequest) (*domain.UpdateRuleResponse, error) {
	resp := &domain.UpdateRuleResponse{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rule, err := s.repo.FindByIDForUpdate(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if rule.UserID != req.UserID {
			return domain.ErrRuleNotFound
		}

		templateChanged := applyTemplateChanges(rule, req)
		cadenceChanged := applyCadenceChanges(rule, req)
		boundsChanged := applyBoundChanges(rule, req)
		if err := rule.Validate(); err != nil {
			return err
		}

		// Bound edits on a live rule leave the cursor alone; the walk
		// just stops earlier or later. Only an exhausted rule (null
		// cursor) needs a re-anchor to resume under the new bounds.
		if cadenceChanged || (boundsChanged && rule.NextDueDate == nil) {
			// Re-anchor the cursor on the new schedule. History and the
			// generated count stay as they are; re-walked dates dedupe
			// against the unique index.
			startDate := rule.StartDate
			rule.NextDueDate = &startDate
			if rule.Exhausted() {
				rule.NextDueDate = nil
				rule.Active = false
			} else {
				rule.Active = true
			}
			// Invalidate any in-flight cursor save that read the old schedule.
			rule.Version++
			resp.Rescheduled = true
		}

		rule.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, rule); err != nil {
			return err
		}

		if templateChanged && req.PropagationScope != domain.PropagationScopeNone {
			var onlyFrom *time.Time
			if req.PropagationScope == domain.PropagationScopeFuture {
				today := clock.Today(s.clock)
				onlyFrom = &today
			}
			count, err := s.txRepo.UpdatePendingByRule(ctx, tx, rule.ID, onlyFrom, rule.SnapshotFields())
			if err != nil {
				return err
			}
			resp.PropagatedCount = count
		}

		resp.Rule = rule
		return nil
	})
	if err != nil {
		return nil, err
	}

	if resp.Rescheduled {
		if _, err := s.Generate(ctx, domain.GenerateRequest{UserID: req.UserID, RuleID: &req.ID}); err != nil {
			s.log.Warn("post-reconcile generation failed",
				zap.String("rule_id", req.ID.String()),
				zap.Error(err),
			)
		}
		rule, err := s.repo.FindByID(ctx, s.db, req.UserID, req.ID)
		if err != nil {
			return nil, err
		}
		resp.Rule = rule
	}
	return resp, nil
}

func (s *Service) Delete(ctx context.Context, req domain.DeleteRuleRequest) (*domain.DeleteRuleResponse, error) {
	resp := &domain.DeleteRuleResponse{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rule, err := s.repo.FindByIDForUpdate(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if rule.UserID != req.UserID {
			return domain.ErrRuleNotFound
		}

		switch req.Mode {
		case domain.DeletionModeAll:
			deleted, err := s.txRepo.DeleteByRule(ctx, tx, rule.ID)
			if err != nil {
				return err
			}
			resp.InstancesDeleted = deleted

		case domain.DeletionModeFuture:
			deleted, err := s.txRepo.DeletePendingByRuleFrom(ctx, tx, rule.ID, clock.Today(s.clock))
			if err != nil {
				return err
			}
			resp.InstancesDeleted = deleted
			detached, err := s.txRepo.DetachByRule(ctx, tx, rule.ID)
			if err != nil {
				return err
			}
			resp.InstancesDetached = detached

		case domain.DeletionModeOnlyRecurrence:
			detached, err := s.txRepo.DetachByRule(ctx, tx, rule.ID)
			if err != nil {
				return err
			}
			resp.InstancesDetached = detached

		default:
			return domain.ErrInvalidDeletionMode
		}

		return s.repo.Delete(ctx, tx, req.UserID, req.ID)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Service) Activate(ctx context.Context, userID, id snowflake.ID) (*domain.RecurrenceRule, error) {
	rule, err := s.repo.FindByID(ctx, s.db, userID, id)
	if err != nil {
		return nil, err
	}
	if rule.Active {
		return rule, nil
	}
	if rule.Exhausted() {
		// Nothing left to generate; flipping the flag back on would only
		// make the scheduler reload a dead rule.
		s.log.Info("refusing to activate exhausted rule", zap.String("rule_id", rule.ID.String()))
		return rule, nil
	}

	rule.Active = true
	rule.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *Service) Deactivate(ctx context.Context, userID, id snowflake.ID) (*domain.RecurrenceRule, error) {
	rule, err := s.repo.FindByID(ctx, s.db, userID, id)
	if err != nil {
		return nil, err
	}
	if !rule.Active {
		return rule, nil
	}

	rule.Active = false
	rule.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func applyTemplateChanges(rule *domain.RecurrenceRule, req domain.UpdateRuleRequest) bool {
	changed := false
	if req.Title != nil && strings.TrimSpace(*req.Title) != rule.Title {
		rule.Title = strings.TrimSpace(*req.Title)
		changed = true
	}
	if req.Description != nil && *req.Description != rule.Description {
		rule.Description = *req.Description
		changed = true
	}
	if req.Amount != nil && !req.Amount.Equal(rule.Amount) {
		rule.Amount = *req.Amount
		changed = true
	}
	if req.Direction != nil && *req.Direction != rule.Direction {
		rule.Direction = *req.Direction
		changed = true
	}
	if req.Metadata != nil {
		rule.Metadata = *req.Metadata
	}
	return changed
}

func applyCadenceChanges(rule *domain.RecurrenceRule, req domain.UpdateRuleRequest) bool {
	changed := false
	if req.Frequency != nil && *req.Frequency != rule.Frequency {
		rule.Frequency = *req.Frequency
		changed = true
	}
	if req.Interval != nil && *req.Interval != rule.Interval {
		rule.Interval = *req.Interval
		changed = true
	}
	if req.StartDate != nil {
		startDate := clock.DateOf(*req.StartDate)
		if !startDate.Equal(rule.StartDate) {
			rule.StartDate = startDate
			changed = true
		}
	}
	return changed
}

func applyBoundChanges(rule *domain.RecurrenceRule, req domain.UpdateRuleRequest) bool {
	changed := false
	if req.ClearEndDate {
		if rule.EndDate != nil {
			rule.EndDate = nil
			changed = true
		}
	} else if req.EndDate != nil {
		endDate := clock.DateOf(*req.EndDate)
		if rule.EndDate == nil || !endDate.Equal(*rule.EndDate) {
			rule.EndDate = &endDate
			changed = true
		}
	}
	if req.OccurrenceLimit != nil && *req.OccurrenceLimit != rule.OccurrenceLimit {
		rule.OccurrenceLimit = *req.OccurrenceLimit
		changed = true
	}
	return changed
}
