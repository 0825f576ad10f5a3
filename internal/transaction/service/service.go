package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/plinio-cardoso/financeiro/internal/clock"
	"github.com/plinio-cardoso/financeiro/internal/transaction/domain"
	"github.com/plinio-cardoso/financeiro/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("transaction.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateTransactionRequest) (*domain.Transaction, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, domain.ErrTitleRequired
	}
	if !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if !req.Direction.Valid() {
		return nil, domain.ErrInvalidDirection
	}

	now := s.clock.Now()
	transaction := &domain.Transaction{
		ID:          s.genID.Generate(),
		UserID:      req.UserID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Amount:      req.Amount,
		Direction:   req.Direction,
		DueDate:     clock.DateOf(req.DueDate),
		Status:      domain.StatusPending,
		Metadata:    req.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, transaction); err != nil {
		return nil, err
	}
	return transaction, nil
}

func (s *Service) Get(ctx context.Context, userID, id snowflake.ID) (*domain.Transaction, error) {
	return s.repo.FindByID(ctx, s.db, userID, id)
}

func (s *Service) List(ctx context.Context, req domain.ListTransactionsRequest) (*domain.ListTransactionsResponse, error) {
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	limit := page.Limit()

	filter := domain.ListFilter{
		Status:   req.Status,
		RuleID:   req.RuleID,
		DueFrom:  req.DueFrom,
		DueTo:    req.DueTo,
		PageSize: limit + 1,
	}
	if cursor, err := pagination.DecodeCursor(page.PageToken); err == nil && cursor.ID != "" {
		if id, err := snowflake.ParseString(cursor.ID); err == nil {
			filter.AfterID = id
		}
	}

	transactions, err := s.repo.List(ctx, s.db, req.UserID, filter)
	if err != nil {
		return nil, err
	}

	transactions, pageInfo := pagination.BuildCursorPageInfo(transactions, limit, func(t domain.Transaction) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: t.ID.String()})
		return token
	})
	resp := &domain.ListTransactionsResponse{Transactions: transactions}
	if pageInfo.HasMore {
		resp.NextPageToken = pageInfo.NextPageToken
	}
	return resp, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateTransactionRequest) (*domain.Transaction, error) {
	transaction, err := s.repo.FindByID(ctx, s.db, req.UserID, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return nil, domain.ErrTitleRequired
		}
		transaction.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		transaction.Description = *req.Description
	}
	if req.Amount != nil {
		if !req.Amount.IsPositive() {
			return nil, domain.ErrInvalidAmount
		}
		transaction.Amount = *req.Amount
	}
	if req.Direction != nil {
		if !req.Direction.Valid() {
			return nil, domain.ErrInvalidDirection
		}
		transaction.Direction = *req.Direction
	}
	if req.DueDate != nil {
		transaction.DueDate = clock.DateOf(*req.DueDate)
	}
	if req.Metadata != nil {
		transaction.Metadata = *req.Metadata
	}
	transaction.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, transaction); err != nil {
		return nil, err
	}
	return transaction, nil
}

func (s *Service) Delete(ctx context.Context, userID, id snowflake.ID) error {
	return s.repo.Delete(ctx, s.db, userID, id)
}

func (s *Service) Pay(ctx context.Context, userID, id snowflake.ID, paidAt time.Time) (*domain.Transaction, error) {
	transaction, err := s.repo.FindByID(ctx, s.db, userID, id)
	if err != nil {
		return nil, err
	}
	if transaction.Status == domain.StatusPaid {
		return nil, domain.ErrAlreadyPaid
	}
	if paidAt.IsZero() {
		paidAt = s.clock.Now()
	}

	transaction.Status = domain.StatusPaid
	transaction.PaidAt = &paidAt
	transaction.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, transaction); err != nil {
		return nil, err
	}
	return transaction, nil
}

func (s *Service) Unpay(ctx context.Context, userID, id snowflake.ID) (*domain.Transaction, error) {
	transaction, err := s.repo.FindByID(ctx, s.db, userID, id)
	if err != nil {
		return nil, err
	}
	if transaction.Status != domain.StatusPaid {
		return nil, domain.ErrNotPaid
	}

	transaction.Status = domain.StatusPending
	transaction.PaidAt = nil
	transaction.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, transaction); err != nil {
		return nil, err
	}
	return transaction, nil
}
