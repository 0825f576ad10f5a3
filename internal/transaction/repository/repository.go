package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/plinio-cardoso/financeiro/internal/transaction/domain"
	"gorm.io/gorm"
)

type Repository struct{}

func NewRepository() domain.Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, db *gorm.DB, transaction *domain.Transaction) error {
	return db.WithContext(ctx).Create(transaction).Error
}

func (r *Repository) FindByID(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*domain.Transaction, error) {
	var transaction domain.Transaction
	err := db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		First(&transaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return &transaction, nil
}

func (r *Repository) List(ctx context.Context, db *gorm.DB, userID snowflake.ID, filter domain.ListFilter) ([]domain.Transaction, error) {
	stmt := db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.RuleID != nil {
		stmt = stmt.Where("rule_id = ?", *filter.RuleID)
	}
	if filter.DueFrom != nil {
		stmt = stmt.Where("due_date >= ?", *filter.DueFrom)
	}
	if filter.DueTo != nil {
		stmt = stmt.Where("due_date <= ?", *filter.DueTo)
	}
	if filter.AfterID != 0 {
		stmt = stmt.Where("id > ?", filter.AfterID)
	}
	if filter.PageSize > 0 {
		stmt = stmt.Limit(filter.PageSize)
	}

	var transactions []domain.Transaction
	if err := stmt.Order("due_date ASC, id ASC").Find(&transactions).Error; err != nil {
		return nil, err
	}
	return transactions, nil
}

func (r *Repository) Update(ctx context.Context, db *gorm.DB, transaction *domain.Transaction) error {
	return db.WithContext(ctx).Save(transaction).Error
}

func (r *Repository) Delete(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) error {
	result := db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		Delete(&domain.Transaction{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

func (r *Repository) Exists(ctx context.Context, db *gorm.DB, ruleID snowflake.ID, dueDate time.Time) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM transactions
		 WHERE rule_id = ? AND due_date = ?`,
		ruleID,
		dueDate,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) UpdatePendingByRule(ctx context.Context, db *gorm.DB, ruleID snowflake.ID, onlyFrom *time.Time, fields domain.SnapshotFields) (int64, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("rule_id = ? AND status = ?", ruleID, domain.StatusPending)
	if onlyFrom != nil {
		stmt = stmt.Where("due_date >= ?", *onlyFrom)
	}
	result := stmt.Updates(map[string]any{
		"title":       fields.Title,
		"description": fields.Description,
		"amount":      fields.Amount,
		"direction":   fields.Direction,
		"updated_at":  db.NowFunc(),
	})
	return result.RowsAffected, result.Error
}

func (r *Repository) DeletePendingByRuleFrom(ctx context.Context, db *gorm.DB, ruleID snowflake.ID, from time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Where("rule_id = ? AND status = ? AND due_date >= ?", ruleID, domain.StatusPending, from).
		Delete(&domain.Transaction{})
	return result.RowsAffected, result.Error
}

func (r *Repository) DeleteByRule(ctx context.Context, db *gorm.DB, ruleID snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).
		Where("rule_id = ?", ruleID).
		Delete(&domain.Transaction{})
	return result.RowsAffected, result.Error
}

func (r *Repository) DetachByRule(ctx context.Context, db *gorm.DB, ruleID snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("rule_id = ?", ruleID).
		Updates(map[string]any{
			"rule_id":    nil,
			"sequence":   nil,
			"updated_at": db.NowFunc(),
		})
	return result.RowsAffected, result.Error
}

func (r *Repository) ListReminderCandidates(ctx context.Context, db *gorm.DB, dueFrom *time.Time, dueBefore time.Time, limit int) ([]domain.Transaction, error) {
	query := db.WithContext(ctx).
		Where("status = ? AND reminded_at IS NULL AND due_date <= ?", domain.StatusPending, dueBefore)
	if dueFrom != nil {
		query = query.Where("due_date >= ?", *dueFrom)
	}
	var transactions []domain.Transaction
	err := query.
		Order("due_date ASC, id ASC").
		Limit(limit).
		Find(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

func (r *Repository) MarkReminded(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"reminded_at": at, "updated_at": at}).Error
}
