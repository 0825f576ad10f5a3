package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/plinio-cardoso/financeiro/internal/recurrence/domain"
	"gorm.io/gorm"
)

type Repository struct{}

func NewRepository() domain.Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, db *gorm.DB, rule *domain.RecurrenceRule) error {
	return db.WithContext(ctx).Create(rule).Error
}

func (r *Repository) FindByID(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*domain.RecurrenceRule, error) {
	var rule domain.RecurrenceRule
	err := db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRuleNotFound
		}
		return nil, err
	}
	return &rule, nil
}

func (r *Repository) List(ctx context.Context, db *gorm.DB, userID snowflake.ID, filter domain.RuleListFilter) ([]domain.RecurrenceRule, error) {
	stmt := db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.ActiveOnly {
		stmt = stmt.Where("active = ?", true)
	}
	if filter.AfterID != 0 {
		stmt = stmt.Where("id > ?", filter.AfterID)
	}
	if filter.PageSize > 0 {
		stmt = stmt.Limit(filter.PageSize)
	}

	var rules []domain.RecurrenceRule
	if err := stmt.Order("id ASC").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *Repository) ListActiveIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id
		 FROM recurrence_rules
		 WHERE active = ?
		 ORDER BY id`,
		true,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *Repository) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.RecurrenceRule, error) {
	query := `SELECT *
		 FROM recurrence_rules
		 WHERE id = ?`
	// sqlite serializes writers on its own and rejects the clause.
	if tx.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}

	var rule domain.RecurrenceRule
	err := tx.WithContext(ctx).Raw(query, id).Scan(&rule).Error
	if err != nil {
		return nil, err
	}
	if rule.ID == 0 {
		return nil, domain.ErrRuleNotFound
	}
	return &rule, nil
}

func (r *Repository) Update(ctx context.Context, db *gorm.DB, rule *domain.RecurrenceRule) error {
	return db.WithContext(ctx).Save(rule).Error
}

func (r *Repository) SaveCursor(ctx context.Context, db *gorm.DB, rule *domain.RecurrenceRule) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE recurrence_rules
		 SET next_due_date = ?, generated_count = ?, active = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		rule.NextDueDate,
		rule.GeneratedCount,
		rule.Active,
		db.NowFunc(),
		rule.ID,
		rule.Version,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrCursorConflict
	}
	rule.Version++
	return nil
}

func (r *Repository) Delete(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) error {
	result := db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		Delete(&domain.RecurrenceRule{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}
