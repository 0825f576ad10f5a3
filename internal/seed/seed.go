package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	userdomain "github.com/plinio-cardoso/financeiro/internal/user/domain"
	"gorm.io/gorm"
)

const (
	defaultUserName  = "Owner"
	defaultUserEmail = "owner@financeiro.local"
)

// EnsureDefaultUser seeds the single-household owner account so the API
// works out of the box without a signup flow.
func EnsureDefaultUser(db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	return ensureUser(db, node.Generate())
}

// EnsureDefaultUserWithID seeds the owner under a fixed id, matching
// the DEFAULT_USER the API middleware falls back to.
func EnsureDefaultUserWithID(db *gorm.DB, node *snowflake.Node, id snowflake.ID) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	_ = node
	return ensureUser(db, id)
}

func ensureUser(db *gorm.DB, id snowflake.ID) error {
	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user userdomain.User
		err := tx.WithContext(ctx).
			Where("email = ?", defaultUserEmail).
			First(&user).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		user = userdomain.User{
			ID:        id,
			Name:      defaultUserName,
			Email:     defaultUserEmail,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.WithContext(ctx).Create(&user).Error
	})
}
