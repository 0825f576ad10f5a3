package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var ErrUserNotFound = errors.New("user_not_found")

type User struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `json:"name"`
	Email     string       `gorm:"uniqueIndex" json:"email"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

type Repository interface {
	Insert(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id snowflake.ID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}
