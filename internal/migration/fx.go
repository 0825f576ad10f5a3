package migration

import (
	"github.com/bwmarrin/snowflake"
	"github.com/plinio-cardoso/financeiro/internal/config"
	"github.com/plinio-cardoso/financeiro/internal/seed"
	recurrencedomain "github.com/plinio-cardoso/financeiro/internal/recurrence/domain"
	transactiondomain "github.com/plinio-cardoso/financeiro/internal/transaction/domain"
	userdomain "github.com/plinio-cardoso/financeiro/internal/user/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node) error {
		// The SQL migrations are written for postgres. Other dialects
		// (sqlite in dev, mysql) get the schema from gorm instead.
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			if err := conn.AutoMigrate(
				&userdomain.User{},
				&recurrencedomain.RecurrenceRule{},
				&transactiondomain.Transaction{},
			); err != nil {
				return err
			}
		}

		if cfg.DefaultUserID != 0 {
			return seed.EnsureDefaultUserWithID(conn, node, snowflake.ID(cfg.DefaultUserID))
		}
		return seed.EnsureDefaultUser(conn, node)
	}),
)
