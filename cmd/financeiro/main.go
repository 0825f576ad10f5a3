package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/plinio-cardoso/financeiro/internal/clock"
	"github.com/plinio-cardoso/financeiro/internal/config"
	"github.com/plinio-cardoso/financeiro/internal/migration"
	"github.com/plinio-cardoso/financeiro/internal/notification"
	"github.com/plinio-cardoso/financeiro/internal/observability"
	"github.com/plinio-cardoso/financeiro/internal/providers"
	"github.com/plinio-cardoso/financeiro/internal/recurrence"
	"github.com/plinio-cardoso/financeiro/internal/scheduler"
	"github.com/plinio-cardoso/financeiro/internal/server"
	"github.com/plinio-cardoso/financeiro/internal/transaction"
	"github.com/plinio-cardoso/financeiro/internal/user"
	"github.com/plinio-cardoso/financeiro/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		user.Module,
		transaction.Module,
		recurrence.Module,
		providers.Module,
		notification.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
