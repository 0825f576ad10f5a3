package transaction

import (
	"github.com/plinio-cardoso/financeiro/internal/transaction/repository"
	"github.com/plinio-cardoso/financeiro/internal/transaction/service"
	"go.uber.org/fx"
)

var Module = fx.Module("transaction.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
