package recurrence

import (
	"github.com/plinio-cardoso/financeiro/internal/recurrence/repository"
	"github.com/plinio-cardoso/financeiro/internal/recurrence/service"
	"go.uber.org/fx"
)

var Module = fx.Module("recurrence.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
