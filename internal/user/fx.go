package user

import (
	"github.com/plinio-cardoso/financeiro/internal/user/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("user",
	fx.Provide(repository.NewRepository),
)
