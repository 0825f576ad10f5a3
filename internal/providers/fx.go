package providers

import (
	"github.com/plinio-cardoso/financeiro/internal/providers/email"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
)
