package obligation

import (
	"go.uber.org/fx"

	"github.com/cadencehq/cadence/internal/obligation/service"
)

var Module = fx.Module("obligation.service",
	fx.Provide(service.NewService),
)
