package period

import (
	"go.uber.org/fx"

	"github.com/cadencehq/cadence/internal/period/service"
)

var Module = fx.Module("period.service",
	fx.Provide(service.NewService),
)
