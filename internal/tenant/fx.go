package tenant

import (
	"go.uber.org/fx"

	"github.com/cadencehq/cadence/internal/tenant/service"
)

var Module = fx.Module("tenant.service",
	fx.Provide(service.NewService),
)
