package catalog

import (
	"go.uber.org/fx"

	"github.com/cadencehq/cadence/internal/catalog/service"
)

var Module = fx.Module("catalog.service",
	fx.Provide(service.NewService),
)
