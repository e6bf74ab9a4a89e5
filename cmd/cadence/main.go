package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/cadencehq/cadence/internal/billing"
	"github.com/cadencehq/cadence/internal/catalog"
	"github.com/cadencehq/cadence/internal/clock"
	"github.com/cadencehq/cadence/internal/config"
	"github.com/cadencehq/cadence/internal/customer"
	"github.com/cadencehq/cadence/internal/invoice"
	"github.com/cadencehq/cadence/internal/ledger"
	"github.com/cadencehq/cadence/internal/logger"
	"github.com/cadencehq/cadence/internal/migration"
	"github.com/cadencehq/cadence/internal/obligation"
	"github.com/cadencehq/cadence/internal/period"
	"github.com/cadencehq/cadence/internal/scheduler"
	"github.com/cadencehq/cadence/internal/seed"
	"github.com/cadencehq/cadence/internal/server"
	"github.com/cadencehq/cadence/internal/tenant"
	"github.com/cadencehq/cadence/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		ledger.Module,
		tenant.Module,
		customer.Module,
		catalog.Module,
		billing.Module,
		invoice.Module,
		obligation.Module,
		period.Module,

		// Surfaces
		server.Module,
		scheduler.Module,
		seed.Module,
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
