package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/wasteflow/wasteflow/internal/apikey"
	"github.com/wasteflow/wasteflow/internal/audit"
	"github.com/wasteflow/wasteflow/internal/authz"
	"github.com/wasteflow/wasteflow/internal/billingitem"
	"github.com/wasteflow/wasteflow/internal/billingsummary"
	"github.com/wasteflow/wasteflow/internal/clock"
	"github.com/wasteflow/wasteflow/internal/collection"
	"github.com/wasteflow/wasteflow/internal/collector"
	"github.com/wasteflow/wasteflow/internal/commissionrule"
	"github.com/wasteflow/wasteflow/internal/config"
	"github.com/wasteflow/wasteflow/internal/migration"
	"github.com/wasteflow/wasteflow/internal/observability"
	"github.com/wasteflow/wasteflow/internal/organization"
	"github.com/wasteflow/wasteflow/internal/scheduler"
	"github.com/wasteflow/wasteflow/internal/server"
	"github.com/wasteflow/wasteflow/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Domain services
		organization.Module,
		audit.Module,
		authz.Module,
		apikey.Module,
		collector.Module,
		collection.Module,
		commissionrule.Module,
		billingitem.Module,
		billingsummary.Module,

		// Edges
		server.Module,
		scheduler.Module,
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
