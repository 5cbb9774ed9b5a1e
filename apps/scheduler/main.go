package main

import (
	"github.com/bigapple/fleetops/internal/clock"
	"github.com/bigapple/fleetops/internal/config"
	"github.com/bigapple/fleetops/internal/fleet"
	"github.com/bigapple/fleetops/internal/importer"
	"github.com/bigapple/fleetops/internal/ledger"
	"github.com/bigapple/fleetops/internal/migration"
	"github.com/bigapple/fleetops/internal/observability"
	"github.com/bigapple/fleetops/internal/repair"
	"github.com/bigapple/fleetops/internal/scheduler"
	"github.com/bigapple/fleetops/internal/settlement"
	"github.com/bigapple/fleetops/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

// Standalone pipeline runner for deployments that keep the API and the
// scheduler on separate processes. No server module here.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		fleet.Module,
		importer.Module,
		ledger.Module,
		repair.Module,
		settlement.Module,
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
