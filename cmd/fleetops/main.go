package main

import (
	"github.com/bigapple/fleetops/internal/clock"
	"github.com/bigapple/fleetops/internal/config"
	"github.com/bigapple/fleetops/internal/migration"
	"github.com/bigapple/fleetops/internal/observability"
	"github.com/bigapple/fleetops/internal/scheduler"
	"github.com/bigapple/fleetops/internal/server"
	"github.com/bigapple/fleetops/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
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

		// HTTP API plus the domain modules it pulls in
		server.Module,

		// Pipeline
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
