package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/fixtrack/fixtrack/internal/clock"
	"github.com/fixtrack/fixtrack/internal/config"
	"github.com/fixtrack/fixtrack/internal/migration"
	"github.com/fixtrack/fixtrack/internal/observability"
	"github.com/fixtrack/fixtrack/internal/server"
	"github.com/fixtrack/fixtrack/internal/sweep"
	"github.com/fixtrack/fixtrack/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
		sweep.Module,
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
