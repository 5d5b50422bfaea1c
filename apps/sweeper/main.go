package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/fixtrack/fixtrack/internal/audit"
	"github.com/fixtrack/fixtrack/internal/authorization"
	"github.com/fixtrack/fixtrack/internal/clock"
	"github.com/fixtrack/fixtrack/internal/config"
	"github.com/fixtrack/fixtrack/internal/migration"
	"github.com/fixtrack/fixtrack/internal/observability"
	"github.com/fixtrack/fixtrack/internal/sweep"
	"github.com/fixtrack/fixtrack/internal/ticket"
	"github.com/fixtrack/fixtrack/internal/timer"
	"github.com/fixtrack/fixtrack/pkg/db"
	"go.uber.org/fx"
)

// Standalone sweeper for deployments that keep policy enforcement off
// the API instances.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		authorization.Module,
		audit.Module,
		ticket.Module,
		timer.Module,
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
