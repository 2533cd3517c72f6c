package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/fieldpass/checkout/internal/clock"
	"github.com/fieldpass/checkout/internal/config"
	"github.com/fieldpass/checkout/internal/migration"
	"github.com/fieldpass/checkout/internal/observability"
	"github.com/fieldpass/checkout/internal/server"
	"github.com/fieldpass/checkout/pkg/db"
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
