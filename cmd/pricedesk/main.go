package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricedesk/internal/clock"
	"github.com/smallbiznis/pricedesk/internal/config"
	"github.com/smallbiznis/pricedesk/internal/migration"
	"github.com/smallbiznis/pricedesk/internal/observability"
	"github.com/smallbiznis/pricedesk/internal/ratelimit"
	"github.com/smallbiznis/pricedesk/internal/server"
	"github.com/smallbiznis/pricedesk/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		ratelimit.Module,
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
