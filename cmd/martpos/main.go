package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/martpos/internal/auth"
	"github.com/smallbiznis/martpos/internal/authorization"
	"github.com/smallbiznis/martpos/internal/billing"
	"github.com/smallbiznis/martpos/internal/catalog"
	"github.com/smallbiznis/martpos/internal/clock"
	"github.com/smallbiznis/martpos/internal/config"
	"github.com/smallbiznis/martpos/internal/migration"
	"github.com/smallbiznis/martpos/internal/observability"
	"github.com/smallbiznis/martpos/internal/providers"
	"github.com/smallbiznis/martpos/internal/ratelimit"
	"github.com/smallbiznis/martpos/internal/scanner"
	"github.com/smallbiznis/martpos/internal/server"
	"github.com/smallbiznis/martpos/pkg/db"
	"github.com/smallbiznis/martpos/pkg/redisclient"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		clock.Module,
		db.Module,
		redisclient.Module,
		migration.Module,

		// Functional Domains
		authorization.Module,
		auth.Module,
		catalog.Module,
		scanner.Module,
		billing.Module,
		providers.Module,
		ratelimit.Module,

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
