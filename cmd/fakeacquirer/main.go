package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fakeacquirer/internal/clock"
	"github.com/smallbiznis/fakeacquirer/internal/config"
	"github.com/smallbiznis/fakeacquirer/internal/observability"
	"github.com/smallbiznis/fakeacquirer/internal/server"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		clock.Module,
		server.Module,
	)
	app.Run()
}

// RegisterSnowflake provides the node that generates delivery ids.
func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
