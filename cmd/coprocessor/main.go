package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subscription-coprocessor/internal/clock"
	"github.com/smallbiznis/subscription-coprocessor/internal/command"
	"github.com/smallbiznis/subscription-coprocessor/internal/config"
	"github.com/smallbiznis/subscription-coprocessor/internal/handler"
	"github.com/smallbiznis/subscription-coprocessor/internal/observability"
	"github.com/smallbiznis/subscription-coprocessor/internal/rollup"
	"github.com/smallbiznis/subscription-coprocessor/internal/runner"
	"github.com/smallbiznis/subscription-coprocessor/internal/server"
	"github.com/smallbiznis/subscription-coprocessor/internal/subscription"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		clock.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),

		// Ledger
		subscription.Module,
		command.Module,

		// Rollup
		rollup.Module,
		handler.Module,
		runner.Module,

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
