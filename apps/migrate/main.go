package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/taskhub/internal/clock"
	"github.com/smallbiznis/taskhub/internal/config"
	"github.com/smallbiznis/taskhub/internal/migration"
	"github.com/smallbiznis/taskhub/internal/observability"
	"github.com/smallbiznis/taskhub/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Applies the schema, seeds the bootstrap admin and exits.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		fx.Invoke(func(shutdowner fx.Shutdowner, log *zap.Logger) error {
			log.Info("migrations complete")
			return shutdowner.Shutdown()
		}),
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
