package migration

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/taskhub/internal/clock"
	"github.com/smallbiznis/taskhub/internal/config"
	"github.com/smallbiznis/taskhub/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node, clk clock.Clock, log *zap.Logger) error {
		if err := Apply(conn); err != nil {
			return err
		}
		log.Named("migration").Info("schema ready", zap.String("dialect", conn.Dialector.Name()))

		if !cfg.Bootstrap.LocalAuthEnabled || cfg.Bootstrap.AdminEmail == "" {
			return nil
		}
		return seed.EnsureAdmin(context.Background(), conn, seed.Params{
			Bootstrap: cfg.Bootstrap,
			GenID:     node,
			Clock:     clk,
			Log:       log,
		})
	}),
)
