package cloudmetrics

import (
	"context"
	"time"

	"github.com/smallbiznis/taskhub/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("cloud.metrics",
	fx.Provide(NewPusher),
	fx.Provide(NewSource),
	fx.Provide(func(cfg config.Config, pusher Pusher, source Source, logger *zap.Logger) *WorkspaceMetrics {
		if pusher == nil {
			return nil
		}
		return New(nil, pusher, source, cfg.AppVersion, logger)
	}),
	fx.Invoke(func(lc fx.Lifecycle, cfg config.Config, w *WorkspaceMetrics, logger *zap.Logger) {
		if w == nil {
			return
		}

		interval := cfg.Cloud.Metrics.PushInterval
		if interval <= 0 {
			interval = time.Minute
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				logger.Info("starting cloud metrics worker", zap.Duration("interval", interval))
				go func() {
					defer close(done)
					ticker := time.NewTicker(interval)
					defer ticker.Stop()

					w.tick(ctx)
					for {
						select {
						case <-ticker.C:
							w.tick(ctx)
						case <-ctx.Done():
							return
						}
					}
				}()
				return nil
			},
			OnStop: func(stopCtx context.Context) error {
				cancel()
				select {
				case <-done:
				case <-stopCtx.Done():
				}
				return nil
			},
		})
	}),
)
