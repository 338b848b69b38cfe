package cloudmetrics

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/taskhub/internal/config"
	"go.uber.org/zap"
)

const (
	exporterPrometheusRemoteWrite = "prometheus_remote_write"
	exporterPrometheusPushgateway = "prometheus_pushgateway"
)

// Pusher ships a registry snapshot to a remote collector. It is called from
// the workspace ticker only; there is no scrape endpoint for these gauges.
type Pusher interface {
	Push(ctx context.Context, registry *prometheus.Registry) error
}

// NewPusher returns nil when pushing is off or misconfigured, which disables
// the workspace worker.
func NewPusher(cfg config.Config, logger *zap.Logger) Pusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := cfg.Cloud.Metrics
	if !m.Enabled {
		return nil
	}

	pusher, err := buildPusher(cfg)
	if err != nil {
		logger.Warn("cloud metrics disabled",
			zap.String("exporter", m.Exporter),
			zap.Error(err),
		)
		return nil
	}
	return pusher
}

func buildPusher(cfg config.Config) (Pusher, error) {
	m := cfg.Cloud.Metrics
	endpoint := strings.TrimSpace(m.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("CLOUD_METRICS_ENDPOINT is required")
	}

	switch strings.ToLower(strings.TrimSpace(m.Exporter)) {
	case exporterPrometheusRemoteWrite:
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			return nil, fmt.Errorf("invalid CLOUD_METRICS_ENDPOINT: %w", err)
		}
		return NewRemoteWritePusher(endpoint, m.AuthToken), nil
	case exporterPrometheusPushgateway:
		return NewPushgatewayPusher(endpoint, cfg.AppName, map[string]string{
			"environment": cfg.Environment,
		}), nil
	case "":
		return nil, fmt.Errorf("CLOUD_METRICS_EXPORTER is required")
	default:
		return nil, fmt.Errorf("unsupported exporter %q", m.Exporter)
	}
}
