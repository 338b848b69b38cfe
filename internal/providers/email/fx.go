package email

import (
	"strings"

	"github.com/smallbiznis/taskhub/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	switch strings.ToLower(strings.TrimSpace(cfg.Email.Provider)) {
	case "smtp":
		return NewSMTP(Config{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.From,
		})
	case "noop", "none":
		return &NoOpProvider{}
	default:
		return NewLogProvider(log)
	}
}
