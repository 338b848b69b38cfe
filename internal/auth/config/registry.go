package config

import (
	"sort"
	"strings"

	"github.com/smallbiznis/taskhub/internal/auth/features"
	"go.uber.org/zap"
)

// AuthProviderRegistry captures parsed providers and activation state.
type AuthProviderRegistry struct {
	All     map[string]AuthProviderConfig
	Active  map[string]AuthProviderConfig
	Ignored map[string]string
}

// BuildAuthProviderRegistry builds a registry from parsed provider configs.
func BuildAuthProviderRegistry(cfgs map[string]AuthProviderConfig, log *zap.Logger) AuthProviderRegistry {
	log = log.Named("auth.providers")
	registry := AuthProviderRegistry{
		All:     make(map[string]AuthProviderConfig, len(cfgs)),
		Active:  make(map[string]AuthProviderConfig),
		Ignored: make(map[string]string),
	}

	for key, cfg := range cfgs {
		cfg = normalizeProviderConfig(key, cfg)
		registry.All[cfg.Type] = cfg
	}

	keys := make([]string, 0, len(registry.All))
	for key := range registry.All {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		cfg := registry.All[key]
		if !cfg.Enabled {
			log.Info("provider disabled", zap.String("provider", cfg.Type))
			continue
		}
		if !features.ImplementedAuthFeatures[cfg.Type] {
			registry.Ignored[cfg.Type] = "enabled in config but feature not implemented"
			log.Warn("provider ignored", zap.String("provider", cfg.Type), zap.String("reason", "not implemented"))
			continue
		}
		registry.Active[cfg.Type] = cfg
		log.Info("provider active", zap.String("provider", cfg.Type))
	}

	return registry
}

func normalizeProviderConfig(key string, cfg AuthProviderConfig) AuthProviderConfig {
	if cfg.Type == "" {
		cfg.Type = key
	}
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	if cfg.Name == "" {
		cfg.Name = cfg.Type
	}
	return cfg
}

// Names returns the active provider types in a stable order.
func (r AuthProviderRegistry) Names() []string {
	names := make([]string, 0, len(r.Active))
	for name := range r.Active {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
