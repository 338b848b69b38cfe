package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// WorkspacePolicy carries tunables that operators can change without a restart.
type WorkspacePolicy struct {
	InvitationTTL      time.Duration `mapstructure:"invitationTTL"`
	LogoKeys           []string      `mapstructure:"logoKeys"`
	TaskTitleMaxLength int           `mapstructure:"taskTitleMaxLength"`
}

func DefaultWorkspacePolicy() WorkspacePolicy {
	return WorkspacePolicy{
		InvitationTTL: 7 * 24 * time.Hour,
		LogoKeys: []string{
			"gallery-vertical-end",
			"audio-waveform",
			"building-2",
			"briefcase",
			"layers",
			"package",
		},
		TaskTitleMaxLength: 200,
	}
}

// AllowsLogo reports whether key is one of the configured organization logos.
func (p WorkspacePolicy) AllowsLogo(key string) bool {
	for _, allowed := range p.LogoKeys {
		if allowed == key {
			return true
		}
	}
	return false
}

type PolicyHolder struct {
	current atomic.Value // holds WorkspacePolicy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(policy WorkspacePolicy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("taskhub")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/taskhub/config")
	v.AddConfigPath("/etc/taskhub")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TASKHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultWorkspacePolicy()
	v.SetDefault("workspace.invitationTTL", defaults.InvitationTTL)
	v.SetDefault("workspace.logoKeys", defaults.LogoKeys)
	v.SetDefault("workspace.taskTitleMaxLength", defaults.TaskTitleMaxLength)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var policy WorkspacePolicy
	if err := v.UnmarshalKey("workspace", &policy); err != nil {
		return nil, err
	}
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(policy)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log := zap.L().Named("config.policy")
		var updated WorkspacePolicy
		if err := v.UnmarshalKey("workspace", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validatePolicy(updated); err != nil {
			log.Warn("invalid policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PolicyHolder) Get() WorkspacePolicy {
	return h.current.Load().(WorkspacePolicy)
}

func validatePolicy(policy WorkspacePolicy) error {
	if policy.InvitationTTL <= 0 {
		return errors.New("workspace.invitationTTL must be positive")
	}
	if len(policy.LogoKeys) == 0 {
		return errors.New("workspace.logoKeys cannot be empty")
	}
	if policy.TaskTitleMaxLength <= 0 {
		return errors.New("workspace.taskTitleMaxLength must be positive")
	}
	return nil
}
