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

// DispatchConfig tunes outbound webhook deliveries. It is re-read on every
// delivery so edits to dispatch.yml apply to tasks that have not fired yet.
type DispatchConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		Timeout:   0,
		UserAgent: "fakeacquirer-webhooks/1.0",
	}
}

type DispatchConfigHolder struct {
	current atomic.Value // holds DispatchConfig
}

// NewStaticDispatchConfigHolder returns a holder that never reloads.
func NewStaticDispatchConfigHolder(cfg DispatchConfig) *DispatchConfigHolder {
	holder := &DispatchConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewDispatchConfigHolder() (*DispatchConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("dispatch")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/fakeacquirer")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ACQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultDispatchConfig()
	v.SetDefault("dispatch.timeout", defaults.Timeout)
	v.SetDefault("dispatch.user_agent", defaults.UserAgent)

	found := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		found = false
	}

	cfg, err := readDispatchConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticDispatchConfigHolder(cfg)
	if !found {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := readDispatchConfig(v)
		if err != nil {
			zap.L().Warn("dispatch config reload ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		zap.L().Info("dispatch config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *DispatchConfigHolder) Get() DispatchConfig {
	if h == nil {
		return DefaultDispatchConfig()
	}
	cfg, ok := h.current.Load().(DispatchConfig)
	if !ok {
		return DefaultDispatchConfig()
	}
	return cfg
}

func readDispatchConfig(v *viper.Viper) (DispatchConfig, error) {
	cfg := DispatchConfig{
		Timeout:   v.GetDuration("dispatch.timeout"),
		UserAgent: strings.TrimSpace(v.GetString("dispatch.user_agent")),
	}
	if err := validateDispatchConfig(cfg); err != nil {
		return DispatchConfig{}, err
	}
	return cfg, nil
}

func validateDispatchConfig(cfg DispatchConfig) error {
	if cfg.Timeout < 0 {
		return errors.New("dispatch.timeout cannot be negative")
	}
	if cfg.UserAgent == "" {
		return errors.New("dispatch.user_agent cannot be empty")
	}
	return nil
}
