package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// CommissionConfig carries the platform-level commission defaults. The
// category overrides live in the database; this file-backed config only
// supplies the platform fallback rate and rounding precision.
type CommissionConfig struct {
	DefaultPercent string `mapstructure:"defaultPercent"`
	RoundPlaces    int32  `mapstructure:"roundPlaces"`
}

func DefaultCommissionConfig() CommissionConfig {
	return CommissionConfig{
		DefaultPercent: "15.00",
		RoundPlaces:    2,
	}
}

// DefaultRate parses the configured default percent. Invalid values fall
// back to the shipped default so a bad config file never zeroes commissions.
func (c CommissionConfig) DefaultRate() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.DefaultPercent))
	if err != nil || rate.IsNegative() {
		rate, _ = decimal.NewFromString(DefaultCommissionConfig().DefaultPercent)
	}
	return rate
}

// CommissionConfigHolder exposes the current commission config and hot
// reloads it when the backing file changes.
type CommissionConfigHolder struct {
	current atomic.Value // holds CommissionConfig
}

func NewCommissionConfigHolder() (*CommissionConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("commission")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/kormo")
	v.AddConfigPath(".")

	v.SetEnvPrefix("KORMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultCommissionConfig()
	v.SetDefault("commission.defaultPercent", defaults.DefaultPercent)
	v.SetDefault("commission.roundPlaces", defaults.RoundPlaces)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg CommissionConfig
	if err := v.UnmarshalKey("commission", &cfg); err != nil {
		return nil, err
	}
	if err := validateCommissionConfig(cfg); err != nil {
		return nil, err
	}

	holder := &CommissionConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CommissionConfig
		if err := v.UnmarshalKey("commission", &updated); err != nil {
			log.Printf("[commission-config] reload failed: %v", err)
			return
		}
		if err := validateCommissionConfig(updated); err != nil {
			log.Printf("[commission-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
	})

	return holder, nil
}

// NewStaticCommissionConfigHolder builds a holder with a fixed config.
// Intended for tests.
func NewStaticCommissionConfigHolder(cfg CommissionConfig) *CommissionConfigHolder {
	holder := &CommissionConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *CommissionConfigHolder) Current() CommissionConfig {
	if h == nil {
		return DefaultCommissionConfig()
	}
	cfg, ok := h.current.Load().(CommissionConfig)
	if !ok {
		return DefaultCommissionConfig()
	}
	return cfg
}

func validateCommissionConfig(cfg CommissionConfig) error {
	rate, err := decimal.NewFromString(strings.TrimSpace(cfg.DefaultPercent))
	if err != nil {
		return errors.New("commission defaultPercent is not a decimal")
	}
	hundred := decimal.NewFromInt(100)
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return errors.New("commission defaultPercent out of range")
	}
	if cfg.RoundPlaces < 0 || cfg.RoundPlaces > 4 {
		return errors.New("commission roundPlaces out of range")
	}
	return nil
}
