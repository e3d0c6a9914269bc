package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingSettings are the operator-tunable settlement knobs. They are read
// on every item generation, so mutation goes through the holder only.
type BillingSettings struct {
	DefaultTaxRate    float64 `mapstructure:"defaultTaxRate"`
	TaxRounding       string  `mapstructure:"taxRounding"`
	MaxCommissionRate float64 `mapstructure:"maxCommissionRate"`
}

func DefaultBillingSettings() BillingSettings {
	return BillingSettings{
		DefaultTaxRate:    0.10,
		TaxRounding:       "FLOOR",
		MaxCommissionRate: 100,
	}
}

type BillingSettingsHolder struct {
	current atomic.Value // holds BillingSettings
}

func NewBillingSettingsHolder() (*BillingSettingsHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/wasteflow/config") // Volume-mounted config
	v.AddConfigPath("/etc/wasteflow")            // System config
	v.AddConfigPath(".")                         // Current directory (dev mode)

	v.SetEnvPrefix("WASTEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultBillingSettings()
		v.SetDefault("billing.defaultTaxRate", defaults.DefaultTaxRate)
		v.SetDefault("billing.taxRounding", defaults.TaxRounding)
		v.SetDefault("billing.maxCommissionRate", defaults.MaxCommissionRate)
	}

	var cfg BillingSettings
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingSettings(cfg); err != nil {
		return nil, err
	}

	holder := &BillingSettingsHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingSettings
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-settings] reload failed: %v", err)
			return
		}
		if err := validateBillingSettings(updated); err != nil {
			log.Printf("[billing-settings] invalid settings ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-settings] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticBillingSettingsHolder wraps fixed settings with no file
// watching. Used by tests.
func NewStaticBillingSettingsHolder(cfg BillingSettings) *BillingSettingsHolder {
	holder := &BillingSettingsHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *BillingSettingsHolder) Get() BillingSettings {
	return h.current.Load().(BillingSettings)
}

func validateBillingSettings(cfg BillingSettings) error {
	if cfg.DefaultTaxRate < 0 || cfg.DefaultTaxRate > 1 {
		return errors.New("defaultTaxRate must be a fraction between 0 and 1")
	}
	switch strings.ToUpper(strings.TrimSpace(cfg.TaxRounding)) {
	case "FLOOR", "CEIL", "ROUND":
	default:
		return errors.New("taxRounding must be FLOOR, CEIL or ROUND")
	}
	if cfg.MaxCommissionRate <= 0 || cfg.MaxCommissionRate > 100 {
		return errors.New("maxCommissionRate must be in (0, 100]")
	}
	return nil
}
