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

// BillingConfig is the billing policy that operators may change without a restart.
type BillingConfig struct {
	DefaultDueDays        int           `mapstructure:"defaultDueDays"`
	MinDueDays            int           `mapstructure:"minDueDays"`
	MaxDueDays            int           `mapstructure:"maxDueDays"`
	SequenceRetryAttempts int           `mapstructure:"sequenceRetryAttempts"`
	BatchLockTTL          time.Duration `mapstructure:"batchLockTTL"`
	NotifySMS             bool          `mapstructure:"notifySms"`
	NotifyInApp           bool          `mapstructure:"notifyInApp"`
	Currency              string        `mapstructure:"currency"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		DefaultDueDays:        30,
		MinDueDays:            1,
		MaxDueDays:            90,
		SequenceRetryAttempts: 5,
		BatchLockTTL:          5 * time.Minute,
		NotifySMS:             true,
		NotifyInApp:           true,
		Currency:              "RWF",
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder returns a holder pinned to cfg.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	log = log.Named("billing.config")
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/aquabill")
	v.AddConfigPath(".")

	v.SetEnvPrefix("AQUABILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.defaultDueDays", defaults.DefaultDueDays)
	v.SetDefault("billing.minDueDays", defaults.MinDueDays)
	v.SetDefault("billing.maxDueDays", defaults.MaxDueDays)
	v.SetDefault("billing.sequenceRetryAttempts", defaults.SequenceRetryAttempts)
	v.SetDefault("billing.batchLockTTL", defaults.BatchLockTTL)
	v.SetDefault("billing.notifySms", defaults.NotifySMS)
	v.SetDefault("billing.notifyInApp", defaults.NotifyInApp)
	v.SetDefault("billing.currency", defaults.Currency)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	if h == nil {
		return DefaultBillingConfig()
	}
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.MinDueDays < 1 {
		return errors.New("billing.minDueDays must be at least 1")
	}
	if cfg.MaxDueDays < cfg.MinDueDays {
		return errors.New("billing.maxDueDays must not be below billing.minDueDays")
	}
	if cfg.DefaultDueDays < cfg.MinDueDays || cfg.DefaultDueDays > cfg.MaxDueDays {
		return errors.New("billing.defaultDueDays must fall within the due day window")
	}
	if cfg.SequenceRetryAttempts < 1 {
		return errors.New("billing.sequenceRetryAttempts must be at least 1")
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("billing.currency cannot be empty")
	}
	return nil
}
