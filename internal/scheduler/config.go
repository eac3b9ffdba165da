package scheduler

import (
	"time"

	"github.com/smallbiznis/aquabill/internal/config"
)

// Config controls the relay interval and batch size.
type Config struct {
	RunInterval time.Duration
	GracePeriod time.Duration
	BatchSize   int
	JobTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: 30 * time.Second,
		GracePeriod: time.Minute,
		BatchSize:   100,
		JobTimeout:  30 * time.Second,
	}
}

// ProvideConfig maps the application relay settings onto the scheduler.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Relay.Interval,
		GracePeriod: cfg.Relay.GracePeriod,
		BatchSize:   cfg.Relay.BatchSize,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.GracePeriod < 0 {
		c.GracePeriod = defaults.GracePeriod
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
