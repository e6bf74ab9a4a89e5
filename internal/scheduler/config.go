package scheduler

import (
	"time"

	appconfig "github.com/cadencehq/cadence/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
		BatchSize:   50,
		JobTimeout:  30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

// ProvideConfig maps application config onto the scheduler's knobs.
func ProvideConfig(cfg appconfig.Config) Config {
	out := Config{BatchSize: cfg.SchedulerBatchSize}
	if interval, err := time.ParseDuration(cfg.SchedulerInterval); err == nil {
		out.RunInterval = interval
	}
	return out.withDefaults()
}
