package scheduler

import (
	"time"
)

// Config controls scheduler intervals and job selection.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	LockTTL     time.Duration
	// EnabledJobs empty means every job runs (monolith mode).
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: 15 * time.Minute,
		JobTimeout:  10 * time.Minute,
		LockTTL:     10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
