package scheduler

import (
	"strings"
	"time"

	"github.com/bigapple/fleetops/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval  time.Duration
	BatchSize    int
	JobTimeout   time.Duration
	FeedDir      string
	DisabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
		BatchSize:   200,
		JobTimeout:  5 * time.Minute,
		FeedDir:     "feeds",
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
	if strings.TrimSpace(c.FeedDir) == "" {
		c.FeedDir = defaults.FeedDir
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.SchedulerInterval,
		JobTimeout:  cfg.SchedulerJobTimeout,
		FeedDir:     cfg.FeedDir,
	}.withDefaults()
}

func (c Config) isJobEnabled(name string) bool {
	for _, disabled := range c.DisabledJobs {
		if strings.EqualFold(strings.TrimSpace(disabled), name) {
			return false
		}
	}
	return true
}
