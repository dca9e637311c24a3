package scheduler

import (
	"time"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval       time.Duration
	OutboxDrainPasses int
	BackfillBatchSize int
	PayoutPeriodDays  int
	LockTTL           time.Duration
	EnabledJobs       []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:       time.Minute,
		OutboxDrainPasses: 20,
		BackfillBatchSize: 500,
		PayoutPeriodDays:  7,
		LockTTL:           5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.OutboxDrainPasses <= 0 {
		c.OutboxDrainPasses = defaults.OutboxDrainPasses
	}
	if c.BackfillBatchSize <= 0 {
		c.BackfillBatchSize = defaults.BackfillBatchSize
	}
	if c.PayoutPeriodDays <= 0 {
		c.PayoutPeriodDays = defaults.PayoutPeriodDays
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
