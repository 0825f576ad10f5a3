package scheduler

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	// ReminderBatchSize bounds one reminder sweep.
	ReminderBatchSize int
	// EnabledJobs limits the scheduler to the named jobs. Empty means all.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:       time.Hour,
		JobTimeout:        2 * time.Minute,
		ReminderBatchSize: 100,
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
	if c.ReminderBatchSize <= 0 {
		c.ReminderBatchSize = defaults.ReminderBatchSize
	}
	return c
}

func ProvideConfig() Config {
	cfg := DefaultConfig()
	if raw := os.Getenv("SCHEDULER_RUN_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cfg.RunInterval = d
		}
	}
	if raw := os.Getenv("SCHEDULER_JOB_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cfg.JobTimeout = d
		}
	}
	if raw := os.Getenv("SCHEDULER_REMINDER_BATCH_SIZE"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			cfg.ReminderBatchSize = n
		}
	}
	if raw := os.Getenv("SCHEDULER_ENABLED_JOBS"); raw != "" {
		for _, job := range strings.Split(raw, ",") {
			if job = strings.TrimSpace(job); job != "" {
				cfg.EnabledJobs = append(cfg.EnabledJobs, job)
			}
		}
	}
	return cfg
}
