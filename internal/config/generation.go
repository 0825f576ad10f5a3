package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// GenerationConfig controls how far ahead the engine materializes
// recurring transactions and when reminders fire.
type GenerationConfig struct {
	// HorizonDays is added to "today" to form the periodic generation horizon.
	HorizonDays int `mapstructure:"horizonDays"`
	// UpcomingReminderDays controls how many days before the due date a
	// pending transaction becomes eligible for a reminder email.
	UpcomingReminderDays int `mapstructure:"upcomingReminderDays"`
	// OverdueReminders enables reminders for transactions past their due date.
	OverdueReminders bool `mapstructure:"overdueReminders"`
}

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		HorizonDays:          30,
		UpcomingReminderDays: 3,
		OverdueReminders:     true,
	}
}

// GenerationConfigHolder exposes the current generation policy and hot
// reloads it when the backing YAML file changes.
type GenerationConfigHolder struct {
	current atomic.Value // holds GenerationConfig
}

func NewGenerationConfigHolder() (*GenerationConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("generation")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/financeiro")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FINANCEIRO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultGenerationConfig()
	v.SetDefault("generation.horizonDays", defaults.HorizonDays)
	v.SetDefault("generation.upcomingReminderDays", defaults.UpcomingReminderDays)
	v.SetDefault("generation.overdueReminders", defaults.OverdueReminders)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg GenerationConfig
	if err := v.UnmarshalKey("generation", &cfg); err != nil {
		return nil, err
	}
	if err := validateGenerationConfig(cfg); err != nil {
		return nil, err
	}

	holder := &GenerationConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated GenerationConfig
		if err := v.UnmarshalKey("generation", &updated); err != nil {
			log.Printf("[generation-config] reload failed: %v", err)
			return
		}
		if err := validateGenerationConfig(updated); err != nil {
			log.Printf("[generation-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[generation-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func NewStaticGenerationConfigHolder(cfg GenerationConfig) *GenerationConfigHolder {
	holder := &GenerationConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *GenerationConfigHolder) Get() GenerationConfig {
	return h.current.Load().(GenerationConfig)
}

func validateGenerationConfig(cfg GenerationConfig) error {
	if cfg.HorizonDays <= 0 {
		return errors.New("generation.horizonDays must be positive")
	}
	if cfg.UpcomingReminderDays < 0 {
		return errors.New("generation.upcomingReminderDays cannot be negative")
	}
	return nil
}
