package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Reminder ReminderConfig `json:"reminder"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
	Storage  StorageConfig  `json:"storage,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ReminderConfig controls the periodic reminder.
//
// All durations are Go duration strings (e.g. "30s", "10m").
type ReminderConfig struct {
	// Interval between reminder ticks. Must be positive; the first
	// reminder fires one full interval after activation.
	Interval string `json:"interval"`

	// RemindOnInactivity also notifies when nothing is clocked in.
	RemindOnInactivity bool `json:"remind_on_inactivity"`

	Title string `json:"title"`

	// Format is the reminder body template. %h expands to the current
	// task label, %c to the clocked minutes. Unknown %<char> sequences
	// are kept literally.
	Format string `json:"format"`

	// EmptyText is the body used when nothing is clocked in. It must not
	// reference directives that require an active task.
	EmptyText string `json:"empty_text"`

	Icons IconConfig `json:"icons"`

	// RatePerMinute caps notification bursts across all sinks.
	// 0 disables the limiter.
	RatePerMinute int `json:"rate_per_minute,omitempty"`
}

type IconConfig struct {
	Enabled  bool   `json:"enabled"`
	Active   string `json:"active,omitempty"`
	Inactive string `json:"inactive,omitempty"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
	ChatID  int64  `json:"chat_id,omitempty"`
}

// StorageConfig controls the persistence layer.
// If Driver is empty or "none", storage is disabled and clock sessions
// live in memory only.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// ParseDurationField parses a Go duration string from the config file
// (e.g. "30s", "10m"). An empty value means "unset" and parses to zero;
// negative durations are rejected. path names the field in error messages.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// Default returns the built-in configuration, used for fields the file
// leaves empty.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "INFO", Console: true},
		Reminder: ReminderConfig{
			Interval:           "10m",
			RemindOnInactivity: true,
			Title:              "Clocked task",
			Format:             "You spent %c minutes on %h",
			EmptyText:          "No task is being clocked now!",
		},
		Storage: StorageConfig{Driver: "sqlite", Path: "./clocknag.db"},
	}
}

// Normalize fills empty fields from Default().
func (c *Config) Normalize() {
	def := Default()
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = def.Logging.Level
	}
	if strings.TrimSpace(c.Reminder.Interval) == "" {
		c.Reminder.Interval = def.Reminder.Interval
	}
	if strings.TrimSpace(c.Reminder.Title) == "" {
		c.Reminder.Title = def.Reminder.Title
	}
	if strings.TrimSpace(c.Reminder.Format) == "" {
		c.Reminder.Format = def.Reminder.Format
	}
	if strings.TrimSpace(c.Reminder.EmptyText) == "" {
		c.Reminder.EmptyText = def.Reminder.EmptyText
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage = def.Storage
	}
}

// Validate rejects configs that cannot be applied. The reminder interval
// is checked again at activation time; validating here keeps a broken
// reload from being published at all.
func (c *Config) Validate() error {
	iv, err := ParseDurationField("reminder.interval", c.Reminder.Interval)
	if err != nil {
		return err
	}
	if iv <= 0 {
		return errors.New("reminder.interval: must be a positive duration")
	}
	if c.Reminder.RatePerMinute < 0 {
		return errors.New("reminder.rate_per_minute: must be >= 0")
	}
	if c.Telegram.Enabled {
		if strings.TrimSpace(c.Telegram.Token) == "" {
			return errors.New("telegram.token: required when telegram.enabled")
		}
		if c.Telegram.ChatID == 0 {
			return errors.New("telegram.chat_id: required when telegram.enabled")
		}
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	return nil
}

// Interval returns the parsed reminder interval.
// Call only after Validate().
func (c *Config) Interval() time.Duration {
	d, err := ParseDurationField("reminder.interval", c.Reminder.Interval)
	if err != nil {
		return 0
	}
	return d
}

func (c *Config) String() string {
	return fmt.Sprintf("reminder{interval=%s inactivity=%t} telegram{enabled=%t} storage{driver=%s}",
		c.Reminder.Interval, c.Reminder.RemindOnInactivity, c.Telegram.Enabled, c.Storage.Driver)
}
