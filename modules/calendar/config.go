package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// CalendarConfig is the "calendar" configuration section.
type CalendarConfig struct {
	// DBPath is the SQLite database file. ":memory:" keeps meetings in memory.
	DBPath string `json:"db_path" yaml:"db_path" toml:"db_path" env:"DB_PATH" default:"data/calendar.db"`

	// ReminderSchedule is the cron spec of the reminder sweep.
	ReminderSchedule string `json:"reminder_schedule" yaml:"reminder_schedule" toml:"reminder_schedule" env:"REMINDER_SCHEDULE" default:"@every 1m"`

	// DefaultDuration is the meeting length in minutes when none is given.
	DefaultDuration int `json:"default_duration" yaml:"default_duration" toml:"default_duration" env:"DEFAULT_DURATION" default:"60"`

	// DefaultReminderMinutes is how long before a meeting its reminder fires.
	DefaultReminderMinutes int `json:"default_reminder_minutes" yaml:"default_reminder_minutes" toml:"default_reminder_minutes" env:"DEFAULT_REMINDER_MINUTES" default:"15"`

	// Timezone meeting dates and times are interpreted in.
	Timezone string `json:"timezone" yaml:"timezone" toml:"timezone" env:"TIMEZONE" default:"Local"`
}

// Validate checks the schedule, defaults and time zone.
func (c *CalendarConfig) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if _, err := cron.ParseStandard(c.ReminderSchedule); err != nil {
		errs = append(errs, fmt.Errorf("reminder_schedule: %w", err))
	}
	if c.DefaultDuration <= 0 {
		errs = append(errs, fmt.Errorf("default_duration must be positive, got %d", c.DefaultDuration))
	}
	if c.DefaultReminderMinutes < 0 {
		errs = append(errs, fmt.Errorf("default_reminder_minutes must not be negative, got %d", c.DefaultReminderMinutes))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	return errors.Join(errs...)
}

func (c *CalendarConfig) location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
