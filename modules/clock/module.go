// Package clock answers time_query commands.
package clock

import (
	"context"
	"fmt"
	"time"

	"github.com/GoCodeAlone/sage"
	"github.com/GoCodeAlone/sage/eventbus"
)

// ModuleName is the unique identifier for the clock module.
const ModuleName = "clock"

// ClockConfig is the "clock" configuration section.
type ClockConfig struct {
	Timezone string `json:"timezone" yaml:"timezone" toml:"timezone" env:"TIMEZONE" default:"Local"`
	// Format is a Go time layout for the spoken answer.
	Format string `json:"format" yaml:"format" toml:"format" env:"FORMAT" default:"3:04 PM on Monday, January 2"`
}

// Validate checks the time zone.
func (c *ClockConfig) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}

// ClockModule tells the time.
type ClockModule struct {
	cfg ClockConfig
	loc *time.Location
	now func() time.Time
}

// Option configures the clock module.
type Option func(*ClockModule)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *ClockModule) { m.now = now }
}

// New creates the clock module.
func New(opts ...Option) *ClockModule {
	m := &ClockModule{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewModule is the registry factory.
func NewModule() sage.Module {
	return New()
}

// Name implements sage.Module.
func (m *ClockModule) Name() string { return ModuleName }

// Init loads the time zone.
func (m *ClockModule) Init(_ context.Context, app sage.Application) error {
	if err := app.LoadSection(ModuleName, &m.cfg); err != nil {
		return fmt.Errorf("clock config: %w", err)
	}
	loc, err := time.LoadLocation(m.cfg.Timezone)
	if err != nil {
		return err
	}
	m.loc = loc
	return nil
}

// HandleCommand answers with the current time.
func (m *ClockModule) HandleCommand(_ context.Context, _ eventbus.Command) (sage.Response, error) {
	now := m.now().In(m.loc)
	return sage.Response{Text: "It's currently " + now.Format(m.cfg.Format), Data: now}, nil
}

// Status implements sage.StatusReporter.
func (m *ClockModule) Status() map[string]any {
	return map[string]any{"timezone": m.loc.String()}
}
