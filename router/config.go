package router

import (
	"errors"
	"fmt"
	"time"
)

// Route sends one intent to one module.
type Route struct {
	Intent string `json:"intent" yaml:"intent" toml:"intent"`
	Module string `json:"module" yaml:"module" toml:"module"`
	// Confirm asks the user before the command is dispatched.
	Confirm bool `json:"confirm" yaml:"confirm" toml:"confirm"`
}

// Config is the "router" configuration section.
type Config struct {
	// Fallback handles every intent without a route, normally general conversation.
	Fallback        string        `json:"fallback" yaml:"fallback" toml:"fallback" env:"FALLBACK" default:"chat"`
	DispatchTimeout time.Duration `json:"dispatch_timeout" yaml:"dispatch_timeout" toml:"dispatch_timeout" env:"DISPATCH_TIMEOUT" default:"10s"`
	// Routes replaces DefaultRoutes when set.
	Routes []Route `json:"routes" yaml:"routes" toml:"routes"`
}

// DefaultRoutes is the routing table used when none is configured.
func DefaultRoutes() []Route {
	return []Route{
		{Intent: "schedule_meeting", Module: "calendar", Confirm: true},
		{Intent: "cancel_meeting", Module: "calendar", Confirm: true},
		{Intent: "check_calendar", Module: "calendar"},
		{Intent: "time_query", Module: "clock"},
		{Intent: "system_status", Module: "system"},
	}
}

// Validate checks the routing table is well formed. Whether the modules are
// loaded is checked when the router starts.
func (c *Config) Validate() error {
	var errs []error
	if c.Fallback == "" {
		errs = append(errs, fmt.Errorf("%w: fallback is empty", ErrUnroutableIntent))
	}
	if c.DispatchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("dispatch_timeout must be positive, got %s", c.DispatchTimeout))
	}
	seen := make(map[string]bool, len(c.Routes))
	for i, r := range c.Routes {
		switch {
		case r.Intent == "" || r.Module == "":
			errs = append(errs, fmt.Errorf("routes[%d]: intent and module are required", i))
		case seen[r.Intent]:
			errs = append(errs, fmt.Errorf("routes[%d]: duplicate intent %q", i, r.Intent))
		}
		seen[r.Intent] = true
	}
	return errors.Join(errs...)
}
