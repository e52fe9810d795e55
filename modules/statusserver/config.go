package statusserver

import (
	"errors"
	"fmt"
	"time"
)

// StatusServerConfig is the "statusserver" configuration section.
type StatusServerConfig struct {
	// Address to listen on. Port 0 picks a free port.
	Address         string        `json:"address" yaml:"address" toml:"address" env:"ADDRESS" default:"127.0.0.1:8765"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout" toml:"read_timeout" env:"READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout" toml:"write_timeout" env:"WRITE_TIMEOUT" default:"10s"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" default:"5s"`

	// EventLimit caps /events?limit=.
	EventLimit int `json:"event_limit" yaml:"event_limit" toml:"event_limit" env:"EVENT_LIMIT" default:"100"`
	// ClientBuffer is the number of events queued per websocket client
	// before further events are dropped for it.
	ClientBuffer int `json:"client_buffer" yaml:"client_buffer" toml:"client_buffer" env:"CLIENT_BUFFER" default:"32"`
}

// Validate checks the limits.
func (c *StatusServerConfig) Validate() error {
	var errs []error
	if c.Address == "" {
		errs = append(errs, errors.New("address is required"))
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.EventLimit <= 0 {
		errs = append(errs, fmt.Errorf("event_limit must be positive, got %d", c.EventLimit))
	}
	if c.ClientBuffer <= 0 {
		errs = append(errs, fmt.Errorf("client_buffer must be positive, got %d", c.ClientBuffer))
	}
	return errors.Join(errs...)
}
