package sage

import (
	"errors"
	"fmt"
	"time"

	"github.com/GoCodeAlone/sage/feeders"
)

// ConfigValidator is implemented by config sections that check themselves
// after defaults and feeders have been applied.
type ConfigValidator interface {
	Validate() error
}

// ModuleDescriptor names a module to load and whether startup must fail if
// it cannot be initialized.
type ModuleDescriptor struct {
	Name     string `json:"name" yaml:"name" toml:"name"`
	Required bool   `json:"required" yaml:"required" toml:"required"`
}

// LifecycleConfig is the "lifecycle" configuration section.
type LifecycleConfig struct {
	// ShutdownTimeout bounds each module's Shutdown call.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" default:"5s"`

	// Modules lists the modules to load, in load order.
	Modules []ModuleDescriptor `json:"modules" yaml:"modules" toml:"modules"`
}

// Validate checks timeouts and module names.
func (c *LifecycleConfig) Validate() error {
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %s", c.ShutdownTimeout)
	}
	seen := make(map[string]bool, len(c.Modules))
	for i, m := range c.Modules {
		if m.Name == "" {
			return fmt.Errorf("modules[%d]: name is required", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("modules[%d]: duplicate module %q", i, m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}

// ConfigLoader fills configuration sections from an ordered list of feeders.
// Later feeders override earlier ones.
type ConfigLoader struct {
	path    string
	feeders []feeders.KeyFeeder
}

// NewConfigLoader creates a loader over the given feeders.
func NewConfigLoader(fs ...feeders.KeyFeeder) *ConfigLoader {
	return &ConfigLoader{feeders: fs}
}

// NewFileConfigLoader builds the standard chain: the config file chosen by
// extension (optional), then the dotenv file, then prefixed environment
// variables.
func NewFileConfigLoader(path, dotenvPath, envPrefix string) (*ConfigLoader, error) {
	var chain []feeders.KeyFeeder
	if path != "" {
		f, err := feeders.ForFile(path)
		if err != nil {
			return nil, err
		}
		chain = append(chain, f)
	}
	if dotenvPath != "" {
		chain = append(chain, feeders.NewDotEnvFeeder(dotenvPath, envPrefix))
	}
	chain = append(chain, feeders.NewAffixedEnvFeeder(envPrefix, ""))

	l := NewConfigLoader(chain...)
	l.path = path
	return l, nil
}

// Path returns the config file path, or "" when no file is used.
func (l *ConfigLoader) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Load fills target from section: defaults, feeders, then validation.
func (l *ConfigLoader) Load(section string, target any) error {
	if err := ProcessConfigDefaults(target); err != nil {
		return fmt.Errorf("section %s: %w", section, err)
	}
	if l != nil {
		for _, f := range l.feeders {
			if err := f.FeedKey(section, target); err != nil {
				return fmt.Errorf("%w: section %s: %w", ErrConfigFeederError, section, err)
			}
		}
	}
	if v, ok := target.(ConfigValidator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: section %s: %w", ErrConfigValidationFailed, section, err)
		}
	}
	return nil
}

// LoadAll loads several sections and joins the failures.
func (l *ConfigLoader) LoadAll(sections map[string]any) error {
	var errs []error
	for name, target := range sections {
		if err := l.Load(name, target); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
