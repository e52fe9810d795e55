package sage

import "github.com/GoCodeAlone/sage/eventbus"

// Option configures a StdApplication.
type Option func(*StdApplication)

// WithBus uses an existing bus instead of building one from the "bus" section.
func WithBus(bus *eventbus.Bus) Option {
	return func(app *StdApplication) {
		app.bus = bus
	}
}

// WithObserver registers a lifecycle observer at construction time.
func WithObserver(observer Observer, eventTypes ...string) Option {
	return func(app *StdApplication) {
		app.observers.register(observer, eventTypes...)
	}
}

// WithConfigWatcher reloads configuration sections when the file changes.
func WithConfigWatcher(watcher *ConfigWatcher) Option {
	return func(app *StdApplication) {
		app.watcher = watcher
	}
}

// WithModules overrides the module list from the lifecycle section.
func WithModules(descs ...ModuleDescriptor) Option {
	return func(app *StdApplication) {
		app.lifecycle.Modules = descs
	}
}
