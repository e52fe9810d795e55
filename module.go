// Package sage is the orchestration core of the sage voice assistant.
// It owns the module lifecycle: modules are built from a static registry of
// factories, initialized in configuration order, wired to the event bus and
// shut down exactly once in reverse load order.
//
// Basic usage:
//
//	registry := sage.NewRegistry()
//	registry.MustRegister("clock", clock.New)
//	app := sage.NewStdApplication(configLoader, registry, logger)
//	if err := app.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package sage

import (
	"context"

	"github.com/GoCodeAlone/sage/eventbus"
)

// Module represents a loadable component in the application.
// All modules must implement this interface to be managed by the application.
//
// A module encapsulates one feature area (voice, calendar, conversation, ...)
// and exclusively owns its internal state. The application owns its existence.
type Module interface {
	// Name returns the unique identifier for this module.
	// It must match the name the factory was registered under.
	//
	// Example: "conversation", "router", "calendar"
	Name() string

	// Init prepares the module. No event is routed to the module before Init
	// returns nil. A module whose Init fails is marked failed and excluded
	// from dispatch.
	//
	// The Init method should:
	//   - Load and validate its configuration section
	//   - Open resources it owns (databases, clients)
	//   - Keep a reference to app for publishing events
	Init(ctx context.Context, app Application) error
}

// EventHandler is implemented by modules that consume bus events.
//
// Subscriptions is consulted once, before Init, and every returned type must
// belong to the event vocabulary; a module declaring an unknown type fails to
// load. After Init succeeds the application subscribes the module to each
// type and routes matching events to HandleEvent. Once the module begins
// shutdown, HandleEvent is never called again.
type EventHandler interface {
	Subscriptions() []eventbus.Type
	HandleEvent(ctx context.Context, event eventbus.Event) error
}

// Startable is implemented by modules that need to run background work once
// every configured module has been loaded. Start must not block.
type Startable interface {
	Start(ctx context.Context) error
}

// Stoppable is implemented by modules that release resources on unload.
// Shutdown is called at most once and is bounded by the configured
// lifecycle shutdown timeout.
type Stoppable interface {
	Shutdown(ctx context.Context) error
}

// StatusReporter exposes module specific diagnostics.
type StatusReporter interface {
	Status() map[string]any
}

// CommandHandler is implemented by feature modules the router can dispatch to.
type CommandHandler interface {
	HandleCommand(ctx context.Context, cmd eventbus.Command) (Response, error)
}

// Confirmer is implemented by command handlers whose commands need a yes/no
// confirmation. ConfirmationPrompt checks the command and phrases the
// question; a *ValidationError asks the user for the missing detail instead.
type Confirmer interface {
	ConfirmationPrompt(ctx context.Context, cmd eventbus.Command) (string, error)
}

// Response is what a feature module returns for a command.
type Response struct {
	// Text is spoken back to the user.
	Text string
	// Data is an optional structured side effect, e.g. the persisted meeting.
	Data any
}

// Application is the view of the running application handed to modules.
type Application interface {
	Logger() Logger
	Bus() *eventbus.Bus

	// LoadSection fills target from the named configuration section:
	// `default` tags first, then every configured feeder, then Validate.
	LoadSection(section string, target any) error

	// OnConfigChange registers fn to run after the configuration file changes.
	OnConfigChange(fn func())

	// Ready reports whether the named module is loaded and initialized.
	Ready(name string) bool

	// HandleCommand invokes a ready module's CommandHandler. The call passes
	// through the module's gate, so it fails with ErrModuleNotReady once the
	// module begins shutdown.
	HandleCommand(ctx context.Context, module string, cmd eventbus.Command) (Response, error)

	// ConfirmationPrompt asks a ready module's Confirmer how to confirm cmd.
	// It fails with ErrNotConfirmer when the module has no opinion.
	ConfirmationPrompt(ctx context.Context, module string, cmd eventbus.Command) (string, error)

	// Modules reports the status of every module in load order.
	Modules() []ModuleStatus
}
