package sage

import (
	"errors"
	"fmt"

	"github.com/GoCodeAlone/sage/eventbus"
)

// Application errors
var (
	// Configuration errors
	ErrConfigNil                  = errors.New("config is nil")
	ErrConfigNotPointer           = errors.New("config must be a pointer")
	ErrConfigNotStruct            = errors.New("config must be a struct")
	ErrConfigValidationFailed     = errors.New("config validation failed")
	ErrUnsupportedTypeForDefault  = errors.New("unsupported type for default value")
	ErrDefaultValueOverflowsInt   = errors.New("default value overflows int")
	ErrDefaultValueOverflowsFloat = errors.New("default value overflows float")
	ErrIncompatibleFieldKind      = errors.New("incompatible field kind")
	ErrConfigFeederError          = errors.New("config feeder error")

	// Module registry errors
	ErrModuleAlreadyRegistered = errors.New("module factory already registered")
	ErrModuleNotRegistered     = errors.New("no factory registered for module")
	ErrModuleAlreadyLoaded     = errors.New("module already loaded")
	ErrModuleNotReady          = errors.New("module is not ready")
	ErrNotCommandHandler       = errors.New("module does not handle commands")
	ErrNotConfirmer            = errors.New("module does not confirm commands")
	ErrFactoryReturnedNil      = errors.New("module factory returned nil")

	// Lifecycle errors
	ErrShutdownTimeout = errors.New("module shutdown timed out")
	ErrModulePanicked  = errors.New("module panicked")
)

// ModuleInitError reports that a module's Init failed. The module is
// excluded from routing and the application keeps running unless the
// module was required.
type ModuleInitError struct {
	Module string
	Err    error
}

func (e *ModuleInitError) Error() string {
	return fmt.Sprintf("module %s failed to initialize: %v", e.Module, e.Err)
}

func (e *ModuleInitError) Unwrap() error { return e.Err }

// ModuleRuntimeError reports a failure while a module handled an event.
// It is isolated at the bus boundary and never reaches the publisher.
type ModuleRuntimeError struct {
	Module    string
	EventType eventbus.Type
	Err       error
}

func (e *ModuleRuntimeError) Error() string {
	return fmt.Sprintf("module %s failed handling %s: %v", e.Module, e.EventType, e.Err)
}

func (e *ModuleRuntimeError) Unwrap() error { return e.Err }

// ValidationError reports user input a module cannot act on. Message is
// phrased for the user and is spoken back as a clarification.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
