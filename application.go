package sage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/GoCodeAlone/sage/eventbus"
)

// ModuleState is the lifecycle state of a loaded module.
type ModuleState string

const (
	StateLoading  ModuleState = "loading"
	StateReady    ModuleState = "ready"
	StateFailed   ModuleState = "failed"
	StateStopping ModuleState = "stopping"
	StateStopped  ModuleState = "stopped"
)

// ModuleStatus is a point-in-time view of one module.
type ModuleStatus struct {
	Name          string         `json:"name"`
	State         ModuleState    `json:"state"`
	Required      bool           `json:"required"`
	Error         string         `json:"error,omitempty"`
	LoadedAt      time.Time      `json:"loadedAt,omitzero"`
	Subscriptions int            `json:"subscriptions"`
	Details       map[string]any `json:"details,omitempty"`
}

// ModuleHandle identifies one loaded module instance.
type ModuleHandle struct {
	name     string
	required bool
	module   Module
	gate     *gate

	mu       sync.Mutex
	state    ModuleState
	err      error
	loadedAt time.Time

	unloadOnce sync.Once
	unloadErr  error
}

// Name returns the module name.
func (h *ModuleHandle) Name() string { return h.name }

// Module returns the module instance, or nil if its factory failed.
func (h *ModuleHandle) Module() Module { return h.module }

// State returns the current lifecycle state.
func (h *ModuleHandle) State() ModuleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err returns the error that failed or stopped the module, if any.
func (h *ModuleHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *ModuleHandle) setState(state ModuleState, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = state
	if err != nil {
		h.err = err
	}
	if state == StateReady {
		h.loadedAt = time.Now()
	}
}

// moduleHandler routes bus events into a module through its gate.
type moduleHandler struct {
	handle  *ModuleHandle
	handler EventHandler
}

func (m *moduleHandler) HandleEvent(ctx context.Context, event eventbus.Event) (err error) {
	if !m.handle.gate.enter() {
		return nil
	}
	defer m.handle.gate.leave()

	defer func() {
		if r := recover(); r != nil {
			err = &ModuleRuntimeError{
				Module:    m.handle.name,
				EventType: event.Type,
				Err:       fmt.Errorf("%w: %v", ErrModulePanicked, r),
			}
		}
	}()

	if herr := m.handler.HandleEvent(ctx, event); herr != nil {
		return &ModuleRuntimeError{Module: m.handle.name, EventType: event.Type, Err: herr}
	}
	return nil
}

// StdApplication is the module lifecycle manager. It loads modules from the
// registry, wires their subscriptions on the bus and shuts them down in
// reverse load order.
type StdApplication struct {
	loader    *ConfigLoader
	registry  *Registry
	logger    Logger
	bus       *eventbus.Bus
	observers *observerSet
	watcher   *ConfigWatcher
	lifecycle LifecycleConfig

	mu      sync.RWMutex
	handles []*ModuleHandle
	byName  map[string]*ModuleHandle

	configMu        sync.Mutex
	configCallbacks []func()

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	stopOnce     sync.Once
	stopErr      error
}

// NewStdApplication reads the "lifecycle" and "bus" sections through loader
// and creates an application that builds modules from registry.
func NewStdApplication(loader *ConfigLoader, registry *Registry, logger Logger, opts ...Option) (*StdApplication, error) {
	if logger == nil {
		logger = NopLogger()
	}
	app := &StdApplication{
		loader:     loader,
		registry:   registry,
		logger:     logger,
		observers:  newObserverSet(logger),
		byName:     make(map[string]*ModuleHandle),
		shutdownCh: make(chan struct{}),
	}

	if err := loader.Load("lifecycle", &app.lifecycle); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		opt(app)
	}

	if app.bus == nil {
		busCfg := eventbus.Config{}
		if err := loader.Load("bus", &busCfg); err != nil {
			return nil, err
		}
		app.bus = eventbus.New(busCfg, NewValueInjectionLoggerDecorator(logger, "component", "eventbus"))
	}
	return app, nil
}

// Logger returns the application logger.
func (a *StdApplication) Logger() Logger { return a.logger }

// Bus returns the application event bus.
func (a *StdApplication) Bus() *eventbus.Bus { return a.bus }

// LifecycleConfig returns the loaded lifecycle section.
func (a *StdApplication) LifecycleConfig() LifecycleConfig { return a.lifecycle }

// LoadSection implements Application.
func (a *StdApplication) LoadSection(section string, target any) error {
	return a.loader.Load(section, target)
}

// OnConfigChange implements Application.
func (a *StdApplication) OnConfigChange(fn func()) {
	a.configMu.Lock()
	defer a.configMu.Unlock()
	a.configCallbacks = append(a.configCallbacks, fn)
}

// RegisterObserver adds an observer for lifecycle CloudEvents. With no
// eventTypes the observer receives everything.
func (a *StdApplication) RegisterObserver(observer Observer, eventTypes ...string) error {
	a.observers.register(observer, eventTypes...)
	return nil
}

// UnregisterObserver removes an observer. It is idempotent.
func (a *StdApplication) UnregisterObserver(observer Observer) error {
	a.observers.unregister(observer)
	return nil
}

// GetObservers returns information about currently registered observers.
func (a *StdApplication) GetObservers() []ObserverInfo {
	return a.observers.info()
}

func (a *StdApplication) emit(ctx context.Context, eventType string, data map[string]any) {
	a.observers.notify(ctx, NewCloudEvent(eventType, "sage/application", data, nil))
}

func (a *StdApplication) publish(ctx context.Context, payload eventbus.Payload) {
	if err := a.bus.Emit(ctx, "application", payload); err != nil {
		a.logger.Debug("Failed to publish lifecycle event", "type", payload.EventType(), "error", err)
	}
}

// Load builds the named module, initializes it and subscribes it to the types
// it declares. A module whose Init fails is marked failed and excluded from
// dispatch; Load returns the error only when the descriptor is required.
func (a *StdApplication) Load(ctx context.Context, desc ModuleDescriptor) (*ModuleHandle, error) {
	factory, ok := a.registry.Lookup(desc.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotRegistered, desc.Name)
	}

	h := &ModuleHandle{
		name:     desc.Name,
		required: desc.Required,
		gate:     newGate(),
		state:    StateLoading,
	}

	a.mu.Lock()
	if existing, exists := a.byName[desc.Name]; exists {
		switch existing.State() {
		case StateStopped, StateFailed:
			a.handles = slices.DeleteFunc(a.handles, func(x *ModuleHandle) bool { return x == existing })
		default:
			a.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrModuleAlreadyLoaded, desc.Name)
		}
	}
	a.handles = append(a.handles, h)
	a.byName[desc.Name] = h
	a.mu.Unlock()

	a.logger.Debug("Loading module", "module", desc.Name, "required", desc.Required)

	module, err := build(factory)
	if err == nil {
		h.module = module
		err = checkSubscriptions(module)
	}
	if err == nil {
		err = initModule(ctx, module, a)
	}
	if err != nil {
		return h, a.fail(ctx, h, err)
	}

	if eh, ok := module.(EventHandler); ok {
		adapter := &moduleHandler{handle: h, handler: eh}
		for _, t := range eh.Subscriptions() {
			if _, err := a.bus.Subscribe(h.name, t, adapter); err != nil {
				a.bus.UnsubscribeOwner(h.name)
				a.shutdownModule(ctx, h)
				return h, a.fail(ctx, h, err)
			}
		}
	}

	h.setState(StateReady, nil)
	a.logger.Info("Module loaded", "module", h.name)
	a.publish(ctx, eventbus.ModuleLoaded{Module: h.name})
	a.emit(ctx, EventTypeModuleLoaded, map[string]any{"module": h.name})
	return h, nil
}

func (a *StdApplication) fail(ctx context.Context, h *ModuleHandle, cause error) error {
	err := &ModuleInitError{Module: h.name, Err: cause}
	h.setState(StateFailed, err)

	a.logger.Error("Module failed to load", "module", h.name, "required", h.required, "error", cause)
	a.emit(ctx, EventTypeModuleFailed, map[string]any{"module": h.name, "error": cause.Error()})

	if h.required {
		return err
	}
	return nil
}

func build(factory Factory) (m Module, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrModulePanicked, r)
		}
	}()
	m = factory()
	if m == nil {
		return nil, ErrFactoryReturnedNil
	}
	return m, nil
}

// checkSubscriptions verifies declared types before the module is touched.
func checkSubscriptions(m Module) error {
	eh, ok := m.(EventHandler)
	if !ok {
		return nil
	}
	for _, t := range eh.Subscriptions() {
		if !t.Valid() {
			return fmt.Errorf("%w: %q", eventbus.ErrInvalidType, t)
		}
	}
	return nil
}

func initModule(ctx context.Context, m Module, app Application) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrModulePanicked, r)
		}
	}()
	return m.Init(ctx, app)
}

// Unload removes the module's subscriptions, waits for its in-flight handlers
// and calls Shutdown. It runs at most once per handle; later calls return the
// first result.
func (a *StdApplication) Unload(ctx context.Context, h *ModuleHandle) error {
	if h == nil {
		return nil
	}
	h.unloadOnce.Do(func() {
		h.unloadErr = a.unload(ctx, h)
	})
	return h.unloadErr
}

func (a *StdApplication) unload(ctx context.Context, h *ModuleHandle) error {
	if h.State() == StateFailed {
		// never initialized; nothing to shut down
		h.gate.close()
		a.bus.UnsubscribeOwner(h.name)
		return nil
	}

	h.setState(StateStopping, nil)
	a.logger.Info("Unloading module", "module", h.name)

	idle := h.gate.close()
	removed := a.bus.UnsubscribeOwner(h.name)

	deadline, cancel := context.WithTimeout(ctx, a.lifecycle.ShutdownTimeout)
	defer cancel()

	var err error
	select {
	case <-idle:
		err = a.shutdownModuleWithin(deadline, h)
	case <-deadline.Done():
		err = fmt.Errorf("%w: %s still handling events", ErrShutdownTimeout, h.name)
	}

	h.setState(StateStopped, err)
	if err != nil {
		a.logger.Error("Module shutdown failed", "module", h.name, "error", err)
	} else {
		a.logger.Info("Module unloaded", "module", h.name, "subscriptions", removed)
	}

	unloaded := eventbus.ModuleUnloaded{Module: h.name}
	data := map[string]any{"module": h.name}
	if err != nil {
		unloaded.Err = err.Error()
		data["error"] = err.Error()
	}
	a.publish(ctx, unloaded)
	a.emit(ctx, EventTypeModuleUnloaded, data)
	return err
}

func (a *StdApplication) shutdownModule(ctx context.Context, h *ModuleHandle) {
	deadline, cancel := context.WithTimeout(ctx, a.lifecycle.ShutdownTimeout)
	defer cancel()
	if err := a.shutdownModuleWithin(deadline, h); err != nil {
		a.logger.Error("Module shutdown failed", "module", h.name, "error", err)
	}
}

// shutdownModuleWithin runs Shutdown on its own goroutine so a hung module
// cannot stall the caller past the deadline.
func (a *StdApplication) shutdownModuleWithin(ctx context.Context, h *ModuleHandle) error {
	s, ok := h.module.(Stoppable)
	if !ok {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: %v", ErrModulePanicked, r)
			}
		}()
		done <- s.Shutdown(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %s", ErrShutdownTimeout, h.name)
	}
}

// ShutdownAll unloads every module, last loaded first. A failing module does
// not prevent the remaining ones from being unloaded.
func (a *StdApplication) ShutdownAll(ctx context.Context) error {
	a.mu.RLock()
	handles := slices.Clone(a.handles)
	a.mu.RUnlock()
	slices.Reverse(handles)

	var errs []error
	for _, h := range handles {
		if err := a.Unload(ctx, h); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}
	return errors.Join(errs...)
}

// Handle returns the handle of the named module.
func (a *StdApplication) Handle(name string) (*ModuleHandle, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	h, ok := a.byName[name]
	return h, ok
}

// Ready implements Application.
func (a *StdApplication) Ready(name string) bool {
	h, ok := a.Handle(name)
	return ok && h.State() == StateReady
}

// HandleCommand implements Application.
func (a *StdApplication) HandleCommand(ctx context.Context, module string, cmd eventbus.Command) (resp Response, err error) {
	err = a.invoke(module, func(m Module) error {
		handler, ok := m.(CommandHandler)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotCommandHandler, module)
		}
		resp, err = handler.HandleCommand(ctx, cmd)
		return err
	})
	return resp, err
}

// ConfirmationPrompt implements Application.
func (a *StdApplication) ConfirmationPrompt(ctx context.Context, module string, cmd eventbus.Command) (prompt string, err error) {
	err = a.invoke(module, func(m Module) error {
		confirmer, ok := m.(Confirmer)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotConfirmer, module)
		}
		prompt, err = confirmer.ConfirmationPrompt(ctx, cmd)
		return err
	})
	return prompt, err
}

// invoke calls fn with a ready module while holding its gate. Panics are
// reported as a ModuleRuntimeError.
func (a *StdApplication) invoke(module string, fn func(Module) error) (err error) {
	h, ok := a.Handle(module)
	if !ok || !h.gate.enter() {
		return fmt.Errorf("%w: %s", ErrModuleNotReady, module)
	}
	defer h.gate.leave()

	if h.State() != StateReady {
		return fmt.Errorf("%w: %s", ErrModuleNotReady, module)
	}

	defer func() {
		if r := recover(); r != nil {
			err = &ModuleRuntimeError{Module: module, EventType: eventbus.TypeCommandReady, Err: fmt.Errorf("%w: %v", ErrModulePanicked, r)}
		}
	}()
	return fn(h.module)
}

// Modules implements Application.
func (a *StdApplication) Modules() []ModuleStatus {
	a.mu.RLock()
	handles := slices.Clone(a.handles)
	a.mu.RUnlock()

	out := make([]ModuleStatus, 0, len(handles))
	for _, h := range handles {
		h.mu.Lock()
		st := ModuleStatus{
			Name:     h.name,
			State:    h.state,
			Required: h.required,
			LoadedAt: h.loadedAt,
		}
		if h.err != nil {
			st.Error = h.err.Error()
		}
		h.mu.Unlock()

		st.Subscriptions = a.bus.SubscriptionCount(h.name)
		if reporter, ok := h.module.(StatusReporter); ok && st.State == StateReady && h.gate.enter() {
			st.Details = reporter.Status()
			h.gate.leave()
		}
		out = append(out, st)
	}
	return out
}

// Start loads every configured module in order, then starts the Startable
// ones. A required module that fails aborts startup after unloading whatever
// was already loaded.
func (a *StdApplication) Start(ctx context.Context) error {
	if _, err := a.bus.Subscribe("application", eventbus.TypeShutdownRequested, eventbus.HandlerFunc(a.onShutdownRequested)); err != nil {
		return err
	}

	for _, desc := range a.lifecycle.Modules {
		if _, err := a.Load(ctx, desc); err != nil {
			return errors.Join(err, a.ShutdownAll(ctx))
		}
	}

	a.mu.RLock()
	handles := slices.Clone(a.handles)
	a.mu.RUnlock()

	for _, h := range handles {
		s, ok := h.module.(Startable)
		if !ok || h.State() != StateReady {
			continue
		}
		if err := s.Start(ctx); err != nil {
			a.logger.Error("Module failed to start", "module", h.name, "error", err)
			uerr := a.Unload(ctx, h)
			failErr := a.fail(ctx, h, err)
			if failErr != nil {
				return errors.Join(failErr, uerr, a.ShutdownAll(ctx))
			}
		}
	}

	if a.watcher != nil {
		a.watcher.OnChange(a.configChanged)
		if err := a.watcher.Start(ctx); err != nil {
			a.logger.Warn("Config watching disabled", "error", err)
		}
	}

	a.logger.Info("Application started", "modules", len(handles))
	a.emit(ctx, EventTypeApplicationStarted, map[string]any{"modules": len(handles)})
	return nil
}

func (a *StdApplication) onShutdownRequested(_ context.Context, event eventbus.Event) error {
	reason := ""
	if p, ok := event.Payload.(eventbus.ShutdownRequested); ok {
		reason = p.Reason
	}
	a.logger.Info("Shutdown requested", "reason", reason, "source", event.Source)
	a.RequestShutdown()
	return nil
}

// RequestShutdown makes Run return. It is safe to call more than once.
func (a *StdApplication) RequestShutdown() {
	a.shutdownOnce.Do(func() { close(a.shutdownCh) })
}

// Done is closed once shutdown has been requested.
func (a *StdApplication) Done() <-chan struct{} {
	return a.shutdownCh
}

func (a *StdApplication) configChanged() {
	a.configMu.Lock()
	callbacks := slices.Clone(a.configCallbacks)
	a.configMu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
	a.emit(context.Background(), EventTypeConfigChanged, map[string]any{"path": a.loader.Path()})
}

// Stop shuts every module down, drains and closes the bus. It runs once.
func (a *StdApplication) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() {
		if a.watcher != nil {
			a.watcher.Stop()
		}

		err := a.ShutdownAll(ctx)

		drainCtx, cancel := context.WithTimeout(ctx, a.lifecycle.ShutdownTimeout)
		defer cancel()
		if derr := a.bus.Drain(drainCtx); derr != nil {
			a.logger.Warn("Event bus did not drain", "error", derr)
		}
		if cerr := a.bus.Close(drainCtx); cerr != nil {
			err = errors.Join(err, cerr)
		}

		a.emit(ctx, EventTypeApplicationStopped, nil)
		a.logger.Info("Application stopped")
		a.stopErr = err
	})
	return a.stopErr
}

// Run starts the application and blocks until ctx is cancelled or a
// shutdown_requested event is published, then stops it.
func (a *StdApplication) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		a.logger.Info("Context cancelled, shutting down")
	case <-a.shutdownCh:
	}

	return a.Stop(context.WithoutCancel(ctx))
}
