// Package router maps classified commands to the feature modules that
// handle them and reports the outcome on the event bus.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/GoCodeAlone/sage"
	"github.com/GoCodeAlone/sage/eventbus"
)

// ModuleName is the name the router registers under.
const ModuleName = "router"

// Result is the normalized outcome of a dispatch.
type Result struct {
	Module               string
	Text                 string
	RequiresConfirmation bool
	Prompt               string
	// Data is the module's structured side effect, e.g. the stored meeting.
	Data any
}

// Router dispatches command_ready events. Apart from its immutable routing
// table it holds no state, so concurrent dispatches are safe.
type Router struct {
	app    sage.Application
	logger sage.Logger
	cfg    Config
	routes map[string]Route

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the router module.
func New() *Router {
	return &Router{}
}

// Name implements sage.Module.
func (r *Router) Name() string { return ModuleName }

// Init loads the routing table.
func (r *Router) Init(ctx context.Context, app sage.Application) error {
	if err := app.LoadSection(ModuleName, &r.cfg); err != nil {
		return fmt.Errorf("router config: %w", err)
	}
	if len(r.cfg.Routes) == 0 {
		r.cfg.Routes = DefaultRoutes()
	}
	r.routes = make(map[string]Route, len(r.cfg.Routes))
	for _, route := range r.cfg.Routes {
		r.routes[route.Intent] = route
	}

	r.app = app
	r.logger = sage.ModuleLogger(app.Logger(), ModuleName)
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	return nil
}

// Start verifies that the fallback module is loaded. Routes pointing at
// modules that are not loaded are logged and fall back at dispatch time.
func (r *Router) Start(context.Context) error {
	if !r.app.Ready(r.cfg.Fallback) {
		return fmt.Errorf("%w: fallback module %q is not loaded", ErrUnroutableIntent, r.cfg.Fallback)
	}
	for _, route := range r.cfg.Routes {
		if !r.app.Ready(route.Module) {
			r.logger.Warn("Route target not loaded, using fallback", "intent", route.Intent, "target", route.Module, "fallback", r.cfg.Fallback)
		}
	}
	r.logger.Info("Router started", "routes", len(r.routes), "fallback", r.cfg.Fallback)
	return nil
}

// Subscriptions implements sage.EventHandler.
func (r *Router) Subscriptions() []eventbus.Type {
	return []eventbus.Type{eventbus.TypeCommandReady}
}

// HandleEvent dispatches the command on its own goroutine so a slow module
// never holds up the bus. A priority command that arrives meanwhile moves the
// conversation on and the late result is ignored there.
func (r *Router) HandleEvent(_ context.Context, event eventbus.Event) error {
	ready, ok := event.Payload.(eventbus.CommandReady)
	if !ok {
		return fmt.Errorf("%w: %T", eventbus.ErrPayloadTypeMismatch, event.Payload)
	}
	if r.ctx.Err() != nil {
		return ErrRouterStopped
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.process(r.ctx, ready.Command)
	}()
	return nil
}

func (r *Router) process(ctx context.Context, cmd eventbus.Command) {
	dctx, cancel := context.WithTimeout(ctx, r.cfg.DispatchTimeout)
	defer cancel()

	res, err := r.Dispatch(dctx, cmd)
	bus := r.app.Bus()

	if err != nil {
		failed := eventbus.CommandFailed{CommandID: cmd.ID, Err: err.Error()}
		var verr *sage.ValidationError
		switch {
		case errors.As(err, &verr):
			failed.Validation = true
			failed.Message = verr.Message
		case errors.Is(err, context.DeadlineExceeded):
			failed.Message = "Sorry, that took too long."
			r.logger.Warn("Command timed out", "intent", cmd.Intent.Name, "module", res.Module)
		default:
			r.logger.Error("Command failed", "intent", cmd.Intent.Name, "module", res.Module, "error", err)
		}
		if perr := bus.Emit(ctx, ModuleName, failed); perr != nil {
			r.logger.Error("Failed to publish command failure", "error", perr)
		}
		return
	}

	r.logger.Debug("Command handled", "intent", cmd.Intent.Name, "module", res.Module)
	result := eventbus.CommandResult{
		CommandID:            cmd.ID,
		Text:                 res.Text,
		RequiresConfirmation: res.RequiresConfirmation,
		Prompt:               res.Prompt,
		Command:              cmd,
	}
	if perr := bus.Emit(ctx, ModuleName, result); perr != nil {
		r.logger.Error("Failed to publish command result", "error", perr)
	}
}

// Route returns the route for an intent. Intents without a route, and routes
// whose module is not loaded, resolve to the fallback.
func (r *Router) Route(intent string) Route {
	if route, ok := r.routes[intent]; ok && r.app.Ready(route.Module) {
		return route
	}
	return Route{Intent: intent, Module: r.cfg.Fallback}
}

// Dispatch runs cmd against its module. A command whose route needs
// confirmation and that has not been confirmed yet is not executed; the
// result carries the prompt instead.
func (r *Router) Dispatch(ctx context.Context, cmd eventbus.Command) (Result, error) {
	route := r.Route(cmd.Intent.Name)
	if !r.app.Ready(route.Module) {
		return Result{Module: route.Module}, fmt.Errorf("%w: %s", ErrUnroutableIntent, cmd.Intent.Name)
	}

	if route.Confirm && !cmd.Confirmed {
		prompt, err := r.prompt(ctx, route, cmd)
		if err != nil {
			return Result{Module: route.Module}, err
		}
		return Result{Module: route.Module, RequiresConfirmation: true, Prompt: prompt}, nil
	}

	resp, err := r.app.HandleCommand(ctx, route.Module, cmd)
	if err != nil {
		return Result{Module: route.Module}, err
	}
	return Result{Module: route.Module, Text: resp.Text, Data: resp.Data}, nil
}

// RequiresConfirmation lets the conversation ask before dispatching.
func (r *Router) RequiresConfirmation(cmd eventbus.Command) (bool, string, error) {
	route := r.Route(cmd.Intent.Name)
	if !route.Confirm || cmd.Confirmed {
		return false, "", nil
	}
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.DispatchTimeout)
	defer cancel()
	prompt, err := r.prompt(ctx, route, cmd)
	if err != nil {
		return false, "", err
	}
	return true, prompt, nil
}

func (r *Router) prompt(ctx context.Context, route Route, cmd eventbus.Command) (string, error) {
	prompt, err := r.app.ConfirmationPrompt(ctx, route.Module, cmd)
	if errors.Is(err, sage.ErrNotConfirmer) {
		return fmt.Sprintf("Should I go ahead with %q?", cmd.RawText), nil
	}
	return prompt, err
}

// Shutdown waits for in-flight dispatches.
func (r *Router) Shutdown(ctx context.Context) error {
	if r.cancel == nil {
		return nil
	}
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status implements sage.StatusReporter.
func (r *Router) Status() map[string]any {
	routes := make(map[string]string, len(r.routes))
	for intent, route := range r.routes {
		routes[intent] = route.Module
	}
	return map[string]any{"fallback": r.cfg.Fallback, "routes": routes}
}
