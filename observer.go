package sage

import (
	"context"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer is notified of application lifecycle events. Lifecycle events are
// CloudEvents so they can be forwarded to external systems unchanged; the
// conversation-level traffic stays on the event bus.
type Observer interface {
	// OnEvent is called when an event occurs that the observer is interested in.
	// Observers should handle events quickly to avoid blocking other observers.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer.
	ObserverID() string
}

// ObserverInfo provides information about a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// CloudEvent types emitted by the application.
const (
	EventTypeModuleLoaded       = "com.sage.module.loaded"
	EventTypeModuleFailed       = "com.sage.module.failed"
	EventTypeModuleUnloaded     = "com.sage.module.unloaded"
	EventTypeConfigChanged      = "com.sage.config.changed"
	EventTypeApplicationStarted = "com.sage.application.started"
	EventTypeApplicationStopped = "com.sage.application.stopped"
)

// FunctionalObserver provides a simple way to create observers using functions.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates a new observer that uses the provided function
// to handle events.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{
		id:      id,
		handler: handler,
	}
}

// OnEvent implements the Observer interface by calling the handler function.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID implements the Observer interface by returning the observer ID.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}

// observerRegistration holds information about a registered observer
type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// observerSet is the subject half of the observer pattern.
type observerSet struct {
	mu        sync.RWMutex
	observers map[string]*observerRegistration
	logger    Logger
}

func newObserverSet(logger Logger) *observerSet {
	return &observerSet{
		observers: make(map[string]*observerRegistration),
		logger:    logger,
	}
}

func (s *observerSet) register(observer Observer, eventTypes ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}
	s.observers[observer.ObserverID()] = &observerRegistration{
		observer:     observer,
		eventTypes:   types,
		registeredAt: time.Now(),
	}
	s.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
}

func (s *observerSet) unregister(observer Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.observers, observer.ObserverID())
}

func (s *observerSet) info() []ObserverInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ObserverInfo, 0, len(s.observers))
	for _, reg := range s.observers {
		types := make([]string, 0, len(reg.eventTypes))
		for t := range reg.eventTypes {
			types = append(types, t)
		}
		out = append(out, ObserverInfo{
			ID:           reg.observer.ObserverID(),
			EventTypes:   types,
			RegisteredAt: reg.registeredAt,
		})
	}
	return out
}

// notify delivers event to every interested observer synchronously.
// Observer failures and panics are logged and never reach the caller.
func (s *observerSet) notify(ctx context.Context, event cloudevents.Event) {
	if err := ValidateCloudEvent(event); err != nil {
		s.logger.Error("Invalid CloudEvent", "eventType", event.Type(), "error", err)
		return
	}

	s.mu.RLock()
	regs := make([]*observerRegistration, 0, len(s.observers))
	for _, reg := range s.observers {
		if len(reg.eventTypes) == 0 || reg.eventTypes[event.Type()] {
			regs = append(regs, reg)
		}
	}
	s.mu.RUnlock()

	for _, reg := range regs {
		s.deliver(ctx, reg.observer, event)
	}
}

func (s *observerSet) deliver(ctx context.Context, o Observer, event cloudevents.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Observer panicked", "observerID", o.ObserverID(), "event", event.Type(), "panic", r)
		}
	}()
	if err := o.OnEvent(ctx, event); err != nil {
		s.logger.Error("Observer error", "observerID", o.ObserverID(), "event", event.Type(), "error", err)
	}
}
