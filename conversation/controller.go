package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GoCodeAlone/sage"
	"github.com/GoCodeAlone/sage/eventbus"
)

// ModuleName is the name the controller registers under.
const ModuleName = "conversation"

// input is one unit of work for the machine.
type input func(m *Machine, now time.Time) []Effect

// Controller is the conversation module. It owns a Machine and is the only
// goroutine that touches it: bus deliveries are queued on an unbounded inbox
// and the loop applies them in arrival order, so a handler never blocks the
// publisher and effects are published in the order the machine produced them.
type Controller struct {
	classifier Classifier
	policy     ConfirmationPolicy
	now        func() time.Time

	app    sage.Application
	logger sage.Logger

	// mu guards machine for Snapshot; only the loop mutates it.
	mu      sync.Mutex
	machine *Machine

	inboxMu sync.Mutex
	inbox   []input
	signal  chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithClassifier sets the intent classifier.
func WithClassifier(c Classifier) Option {
	return func(ctl *Controller) { ctl.classifier = c }
}

// WithPolicy sets the confirmation policy, normally the router.
func WithPolicy(p ConfirmationPolicy) Option {
	return func(ctl *Controller) { ctl.policy = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(ctl *Controller) { ctl.now = now }
}

// New creates the conversation module.
func New(opts ...Option) *Controller {
	c := &Controller{
		classifier: ClassifierFunc(func(string) eventbus.Intent {
			return eventbus.Intent{Name: intentGeneralFallback}
		}),
		now:    time.Now,
		signal: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements sage.Module.
func (c *Controller) Name() string { return ModuleName }

// Init loads the "conversation" section and builds the machine.
func (c *Controller) Init(_ context.Context, app sage.Application) error {
	settings := DefaultSettings()
	if err := app.LoadSection(ModuleName, &settings); err != nil {
		return fmt.Errorf("conversation settings: %w", err)
	}

	c.app = app
	c.logger = sage.ModuleLogger(app.Logger(), ModuleName)
	c.machine = NewMachine(settings, c.classifier, c.now(), WithMachinePolicy(c.policy))
	app.OnConfigChange(c.reload)

	c.logger.Info("Conversation initialized", "state", c.machine.State(), "wakeWords", settings.WakeWords)
	return nil
}

// reload re-reads the section. Invalid settings are logged and ignored.
func (c *Controller) reload() {
	settings := DefaultSettings()
	if err := c.app.LoadSection(ModuleName, &settings); err != nil {
		c.logger.Warn("Keeping previous conversation settings", "error", err)
		return
	}
	c.push(func(m *Machine, _ time.Time) []Effect {
		m.UpdateSettings(settings)
		return nil
	})
	c.logger.Info("Conversation settings reloaded")
}

// Subscriptions implements sage.EventHandler.
func (c *Controller) Subscriptions() []eventbus.Type {
	return []eventbus.Type{
		eventbus.TypeSpeechRecognized,
		eventbus.TypeWakeWordDetected,
		eventbus.TypeCommandResult,
		eventbus.TypeCommandFailed,
		eventbus.TypeSpeechCompleted,
		eventbus.TypeReminderDue,
	}
}

// HandleEvent queues the event for the loop.
func (c *Controller) HandleEvent(_ context.Context, event eventbus.Event) error {
	switch p := event.Payload.(type) {
	case eventbus.SpeechRecognized:
		c.push(func(m *Machine, now time.Time) []Effect { return m.HandleSpeech(now, p.Text, p.Confidence) })
	case eventbus.WakeWordDetected:
		c.push(func(m *Machine, now time.Time) []Effect { return m.HandleWakeWord(now, p.Keyword) })
	case eventbus.CommandResult:
		c.push(func(m *Machine, now time.Time) []Effect { return m.HandleResult(now, p) })
	case eventbus.CommandFailed:
		c.push(func(m *Machine, now time.Time) []Effect { return m.HandleFailure(now, p) })
	case eventbus.SpeechCompleted:
		c.push(func(m *Machine, now time.Time) []Effect { return m.HandleSpeechCompleted(now, p) })
	case eventbus.ReminderDue:
		c.push(func(m *Machine, now time.Time) []Effect { return m.HandleReminder(now, p) })
	default:
		return fmt.Errorf("%w: %T", eventbus.ErrPayloadTypeMismatch, event.Payload)
	}
	return nil
}

func (c *Controller) push(in input) {
	c.inboxMu.Lock()
	c.inbox = append(c.inbox, in)
	c.inboxMu.Unlock()
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *Controller) takeInbox() []input {
	c.inboxMu.Lock()
	defer c.inboxMu.Unlock()
	batch := c.inbox
	c.inbox = nil
	return batch
}

// Start launches the loop. Events received between Init and Start are
// processed once the loop runs.
func (c *Controller) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.loop(loopCtx)
	return nil
}

func (c *Controller) loop(ctx context.Context) {
	defer close(c.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		c.arm(timer)
		select {
		case <-ctx.Done():
			return
		case <-c.signal:
			for _, in := range c.takeInbox() {
				c.step(ctx, in)
			}
		case <-timer.C:
			c.step(ctx, func(m *Machine, now time.Time) []Effect { return m.Tick(now) })
		}
	}
}

// arm points the timer at the machine's next deadline. Ticks that arrive
// after the deadline moved are harmless because Tick re-checks elapsed time.
func (c *Controller) arm(timer *time.Timer) {
	c.mu.Lock()
	deadline, ok := c.machine.Deadline()
	c.mu.Unlock()
	if !ok {
		timer.Stop()
		return
	}
	timer.Reset(max(deadline.Sub(c.now()), 0))
}

func (c *Controller) step(ctx context.Context, in input) {
	c.mu.Lock()
	effects := in(c.machine, c.now())
	c.mu.Unlock()

	bus := c.app.Bus()
	for _, effect := range effects {
		if sc, ok := effect.(eventbus.StateChanged); ok {
			c.logger.Info("Conversation state changed", "from", sc.From, "to", sc.To, "reason", sc.Reason)
		}
		if err := bus.Emit(ctx, ModuleName, effect); err != nil {
			c.logger.Error("Failed to publish conversation effect", "event", effect.EventType(), "error", err)
		}
	}
}

// Shutdown stops the loop. Queued inputs are discarded.
func (c *Controller) Shutdown(ctx context.Context) error {
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current conversation state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.machine == nil {
		return Snapshot{State: Sleeping.String()}
	}
	return c.machine.Snapshot()
}

// Status implements sage.StatusReporter.
func (c *Controller) Status() map[string]any {
	snap := c.Snapshot()
	status := map[string]any{
		"state":           snap.State,
		"lastInteraction": snap.LastInteraction,
		"speaking":        snap.Speaking,
		"historyLength":   len(snap.History),
	}
	if snap.Pending != nil {
		status["pending"] = snap.Pending.CommandName
	}
	return status
}
