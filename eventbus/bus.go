package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Logger is the subset of the application logger the bus needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Handler receives events for the types it subscribed to.
type Handler interface {
	HandleEvent(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function to Handler. Functions are not
// comparable, so each HandlerFunc subscription is distinct.
type HandlerFunc func(ctx context.Context, event Event) error

// HandleEvent calls f(ctx, event).
func (f HandlerFunc) HandleEvent(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id        string
	owner     string
	eventType Type
	handler   Handler
	async     bool
	cancelled atomic.Bool

	// async delivery state
	mu       sync.Mutex
	queue    []Event
	stopped  bool
	signal   chan struct{}
	finished chan struct{}
}

// ID returns the unique identifier for this subscription.
func (s *Subscription) ID() string { return s.id }

// Owner returns the name of the component that owns the subscription.
func (s *Subscription) Owner() string { return s.owner }

// Type returns the subscribed event type.
func (s *Subscription) Type() Type { return s.eventType }

// IsAsync returns true when events are delivered from a dedicated goroutine.
func (s *Subscription) IsAsync() bool { return s.async }

// Cancelled reports whether the subscription has been removed.
func (s *Subscription) Cancelled() bool { return s.cancelled.Load() }

// Bus is an in-memory publish/subscribe router keyed by event type.
type Bus struct {
	cfg    Config
	logger Logger

	mu     sync.RWMutex
	subs   map[Type][]*Subscription
	closed bool

	historyMu sync.Mutex
	history   []Event
	historyAt int
	historyN  int

	inflight *tracker
	wg       sync.WaitGroup

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a bus. A nil logger falls back to slog.Default().
func New(cfg Config, logger Logger) *Bus {
	if cfg.DeliveryMode == "" {
		cfg.DeliveryMode = DeliverySync
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		cfg:      cfg,
		logger:   logger,
		subs:     make(map[Type][]*Subscription),
		inflight: newTracker(),
	}
	if cfg.HistorySize > 0 {
		b.history = make([]Event, cfg.HistorySize)
	}
	return b
}

// Subscribe registers handler for eventType on behalf of owner. Subscribing a
// comparable handler that is already registered for the type returns the
// existing subscription instead of adding a second one.
func (b *Bus) Subscribe(owner string, eventType Type, handler Handler) (*Subscription, error) {
	if !eventType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, eventType)
	}
	if handler == nil {
		return nil, ErrEventHandlerNil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	current := b.subs[eventType]
	if isComparable(handler) {
		for _, existing := range current {
			if isComparable(existing.handler) && existing.handler == handler {
				return existing, nil
			}
		}
	}

	sub := &Subscription{
		id:        uuid.New().String(),
		owner:     owner,
		eventType: eventType,
		handler:   handler,
		async:     b.cfg.DeliveryMode == DeliveryAsync,
	}

	// copy-on-write so publishers can iterate a snapshot without holding the lock
	next := make([]*Subscription, len(current), len(current)+1)
	copy(next, current)
	b.subs[eventType] = append(next, sub)

	if sub.async {
		sub.signal = make(chan struct{}, 1)
		sub.finished = make(chan struct{})
		b.wg.Add(1)
		go b.run(sub)
	}

	b.logger.Debug("Subscribed", "owner", owner, "type", eventType, "subscription", sub.id)
	return sub, nil
}

// Unsubscribe removes a subscription. It is a no-op if already removed.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil || !sub.cancelled.CompareAndSwap(false, true) {
		return
	}

	b.mu.Lock()
	b.removeLocked(sub)
	b.mu.Unlock()

	b.stop(sub)
}

// UnsubscribeOwner removes every subscription registered by owner and returns
// how many were removed.
func (b *Bus) UnsubscribeOwner(owner string) int {
	var removed []*Subscription

	b.mu.Lock()
	for _, subs := range b.subs {
		for _, sub := range subs {
			if sub.owner == owner && sub.cancelled.CompareAndSwap(false, true) {
				removed = append(removed, sub)
			}
		}
	}
	for _, sub := range removed {
		b.removeLocked(sub)
	}
	b.mu.Unlock()

	for _, sub := range removed {
		b.stop(sub)
	}
	return len(removed)
}

func (b *Bus) removeLocked(sub *Subscription) {
	current := b.subs[sub.eventType]
	next := make([]*Subscription, 0, len(current))
	for _, s := range current {
		if s != sub {
			next = append(next, s)
		}
	}
	if len(next) == 0 {
		delete(b.subs, sub.eventType)
		return
	}
	b.subs[sub.eventType] = next
}

// Publish delivers event to the current subscribers of its type. Subscriber
// failures never reach the caller: they are logged and reported as a
// module_error event.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	if err := event.validate(); err != nil {
		return fmt.Errorf("publish %q: %w", event.Type, err)
	}
	if event.ID == "" {
		event.ID = newEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	subs := b.subs[event.Type]
	b.mu.RUnlock()

	b.record(event)

	for _, sub := range subs {
		if sub.cancelled.Load() {
			continue
		}
		if sub.async {
			b.enqueue(sub, event)
			continue
		}
		b.inflight.add()
		b.deliver(ctx, sub, event)
		b.inflight.done()
	}
	return nil
}

// Emit is a convenience wrapper building the event from a payload.
func (b *Bus) Emit(ctx context.Context, source string, payload Payload) error {
	return b.Publish(ctx, NewEvent(source, payload))
}

func (b *Bus) deliver(ctx context.Context, sub *Subscription, event Event) {
	err := invoke(ctx, sub.handler, event)
	if err == nil {
		b.delivered.Add(1)
		return
	}

	b.failed.Add(1)
	b.logger.Error("Event handler failed",
		"owner", sub.owner, "type", event.Type, "event", event.ID, "error", err)

	if event.Type == TypeModuleError {
		return
	}
	report := NewEvent("eventbus", ModuleError{
		Module:     sub.owner,
		FailedType: event.Type,
		EventID:    event.ID,
		Err:        err.Error(),
	})
	if perr := b.Publish(ctx, report); perr != nil {
		b.logger.Debug("Failed to publish module error", "error", perr)
	}
}

func invoke(ctx context.Context, h Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h.HandleEvent(ctx, event)
}

func (b *Bus) enqueue(sub *Subscription, event Event) {
	sub.mu.Lock()
	if sub.stopped || len(sub.queue) >= b.cfg.BufferSize {
		sub.mu.Unlock()
		b.dropped.Add(1)
		b.logger.Warn("Dropped event for subscriber", "owner", sub.owner, "type", event.Type)
		return
	}
	b.inflight.add()
	sub.queue = append(sub.queue, event)
	sub.mu.Unlock()

	select {
	case sub.signal <- struct{}{}:
	default:
	}
}

// run is the per-subscription delivery loop for async mode. Events are
// handled one at a time, so a subscriber sees its type in publish order.
func (b *Bus) run(sub *Subscription) {
	defer b.wg.Done()
	defer close(sub.finished)

	for {
		sub.mu.Lock()
		if len(sub.queue) == 0 {
			if sub.stopped {
				sub.mu.Unlock()
				return
			}
			sub.mu.Unlock()
			<-sub.signal
			continue
		}
		event := sub.queue[0]
		sub.queue = sub.queue[1:]
		sub.mu.Unlock()

		if sub.cancelled.Load() {
			b.dropped.Add(1)
		} else {
			b.deliver(context.Background(), sub, event)
		}
		b.inflight.done()
	}
}

func (b *Bus) stop(sub *Subscription) {
	if !sub.async {
		return
	}
	sub.mu.Lock()
	if sub.stopped {
		sub.mu.Unlock()
		return
	}
	sub.stopped = true
	pending := len(sub.queue)
	sub.queue = nil
	sub.mu.Unlock()

	for i := 0; i < pending; i++ {
		b.dropped.Add(1)
		b.inflight.done()
	}
	select {
	case sub.signal <- struct{}{}:
	default:
	}
}

// Drain blocks until every in-flight delivery has completed or ctx is done.
// Calling it from inside a handler waits for that handler too.
func (b *Bus) Drain(ctx context.Context) error {
	return b.inflight.wait(ctx)
}

// Close rejects further publishing, stops async delivery and waits for the
// delivery goroutines to exit.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*Subscription
	for _, subs := range b.subs {
		all = append(all, subs...)
	}
	b.subs = make(map[Type][]*Subscription)
	b.mu.Unlock()

	for _, sub := range all {
		sub.cancelled.Store(true)
		b.stop(sub)
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrDrainTimeout, ctx.Err())
	}
}

// SubscriberCount returns the number of active subscriptions for a type.
func (b *Bus) SubscriberCount(eventType Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}

// SubscriptionCount returns the number of active subscriptions, optionally
// restricted to one owner.
func (b *Bus) SubscriptionCount(owner string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, subs := range b.subs {
		for _, sub := range subs {
			if owner == "" || sub.owner == owner {
				n++
			}
		}
	}
	return n
}

// Stats returns delivery counters for monitoring and tests.
func (b *Bus) Stats() Stats {
	return Stats{
		Delivered: b.delivered.Load(),
		Failed:    b.failed.Load(),
		Dropped:   b.dropped.Load(),
	}
}

// Stats holds delivery counters.
type Stats struct {
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

func (b *Bus) record(event Event) {
	if len(b.history) == 0 {
		return
	}
	b.historyMu.Lock()
	defer b.historyMu.Unlock()

	b.history[b.historyAt] = event
	b.historyAt = (b.historyAt + 1) % len(b.history)
	if b.historyN < len(b.history) {
		b.historyN++
	}
}

// Recent returns up to limit of the most recently published events, oldest
// first. A limit <= 0 returns the whole retained history.
func (b *Bus) Recent(limit int) []Event {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()

	n := b.historyN
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Event, 0, n)
	start := b.historyAt - n
	if start < 0 {
		start += len(b.history)
	}
	for i := 0; i < n; i++ {
		out = append(out, b.history[(start+i)%len(b.history)])
	}
	return out
}

// isComparable checks the dynamic value, so a struct whose interface field
// holds a func is not comparable.
func isComparable(h Handler) bool {
	v := reflect.ValueOf(h)
	return v.IsValid() && v.Comparable()
}

// tracker counts in-flight deliveries and lets Drain wait for zero.
type tracker struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func newTracker() *tracker {
	t := &tracker{idle: make(chan struct{})}
	close(t.idle)
	return t
}

func (t *tracker) add() {
	t.mu.Lock()
	if t.n == 0 {
		t.idle = make(chan struct{})
	}
	t.n++
	t.mu.Unlock()
}

func (t *tracker) done() {
	t.mu.Lock()
	t.n--
	if t.n == 0 {
		close(t.idle)
	}
	t.mu.Unlock()
}

func (t *tracker) wait(ctx context.Context) error {
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrDrainTimeout, ctx.Err())
	}
}
