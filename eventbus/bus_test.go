package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type countingLogger struct {
	noopLogger
	errors atomic.Int32
}

func (l *countingLogger) Error(string, ...any) { l.errors.Add(1) }

// recorder is a comparable handler that remembers what it received.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) HandleEvent(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		if p, ok := e.Payload.(SpeakRequest); ok {
			out = append(out, p.Text)
		}
	}
	return out
}

func speak(text string) Event {
	return NewEvent("test", SpeakRequest{Text: text})
}

func TestSubscribeRejectsUnknownType(t *testing.T) {
	bus := New(DefaultConfig(), noopLogger{})

	_, err := bus.Subscribe("test", Type("bogus"), &recorder{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidType)

	_, err = bus.Subscribe("test", TypeSpeakRequest, nil)
	assert.ErrorIs(t, err, ErrEventHandlerNil)
}

func TestPublishRejectsUnknownType(t *testing.T) {
	bus := New(DefaultConfig(), noopLogger{})

	err := bus.Publish(context.Background(), Event{Type: "bogus", Payload: SpeakRequest{}})
	assert.ErrorIs(t, err, ErrInvalidType)

	err = bus.Publish(context.Background(), Event{Type: TypeSpeakRequest})
	assert.ErrorIs(t, err, ErrPayloadNil)

	err = bus.Publish(context.Background(), Event{Type: TypeSpeakRequest, Payload: CaptureControl{}})
	assert.ErrorIs(t, err, ErrPayloadTypeMismatch)
}

func TestResubscribeSameHandlerIsNoop(t *testing.T) {
	bus := New(DefaultConfig(), noopLogger{})
	rec := &recorder{}

	first, err := bus.Subscribe("test", TypeSpeakRequest, rec)
	require.NoError(t, err)
	second, err := bus.Subscribe("test", TypeSpeakRequest, rec)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, bus.SubscriberCount(TypeSpeakRequest))

	require.NoError(t, bus.Publish(context.Background(), speak("hello")))
	assert.Equal(t, 1, rec.count())
}

func TestHandlerFuncsAreDistinct(t *testing.T) {
	bus := New(DefaultConfig(), noopLogger{})
	var calls atomic.Int32
	fn := HandlerFunc(func(context.Context, Event) error {
		calls.Add(1)
		return nil
	})

	_, err := bus.Subscribe("test", TypeSpeakRequest, fn)
	require.NoError(t, err)
	_, err = bus.Subscribe("test", TypeSpeakRequest, fn)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), speak("hi")))
	assert.Equal(t, int32(2), calls.Load())
}

// wrappedHandler is comparable by type but holds a func at run time.
type wrappedHandler struct {
	Handler
}

func TestWrappedFuncHandlersAreDistinct(t *testing.T) {
	bus := New(DefaultConfig(), noopLogger{})
	var calls atomic.Int32
	h := wrappedHandler{HandlerFunc(func(context.Context, Event) error {
		calls.Add(1)
		return nil
	})}

	_, err := bus.Subscribe("test", TypeSpeakRequest, h)
	require.NoError(t, err)
	require.NotPanics(t, func() {
		_, err = bus.Subscribe("test", TypeSpeakRequest, h)
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), speak("hi")))
	assert.Equal(t, int32(2), calls.Load())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	bus := New(DefaultConfig(), noopLogger{})
	rec := &recorder{}

	sub, err := bus.Subscribe("test", TypeSpeakRequest, rec)
	require.NoError(t, err)

	bus.Unsubscribe(sub)
	bus.Unsubscribe(sub)
	bus.Unsubscribe(nil)

	assert.True(t, sub.Cancelled())
	assert.Equal(t, 0, bus.SubscriberCount(TypeSpeakRequest))
	require.NoError(t, bus.Publish(context.Background(), speak("ignored")))
	assert.Equal(t, 0, rec.count())
}

func TestUnsubscribeOwnerRemovesAll(t *testing.T) {
	bus := New(DefaultConfig(), noopLogger{})

	for _, typ := range []Type{TypeSpeakRequest, TypeCommandReady, TypeStateChanged} {
		_, err := bus.Subscribe("voice", typ, &recorder{})
		require.NoError(t, err)
	}
	_, err := bus.Subscribe("router", TypeCommandReady, &recorder{})
	require.NoError(t, err)

	assert.Equal(t, 3, bus.UnsubscribeOwner("voice"))
	assert.Equal(t, 0, bus.SubscriptionCount("voice"))
	assert.Equal(t, 1, bus.SubscriptionCount(""))
	assert.Equal(t, 0, bus.UnsubscribeOwner("voice"))
}

func TestDeliveryOrder(t *testing.T) {
	bus := New(DefaultConfig(), noopLogger{})

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		_, err := bus.Subscribe(name, TypeSpeakRequest, HandlerFunc(func(_ context.Context, e Event) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name+":"+e.Payload.(SpeakRequest).Text)
			return nil
		}))
		require.NoError(t, err)
	}

	require.NoError(t, bus.Publish(context.Background(), speak("1")))
	require.NoError(t, bus.Publish(context.Background(), speak("2")))

	assert.Equal(t, []string{"a:1", "b:1", "c:1", "a:2", "b:2", "c:2"}, order)
}

func TestFailingSubscriberIsIsolated(t *testing.T) {
	logger := &countingLogger{}
	bus := New(DefaultConfig(), logger)

	first, third := &recorder{}, &recorder{}
	errs := &recorder{}

	_, err := bus.Subscribe("first", TypeSpeakRequest, first)
	require.NoError(t, err)
	_, err = bus.Subscribe("broken", TypeSpeakRequest, HandlerFunc(func(context.Context, Event) error {
		return errors.New("boom")
	}))
	require.NoError(t, err)
	_, err = bus.Subscribe("third", TypeSpeakRequest, third)
	require.NoError(t, err)
	_, err = bus.Subscribe("monitor", TypeModuleError, errs)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), speak("hello")))

	assert.Equal(t, 1, first.count())
	assert.Equal(t, 1, third.count())
	require.Equal(t, 1, errs.count())
	assert.Equal(t, int32(1), logger.errors.Load())

	report := errs.events[0].Payload.(ModuleError)
	assert.Equal(t, "broken", report.Module)
	assert.Equal(t, TypeSpeakRequest, report.FailedType)
	assert.Contains(t, report.Err, "boom")

	stats := bus.Stats()
	assert.Equal(t, uint64(1), stats.Failed)
}

func TestPanickingSubscriberIsRecovered(t *testing.T) {
	bus := New(DefaultConfig(), noopLogger{})
	after := &recorder{}
	errs := &recorder{}

	_, err := bus.Subscribe("panicky", TypeSpeakRequest, HandlerFunc(func(context.Context, Event) error {
		panic("kaboom")
	}))
	require.NoError(t, err)
	_, err = bus.Subscribe("after", TypeSpeakRequest, after)
	require.NoError(t, err)
	_, err = bus.Subscribe("monitor", TypeModuleError, errs)
	require.NoError(t, err)

	require.NotPanics(t, func() {
		require.NoError(t, bus.Publish(context.Background(), speak("hello")))
	})
	assert.Equal(t, 1, after.count())
	require.Equal(t, 1, errs.count())
	assert.Contains(t, errs.events[0].Payload.(ModuleError).Err, "kaboom")
}

func TestModuleErrorHandlerFailureDoesNotLoop(t *testing.T) {
	logger := &countingLogger{}
	bus := New(DefaultConfig(), logger)

	_, err := bus.Subscribe("broken", TypeSpeakRequest, HandlerFunc(func(context.Context, Event) error {
		return errors.New("first")
	}))
	require.NoError(t, err)
	var reports atomic.Int32
	_, err = bus.Subscribe("monitor", TypeModuleError, HandlerFunc(func(context.Context, Event) error {
		reports.Add(1)
		return errors.New("second")
	}))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), speak("x")))
	assert.Equal(t, int32(1), reports.Load())
	assert.Equal(t, int32(2), logger.errors.Load())
}

func TestReentrantPublish(t *testing.T) {
	bus := New(DefaultConfig(), noopLogger{})
	rec := &recorder{}

	_, err := bus.Subscribe("echo", TypeCommandReady, HandlerFunc(func(ctx context.Context, e Event) error {
		return bus.Emit(ctx, "echo", SpeakRequest{Text: "echo"})
	}))
	require.NoError(t, err)
	_, err = bus.Subscribe("rec", TypeSpeakRequest, rec)
	require.NoError(t, err)

	require.NoError(t, bus.Emit(context.Background(), "test", CommandReady{}))
	assert.Equal(t, []string{"echo"}, rec.texts())
}

func TestSubscribeDuringPublish(t *testing.T) {
	bus := New(DefaultConfig(), noopLogger{})
	late := &recorder{}

	_, err := bus.Subscribe("early", TypeSpeakRequest, HandlerFunc(func(context.Context, Event) error {
		_, err := bus.Subscribe("late", TypeSpeakRequest, late)
		return err
	}))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), speak("1")))
	assert.Equal(t, 0, late.count(), "subscriber added mid-publish sees only later events")

	require.NoError(t, bus.Publish(context.Background(), speak("2")))
	assert.Equal(t, 1, late.count())
}

func TestAsyncDeliveryPreservesOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DeliveryMode = DeliveryAsync
	cfg.BufferSize = 128
	bus := New(cfg, noopLogger{})
	rec := &recorder{}

	sub, err := bus.Subscribe("rec", TypeSpeakRequest, rec)
	require.NoError(t, err)
	assert.True(t, sub.IsAsync())

	want := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		text := string(rune('A' + i%26))
		want = append(want, text)
		require.NoError(t, bus.Publish(context.Background(), speak(text)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Drain(ctx))
	assert.Equal(t, want, rec.texts())

	require.NoError(t, bus.Close(ctx))
	assert.ErrorIs(t, bus.Publish(context.Background(), speak("late")), ErrBusClosed)
}

func TestAsyncDropsWhenQueueFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DeliveryMode = DeliveryAsync
	cfg.BufferSize = 1
	bus := New(cfg, noopLogger{})

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	_, err := bus.Subscribe("slow", TypeSpeakRequest, HandlerFunc(func(context.Context, Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), speak("1")))
	<-started
	require.NoError(t, bus.Publish(context.Background(), speak("2")))
	require.NoError(t, bus.Publish(context.Background(), speak("3")))

	assert.Equal(t, uint64(1), bus.Stats().Dropped)
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Drain(ctx))
	assert.Equal(t, uint64(2), bus.Stats().Delivered)
}

func TestDrainTimesOut(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DeliveryMode = DeliveryAsync
	bus := New(cfg, noopLogger{})

	release := make(chan struct{})
	defer close(release)
	_, err := bus.Subscribe("stuck", TypeSpeakRequest, HandlerFunc(func(context.Context, Event) error {
		<-release
		return nil
	}))
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), speak("1")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Drain(ctx), ErrDrainTimeout)
}

func TestRecentHistoryIsBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistorySize = 3
	bus := New(cfg, noopLogger{})

	for _, text := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, bus.Publish(context.Background(), speak(text)))
	}

	texts := func(events []Event) []string {
		out := make([]string, 0, len(events))
		for _, e := range events {
			out = append(out, e.Payload.(SpeakRequest).Text)
		}
		return out
	}
	assert.Equal(t, []string{"c", "d", "e"}, texts(bus.Recent(0)))
	assert.Equal(t, []string{"d", "e"}, texts(bus.Recent(2)))
	assert.Equal(t, []string{"c", "d", "e"}, texts(bus.Recent(10)))
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	bus := New(DefaultConfig(), noopLogger{})
	var delivered atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = bus.Publish(context.Background(), speak("x"))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				sub, err := bus.Subscribe("churn", TypeSpeakRequest, HandlerFunc(func(context.Context, Event) error {
					delivered.Add(1)
					return nil
				}))
				if err == nil {
					bus.Unsubscribe(sub)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, bus.SubscriberCount(TypeSpeakRequest))
}

func TestNewEventDerivesType(t *testing.T) {
	e := NewEvent("conversation", StateChanged{From: "SLEEPING", To: "LISTENING"})
	assert.Equal(t, TypeStateChanged, e.Type)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "conversation", e.Source)
	assert.False(t, e.Timestamp.IsZero())
	assert.Len(t, Types(), 14)
}

func TestPayloadVariantsCoverVocabulary(t *testing.T) {
	variants := []Payload{
		SpeechRecognized{}, WakeWordDetected{}, SpeakRequest{}, SpeechCompleted{},
		CaptureControl{}, CommandReady{}, CommandResult{}, CommandFailed{},
		StateChanged{}, ReminderDue{}, ModuleError{}, ModuleLoaded{},
		ModuleUnloaded{}, ShutdownRequested{},
	}
	seen := make(map[Type]bool, len(variants))
	for _, p := range variants {
		assert.False(t, seen[p.EventType()], "duplicate variant for %s", p.EventType())
		seen[p.EventType()] = true
	}
	for _, typ := range Types() {
		assert.True(t, seen[typ], "no payload variant for %s", typ)
	}
}
