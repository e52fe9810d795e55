package router

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/sage"
	"github.com/GoCodeAlone/sage/eventbus"
	"github.com/GoCodeAlone/sage/feeders"
)

type commandModule struct {
	name  string
	reply string
	err   error
	block bool
}

func (m *commandModule) Name() string                                 { return m.name }
func (m *commandModule) Init(context.Context, sage.Application) error { return nil }

func (m *commandModule) HandleCommand(ctx context.Context, cmd eventbus.Command) (sage.Response, error) {
	if m.block {
		<-ctx.Done()
		return sage.Response{}, ctx.Err()
	}
	if m.err != nil {
		return sage.Response{}, m.err
	}
	return sage.Response{Text: m.reply + cmd.Intent.Name, Data: cmd.Intent.Entities}, nil
}

type confirmingModule struct {
	commandModule
	promptErr error
}

func (m *confirmingModule) ConfirmationPrompt(_ context.Context, cmd eventbus.Command) (string, error) {
	if m.promptErr != nil {
		return "", m.promptErr
	}
	return "Schedule " + cmd.Intent.Entity("title") + "?", nil
}

func newRouterApp(t *testing.T, configYAML string, modules ...sage.Module) (*sage.StdApplication, *Router, error) {
	t.Helper()

	var loader *sage.ConfigLoader
	if configYAML != "" {
		path := filepath.Join(t.TempDir(), "sage.yaml")
		require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))
		loader = sage.NewConfigLoader(feeders.NewYamlFeeder(path))
	}

	registry := sage.NewRegistry()
	rt := New()
	registry.MustRegister(ModuleName, func() sage.Module { return rt })
	for _, m := range modules {
		registry.MustRegister(m.Name(), func() sage.Module { return m })
	}

	app, err := sage.NewStdApplication(loader, registry, sage.NopLogger())
	require.NoError(t, err)

	ctx := context.Background()
	for _, m := range modules {
		_, err := app.Load(ctx, sage.ModuleDescriptor{Name: m.Name(), Required: true})
		require.NoError(t, err)
	}
	_, err = app.Load(ctx, sage.ModuleDescriptor{Name: ModuleName, Required: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.ShutdownAll(context.Background()) })

	return app, rt, rt.Start(ctx)
}

func defaultModules() []sage.Module {
	return []sage.Module{
		&confirmingModule{commandModule: commandModule{name: "calendar", reply: "calendar:"}},
		&commandModule{name: "clock", reply: "clock:"},
		&commandModule{name: "chat", reply: "chat:"},
	}
}

func command(intent string, entities map[string]string) eventbus.Command {
	return eventbus.Command{ID: "cmd-" + intent, Intent: eventbus.Intent{Name: intent, Entities: entities}, RawText: intent}
}

func TestRouter_StartRequiresFallback(t *testing.T) {
	_, _, err := newRouterApp(t, "", &commandModule{name: "clock"})
	require.ErrorIs(t, err, ErrUnroutableIntent)
}

func TestRouter_Dispatch(t *testing.T) {
	_, rt, err := newRouterApp(t, "", defaultModules()...)
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		intent     string
		wantModule string
		wantText   string
	}{
		{"time_query", "clock", "clock:time_query"},
		{"check_calendar", "calendar", "calendar:check_calendar"},
		{"tell_joke", "chat", "chat:tell_joke"},
		// system is routed but not loaded
		{"system_status", "chat", "chat:system_status"},
	}
	for _, tt := range tests {
		t.Run(tt.intent, func(t *testing.T) {
			res, err := rt.Dispatch(ctx, command(tt.intent, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantModule, res.Module)
			assert.Equal(t, tt.wantText, res.Text)
			assert.False(t, res.RequiresConfirmation)
		})
	}
}

func TestRouter_DispatchUnconfirmedCommandAsksFirst(t *testing.T) {
	_, rt, err := newRouterApp(t, "", defaultModules()...)
	require.NoError(t, err)
	ctx := context.Background()
	cmd := command("schedule_meeting", map[string]string{"title": "standup"})

	res, err := rt.Dispatch(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, res.RequiresConfirmation)
	assert.Equal(t, "Schedule standup?", res.Prompt)
	assert.Empty(t, res.Text)

	cmd.Confirmed = true
	res, err = rt.Dispatch(ctx, cmd)
	require.NoError(t, err)
	assert.False(t, res.RequiresConfirmation)
	assert.Equal(t, "calendar:schedule_meeting", res.Text)
	assert.Equal(t, map[string]string{"title": "standup"}, res.Data)
}

func TestRouter_RequiresConfirmation(t *testing.T) {
	calendar := &confirmingModule{commandModule: commandModule{name: "calendar"}}
	_, rt, err := newRouterApp(t, "", calendar, &commandModule{name: "chat"})
	require.NoError(t, err)

	need, prompt, err := rt.RequiresConfirmation(command("schedule_meeting", map[string]string{"title": "review"}))
	require.NoError(t, err)
	assert.True(t, need)
	assert.Equal(t, "Schedule review?", prompt)

	need, _, err = rt.RequiresConfirmation(command("time_query", nil))
	require.NoError(t, err)
	assert.False(t, need)

	confirmed := command("schedule_meeting", nil)
	confirmed.Confirmed = true
	need, _, err = rt.RequiresConfirmation(confirmed)
	require.NoError(t, err)
	assert.False(t, need)

	calendar.promptErr = &sage.ValidationError{Field: "time", Message: "What time?"}
	_, _, err = rt.RequiresConfirmation(command("schedule_meeting", nil))
	var verr *sage.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "What time?", verr.Message)
}

func TestRouter_ConfiguredRoutes(t *testing.T) {
	cfg := `
router:
  fallback: chat
  dispatch_timeout: 5s
  routes:
    - intent: launch
      module: clock
      confirm: true
`
	_, rt, err := newRouterApp(t, cfg, defaultModules()...)
	require.NoError(t, err)

	need, prompt, err := rt.RequiresConfirmation(command("launch", nil))
	require.NoError(t, err)
	assert.True(t, need)
	assert.Equal(t, `Should I go ahead with "launch"?`, prompt)

	// the configured table replaces the defaults
	assert.Equal(t, "chat", rt.Route("time_query").Module)
	assert.Equal(t, 5*time.Second, rt.cfg.DispatchTimeout)
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{Fallback: "", DispatchTimeout: 0, Routes: []Route{
		{Intent: "a", Module: "x"},
		{Intent: "a", Module: "y"},
		{Intent: "b"},
	}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnroutableIntent)
	assert.Contains(t, err.Error(), "dispatch_timeout")
	assert.Contains(t, err.Error(), `duplicate intent "a"`)
	assert.Contains(t, err.Error(), "routes[2]")
}

type recorder struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (r *recorder) HandleEvent(_ context.Context, e eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) last() (eventbus.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return eventbus.Event{}, false
	}
	return r.events[len(r.events)-1], true
}

func subscribeOutcomes(t *testing.T, bus *eventbus.Bus) *recorder {
	t.Helper()
	rec := &recorder{}
	_, err := bus.Subscribe("test", eventbus.TypeCommandResult, rec)
	require.NoError(t, err)
	_, err = bus.Subscribe("test", eventbus.TypeCommandFailed, rec)
	require.NoError(t, err)
	return rec
}

func waitOutcome(t *testing.T, rec *recorder) eventbus.Event {
	t.Helper()
	var got eventbus.Event
	require.Eventually(t, func() bool {
		var ok bool
		got, ok = rec.last()
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestRouter_PublishesResult(t *testing.T) {
	app, _, err := newRouterApp(t, "", defaultModules()...)
	require.NoError(t, err)
	rec := subscribeOutcomes(t, app.Bus())

	cmd := command("time_query", nil)
	require.NoError(t, app.Bus().Emit(context.Background(), "conversation", eventbus.CommandReady{Command: cmd}))

	result, ok := waitOutcome(t, rec).Payload.(eventbus.CommandResult)
	require.True(t, ok)
	assert.Equal(t, cmd.ID, result.CommandID)
	assert.Equal(t, "clock:time_query", result.Text)
	assert.Equal(t, cmd, result.Command)
}

func TestRouter_ValidationErrorBecomesClarification(t *testing.T) {
	modules := defaultModules()
	modules[1].(*commandModule).err = &sage.ValidationError{Field: "zone", Message: "Which time zone?"}
	app, _, err := newRouterApp(t, "", modules...)
	require.NoError(t, err)
	rec := subscribeOutcomes(t, app.Bus())

	require.NoError(t, app.Bus().Emit(context.Background(), "conversation", eventbus.CommandReady{Command: command("time_query", nil)}))

	failed, ok := waitOutcome(t, rec).Payload.(eventbus.CommandFailed)
	require.True(t, ok)
	assert.True(t, failed.Validation)
	assert.Equal(t, "Which time zone?", failed.Message)
}

func TestRouter_DispatchTimeout(t *testing.T) {
	modules := defaultModules()
	modules[1].(*commandModule).block = true
	app, rt, err := newRouterApp(t, "router:\n  dispatch_timeout: 20ms\n", modules...)
	require.NoError(t, err)
	rec := subscribeOutcomes(t, app.Bus())

	require.NoError(t, app.Bus().Emit(context.Background(), "conversation", eventbus.CommandReady{Command: command("time_query", nil)}))

	failed, ok := waitOutcome(t, rec).Payload.(eventbus.CommandFailed)
	require.True(t, ok)
	assert.False(t, failed.Validation)
	assert.Equal(t, "Sorry, that took too long.", failed.Message)

	require.NoError(t, rt.Shutdown(context.Background()))
}
