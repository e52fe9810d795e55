package conversation

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

type busRecorder struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (r *busRecorder) HandleEvent(_ context.Context, e eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *busRecorder) payloads() []eventbus.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]eventbus.Payload, len(r.events))
	for i, e := range r.events {
		out[i] = e.Payload
	}
	return out
}

func (r *busRecorder) spoken() []string {
	var out []string
	for _, p := range r.payloads() {
		if s, ok := p.(eventbus.SpeakRequest); ok {
			out = append(out, s.Text)
		}
	}
	return out
}

type controllerHarness struct {
	app        *sage.StdApplication
	controller *Controller
	rec        *busRecorder
	configPath string
}

func newControllerHarness(t *testing.T, configYAML string) *controllerHarness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	ctl := New(
		WithClassifier(keywordClassifier()),
		WithPolicy(stubPolicy{confirm: map[string]string{"schedule_meeting": "Schedule meeting?"}}),
	)
	registry := sage.NewRegistry()
	registry.MustRegister(ModuleName, func() sage.Module { return ctl })

	app, err := sage.NewStdApplication(sage.NewConfigLoader(feeders.NewYamlFeeder(path)), registry, sage.NopLogger())
	require.NoError(t, err)

	rec := &busRecorder{}
	for _, typ := range []eventbus.Type{
		eventbus.TypeStateChanged, eventbus.TypeSpeakRequest, eventbus.TypeCaptureControl,
		eventbus.TypeCommandReady, eventbus.TypeShutdownRequested,
	} {
		_, err := app.Bus().Subscribe("test", typ, rec)
		require.NoError(t, err)
	}

	ctx := context.Background()
	_, err = app.Load(ctx, sage.ModuleDescriptor{Name: ModuleName, Required: true})
	require.NoError(t, err)
	require.NoError(t, ctl.Start(ctx))
	t.Cleanup(func() { _ = app.ShutdownAll(context.Background()) })

	return &controllerHarness{app: app, controller: ctl, rec: rec, configPath: path}
}

func (h *controllerHarness) publish(t *testing.T, payload eventbus.Payload) {
	t.Helper()
	require.NoError(t, h.app.Bus().Emit(context.Background(), "test", payload))
}

func (h *controllerHarness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.controller.Snapshot().State == want.String()
	}, 2*time.Second, 5*time.Millisecond, "waiting for %s", want)
}

func TestController_EffectsPublishedInOrder(t *testing.T) {
	h := newControllerHarness(t, "conversation:\n  listening_timeout: 1m\n")

	h.publish(t, eventbus.SpeechRecognized{Text: "hey sage", Confidence: 0.9})
	h.waitState(t, Listening)

	require.Eventually(t, func() bool { return len(h.rec.payloads()) >= 3 }, time.Second, 5*time.Millisecond)
	payloads := h.rec.payloads()
	assert.Equal(t, eventbus.StateChanged{From: "SLEEPING", To: "LISTENING", Reason: "wake word hey sage"}, payloads[0])
	assert.Equal(t, eventbus.CaptureControl{Action: eventbus.CapturePause}, payloads[1])
	speak, ok := payloads[2].(eventbus.SpeakRequest)
	require.True(t, ok)
	assert.Equal(t, ReplyListening, speak.Text)
}

func TestController_ListeningTimeoutFiresTimer(t *testing.T) {
	h := newControllerHarness(t, "conversation:\n  listening_timeout: 50ms\n")

	h.publish(t, eventbus.WakeWordDetected{Keyword: "sage", Confidence: 1})
	h.waitState(t, Listening)
	h.publish(t, eventbus.SpeechCompleted{})

	h.waitState(t, Sleeping)
	assert.Contains(t, h.rec.payloads(), eventbus.StateChanged{From: "LISTENING", To: "SLEEPING", Reason: "listening timeout"})
	assert.Contains(t, h.rec.payloads(), eventbus.CaptureControl{Action: eventbus.CaptureResume})
}

func TestController_QualifyingEventResetsTimer(t *testing.T) {
	h := newControllerHarness(t, "conversation:\n  listening_timeout: 150ms\n")

	h.publish(t, eventbus.WakeWordDetected{Keyword: "sage"})
	h.waitState(t, Listening)

	for range 4 {
		time.Sleep(60 * time.Millisecond)
		h.publish(t, eventbus.SpeechRecognized{Text: "hmm", Confidence: 0.1})
	}
	assert.Equal(t, Listening.String(), h.controller.Snapshot().State)

	h.waitState(t, Sleeping)
}

func TestController_CommandRoundTrip(t *testing.T) {
	h := newControllerHarness(t, "conversation:\n  listening_timeout: 1m\n")

	h.publish(t, eventbus.SpeechRecognized{Text: "sage what time is it", Confidence: 0.9})
	h.waitState(t, Executing)

	var cmd eventbus.Command
	for _, p := range h.rec.payloads() {
		if ready, ok := p.(eventbus.CommandReady); ok {
			cmd = ready.Command
		}
	}
	require.NotEmpty(t, cmd.ID)

	h.publish(t, eventbus.CommandResult{CommandID: cmd.ID, Text: "It's noon", Command: cmd})
	h.waitState(t, Listening)
	require.Eventually(t, func() bool {
		spoken := h.rec.spoken()
		return len(spoken) > 0 && spoken[len(spoken)-1] == "It's noon"
	}, time.Second, 5*time.Millisecond)
}

func TestController_ReloadUpdatesSettings(t *testing.T) {
	h := newControllerHarness(t, "conversation:\n  wake_words: [sage]\n")

	require.NoError(t, os.WriteFile(h.configPath, []byte("conversation:\n  wake_words: [jarvis]\n"), 0o600))
	h.controller.reload()

	h.publish(t, eventbus.SpeechRecognized{Text: "jarvis", Confidence: 0.9})
	h.waitState(t, Listening)
}

func TestController_InvalidReloadKeepsSettings(t *testing.T) {
	h := newControllerHarness(t, "conversation:\n  wake_words: [sage]\n")

	require.NoError(t, os.WriteFile(h.configPath, []byte("conversation:\n  confidence_threshold: 7\n"), 0o600))
	h.controller.reload()

	h.publish(t, eventbus.SpeechRecognized{Text: "sage", Confidence: 0.9})
	h.waitState(t, Listening)
}

func TestController_StatusAndShutdown(t *testing.T) {
	h := newControllerHarness(t, "")

	h.publish(t, eventbus.SpeechRecognized{Text: "sage schedule a meeting", Confidence: 0.9})
	h.waitState(t, Confirming)

	var details map[string]any
	for _, st := range h.app.Modules() {
		if st.Name == ModuleName {
			details = st.Details
		}
	}
	require.NotNil(t, details)
	assert.Equal(t, "CONFIRMING", details["state"])
	assert.Equal(t, "schedule_meeting", details["pending"])

	require.NoError(t, h.app.ShutdownAll(context.Background()))
	select {
	case <-h.controller.done:
	default:
		t.Fatal("loop still running after shutdown")
	}
}
