package voice

import (
	"bytes"
	"context"
	"errors"
	"io"
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

type recorder struct {
	mu       sync.Mutex
	payloads []eventbus.Payload
}

func (r *recorder) HandleEvent(_ context.Context, e eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, e.Payload)
	return nil
}

func (r *recorder) completed() []eventbus.SpeechCompleted {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []eventbus.SpeechCompleted
	for _, p := range r.payloads {
		if c, ok := p.(eventbus.SpeechCompleted); ok {
			out = append(out, c)
		}
	}
	return out
}

func (r *recorder) heard() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, p := range r.payloads {
		if s, ok := p.(eventbus.SpeechRecognized); ok {
			out = append(out, s.Text)
		}
	}
	return out
}

type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func startVoice(t *testing.T, cfg string, opts ...Option) (*sage.StdApplication, *VoiceModule, *recorder) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	mod := New(opts...)
	registry := sage.NewRegistry()
	registry.MustRegister(ModuleName, func() sage.Module { return mod })
	app, err := sage.NewStdApplication(sage.NewConfigLoader(feeders.NewYamlFeeder(path)), registry, sage.NopLogger())
	require.NoError(t, err)

	rec := &recorder{}
	for _, typ := range []eventbus.Type{eventbus.TypeSpeechCompleted, eventbus.TypeSpeechRecognized} {
		_, err := app.Bus().Subscribe("test", typ, rec)
		require.NoError(t, err)
	}

	ctx := context.Background()
	_, err = app.Load(ctx, sage.ModuleDescriptor{Name: ModuleName, Required: true})
	require.NoError(t, err)
	require.NoError(t, mod.Start(ctx))
	t.Cleanup(func() { _ = app.ShutdownAll(context.Background()) })
	return app, mod, rec
}

func TestVoice_SpeaksAndCompletes(t *testing.T) {
	out := &lockedBuffer{}
	app, _, rec := startVoice(t, "voice:\n  input: none\n", WithOutput(out))

	require.NoError(t, app.Bus().Emit(context.Background(), "test", eventbus.SpeakRequest{ID: "s1", Text: "I'm listening"}))

	require.Eventually(t, func() bool { return len(rec.completed()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, eventbus.SpeechCompleted{RequestID: "s1"}, rec.completed()[0])
	assert.Equal(t, "sage> I'm listening\n", out.String())
}

func TestVoice_SynthesisFailureStillCompletes(t *testing.T) {
	failing := SynthesizerFunc(func(context.Context, string) error { return errors.New("no audio device") })
	app, _, rec := startVoice(t, "voice:\n  input: none\n", WithSynthesizer(failing))

	require.NoError(t, app.Bus().Emit(context.Background(), "test", eventbus.SpeakRequest{ID: "s1", Text: "hello"}))

	require.Eventually(t, func() bool { return len(rec.completed()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "no audio device", rec.completed()[0].Err)
}

func TestVoice_QueueFull(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	blocking := SynthesizerFunc(func(ctx context.Context, _ string) error {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	app, _, rec := startVoice(t, "voice:\n  input: none\n  queue_size: 1\n", WithSynthesizer(blocking))
	ctx := context.Background()

	require.NoError(t, app.Bus().Emit(ctx, "test", eventbus.SpeakRequest{ID: "s1", Text: "one"}))
	<-started
	require.NoError(t, app.Bus().Emit(ctx, "test", eventbus.SpeakRequest{ID: "s2", Text: "two"}))
	require.NoError(t, app.Bus().Emit(ctx, "test", eventbus.SpeakRequest{ID: "s3", Text: "three"}))

	require.Len(t, rec.completed(), 1)
	assert.Equal(t, eventbus.SpeechCompleted{RequestID: "s3", Err: "speak queue full"}, rec.completed()[0])

	close(release)
	require.Eventually(t, func() bool { return len(rec.completed()) == 3 }, time.Second, 5*time.Millisecond)
}

func TestVoice_ConsoleInputHonoursCaptureControl(t *testing.T) {
	in, w := io.Pipe()
	t.Cleanup(func() { _ = w.Close() })
	app, mod, rec := startVoice(t, "voice:\n  input: console\n  confidence: 0.9\n", WithInput(in), WithOutput(io.Discard))
	ctx := context.Background()

	_, err := io.WriteString(w, "hey sage\n\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rec.heard()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, app.Bus().Emit(ctx, "test", eventbus.CaptureControl{Action: eventbus.CapturePause}))
	_, err = io.WriteString(w, "my own voice\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return mod.Status()["ignored"] == int64(1) }, time.Second, 5*time.Millisecond)

	require.NoError(t, app.Bus().Emit(ctx, "test", eventbus.CaptureControl{Action: eventbus.CaptureResume}))
	_, err = io.WriteString(w, "what time is it\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rec.heard()) == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"hey sage", "what time is it"}, rec.heard())
	assert.Equal(t, int64(2), mod.Status()["heard"])
}

func TestVoiceConfig_Validate(t *testing.T) {
	cfg := VoiceConfig{Input: InputConsole, Synthesizer: SynthLog, Confidence: 1, SpeakTimeout: time.Second, QueueSize: 1}
	assert.NoError(t, cfg.Validate())

	cfg = VoiceConfig{Input: "microphone", Synthesizer: SynthCommand, Confidence: 2}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"input", "command is required", "confidence", "speak_timeout", "queue_size"} {
		assert.Contains(t, err.Error(), want)
	}
}
