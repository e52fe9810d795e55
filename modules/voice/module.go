// Package voice connects the assistant to the outside world: it turns input
// lines into speech_recognized events and speaks speak_request events.
//
// The recognizer is a line reader, one utterance per line. It honours
// capture_control: while capture is paused, lines are discarded so the
// assistant does not hear itself. Speak requests are queued and handled one
// at a time by a worker that publishes speech_completed for each of them,
// including the ones that failed or were dropped.
package voice

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/GoCodeAlone/sage"
	"github.com/GoCodeAlone/sage/eventbus"
)

// ModuleName is the unique identifier for the voice module.
const ModuleName = "voice"

var errQueueFull = errors.New("speak queue full")

// VoiceModule is the recognizer and synthesizer front end.
type VoiceModule struct {
	cfg    VoiceConfig
	app    sage.Application
	logger sage.Logger
	synth  Synthesizer
	in     io.Reader
	out    io.Writer

	queue   chan eventbus.SpeakRequest
	paused  atomic.Bool
	spoken  atomic.Int64
	heard   atomic.Int64
	ignored atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures the voice module.
type Option func(*VoiceModule)

// WithInput replaces stdin as the console input.
func WithInput(r io.Reader) Option {
	return func(m *VoiceModule) { m.in = r }
}

// WithOutput replaces stdout for the log synthesizer.
func WithOutput(w io.Writer) Option {
	return func(m *VoiceModule) { m.out = w }
}

// WithSynthesizer replaces the configured synthesizer.
func WithSynthesizer(s Synthesizer) Option {
	return func(m *VoiceModule) { m.synth = s }
}

// New creates the voice module.
func New(opts ...Option) *VoiceModule {
	m := &VoiceModule{in: os.Stdin, out: os.Stdout}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewModule is the registry factory.
func NewModule() sage.Module {
	return New()
}

// Name implements sage.Module.
func (m *VoiceModule) Name() string { return ModuleName }

// Init loads the configuration and picks the synthesizer.
func (m *VoiceModule) Init(_ context.Context, app sage.Application) error {
	if err := app.LoadSection(ModuleName, &m.cfg); err != nil {
		return fmt.Errorf("voice config: %w", err)
	}
	m.app = app
	m.logger = sage.ModuleLogger(app.Logger(), ModuleName)
	if m.synth == nil {
		switch m.cfg.Synthesizer {
		case SynthCommand:
			m.synth = commandSynthesizer{argv: m.cfg.Command}
		default:
			m.synth = &writerSynthesizer{w: m.out}
		}
	}
	m.queue = make(chan eventbus.SpeakRequest, m.cfg.QueueSize)
	return nil
}

// Subscriptions implements sage.EventHandler.
func (m *VoiceModule) Subscriptions() []eventbus.Type {
	return []eventbus.Type{eventbus.TypeSpeakRequest, eventbus.TypeCaptureControl}
}

// HandleEvent queues speak requests and applies capture control.
func (m *VoiceModule) HandleEvent(ctx context.Context, event eventbus.Event) error {
	switch p := event.Payload.(type) {
	case eventbus.SpeakRequest:
		select {
		case m.queue <- p:
		default:
			m.logger.Warn("Dropping speak request", "id", p.ID, "error", errQueueFull)
			return m.app.Bus().Emit(ctx, ModuleName, eventbus.SpeechCompleted{RequestID: p.ID, Err: errQueueFull.Error()})
		}
	case eventbus.CaptureControl:
		m.paused.Store(p.Action == eventbus.CapturePause)
		m.logger.Debug("Capture control", "action", p.Action)
	}
	return nil
}

// Start launches the synthesizer worker and, for console input, the reader.
func (m *VoiceModule) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel

	m.wg.Add(1)
	go m.speakLoop(runCtx)

	if m.cfg.Input == InputConsole {
		// The reader is not tracked: a blocked read on stdin cannot be interrupted.
		go m.readLoop(runCtx)
	}
	m.logger.Info("Voice started", "input", m.cfg.Input, "synthesizer", m.cfg.Synthesizer)
	return nil
}

func (m *VoiceModule) speakLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-m.queue:
			m.speak(ctx, req)
		}
	}
}

func (m *VoiceModule) speak(ctx context.Context, req eventbus.SpeakRequest) {
	sctx, cancel := context.WithTimeout(ctx, m.cfg.SpeakTimeout)
	err := m.synth.Speak(sctx, req.Text)
	cancel()

	done := eventbus.SpeechCompleted{RequestID: req.ID}
	if err != nil {
		m.logger.Error("Speech synthesis failed", "id", req.ID, "error", err)
		done.Err = err.Error()
	} else {
		m.spoken.Add(1)
	}
	if err := m.app.Bus().Emit(ctx, ModuleName, done); err != nil {
		m.logger.Error("Failed to publish speech completion", "id", req.ID, "error", err)
	}
}

func (m *VoiceModule) readLoop(ctx context.Context) {
	scanner := bufio.NewScanner(m.in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if m.paused.Load() {
			m.ignored.Add(1)
			m.logger.Debug("Capture paused, ignoring input", "text", text)
			continue
		}
		m.heard.Add(1)
		if err := m.app.Bus().Emit(ctx, ModuleName, eventbus.SpeechRecognized{Text: text, Confidence: m.cfg.Confidence}); err != nil {
			m.logger.Error("Failed to publish recognized speech", "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		m.logger.Error("Console input failed", "error", err)
	}
}

// Shutdown stops the worker. Queued requests are abandoned.
func (m *VoiceModule) Shutdown(ctx context.Context) error {
	if m.cancel == nil {
		return nil
	}
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
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
func (m *VoiceModule) Status() map[string]any {
	return map[string]any{
		"input":       m.cfg.Input,
		"synthesizer": m.cfg.Synthesizer,
		"paused":      m.paused.Load(),
		"queued":      len(m.queue),
		"spoken":      m.spoken.Load(),
		"heard":       m.heard.Load(),
		"ignored":     m.ignored.Load(),
	}
}
