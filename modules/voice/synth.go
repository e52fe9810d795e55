package voice

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// Synthesizer vocalizes text. Speak blocks until the utterance is finished.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// SynthesizerFunc adapts a function to Synthesizer.
type SynthesizerFunc func(ctx context.Context, text string) error

// Speak implements Synthesizer.
func (f SynthesizerFunc) Speak(ctx context.Context, text string) error { return f(ctx, text) }

// writerSynthesizer prints replies, for terminals and tests.
type writerSynthesizer struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *writerSynthesizer) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "sage> %s\n", text)
	return err
}

// commandSynthesizer runs an external text-to-speech program such as espeak-ng.
type commandSynthesizer struct {
	argv []string
}

func (s commandSynthesizer) Speak(ctx context.Context, text string) error {
	args := append(append([]string(nil), s.argv[1:]...), text)
	out, err := exec.CommandContext(ctx, s.argv[0], args...).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s: %w: %s", s.argv[0], err, msg)
		}
		return fmt.Errorf("%s: %w", s.argv[0], err)
	}
	return nil
}
