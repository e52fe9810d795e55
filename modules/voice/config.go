package voice

import (
	"errors"
	"fmt"
	"time"
)

// Input sources.
const (
	InputConsole = "console"
	InputNone    = "none"
)

// Synthesizer kinds.
const (
	SynthLog     = "log"
	SynthCommand = "command"
)

// VoiceConfig is the "voice" configuration section.
type VoiceConfig struct {
	// Input is where utterances come from: console reads one utterance per line.
	Input string `json:"input" yaml:"input" toml:"input" env:"INPUT" default:"console"`
	// Confidence is attached to console utterances.
	Confidence float64 `json:"confidence" yaml:"confidence" toml:"confidence" env:"CONFIDENCE" default:"1.0"`

	// Synthesizer is "log" to print replies or "command" to run Command.
	Synthesizer string `json:"synthesizer" yaml:"synthesizer" toml:"synthesizer" env:"SYNTHESIZER" default:"log"`
	// Command is the text-to-speech program and its arguments. The text is
	// appended as the last argument.
	Command []string `json:"command" yaml:"command" toml:"command" env:"COMMAND" default:"[\"espeak-ng\",\"-v\",\"en\"]"`
	// SpeakTimeout bounds one utterance.
	SpeakTimeout time.Duration `json:"speak_timeout" yaml:"speak_timeout" toml:"speak_timeout" env:"SPEAK_TIMEOUT" default:"30s"`
	// QueueSize is how many speak requests may wait for the synthesizer.
	QueueSize int `json:"queue_size" yaml:"queue_size" toml:"queue_size" env:"QUEUE_SIZE" default:"16"`
}

// Validate checks the input and synthesizer selection.
func (c *VoiceConfig) Validate() error {
	var errs []error
	switch c.Input {
	case InputConsole, InputNone:
	default:
		errs = append(errs, fmt.Errorf("input must be %q or %q, got %q", InputConsole, InputNone, c.Input))
	}
	switch c.Synthesizer {
	case SynthLog:
	case SynthCommand:
		if len(c.Command) == 0 || c.Command[0] == "" {
			errs = append(errs, errors.New("command is required for the command synthesizer"))
		}
	default:
		errs = append(errs, fmt.Errorf("synthesizer must be %q or %q, got %q", SynthLog, SynthCommand, c.Synthesizer))
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		errs = append(errs, fmt.Errorf("confidence must be within [0,1], got %v", c.Confidence))
	}
	if c.SpeakTimeout <= 0 {
		errs = append(errs, fmt.Errorf("speak_timeout must be positive, got %s", c.SpeakTimeout))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("queue_size must be positive, got %d", c.QueueSize))
	}
	return errors.Join(errs...)
}
