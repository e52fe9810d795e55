package conversation

import (
	"errors"
	"fmt"
	"time"

	"github.com/GoCodeAlone/sage"
)

// Settings is the "conversation" configuration section.
type Settings struct {
	ListeningTimeout    time.Duration `json:"listening_timeout" yaml:"listening_timeout" toml:"listening_timeout" env:"LISTENING_TIMEOUT" default:"30s"`
	ConfirmationTimeout time.Duration `json:"confirmation_timeout" yaml:"confirmation_timeout" toml:"confirmation_timeout" env:"CONFIRMATION_TIMEOUT" default:"15s"`
	ExecutingTimeout    time.Duration `json:"executing_timeout" yaml:"executing_timeout" toml:"executing_timeout" env:"EXECUTING_TIMEOUT" default:"20s"`
	// SpeechTimeout releases the microphone if the synthesizer never reports completion.
	SpeechTimeout time.Duration `json:"speech_timeout" yaml:"speech_timeout" toml:"speech_timeout" env:"SPEECH_TIMEOUT" default:"30s"`

	// ConfidenceThreshold is inclusive: speech at exactly this confidence is actionable.
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold" toml:"confidence_threshold" env:"CONFIDENCE_THRESHOLD" default:"0.6"`

	WakeWords          []string `json:"wake_words" yaml:"wake_words" toml:"wake_words" env:"WAKE_WORDS" default:"[\"hey sage\",\"sage\",\"hey computer\",\"computer\"]"`
	PriorityPhrases    []string `json:"priority_phrases" yaml:"priority_phrases" toml:"priority_phrases" env:"PRIORITY_PHRASES" default:"[\"stop\",\"emergency\",\"goodbye\",\"shut down\"]"`
	ShutdownPhrases    []string `json:"shutdown_phrases" yaml:"shutdown_phrases" toml:"shutdown_phrases" env:"SHUTDOWN_PHRASES" default:"[\"shut down\"]"`
	AffirmativePhrases []string `json:"affirmative_phrases" yaml:"affirmative_phrases" toml:"affirmative_phrases" env:"AFFIRMATIVE_PHRASES" default:"[\"yes\",\"yeah\",\"yep\",\"sure\",\"ok\",\"okay\",\"alright\",\"confirm\",\"do it\",\"go ahead\",\"sounds good\",\"absolutely\",\"correct\"]"`
	NegativePhrases    []string `json:"negative_phrases" yaml:"negative_phrases" toml:"negative_phrases" env:"NEGATIVE_PHRASES" default:"[\"no\",\"nope\",\"nah\",\"cancel\",\"don't\",\"dont\",\"never mind\",\"nevermind\",\"abort\",\"not now\"]"`

	// HistorySize bounds the remembered conversation turns.
	HistorySize int `json:"history_size" yaml:"history_size" toml:"history_size" env:"HISTORY_SIZE" default:"20"`
}

// DefaultSettings returns the settings produced by the default tags alone.
func DefaultSettings() Settings {
	var s Settings
	if err := sage.ProcessConfigDefaults(&s); err != nil {
		panic(fmt.Sprintf("conversation: invalid default settings: %v", err))
	}
	return s
}

// Validate checks ranges and that the phrase sets are usable.
func (s *Settings) Validate() error {
	var errs []error
	for name, d := range map[string]time.Duration{
		"listening_timeout":    s.ListeningTimeout,
		"confirmation_timeout": s.ConfirmationTimeout,
		"executing_timeout":    s.ExecutingTimeout,
		"speech_timeout":       s.SpeechTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if s.ConfidenceThreshold < 0 || s.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("confidence_threshold must be within [0,1], got %v", s.ConfidenceThreshold))
	}
	if len(s.WakeWords) == 0 {
		errs = append(errs, errors.New("wake_words must not be empty"))
	}
	if len(s.AffirmativePhrases) == 0 || len(s.NegativePhrases) == 0 {
		errs = append(errs, errors.New("affirmative_phrases and negative_phrases must not be empty"))
	}
	if s.HistorySize < 0 {
		errs = append(errs, fmt.Errorf("history_size must not be negative, got %d", s.HistorySize))
	}
	return errors.Join(errs...)
}
