package conversation

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/sage"
	"github.com/GoCodeAlone/sage/eventbus"
)

// Spoken responses.
const (
	ReplyListening          = "I'm listening"
	ReplyRepeat             = "I didn't catch that, could you repeat?"
	ReplyCancelled          = "Okay, cancelled"
	ReplyConfirmTimeout     = "Confirmation timed out"
	ReplyGoodbye            = "Goodbye"
	ReplyYesOrNo            = "I didn't understand. Please say yes or no."
	ReplyExecutingTimeout   = "Sorry, that is taking too long. Please try again."
	ReplyCommandFailed      = "Sorry, something went wrong."
	ReplyNotUnderstood      = "Sorry, I couldn't work out what to do with that."
	intentGeneralFallback   = "general"
	historySpeakerUser      = "user"
	historySpeakerAssistant = "assistant"
)

// Effect is an event the machine asks its owner to publish, in order.
type Effect = eventbus.Payload

// Classifier turns recognized text into an intent.
type Classifier interface {
	Classify(text string) eventbus.Intent
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(text string) eventbus.Intent

// Classify calls f(text).
func (f ClassifierFunc) Classify(text string) eventbus.Intent { return f(text) }

// ConfirmationPolicy decides whether a command must be confirmed before it is
// dispatched and what to ask. A *sage.ValidationError is spoken back as a
// clarification instead.
type ConfirmationPolicy interface {
	RequiresConfirmation(cmd eventbus.Command) (bool, string, error)
}

type noConfirmation struct{}

func (noConfirmation) RequiresConfirmation(eventbus.Command) (bool, string, error) {
	return false, "", nil
}

// PendingConfirmation holds a command waiting for a yes/no answer. It exists
// if and only if the machine is Confirming.
type PendingConfirmation struct {
	CommandName string           `json:"commandName"`
	Command     eventbus.Command `json:"command"`
	Prompt      string           `json:"prompt"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// Turn is one remembered utterance.
type Turn struct {
	At      time.Time `json:"at"`
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
}

// Snapshot is a copy of the machine state safe to hand to other goroutines.
type Snapshot struct {
	State           string               `json:"state"`
	Pending         *PendingConfirmation `json:"pending,omitempty"`
	ActiveCommand   string               `json:"activeCommand,omitempty"`
	LastInteraction time.Time            `json:"lastInteraction"`
	StateChangedAt  time.Time            `json:"stateChangedAt"`
	Speaking        int                  `json:"speaking"`
	History         []Turn               `json:"history"`
}

// Machine is the conversation state machine. It never reads the wall clock
// and never blocks: every method takes the current time and returns the
// events to publish, so replaying the same inputs at the same times yields the
// same states and effects. A Machine is not safe for concurrent use.
type Machine struct {
	settings   Settings
	wakeWords  []string
	classifier Classifier
	policy     ConfirmationPolicy
	newID      func() string

	state           State
	pending         *PendingConfirmation
	activeCommand   string
	lastInteraction time.Time
	stateChangedAt  time.Time

	speaking    int
	lastSpeakAt time.Time

	history []Turn
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithMachinePolicy sets the confirmation policy. Without one nothing is
// confirmed.
func WithMachinePolicy(p ConfirmationPolicy) MachineOption {
	return func(m *Machine) {
		if p != nil {
			m.policy = p
		}
	}
}

// WithIDGenerator replaces the command and utterance id generator.
func WithIDGenerator(fn func() string) MachineOption {
	return func(m *Machine) { m.newID = fn }
}

// NewMachine creates a machine in Sleeping state.
func NewMachine(settings Settings, classifier Classifier, now time.Time, opts ...MachineOption) *Machine {
	m := &Machine{
		classifier:      classifier,
		policy:          noConfirmation{},
		newID:           func() string { return uuid.NewString() },
		state:           Sleeping,
		lastInteraction: now,
		stateChangedAt:  now,
	}
	m.applySettings(settings)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) applySettings(s Settings) {
	m.settings = s
	m.wakeWords = longestFirst(s.WakeWords)
	m.trimHistory()
}

// UpdateSettings swaps settings in place. Running timeouts are re-evaluated
// against the new values on the next input.
func (m *Machine) UpdateSettings(s Settings) {
	m.applySettings(s)
}

// Settings returns the active settings.
func (m *Machine) Settings() Settings { return m.settings }

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Pending returns a copy of the pending confirmation, or nil.
func (m *Machine) Pending() *PendingConfirmation {
	if m.pending == nil {
		return nil
	}
	p := *m.pending
	return &p
}

// Snapshot copies the observable state.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		State:           m.state.String(),
		Pending:         m.Pending(),
		ActiveCommand:   m.activeCommand,
		LastInteraction: m.lastInteraction,
		StateChangedAt:  m.stateChangedAt,
		Speaking:        m.speaking,
		History:         append([]Turn(nil), m.history...),
	}
}

// Deadline returns the next instant at which Tick would change something.
func (m *Machine) Deadline() (time.Time, bool) {
	var deadline time.Time
	switch m.state {
	case Listening:
		deadline = m.lastInteraction.Add(m.settings.ListeningTimeout)
	case Confirming:
		deadline = m.lastInteraction.Add(m.settings.ConfirmationTimeout)
	case Executing:
		deadline = m.stateChangedAt.Add(m.settings.ExecutingTimeout)
	}
	if m.speaking > 0 {
		speech := m.lastSpeakAt.Add(m.settings.SpeechTimeout)
		if deadline.IsZero() || speech.Before(deadline) {
			deadline = speech
		}
	}
	return deadline, !deadline.IsZero()
}

// Tick applies every timeout that has elapsed at now.
func (m *Machine) Tick(now time.Time) []Effect {
	return m.expire(now)
}

// HandleWakeWord processes a wake_word_detected event.
func (m *Machine) HandleWakeWord(now time.Time, keyword string) []Effect {
	out := m.expire(now)
	switch m.state {
	case Sleeping:
		out = append(out, m.transition(now, Listening, "wake word "+keyword)...)
		out = append(out, m.say(now, ReplyListening)...)
	case Listening:
		m.lastInteraction = now
	}
	return out
}

// HandleSpeech processes a speech_recognized event.
func (m *Machine) HandleSpeech(now time.Time, text string, confidence float64) []Effect {
	out := m.expire(now)

	norm := normalize(text)
	if norm == "" {
		return out
	}

	if phrase, ok := matchAny(norm, m.settings.PriorityPhrases); ok {
		m.record(now, historySpeakerUser, text)
		return append(out, m.priority(now, phrase)...)
	}

	switch m.state {
	case Sleeping:
		keyword, ok := m.matchWakeWord(norm)
		if !ok {
			return out
		}
		m.record(now, historySpeakerUser, text)
		rest := stripPhrase(norm, keyword)
		out = append(out, m.transition(now, Listening, "wake word "+keyword)...)
		if rest == "" {
			return append(out, m.say(now, ReplyListening)...)
		}
		return append(out, m.listen(now, rest, confidence)...)

	case Listening:
		m.record(now, historySpeakerUser, text)
		return append(out, m.listen(now, norm, confidence)...)

	case Confirming:
		m.record(now, historySpeakerUser, text)
		m.lastInteraction = now
		if confidence < m.settings.ConfidenceThreshold {
			return append(out, m.say(now, ReplyRepeat)...)
		}
		if _, ok := matchAny(norm, m.settings.NegativePhrases); ok || negatesAny(norm, m.settings.AffirmativePhrases) {
			out = append(out, m.transition(now, Listening, "confirmation rejected")...)
			return append(out, m.say(now, ReplyCancelled)...)
		}
		if _, ok := matchAny(norm, m.settings.AffirmativePhrases); ok {
			cmd := m.pending.Command
			cmd.Confirmed = true
			out = append(out, m.transition(now, Executing, "confirmation accepted")...)
			m.activeCommand = cmd.ID
			return append(out, eventbus.CommandReady{Command: cmd})
		}
		return append(out, m.say(now, ReplyYesOrNo)...)

	default:
		// Executing: only priority phrases are honored until the result arrives
		return out
	}
}

// listen handles an utterance in Listening state.
func (m *Machine) listen(now time.Time, text string, confidence float64) []Effect {
	m.lastInteraction = now
	if confidence < m.settings.ConfidenceThreshold {
		return m.say(now, ReplyRepeat)
	}

	intent := m.classifier.Classify(text)
	if intent.Name == "" {
		intent.Name = intentGeneralFallback
	}
	cmd := eventbus.Command{ID: m.newID(), Intent: intent, RawText: text}

	required, prompt, err := m.policy.RequiresConfirmation(cmd)
	if err != nil {
		return m.say(now, clarification(err))
	}
	if required {
		out := m.transition(now, Confirming, "confirmation required")
		m.pending = &PendingConfirmation{
			CommandName: intent.Name,
			Command:     cmd,
			Prompt:      prompt,
			CreatedAt:   now,
		}
		return append(out, m.say(now, prompt)...)
	}

	out := m.transition(now, Executing, "command "+intent.Name)
	m.activeCommand = cmd.ID
	return append(out, eventbus.CommandReady{Command: cmd})
}

// HandleResult processes a command_result event.
func (m *Machine) HandleResult(now time.Time, r eventbus.CommandResult) []Effect {
	out := m.expire(now)
	if m.state != Executing || r.CommandID != m.activeCommand {
		return out
	}
	m.activeCommand = ""

	if r.RequiresConfirmation && !r.Command.Confirmed {
		out = append(out, m.transition(now, Confirming, "confirmation required")...)
		m.pending = &PendingConfirmation{
			CommandName: r.Command.Intent.Name,
			Command:     r.Command,
			Prompt:      r.Prompt,
			CreatedAt:   now,
		}
		return append(out, m.say(now, r.Prompt)...)
	}

	out = append(out, m.transition(now, Listening, "command completed")...)
	if r.Text != "" {
		out = append(out, m.say(now, r.Text)...)
	}
	return out
}

// HandleFailure processes a command_failed event.
func (m *Machine) HandleFailure(now time.Time, f eventbus.CommandFailed) []Effect {
	out := m.expire(now)
	if m.state != Executing || f.CommandID != m.activeCommand {
		return out
	}
	m.activeCommand = ""

	reason := "command failed"
	if f.Validation {
		reason = "clarification needed"
	}
	msg := f.Message
	if msg == "" {
		msg = ReplyCommandFailed
	}
	out = append(out, m.transition(now, Listening, reason)...)
	return append(out, m.say(now, msg)...)
}

// HandleSpeechCompleted processes a speech_completed event. Capture resumes
// once every outstanding utterance has finished.
func (m *Machine) HandleSpeechCompleted(now time.Time, _ eventbus.SpeechCompleted) []Effect {
	out := m.expire(now)
	if m.speaking == 0 {
		return out
	}
	m.speaking--
	if m.state == Listening || m.state == Confirming {
		m.lastInteraction = now
	}
	if m.speaking == 0 {
		out = append(out, eventbus.CaptureControl{Action: eventbus.CaptureResume})
	}
	return out
}

// HandleReminder speaks a meeting reminder without changing state.
func (m *Machine) HandleReminder(now time.Time, r eventbus.ReminderDue) []Effect {
	out := m.expire(now)
	return append(out, m.say(now, reminderText(now, r))...)
}

func reminderText(now time.Time, r eventbus.ReminderDue) string {
	minutes := int(math.Ceil(r.StartsAt.Sub(now).Minutes()))
	switch {
	case minutes <= 0:
		return fmt.Sprintf("Reminder: %s is starting now", r.Title)
	case minutes == 1:
		return fmt.Sprintf("Reminder: %s starts in 1 minute", r.Title)
	default:
		return fmt.Sprintf("Reminder: %s starts in %d minutes", r.Title, minutes)
	}
}

func (m *Machine) priority(now time.Time, phrase string) []Effect {
	m.activeCommand = ""
	out := m.transition(now, Sleeping, "priority command "+phrase)
	out = append(out, m.say(now, ReplyGoodbye)...)
	if _, ok := matchAny(normalize(phrase), m.settings.ShutdownPhrases); ok {
		out = append(out, eventbus.ShutdownRequested{Reason: phrase})
	}
	return out
}

// expire applies elapsed timeouts. It is the polling half of the timeout
// contract; the owner's timer only decides when to call it.
func (m *Machine) expire(now time.Time) []Effect {
	var out []Effect

	if m.speaking > 0 && !now.Before(m.lastSpeakAt.Add(m.settings.SpeechTimeout)) {
		m.speaking = 0
		out = append(out, eventbus.CaptureControl{Action: eventbus.CaptureResume})
	}

	switch m.state {
	case Listening:
		if !now.Before(m.lastInteraction.Add(m.settings.ListeningTimeout)) {
			out = append(out, m.transition(now, Sleeping, "listening timeout")...)
		}
	case Confirming:
		if !now.Before(m.lastInteraction.Add(m.settings.ConfirmationTimeout)) {
			out = append(out, m.transition(now, Listening, "confirmation timeout")...)
			out = append(out, m.say(now, ReplyConfirmTimeout)...)
		}
	case Executing:
		if !now.Before(m.stateChangedAt.Add(m.settings.ExecutingTimeout)) {
			m.activeCommand = ""
			out = append(out, m.transition(now, Listening, "executing timeout")...)
			out = append(out, m.say(now, ReplyExecutingTimeout)...)
		}
	}
	return out
}

// transition moves to state to and resets the timeout clock. The pending
// confirmation is dropped whenever the target is not Confirming.
func (m *Machine) transition(now time.Time, to State, reason string) []Effect {
	from := m.state
	if to != Confirming {
		m.pending = nil
	}
	if to != Executing {
		m.activeCommand = ""
	}
	if to == Sleeping {
		m.history = nil
	}
	m.state = to
	m.stateChangedAt = now
	if to == Listening || to == Confirming {
		m.lastInteraction = now
	}
	if from == to {
		return nil
	}
	return []Effect{eventbus.StateChanged{From: from.String(), To: to.String(), Reason: reason}}
}

// say queues an utterance, pausing capture first if nothing is being spoken.
func (m *Machine) say(now time.Time, text string) []Effect {
	var out []Effect
	if m.speaking == 0 {
		out = append(out, eventbus.CaptureControl{Action: eventbus.CapturePause})
	}
	m.speaking++
	m.lastSpeakAt = now
	m.record(now, historySpeakerAssistant, text)
	return append(out, eventbus.SpeakRequest{ID: m.newID(), Text: text})
}

func (m *Machine) matchWakeWord(text string) (string, bool) {
	for _, w := range m.wakeWords {
		if containsPhrase(text, w) {
			return normalize(w), true
		}
	}
	return "", false
}

func (m *Machine) record(now time.Time, speaker, text string) {
	if m.settings.HistorySize == 0 {
		return
	}
	m.history = append(m.history, Turn{At: now, Speaker: speaker, Text: text})
	m.trimHistory()
}

func (m *Machine) trimHistory() {
	if n := len(m.history) - m.settings.HistorySize; n > 0 {
		m.history = append([]Turn(nil), m.history[n:]...)
	}
}

func clarification(err error) string {
	var verr *sage.ValidationError
	if errors.As(err, &verr) && verr.Message != "" {
		return verr.Message
	}
	return ReplyNotUnderstood
}
