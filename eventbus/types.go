package eventbus

// Type is the tag of an event. The set of valid types is closed: Subscribe and
// Publish reject anything outside of it.
type Type string

const (
	// TypeSpeechRecognized carries text produced by the external recognizer.
	TypeSpeechRecognized Type = "speech_recognized"
	// TypeWakeWordDetected is published by an external wake word detector.
	TypeWakeWordDetected Type = "wake_word_detected"
	// TypeSpeakRequest asks the voice module to vocalize text.
	TypeSpeakRequest Type = "speak_request"
	// TypeSpeechCompleted is published once the synthesizer finished an utterance.
	TypeSpeechCompleted Type = "speech_completed"
	// TypeCaptureControl is an advisory pause/resume request for the microphone.
	TypeCaptureControl Type = "capture_control"
	// TypeCommandReady hands a classified command to the router.
	TypeCommandReady Type = "command_ready"
	// TypeCommandResult is the router's answer for a dispatched command.
	TypeCommandResult Type = "command_result"
	// TypeCommandFailed reports a dispatch failure.
	TypeCommandFailed Type = "command_failed"
	// TypeStateChanged is emitted on every conversation state transition.
	TypeStateChanged Type = "state_changed"
	// TypeReminderDue is published by the calendar when a reminder fires.
	TypeReminderDue Type = "reminder_due"
	// TypeModuleError reports a subscriber failure caught by the bus.
	TypeModuleError Type = "module_error"
	// TypeModuleLoaded is published after a module initialized successfully.
	TypeModuleLoaded Type = "module_loaded"
	// TypeModuleUnloaded is published after a module has been shut down.
	TypeModuleUnloaded Type = "module_unloaded"
	// TypeShutdownRequested asks the application to stop.
	TypeShutdownRequested Type = "shutdown_requested"
)

var vocabulary = map[Type]struct{}{
	TypeSpeechRecognized:  {},
	TypeWakeWordDetected:  {},
	TypeSpeakRequest:      {},
	TypeSpeechCompleted:   {},
	TypeCaptureControl:    {},
	TypeCommandReady:      {},
	TypeCommandResult:     {},
	TypeCommandFailed:     {},
	TypeStateChanged:      {},
	TypeReminderDue:       {},
	TypeModuleError:       {},
	TypeModuleLoaded:      {},
	TypeModuleUnloaded:    {},
	TypeShutdownRequested: {},
}

// Valid reports whether t belongs to the recognized vocabulary.
func (t Type) Valid() bool {
	_, ok := vocabulary[t]
	return ok
}

func (t Type) String() string {
	return string(t)
}

// Types returns the full vocabulary.
func Types() []Type {
	out := make([]Type, 0, len(vocabulary))
	for t := range vocabulary {
		out = append(out, t)
	}
	return out
}
