package eventbus

import "time"

// Payload is the closed set of event bodies. Each variant maps to exactly one
// Type, so an event's type can never disagree with what it carries.
type Payload interface {
	EventType() Type
	isPayload()
}

// Intent is the output of the classify capability.
type Intent struct {
	Name       string            `json:"name"`
	Entities   map[string]string `json:"entities,omitempty"`
	Confidence float64           `json:"confidence"`
}

// Entity returns the named entity or an empty string.
func (i Intent) Entity(name string) string {
	if i.Entities == nil {
		return ""
	}
	return i.Entities[name]
}

// Command is a classified request travelling from the conversation to the
// router. It is also the command_data replayed after a confirmation.
type Command struct {
	ID        string `json:"id"`
	Intent    Intent `json:"intent"`
	RawText   string `json:"rawText"`
	Confirmed bool   `json:"confirmed"`
}

// SpeechRecognized is produced by the recognizer for a completed utterance.
type SpeechRecognized struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func (SpeechRecognized) EventType() Type { return TypeSpeechRecognized }
func (SpeechRecognized) isPayload()      {}

// WakeWordDetected is produced by a dedicated wake word detector.
type WakeWordDetected struct {
	Keyword    string  `json:"keyword"`
	Confidence float64 `json:"confidence"`
}

func (WakeWordDetected) EventType() Type { return TypeWakeWordDetected }
func (WakeWordDetected) isPayload()      {}

// SpeakRequest asks for text to be vocalized.
type SpeakRequest struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func (SpeakRequest) EventType() Type { return TypeSpeakRequest }
func (SpeakRequest) isPayload()      {}

// SpeechCompleted reports that the synthesizer finished (or failed) an utterance.
type SpeechCompleted struct {
	RequestID string `json:"requestId"`
	Err       string `json:"error,omitempty"`
}

func (SpeechCompleted) EventType() Type { return TypeSpeechCompleted }
func (SpeechCompleted) isPayload()      {}

// CaptureAction is the advisory microphone instruction.
type CaptureAction string

const (
	CapturePause  CaptureAction = "pause"
	CaptureResume CaptureAction = "resume"
)

// CaptureControl asks the voice module to pause or resume capture.
type CaptureControl struct {
	Action CaptureAction `json:"action"`
}

func (CaptureControl) EventType() Type { return TypeCaptureControl }
func (CaptureControl) isPayload()      {}

// CommandReady hands a command to the router.
type CommandReady struct {
	Command Command `json:"command"`
}

func (CommandReady) EventType() Type { return TypeCommandReady }
func (CommandReady) isPayload()      {}

// CommandResult is a successful dispatch. When RequiresConfirmation is set
// the command was not executed and Prompt must be put to the user.
type CommandResult struct {
	CommandID            string  `json:"commandId"`
	Text                 string  `json:"text"`
	RequiresConfirmation bool    `json:"requiresConfirmation,omitempty"`
	Prompt               string  `json:"prompt,omitempty"`
	Command              Command `json:"command"`
}

func (CommandResult) EventType() Type { return TypeCommandResult }
func (CommandResult) isPayload()      {}

// CommandFailed is a failed dispatch. Validation marks recoverable input
// problems whose Message is a clarifying question for the user.
type CommandFailed struct {
	CommandID  string `json:"commandId"`
	Message    string `json:"message"`
	Validation bool   `json:"validation,omitempty"`
	Err        string `json:"error,omitempty"`
}

func (CommandFailed) EventType() Type { return TypeCommandFailed }
func (CommandFailed) isPayload()      {}

// StateChanged describes a conversation transition.
type StateChanged struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

func (StateChanged) EventType() Type { return TypeStateChanged }
func (StateChanged) isPayload()      {}

// ReminderDue is published when a meeting reminder window opens.
type ReminderDue struct {
	MeetingID int64     `json:"meetingId"`
	Title     string    `json:"title"`
	StartsAt  time.Time `json:"startsAt"`
}

func (ReminderDue) EventType() Type { return TypeReminderDue }
func (ReminderDue) isPayload()      {}

// ModuleError is published by the bus when a subscriber fails.
type ModuleError struct {
	Module     string `json:"module"`
	FailedType Type   `json:"eventType"`
	EventID    string `json:"eventId"`
	Err        string `json:"error"`
}

func (ModuleError) EventType() Type { return TypeModuleError }
func (ModuleError) isPayload()      {}

// ModuleLoaded is published by the lifecycle manager.
type ModuleLoaded struct {
	Module string `json:"module"`
}

func (ModuleLoaded) EventType() Type { return TypeModuleLoaded }
func (ModuleLoaded) isPayload()      {}

// ModuleUnloaded is published by the lifecycle manager.
type ModuleUnloaded struct {
	Module string `json:"module"`
	Err    string `json:"error,omitempty"`
}

func (ModuleUnloaded) EventType() Type { return TypeModuleUnloaded }
func (ModuleUnloaded) isPayload()      {}

// ShutdownRequested asks the application to stop.
type ShutdownRequested struct {
	Reason string `json:"reason"`
}

func (ShutdownRequested) EventType() Type { return TypeShutdownRequested }
func (ShutdownRequested) isPayload()      {}
