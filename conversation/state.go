package conversation

// State is the dialogue state of one assistant instance.
type State int

const (
	// Sleeping waits for a wake word.
	Sleeping State = iota
	// Listening accepts commands without a wake word.
	Listening
	// Confirming waits for a yes/no answer to a pending command.
	Confirming
	// Executing waits for the router to answer a dispatched command.
	Executing
)

var stateNames = [...]string{"SLEEPING", "LISTENING", "CONFIRMING", "EXECUTING"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// ParseState converts a state name back into a State.
func ParseState(name string) (State, bool) {
	for i, n := range stateNames {
		if n == name {
			return State(i), true
		}
	}
	return 0, false
}
