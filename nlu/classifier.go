// Package nlu is the default intent classifier: keyword rules for the intents
// the router knows plus entity extraction for meetings, dates and times.
package nlu

import (
	"strings"
	"time"
	"unicode"

	"github.com/GoCodeAlone/sage/eventbus"
)

// Intent names produced by the classifier.
const (
	IntentScheduleMeeting = "schedule_meeting"
	IntentCancelMeeting   = "cancel_meeting"
	IntentCheckCalendar   = "check_calendar"
	IntentTimeQuery       = "time_query"
	IntentSystemStatus    = "system_status"
	IntentGreeting        = "greeting"
	IntentHelp            = "help_request"
	IntentGeneral         = "general"
)

// Entity keys.
const (
	EntityTitle       = "title"
	EntityDate        = "date"
	EntityTime        = "time"
	EntityMeetingType = "meeting_type"
	EntityLocation    = "location"
	EntityDuration    = "duration"
)

// Date and time formats used in entities.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type rule struct {
	intent     string
	confidence float64
	match      func(text string) bool
}

var (
	timePhrases      = []string{"what time", "current time", "time is it", "tell me the time", "what's the time", "time now", "time please"}
	schedulingVerbs  = []string{"schedule", "book", "add", "create", "set up", "setup", "plan", "arrange", "organize", "make"}
	cancelVerbs      = []string{"cancel", "delete", "remove", "drop", "call off"}
	meetingNouns     = []string{"meeting", "meetings", "appointment", "appointments", "call", "interview", "demo", "standup", "sync", "catchup", "review", "presentation", "conference", "session", "event"}
	calendarAsks     = []string{"do i have", "what's on my", "whats on my", "check my", "show me", "list my", "display my", "am i free", "am i busy", "what meetings", "any meetings", "any appointments", "free time"}
	calendarTerms    = []string{"calendar", "agenda", "meetings", "appointments", "events", "plans"}
	timeIndicators   = []string{"tomorrow", "today", "tonight", "next week", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday", "morning", "afternoon", "evening", "noon", "am", "pm"}
	statusPhrases    = []string{"system status", "status report", "are you running", "are you ok", "are you okay", "diagnostics", "which modules", "what modules", "health check"}
	greetingPhrases  = []string{"hello", "hi", "hey", "good morning", "good afternoon", "good evening", "howdy", "greetings"}
	helpPhrases      = []string{"help", "what can you do", "how do i", "commands", "instructions"}
	conversationRule = rule{intent: IntentGeneral, confidence: 0.3}
)

// KeywordClassifier maps utterances to intents with ordered keyword rules.
// Rules are checked in order and the first match wins, so more specific
// intents come first.
type KeywordClassifier struct {
	// Now resolves relative dates such as "tomorrow".
	Now   func() time.Time
	rules []rule
}

// New creates a classifier using the wall clock.
func New() *KeywordClassifier {
	return NewWithClock(time.Now)
}

// NewWithClock creates a classifier resolving relative dates against now.
func NewWithClock(now func() time.Time) *KeywordClassifier {
	return &KeywordClassifier{
		Now: now,
		rules: []rule{
			{IntentTimeQuery, 0.95, func(t string) bool { return hasAny(t, timePhrases) }},
			{IntentCancelMeeting, 0.85, func(t string) bool { return hasAny(t, cancelVerbs) && hasAny(t, meetingNouns) }},
			{IntentCheckCalendar, 0.85, func(t string) bool { return hasAny(t, calendarAsks) }},
			{IntentScheduleMeeting, 0.9, func(t string) bool {
				return hasAny(t, schedulingVerbs) && (hasAny(t, meetingNouns) || hasAny(t, timeIndicators))
			}},
			{IntentCheckCalendar, 0.7, func(t string) bool { return hasAny(t, calendarTerms) }},
			{IntentSystemStatus, 0.85, func(t string) bool { return hasAny(t, statusPhrases) }},
			{IntentHelp, 0.7, func(t string) bool { return hasAny(t, helpPhrases) }},
			{IntentGreeting, 0.7, func(t string) bool { return hasAny(t, greetingPhrases) }},
		},
	}
}

// Classify returns the first matching intent with its entities. Text no rule
// matches is classified as general conversation.
func (c *KeywordClassifier) Classify(text string) eventbus.Intent {
	norm := Normalize(text)
	matched := conversationRule
	for _, r := range c.rules {
		if r.match(norm) {
			matched = r
			break
		}
	}

	intent := eventbus.Intent{Name: matched.intent, Confidence: matched.confidence}
	if entities := c.entities(matched.intent, norm); len(entities) > 0 {
		intent.Entities = entities
	}
	return intent
}

func (c *KeywordClassifier) entities(intent, text string) map[string]string {
	today := c.Now()
	out := make(map[string]string)
	set := func(key, value string) {
		if value != "" {
			out[key] = value
		}
	}

	switch intent {
	case IntentScheduleMeeting:
		set(EntityTitle, ExtractTitle(text))
		set(EntityDate, ExtractDate(text, today))
		set(EntityTime, ExtractTime(text))
		set(EntityMeetingType, ExtractMeetingType(text))
		set(EntityLocation, ExtractLocation(text))
		set(EntityDuration, ExtractDuration(text))
	case IntentCancelMeeting:
		set(EntityDate, ExtractDate(text, today))
		set(EntityTime, ExtractTime(text))
	case IntentCheckCalendar:
		set(EntityDate, ExtractDate(text, today))
	}
	return out
}

// Normalize lowercases text and strips punctuation other than apostrophes
// and the colon inside clock times.
func Normalize(text string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '\'', r == ':', r == '-':
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, text)
	return strings.Join(strings.Fields(mapped), " ")
}

func hasAny(text string, phrases []string) bool {
	padded := " " + text + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}
