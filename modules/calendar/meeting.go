package calendar

import (
	"strconv"
	"time"

	"github.com/GoCodeAlone/sage"
	"github.com/GoCodeAlone/sage/eventbus"
	"github.com/GoCodeAlone/sage/nlu"
)

// MeetingType is how a meeting takes place.
type MeetingType string

const (
	MeetingOnline   MeetingType = "online"
	MeetingInPerson MeetingType = "in_person"
	MeetingPhone    MeetingType = "phone"
)

func (t MeetingType) valid() bool {
	switch t {
	case MeetingOnline, MeetingInPerson, MeetingPhone:
		return true
	}
	return false
}

// Meeting is one stored meeting. Date is YYYY-MM-DD and Time is 24-hour
// HH:MM, both in the calendar's time zone.
type Meeting struct {
	ID              int64       `json:"id"`
	Title           string      `json:"title"`
	Date            string      `json:"date"`
	Time            string      `json:"time"`
	Type            MeetingType `json:"meetingType"`
	Location        string      `json:"location,omitempty"`
	Duration        int         `json:"duration"`
	ReminderMinutes int         `json:"reminderMinutes"`
	Notes           string      `json:"notes,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	Reminded        bool        `json:"reminded"`
}

// StartsAt combines Date and Time in loc.
func (m Meeting) StartsAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(nlu.DateLayout+" "+nlu.TimeLayout, m.Date+" "+m.Time, loc)
}

// Validate reports the first missing or malformed field as a question the
// user can answer.
func (m Meeting) Validate() error {
	switch {
	case m.Title == "":
		return &sage.ValidationError{Field: "title", Message: "What would you like to call this meeting?"}
	case !validDate(m.Date):
		return &sage.ValidationError{Field: "date", Message: "What date should I schedule this for? For example tomorrow or Friday."}
	case !validTime(m.Time):
		return &sage.ValidationError{Field: "time", Message: "What time works for you? For example 2pm or 10:30am."}
	case !m.Type.valid():
		return &sage.ValidationError{Field: "meeting_type", Message: "Should this be online, by phone or in person?"}
	case m.Duration <= 0:
		return &sage.ValidationError{Field: "duration", Message: "How long should the meeting be?"}
	case m.ReminderMinutes < 0:
		return &sage.ValidationError{Field: "reminder_minutes", Message: "How many minutes before should I remind you?"}
	}
	return nil
}

func validDate(s string) bool {
	_, err := time.Parse(nlu.DateLayout, s)
	return err == nil
}

func validTime(s string) bool {
	_, err := time.Parse(nlu.TimeLayout, s)
	return err == nil
}

// meetingFromCommand builds a meeting from the intent entities, filling
// unspecified fields from cfg.
func meetingFromCommand(cmd eventbus.Command, cfg CalendarConfig) Meeting {
	e := cmd.Intent
	m := Meeting{
		Title:           e.Entity(nlu.EntityTitle),
		Date:            e.Entity(nlu.EntityDate),
		Time:            e.Entity(nlu.EntityTime),
		Type:            MeetingType(e.Entity(nlu.EntityMeetingType)),
		Location:        e.Entity(nlu.EntityLocation),
		Duration:        cfg.DefaultDuration,
		ReminderMinutes: cfg.DefaultReminderMinutes,
		Notes:           "Created from: " + cmd.RawText,
	}
	if m.Type == "" {
		m.Type = MeetingInPerson
	}
	if d, err := strconv.Atoi(e.Entity(nlu.EntityDuration)); err == nil {
		m.Duration = d
	}
	return m
}
