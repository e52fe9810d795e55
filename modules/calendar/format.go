package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/GoCodeAlone/sage/nlu"
)

// spokenDate renders a YYYY-MM-DD date relative to today: "today",
// "tomorrow" or "on Monday, October 19".
func spokenDate(date string, today time.Time) string {
	d, err := time.Parse(nlu.DateLayout, date)
	if err != nil {
		return date
	}
	switch date {
	case today.Format(nlu.DateLayout):
		return "today"
	case today.AddDate(0, 0, 1).Format(nlu.DateLayout):
		return "tomorrow"
	}
	return "on " + d.Format("Monday, January 2")
}

// absoluteDate renders a YYYY-MM-DD date as "on Saturday, October 17".
func absoluteDate(date string) string {
	d, err := time.Parse(nlu.DateLayout, date)
	if err != nil {
		return "on " + date
	}
	return "on " + d.Format("Monday, January 2")
}

// spokenTime renders a 24-hour HH:MM time as "9:00 AM".
func spokenTime(clock string) string {
	t, err := time.Parse(nlu.TimeLayout, clock)
	if err != nil {
		return clock
	}
	return t.Format("3:04 PM")
}

func scheduledText(m Meeting) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Meeting scheduled: '%s' %s at %s", m.Title, absoluteDate(m.Date), spokenTime(m.Time))
	switch {
	case m.Type == MeetingOnline && m.Location != "":
		fmt.Fprintf(&b, " (online, %s)", m.Location)
	case m.Type == MeetingOnline:
		b.WriteString(" (online)")
	case m.Type == MeetingPhone:
		b.WriteString(" (phone call)")
	case m.Location != "":
		fmt.Fprintf(&b, " at the %s", strings.ToLower(m.Location))
	}
	if m.ReminderMinutes > 0 {
		fmt.Fprintf(&b, ". You'll get a reminder %d minutes before.", m.ReminderMinutes)
	} else {
		b.WriteString(".")
	}
	return b.String()
}

func schedulePrompt(m Meeting, today time.Time) string {
	return fmt.Sprintf("Should I schedule '%s' %s at %s?", m.Title, spokenDate(m.Date, today), spokenTime(m.Time))
}

func cancelPrompt(m Meeting, today time.Time) string {
	return fmt.Sprintf("Should I cancel '%s' %s at %s?", m.Title, spokenDate(m.Date, today), spokenTime(m.Time))
}

func cancelledText(m Meeting, today time.Time) string {
	return fmt.Sprintf("Cancelled '%s' %s at %s.", m.Title, spokenDate(m.Date, today), spokenTime(m.Time))
}

func agendaText(date string, meetings []Meeting, today time.Time) string {
	when := spokenDate(date, today)
	if len(meetings) == 0 {
		return fmt.Sprintf("You don't have any meetings scheduled %s.", when)
	}

	items := make([]string, len(meetings))
	for i, m := range meetings {
		items[i] = fmt.Sprintf("%s at %s", m.Title, spokenTime(m.Time))
	}
	noun := "meetings"
	if len(meetings) == 1 {
		noun = "meeting"
	}
	return fmt.Sprintf("You have %d %s %s: %s.", len(meetings), noun, when, joinList(items))
}

func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}
