package nlu

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	clockTimeRe  = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\s*(am|pm)?\b`)
	hourTimeRe   = regexp.MustCompile(`\b(\d{1,2})\s*(am|pm)\b`)
	inDaysRe     = regexp.MustCompile(`\bin (\d+) days?\b`)
	isoDateRe    = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	durationRe   = regexp.MustCompile(`\bfor (\d+) (minutes?|mins?|hours?|hrs?)\b`)
	compoundName = []string{
		"team meeting", "team standup", "daily standup", "doctor appointment",
		"zoom call", "video call", "phone call", "online interview",
		"job interview", "client meeting", "project review",
	}
	titleSkipWords = map[string]bool{
		"schedule": true, "book": true, "add": true, "create": true, "set": true, "up": true,
		"setup": true, "plan": true, "arrange": true, "organize": true, "make": true,
		"a": true, "an": true, "the": true, "my": true, "me": true, "please": true,
		"tomorrow": true, "today": true, "tonight": true, "monday": true, "tuesday": true,
		"wednesday": true, "thursday": true, "friday": true, "saturday": true, "sunday": true,
		"next": true, "this": true, "week": true, "at": true, "on": true, "in": true, "for": true,
		"am": true, "pm": true, "o'clock": true, "morning": true, "afternoon": true,
		"evening": true, "noon": true, "midnight": true, "with": true, "days": true, "day": true,
		"minutes": true, "minute": true, "hours": true, "hour": true,
	}
	weekdays = map[string]time.Weekday{
		"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
		"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
		"saturday": time.Saturday,
	}
)

// ExtractTitle derives a meeting title from normalized text. Known compound
// titles win; otherwise scheduling and time words are dropped and what is
// left is the title, falling back to "meeting".
func ExtractTitle(text string) string {
	for _, name := range compoundName {
		if strings.Contains(text, name) {
			return name
		}
	}

	cleaned := clockTimeRe.ReplaceAllString(text, " ")
	cleaned = hourTimeRe.ReplaceAllString(cleaned, " ")
	cleaned = durationRe.ReplaceAllString(cleaned, " ")
	cleaned = isoDateRe.ReplaceAllString(cleaned, " ")

	var words []string
	for _, w := range strings.Fields(cleaned) {
		if titleSkipWords[w] {
			continue
		}
		if _, err := strconv.Atoi(w); err == nil {
			continue
		}
		words = append(words, w)
	}
	title := strings.Join(words, " ")

	switch {
	case len(title) < 3:
		return "meeting"
	case strings.Contains(title, "doctor") && !strings.Contains(title, "appointment"):
		return strings.Replace(title, "doctor", "doctor appointment", 1)
	case strings.Contains(title, "zoom") && !strings.Contains(title, "call") && !strings.Contains(title, "meeting"):
		return strings.Replace(title, "zoom", "zoom call", 1)
	}
	return title
}

// ExtractDate resolves a date expression relative to now and returns it as
// YYYY-MM-DD, or "" when the text names no date.
func ExtractDate(text string, now time.Time) string {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	format := func(t time.Time) string { return t.Format(DateLayout) }

	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		if _, err := time.ParseInLocation(DateLayout, m[1], now.Location()); err == nil {
			return m[1]
		}
	}

	switch {
	case hasAny(text, []string{"tomorrow"}):
		return format(today.AddDate(0, 0, 1))
	case hasAny(text, []string{"today", "tonight"}):
		return format(today)
	case hasAny(text, []string{"next week"}):
		days := (int(time.Monday) - int(today.Weekday()) + 7) % 7
		if days == 0 {
			days = 7
		}
		return format(today.AddDate(0, 0, days))
	}

	for _, w := range strings.Fields(text) {
		if wd, ok := weekdays[w]; ok {
			days := int(wd) - int(today.Weekday())
			if days <= 0 {
				days += 7
			}
			return format(today.AddDate(0, 0, days))
		}
	}

	if m := inDaysRe.FindStringSubmatch(text); m != nil {
		days, _ := strconv.Atoi(m[1])
		return format(today.AddDate(0, 0, days))
	}
	return ""
}

// ExtractTime returns the first time of day in 24-hour HH:MM form, or "".
func ExtractTime(text string) string {
	if m := clockTimeRe.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if t, ok := clock(hour, minute, m[3]); ok {
			return t
		}
	}
	if m := hourTimeRe.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		if t, ok := clock(hour, 0, m[2]); ok {
			return t
		}
	}

	meridiem := hasAny(text, []string{"am", "pm"})
	switch {
	case hasAny(text, []string{"noon"}):
		return "12:00"
	case hasAny(text, []string{"midnight"}):
		return "00:00"
	case !meridiem && hasAny(text, []string{"morning"}):
		return "09:00"
	case !meridiem && hasAny(text, []string{"afternoon"}):
		return "14:00"
	case !meridiem && hasAny(text, []string{"evening", "tonight"}):
		return "18:00"
	}
	return ""
}

func clock(hour, minute int, meridiem string) (string, bool) {
	switch meridiem {
	case "pm":
		if hour < 1 || hour > 12 {
			return "", false
		}
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour < 1 || hour > 12 {
			return "", false
		}
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 || minute > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

// ExtractMeetingType classifies a meeting as online, phone or in_person.
func ExtractMeetingType(text string) string {
	switch {
	case hasAny(text, []string{"online", "virtual", "zoom", "teams", "meet", "video", "webex"}):
		return "online"
	case hasAny(text, []string{"phone", "call", "dial"}):
		return "phone"
	default:
		return "in_person"
	}
}

// ExtractLocation returns a platform or place hint, or "".
func ExtractLocation(text string) string {
	for _, loc := range []struct{ word, name string }{
		{"zoom", "Zoom meeting"},
		{"teams", "Microsoft Teams"},
		{"meet", "Google Meet"},
		{"webex", "WebEx"},
		{"conference room", "Conference Room"},
		{"office", "Office"},
		{"home", "Home"},
	} {
		if hasAny(text, []string{loc.word}) {
			return loc.name
		}
	}
	return ""
}

// ExtractDuration returns an explicit "for N minutes/hours" duration in
// minutes, or "".
func ExtractDuration(text string) string {
	m := durationRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return ""
	}
	if strings.HasPrefix(m[2], "h") {
		n *= 60
	}
	return strconv.Itoa(n)
}
