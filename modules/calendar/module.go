// Package calendar stores meetings and answers the calendar intents.
//
// Meetings live in a SQLite database. The module handles three commands:
//
//   - schedule_meeting: builds a meeting from the title, date, time,
//     meeting_type, location and duration entities and stores it
//   - check_calendar: lists the meetings on the date entity (default today)
//   - cancel_meeting: deletes the meeting matching the date and time entities
//
// Scheduling and cancelling are confirmed first; ConfirmationPrompt checks
// the command and phrases the question, returning a *sage.ValidationError
// with a clarifying question when a detail is missing.
//
// A cron job sweeps for meetings whose reminder window has opened and
// publishes one reminder_due event per meeting.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/GoCodeAlone/sage"
	"github.com/GoCodeAlone/sage/eventbus"
	"github.com/GoCodeAlone/sage/nlu"
)

// ModuleName is the unique identifier for the calendar module.
const ModuleName = "calendar"

// CalendarModule owns the meeting store and the reminder sweep.
//
// The module implements:
//   - sage.Module, sage.Startable and sage.Stoppable
//   - sage.CommandHandler and sage.Confirmer
//   - sage.StatusReporter
type CalendarModule struct {
	cfg    CalendarConfig
	loc    *time.Location
	now    func() time.Time
	app    sage.Application
	logger sage.Logger
	store  *Store

	cron    *cron.Cron
	entryID cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc

	// sweepMu keeps overlapping sweeps from reminding twice.
	sweepMu sync.Mutex
}

// Option configures the calendar module.
type Option func(*CalendarModule)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *CalendarModule) { m.now = now }
}

// New creates the calendar module.
func New(opts ...Option) *CalendarModule {
	m := &CalendarModule{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewModule is the registry factory.
func NewModule() sage.Module {
	return New()
}

// Name implements sage.Module.
func (m *CalendarModule) Name() string { return ModuleName }

// Init loads the configuration and opens the store.
func (m *CalendarModule) Init(ctx context.Context, app sage.Application) error {
	if err := app.LoadSection(ModuleName, &m.cfg); err != nil {
		return fmt.Errorf("calendar config: %w", err)
	}
	store, err := OpenStore(m.cfg.DBPath)
	if err != nil {
		return err
	}

	m.app = app
	m.store = store
	m.loc = m.cfg.location()
	m.logger = sage.ModuleLogger(app.Logger(), ModuleName)
	m.ctx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))
	m.cron = cron.New(cron.WithLocation(m.loc))

	m.logger.Info("Calendar store opened", "path", m.cfg.DBPath)
	return nil
}

// Start schedules the reminder sweep.
func (m *CalendarModule) Start(context.Context) error {
	id, err := m.cron.AddFunc(m.cfg.ReminderSchedule, func() {
		if err := m.SweepReminders(m.ctx); err != nil {
			m.logger.Error("Reminder sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reminders: %w", err)
	}
	m.entryID = id
	m.cron.Start()
	m.logger.Debug("Reminder sweep scheduled", "schedule", m.cfg.ReminderSchedule)
	return nil
}

// Shutdown stops the sweep, waits for a running one and closes the store.
func (m *CalendarModule) Shutdown(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	if m.cron != nil {
		select {
		case <-m.cron.Stop().Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}

func (m *CalendarModule) today() time.Time {
	return m.now().In(m.loc)
}

// CreateMeeting validates and stores a meeting.
func (m *CalendarModule) CreateMeeting(ctx context.Context, meeting Meeting) (int64, error) {
	if err := m.checkMeeting(meeting); err != nil {
		return 0, err
	}
	meeting.CreatedAt = m.now()
	return m.store.Create(ctx, meeting)
}

// ListMeetings returns the meetings dated from..to inclusive.
func (m *CalendarModule) ListMeetings(ctx context.Context, from, to string) ([]Meeting, error) {
	if !validDate(from) || !validDate(to) {
		return nil, &sage.ValidationError{Field: "date", Message: "Which day should I check?"}
	}
	return m.store.List(ctx, from, to)
}

// DeleteMeeting removes a meeting by id.
func (m *CalendarModule) DeleteMeeting(ctx context.Context, id int64) error {
	return m.store.Delete(ctx, id)
}

// checkMeeting validates fields and rejects meetings in the past.
func (m *CalendarModule) checkMeeting(meeting Meeting) error {
	if err := meeting.Validate(); err != nil {
		return err
	}
	start, err := meeting.StartsAt(m.loc)
	if err != nil {
		return &sage.ValidationError{Field: "date", Message: "What date should I schedule this for?"}
	}
	if start.Before(m.now()) {
		return &sage.ValidationError{Field: "time", Message: "That time has already passed. When should I schedule it?"}
	}
	return nil
}

// HandleCommand implements sage.CommandHandler.
func (m *CalendarModule) HandleCommand(ctx context.Context, cmd eventbus.Command) (sage.Response, error) {
	switch cmd.Intent.Name {
	case nlu.IntentScheduleMeeting:
		meeting := meetingFromCommand(cmd, m.cfg)
		id, err := m.CreateMeeting(ctx, meeting)
		if err != nil {
			return sage.Response{}, err
		}
		meeting.ID = id
		m.logger.Info("Meeting scheduled", "id", id, "date", meeting.Date, "time", meeting.Time)
		return sage.Response{Text: scheduledText(meeting), Data: meeting}, nil

	case nlu.IntentCheckCalendar:
		date := cmd.Intent.Entity(nlu.EntityDate)
		if date == "" {
			date = m.today().Format(nlu.DateLayout)
		}
		meetings, err := m.ListMeetings(ctx, date, date)
		if err != nil {
			return sage.Response{}, err
		}
		return sage.Response{Text: agendaText(date, meetings, m.today()), Data: meetings}, nil

	case nlu.IntentCancelMeeting:
		meeting, err := m.findMeeting(ctx, cmd)
		if err != nil {
			return sage.Response{}, err
		}
		if err := m.store.Delete(ctx, meeting.ID); err != nil {
			return sage.Response{}, err
		}
		m.logger.Info("Meeting cancelled", "id", meeting.ID)
		return sage.Response{Text: cancelledText(meeting, m.today()), Data: meeting}, nil
	}
	return sage.Response{}, fmt.Errorf("%w: %s", ErrUnsupportedCommand, cmd.Intent.Name)
}

// ConfirmationPrompt implements sage.Confirmer.
func (m *CalendarModule) ConfirmationPrompt(ctx context.Context, cmd eventbus.Command) (string, error) {
	switch cmd.Intent.Name {
	case nlu.IntentScheduleMeeting:
		meeting := meetingFromCommand(cmd, m.cfg)
		if err := m.checkMeeting(meeting); err != nil {
			return "", err
		}
		return schedulePrompt(meeting, m.today()), nil
	case nlu.IntentCancelMeeting:
		meeting, err := m.findMeeting(ctx, cmd)
		if err != nil {
			return "", err
		}
		return cancelPrompt(meeting, m.today()), nil
	}
	return "", sage.ErrNotConfirmer
}

// findMeeting resolves the meeting a cancel command refers to.
func (m *CalendarModule) findMeeting(ctx context.Context, cmd eventbus.Command) (Meeting, error) {
	date := cmd.Intent.Entity(nlu.EntityDate)
	if date == "" {
		date = m.today().Format(nlu.DateLayout)
	}
	meetings, err := m.ListMeetings(ctx, date, date)
	if err != nil {
		return Meeting{}, err
	}

	clock := cmd.Intent.Entity(nlu.EntityTime)
	if clock != "" {
		matched := meetings[:0:0]
		for _, mt := range meetings {
			if mt.Time == clock {
				matched = append(matched, mt)
			}
		}
		meetings = matched
	}

	when := spokenDate(date, m.today())
	switch len(meetings) {
	case 0:
		return Meeting{}, &sage.ValidationError{Field: "date", Message: fmt.Sprintf("I couldn't find a meeting %s.", when)}
	case 1:
		return meetings[0], nil
	}
	return Meeting{}, &sage.ValidationError{
		Field:   "time",
		Message: fmt.Sprintf("You have %d meetings %s. Which time should I cancel?", len(meetings), when),
	}
}

// SweepReminders publishes reminder_due for every meeting whose reminder
// window has opened and marks it reminded. Meetings that started more than
// a minute ago are marked without a reminder.
func (m *CalendarModule) SweepReminders(ctx context.Context) error {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	now := m.now().In(m.loc)
	from := now.AddDate(0, 0, -1).Format(nlu.DateLayout)
	to := now.AddDate(0, 0, 1).Format(nlu.DateLayout)
	pending, err := m.store.PendingReminders(ctx, from, to)
	if err != nil {
		return err
	}

	var errs []error
	for _, meeting := range pending {
		start, err := meeting.StartsAt(m.loc)
		if err != nil {
			errs = append(errs, fmt.Errorf("meeting %d: %w", meeting.ID, err))
			continue
		}
		if now.Before(start.Add(-time.Duration(meeting.ReminderMinutes) * time.Minute)) {
			continue
		}
		if now.Before(start.Add(time.Minute)) {
			due := eventbus.ReminderDue{MeetingID: meeting.ID, Title: meeting.Title, StartsAt: start}
			if err := m.app.Bus().Emit(ctx, ModuleName, due); err != nil {
				errs = append(errs, err)
				continue
			}
			m.logger.Info("Reminder sent", "id", meeting.ID, "startsAt", start)
		}
		if err := m.store.MarkReminded(ctx, meeting.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Status implements sage.StatusReporter.
func (m *CalendarModule) Status() map[string]any {
	status := map[string]any{
		"dbPath":           m.cfg.DBPath,
		"reminderSchedule": m.cfg.ReminderSchedule,
	}
	if n, err := m.store.Count(m.ctx, m.today().Format(nlu.DateLayout)); err == nil {
		status["upcoming"] = n
	}
	if m.entryID != 0 {
		status["nextSweep"] = m.cron.Entry(m.entryID).Next
	}
	return status
}
