package calendar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS meetings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	date TEXT NOT NULL,
	time TEXT NOT NULL,
	meeting_type TEXT NOT NULL DEFAULT 'in_person',
	location TEXT NOT NULL DEFAULT '',
	duration INTEGER NOT NULL DEFAULT 60,
	reminder_minutes INTEGER NOT NULL DEFAULT 15,
	notes TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	reminded INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_meetings_date_time ON meetings(date, time);
CREATE INDEX IF NOT EXISTS idx_meetings_reminded ON meetings(reminded, date);
`

const meetingColumns = `id, title, date, time, meeting_type, location, duration, reminder_minutes, notes, created_at, reminded`

// Store persists meetings in SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the database at path and applies the
// schema. The parent directory is created for file databases.
func OpenStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one connection: SQLite serializes writers and ":memory:" is per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// Create inserts m and returns its id.
func (s *Store) Create(ctx context.Context, m Meeting) (int64, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
	INSERT INTO meetings (title, date, time, meeting_type, location, duration, reminder_minutes, notes, created_at, reminded)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Title, m.Date, m.Time, string(m.Type), m.Location, m.Duration, m.ReminderMinutes, m.Notes,
		m.CreatedAt.UTC().Format(time.RFC3339Nano), m.Reminded,
	)
	if err != nil {
		return 0, fmt.Errorf("insert meeting: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert meeting: %w", err)
	}
	return id, nil
}

// Get returns the meeting with id.
func (s *Store) Get(ctx context.Context, id int64) (Meeting, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = ?`, id)
	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Meeting{}, fmt.Errorf("%w: %d", ErrMeetingNotFound, id)
	}
	return m, err
}

// List returns meetings with from <= date <= to ordered by date and time.
// Both bounds are YYYY-MM-DD.
func (s *Store) List(ctx context.Context, from, to string) ([]Meeting, error) {
	return s.query(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE date >= ? AND date <= ? ORDER BY date, time, id`, from, to)
}

// PendingReminders returns unreminded meetings dated within [from, to].
func (s *Store) PendingReminders(ctx context.Context, from, to string) ([]Meeting, error) {
	return s.query(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE reminded = 0 AND date >= ? AND date <= ? ORDER BY date, time, id`, from, to)
}

// MarkReminded records that the reminder for id was sent.
func (s *Store) MarkReminded(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE meetings SET reminded = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark reminded: %w", err)
	}
	return nil
}

// Delete removes the meeting with id.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM meetings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete meeting: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrMeetingNotFound, id)
	}
	return nil
}

// Count returns the number of meetings dated on or after from.
func (s *Store) Count(ctx context.Context, from string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM meetings WHERE date >= ?`, from).Scan(&n); err != nil {
		return 0, fmt.Errorf("count meetings: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Meeting, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query meetings: %w", err)
	}
	defer rows.Close()

	var out []Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query meetings: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeeting(row scanner) (Meeting, error) {
	var (
		m         Meeting
		kind      string
		createdAt string
	)
	if err := row.Scan(&m.ID, &m.Title, &m.Date, &m.Time, &kind, &m.Location, &m.Duration,
		&m.ReminderMinutes, &m.Notes, &createdAt, &m.Reminded); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Meeting{}, err
		}
		return Meeting{}, fmt.Errorf("scan meeting: %w", err)
	}
	m.Type = MeetingType(kind)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		m.CreatedAt = t
	}
	return m, nil
}
