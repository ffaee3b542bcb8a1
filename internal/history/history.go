// Package history keeps a SQLite log of completed command invocations.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one completed invocation.
type Entry struct {
	ID          string
	Command     string
	Source      string
	User        string
	Channel     string
	Outcome     string
	Error       string
	Duration    time.Duration
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Recorder persists invocation summaries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Nop discards entries. It is used when the history log is disabled.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

// Store is the SQLite-backed Recorder.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("invocation id is empty")
	}
	if e.Command == "" {
		return fmt.Errorf("command is empty")
	}
	if e.CompletedAt.IsZero() {
		e.CompletedAt = time.Now()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = e.CompletedAt.Add(-e.Duration)
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO invocation_log(
  id, command, source, user_id, channel_id, outcome, last_error, duration_ms, created_at, completed_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, e.ID, e.Command, e.Source, nullable(e.User), nullable(e.Channel), e.Outcome, nullable(e.Error),
		e.Duration.Milliseconds(),
		e.CreatedAt.UTC().Format(timeLayout),
		e.CompletedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("record invocation: %w", err)
	}
	return nil
}

// Filter narrows Recent. Zero values mean no constraint.
type Filter struct {
	Command string
	Limit   int
}

const defaultLimit = 20

// Recent returns the newest entries first.
func (s *Store) Recent(ctx context.Context, f Filter) ([]Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	query := `
SELECT id, command, source, user_id, channel_id, outcome, last_error, duration_ms, created_at, completed_at
FROM invocation_log`
	args := []any{}
	if f.Command != "" {
		query += ` WHERE command = ?`
		args = append(args, f.Command)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?;`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query invocation log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invocation log: %w", err)
	}
	return out, nil
}

// ErrNotFound is returned by Get for an unknown invocation id.
var ErrNotFound = errors.New("invocation not found")

// Get returns a single entry by invocation id.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, command, source, user_id, channel_id, outcome, last_error, duration_ms, created_at, completed_at
FROM invocation_log WHERE id = ?;`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e                      Entry
		user, channel, lastErr sql.NullString
		durationMS             int64
		createdS, completedS   string
	)
	if err := sc.Scan(&e.ID, &e.Command, &e.Source, &user, &channel, &e.Outcome, &lastErr, &durationMS, &createdS, &completedS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan invocation: %w", err)
	}
	e.User = user.String
	e.Channel = channel.String
	e.Error = lastErr.String
	e.Duration = time.Duration(durationMS) * time.Millisecond

	var err error
	if e.CreatedAt, err = time.Parse(timeLayout, createdS); err != nil {
		return Entry{}, fmt.Errorf("parse created_at: %w", err)
	}
	if e.CompletedAt, err = time.Parse(timeLayout, completedS); err != nil {
		return Entry{}, fmt.Errorf("parse completed_at: %w", err)
	}
	return e, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
