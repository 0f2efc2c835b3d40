package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "clocknag/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) OpenSession(ctx context.Context, label string, at time.Time) (Session, error) {
	if s == nil || s.db == nil {
		return Session{}, ErrDisabled
	}
	if at.IsZero() {
		at = time.Now()
	}
	// One open session at a time: close a leftover one first.
	if _, err := s.CloseSession(ctx, at); err != nil && !errors.Is(err, ErrNoOpenSession) {
		return Session{}, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(label, started_at) VALUES(?,?)`,
		label, at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return Session{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Session{}, err
	}
	return Session{ID: id, Label: label, StartedAt: at}, nil
}

func (s *sqliteStore) CloseSession(ctx context.Context, at time.Time) (Session, error) {
	if s == nil || s.db == nil {
		return Session{}, ErrDisabled
	}
	cur, err := s.CurrentSession(ctx)
	if err != nil {
		return Session{}, err
	}
	if cur == nil {
		return Session{}, ErrNoOpenSession
	}
	if at.IsZero() {
		at = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339Nano), cur.ID,
	)
	if err != nil {
		return Session{}, err
	}
	out := *cur
	out.EndedAt = &at
	return out, nil
}

func (s *sqliteStore) CurrentSession(ctx context.Context) (*Session, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, label, started_at FROM sessions WHERE ended_at IS NULL ORDER BY id DESC LIMIT 1`)

	var (
		sess    Session
		started string
	)
	err := row.Scan(&sess.ID, &sess.Label, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sess.StartedAt, err = time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return nil, fmt.Errorf("corrupt started_at for session %d: %w", sess.ID, err)
	}
	return &sess, nil
}

func (s *sqliteStore) RecentSessions(ctx context.Context, limit int) ([]Session, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, started_at, ended_at FROM sessions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			sess    Session
			started string
			ended   sql.NullString
		)
		if err := rows.Scan(&sess.ID, &sess.Label, &started, &ended); err != nil {
			return nil, err
		}
		sess.StartedAt, err = time.Parse(time.RFC3339Nano, started)
		if err != nil {
			return nil, fmt.Errorf("corrupt started_at for session %d: %w", sess.ID, err)
		}
		if ended.Valid {
			t, err := time.Parse(time.RFC3339Nano, ended.String)
			if err != nil {
				return nil, fmt.Errorf("corrupt ended_at for session %d: %w", sess.ID, err)
			}
			sess.EndedAt = &t
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendReminder(ctx context.Context, e ReminderEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(at, title, body, err) VALUES(?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.Title, e.Body, nullStr(e.Error),
	)
	return err
}

func (s *sqliteStore) RecentReminders(ctx context.Context, limit int) ([]ReminderEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, title, body, err FROM reminders ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReminderEntry
	for rows.Next() {
		var (
			e  ReminderEntry
			at string
			er sql.NullString
		)
		if err := rows.Scan(&at, &e.Title, &e.Body, &er); err != nil {
			return nil, err
		}
		e.At, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("corrupt reminder timestamp: %w", err)
		}
		e.Error = er.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
