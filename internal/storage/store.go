package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "clocknag/pkg/logx"
)

var (
	ErrDisabled      = errors.New("storage disabled")
	ErrNoOpenSession = errors.New("no open clock session")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled and Open returns
// (nil, nil); callers must treat a nil Store as "no persistence".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Session is one clocked stretch of work.
// EndedAt is nil while the session is still open.
type Session struct {
	ID        int64
	Label     string
	StartedAt time.Time
	EndedAt   *time.Time
}

// Elapsed returns the session length so far (or total, once closed).
func (s Session) Elapsed(now time.Time) time.Duration {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	return end.Sub(s.StartedAt)
}

// ReminderEntry records one delivered (or attempted) reminder.
type ReminderEntry struct {
	At    time.Time
	Title string
	Body  string
	Error string
}

// Store is the minimal persistence API used by the tracker and sinks.
type Store interface {
	// OpenSession starts a session, closing any session still open.
	OpenSession(ctx context.Context, label string, at time.Time) (Session, error)
	// CloseSession ends the open session and returns it.
	// Returns ErrNoOpenSession when nothing is open.
	CloseSession(ctx context.Context, at time.Time) (Session, error)
	// CurrentSession returns the open session, or (nil, nil) when idle.
	CurrentSession(ctx context.Context) (*Session, error)
	RecentSessions(ctx context.Context, limit int) ([]Session, error)

	AppendReminder(ctx context.Context, e ReminderEntry) error
	RecentReminders(ctx context.Context, limit int) ([]ReminderEntry, error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
