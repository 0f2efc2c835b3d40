package clock

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"clocknag/internal/eventbus"
	"clocknag/internal/storage"
	logx "clocknag/pkg/logx"
)

// Tracker implements Source on top of the session store, publishing
// clock.in / clock.out events whenever the active session changes.
//
// With a nil store the tracker keeps the session in memory only, which is
// enough for single-process use and for tests.
type Tracker struct {
	mu    sync.Mutex
	log   logx.Logger
	bus   eventbus.Bus
	store storage.Store

	// watchPath is the database file to watch for writes from other
	// clocknag processes (the in/out subcommands). Empty disables Watch.
	watchPath string

	cur *storage.Session
}

// SessionEvent is the payload of clock.in / clock.out bus events.
type SessionEvent struct {
	Label   string        `json:"label"`
	At      time.Time     `json:"at"`
	Elapsed time.Duration `json:"elapsed,omitempty"` // clock.out only
}

func NewTracker(store storage.Store, watchPath string, bus eventbus.Bus, log logx.Logger) *Tracker {
	if log.IsZero() {
		log = logx.Nop()
	}
	t := &Tracker{log: log, bus: bus, store: store, watchPath: strings.TrimSpace(watchPath)}
	// Pick up a session left open by a previous run or another process.
	if store != nil {
		if err := t.Refresh(context.Background()); err != nil {
			log.Warn("initial session lookup failed", logx.Err(err))
		}
	}
	return t
}

// ClockIn starts tracking a task, replacing any session already open.
func (t *Tracker) ClockIn(ctx context.Context, label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return errors.New("clock: label is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if t.store != nil {
		sess, err := t.store.OpenSession(ctx, label, now)
		if err != nil {
			return err
		}
		t.setCurrentLocked(&sess)
		return nil
	}
	t.setCurrentLocked(&storage.Session{Label: label, StartedAt: now})
	return nil
}

// ClockOut ends the current session.
func (t *Tracker) ClockOut(ctx context.Context) (storage.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if t.store != nil {
		sess, err := t.store.CloseSession(ctx, now)
		if err != nil {
			if errors.Is(err, storage.ErrNoOpenSession) {
				t.setCurrentLocked(nil)
				return storage.Session{}, ErrNotClockedIn
			}
			return storage.Session{}, err
		}
		t.setCurrentLocked(nil)
		return sess, nil
	}

	if t.cur == nil {
		return storage.Session{}, ErrNotClockedIn
	}
	sess := *t.cur
	sess.EndedAt = &now
	t.setCurrentLocked(nil)
	return sess, nil
}

// Refresh re-reads the open session from the store and publishes
// lifecycle events if it changed. It is the "live query" behind IsActive.
func (t *Tracker) Refresh(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	cur, err := t.store.CurrentSession(ctx)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.setCurrentLocked(cur)
	t.mu.Unlock()
	return nil
}

// setCurrentLocked swaps the cached session and emits transition events.
func (t *Tracker) setCurrentLocked(next *storage.Session) {
	prev := t.cur
	t.cur = next

	switch {
	case prev == nil && next != nil:
		t.log.Info("clocked in", logx.String("task", next.Label))
		t.publish(eventbus.TypeClockIn, SessionEvent{Label: next.Label, At: next.StartedAt})
	case prev != nil && next == nil:
		now := time.Now()
		t.log.Info("clocked out", logx.String("task", prev.Label), logx.Duration("elapsed", prev.Elapsed(now)))
		t.publish(eventbus.TypeClockOut, SessionEvent{Label: prev.Label, At: now, Elapsed: prev.Elapsed(now)})
	case prev != nil && next != nil && (prev.ID != next.ID || prev.Label != next.Label):
		// Session replaced without an idle gap (e.g. clock in over clock in).
		now := time.Now()
		t.publish(eventbus.TypeClockOut, SessionEvent{Label: prev.Label, At: now, Elapsed: prev.Elapsed(now)})
		t.publish(eventbus.TypeClockIn, SessionEvent{Label: next.Label, At: next.StartedAt})
	}
}

func (t *Tracker) publish(typ string, ev SessionEvent) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

// Current returns a copy of the active session, or nil when idle.
func (t *Tracker) Current() *storage.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cur == nil {
		return nil
	}
	cp := *t.cur
	return &cp
}

// ---- Source ----

func (t *Tracker) IsActive() bool {
	// Live query: the store is the source of truth because another
	// process may have clocked in/out since the last event.
	if t.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := t.Refresh(ctx)
		cancel()
		if err != nil {
			t.log.Warn("session refresh failed, using cached state", logx.Err(err))
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur != nil
}

func (t *Tracker) CurrentLabel() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cur == nil {
		return "", ErrNotClockedIn
	}
	return t.cur.Label, nil
}

func (t *Tracker) Elapsed() (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cur == nil {
		return 0, ErrNotClockedIn
	}
	return t.cur.Elapsed(time.Now()), nil
}

// ---- Watch ----

// Watch refreshes the tracker when the database file changes, so clock
// in/out from another clocknag process flips the daemon's state without
// waiting for the next reminder tick. Returns nil immediately when there
// is nothing to watch.
func (t *Tracker) Watch(ctx context.Context) error {
	if t.store == nil || t.watchPath == "" {
		return nil
	}

	dir := filepath.Dir(t.watchPath)
	base := filepath.Base(t.watchPath)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}

	// Debounce: sqlite touches the db, -wal and -journal files in bursts.
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	refresh := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(200*time.Millisecond, func() {
			rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := t.Refresh(rctx); err != nil && ctx.Err() == nil {
				t.log.Warn("session refresh failed", logx.Err(err))
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if strings.HasPrefix(filepath.Base(ev.Name), base) {
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					refresh()
				}
			}
		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if werr != nil {
				t.log.Warn("session watch error", logx.Err(werr))
			}
		}
	}
}
