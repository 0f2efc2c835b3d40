package sink

import (
	"context"
	"time"

	"clocknag/internal/storage"
)

// StoreLog appends every delivered reminder to the reminder log, so
// "clocknag log" can show what was sent while the user was away.
type StoreLog struct {
	store storage.Store
}

func NewStoreLog(store storage.Store) *StoreLog {
	return &StoreLog{store: store}
}

func (s *StoreLog) Notify(ctx context.Context, title, body string) error {
	if s.store == nil {
		return nil
	}
	return s.store.AppendReminder(ctx, storage.ReminderEntry{
		At:    time.Now(),
		Title: title,
		Body:  body,
	})
}
