package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
logging:
  level: DEBUG
  console: true
reminder:
  interval: "30s"
  remind_on_inactivity: false
  title: "Clock"
  format: "on %h for %c min"
  empty_text: "idle"
storage:
  driver: "none"
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
	if got := cfg.Interval(); got != 30*time.Second {
		t.Fatalf("interval = %v, want 30s", got)
	}
	if cfg.Reminder.RemindOnInactivity {
		t.Fatal("remind_on_inactivity should be false")
	}
	if cfg.Reminder.Format != "on %h for %c min" {
		t.Fatalf("format = %q", cfg.Reminder.Format)
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
  "logging": {"level": "DEBUG", "console": true},
  "reminder": {"interval": "45s"}
}`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
	if got := cfg.Interval(); got != 45*time.Second {
		t.Fatalf("interval = %v, want 45s", got)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
logging:
  console: true
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if cfg.Reminder.Interval != def.Reminder.Interval {
		t.Fatalf("interval = %q, want default %q", cfg.Reminder.Interval, def.Reminder.Interval)
	}
	if cfg.Reminder.Title != def.Reminder.Title {
		t.Fatalf("title = %q, want default", cfg.Reminder.Title)
	}
	if cfg.Storage.Driver != def.Storage.Driver {
		t.Fatalf("driver = %q, want default", cfg.Storage.Driver)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
reminder:
  interval: "1m"
  frequency: "1m"
`)

	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRejectsInvalidInterval(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
	}{
		{name: "zero", raw: `"0s"`},
		{name: "garbage", raw: `"soon"`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "config.yaml", "reminder:\n  interval: "+tt.raw+"\n")
			if _, err := NewManager(path).Load(); err == nil {
				t.Fatalf("expected error for interval %s", tt.raw)
			}
		})
	}
}

func TestLoadRejectsIncompleteTelegram(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
telegram:
  enabled: true
`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for telegram.enabled without token")
	}
}

func TestWatchCancelSuppressesPendingReload(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", "logging:\n  console: true\n")
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	updates := m.Subscribe(1)
	defer m.Unsubscribe(updates)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	// Let the watcher install itself before touching the file.
	time.Sleep(100 * time.Millisecond)

	// A change lands, then the watcher shuts down inside the debounce
	// window: the queued reload must not be published.
	if err := os.WriteFile(path, []byte("reminder:\n  interval: \"1m\"\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch: %v", err)
	}

	select {
	case cfg := <-updates:
		t.Fatalf("config published after cancel: %+v", cfg)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationField("x", "90s")
	if err != nil {
		t.Fatalf("ParseDurationField: %v", err)
	}
	if d != 90*time.Second {
		t.Fatalf("d = %v", d)
	}

	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty field: d=%v err=%v", d, err)
	}
}
