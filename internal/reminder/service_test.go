package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"clocknag/internal/clock"
	"clocknag/internal/eventbus"
	"clocknag/internal/sink"
	logx "clocknag/pkg/logx"
)

type fakeSource struct {
	active  bool
	label   string
	elapsed time.Duration
	broken  bool // label/elapsed queries fail even while active
}

func (f *fakeSource) IsActive() bool { return f.active }

func (f *fakeSource) CurrentLabel() (string, error) {
	if !f.active || f.broken {
		return "", clock.ErrNotClockedIn
	}
	return f.label, nil
}

func (f *fakeSource) Elapsed() (time.Duration, error) {
	if !f.active || f.broken {
		return 0, clock.ErrNotClockedIn
	}
	return f.elapsed, nil
}

type captureSink struct{ bodies []string }

func (c *captureSink) Notify(_ context.Context, _, body string) error {
	c.bodies = append(c.bodies, body)
	return nil
}

func testConfig() Config {
	return Config{
		Interval:           time.Hour, // never fires during a test
		RemindOnInactivity: true,
		Title:              "Clocked task",
		Format:             "You spent %c minutes on %h",
		EmptyText:          "No task is being clocked now!",
	}
}

func newTestService(cfg Config, src *fakeSource, sinks ...sink.Sink) (*Service, *sink.Chain) {
	chain := sink.NewChain(logx.Nop(), nil)
	for i, s := range sinks {
		chain.Add(string(rune('a'+i)), s)
	}
	svc := New(cfg, src, chain, clock.Directives(src), logx.Nop(), nil)
	return svc, chain
}

func TestTransitionTable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cur  State
		trg  Trigger
		next State
		ok   bool
	}{
		{name: "activate from dormant", cur: StateDormant, trg: TriggerActivate, next: StateClockedOut, ok: true},
		{name: "clock in", cur: StateClockedOut, trg: TriggerClockIn, next: StateClockedIn, ok: true},
		{name: "clock out", cur: StateClockedIn, trg: TriggerClockOut, next: StateClockedOut, ok: true},
		{name: "deactivate clocked out", cur: StateClockedOut, trg: TriggerDeactivate, next: StateDormant, ok: true},
		{name: "deactivate clocked in", cur: StateClockedIn, trg: TriggerDeactivate, next: StateDormant, ok: true},
		{name: "activate while active", cur: StateClockedOut, trg: TriggerActivate, next: StateClockedOut, ok: false},
		{name: "deactivate while dormant", cur: StateDormant, trg: TriggerDeactivate, next: StateDormant, ok: false},
		{name: "clock in while dormant", cur: StateDormant, trg: TriggerClockIn, next: StateDormant, ok: false},
		{name: "clock in while clocked in", cur: StateClockedIn, trg: TriggerClockIn, next: StateClockedIn, ok: false},
		{name: "clock out while clocked out", cur: StateClockedOut, trg: TriggerClockOut, next: StateClockedOut, ok: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			next, ok := transition(tt.cur, tt.trg)
			if next != tt.next || ok != tt.ok {
				t.Fatalf("transition(%s, %s) = (%s, %t), want (%s, %t)",
					tt.cur, tt.trg, next, ok, tt.next, tt.ok)
			}
		})
	}
}

func TestActivateIdempotent(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(testConfig(), &fakeSource{})
	defer svc.Deactivate()

	if err := svc.Activate(); err != nil {
		t.Fatalf("first Activate: %v", err)
	}
	if err := svc.Activate(); err != nil {
		t.Fatalf("second Activate: %v", err)
	}
	if !svc.Active() {
		t.Fatal("service should be active")
	}
	if got := svc.State(); got != StateClockedOut {
		t.Fatalf("state = %s, want %s", got, StateClockedOut)
	}
}

func TestDeactivateIdempotent(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(testConfig(), &fakeSource{})

	if err := svc.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	svc.Deactivate()
	svc.Deactivate() // second call is a no-op

	if svc.Active() {
		t.Fatal("service should be dormant")
	}
	if got := svc.State(); got != StateDormant {
		t.Fatalf("state = %s, want %s", got, StateDormant)
	}
}

func TestActivateRejectsNonPositiveInterval(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Interval = 0
	svc, _ := newTestService(cfg, &fakeSource{})

	err := svc.Activate()
	if !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("Activate error = %v, want ErrInvalidInterval", err)
	}
	if svc.Active() {
		t.Fatal("no timer must be created on invalid interval")
	}
	if got := svc.State(); got != StateDormant {
		t.Fatalf("state = %s, want %s", got, StateDormant)
	}
}

func TestFullSessionStateSequence(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(testConfig(), &fakeSource{})

	if got := svc.State(); got != StateDormant {
		t.Fatalf("initial state = %s", got)
	}
	if err := svc.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if got := svc.State(); got != StateClockedOut {
		t.Fatalf("after activate: %s", got)
	}
	svc.OnClockIn()
	if got := svc.State(); got != StateClockedIn {
		t.Fatalf("after clock-in: %s", got)
	}
	svc.OnClockOut()
	if got := svc.State(); got != StateClockedOut {
		t.Fatalf("after clock-out: %s", got)
	}
	svc.Deactivate()
	if got := svc.State(); got != StateDormant {
		t.Fatalf("after deactivate: %s", got)
	}
}

func TestActivateObservesLiveTask(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(testConfig(), &fakeSource{active: true, label: "review", elapsed: 5 * time.Minute})
	defer svc.Deactivate()

	if err := svc.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if got := svc.State(); got != StateClockedIn {
		t.Fatalf("state = %s, want %s", got, StateClockedIn)
	}
}

func TestTickActiveRendersTemplate(t *testing.T) {
	t.Parallel()
	src := &fakeSource{active: true, label: "Write spec", elapsed: 25 * time.Minute}
	rec := &captureSink{}
	svc, _ := newTestService(testConfig(), src, rec)

	svc.tick()

	if len(rec.bodies) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(rec.bodies))
	}
	want := "You spent 25 minutes on Write spec"
	if rec.bodies[0] != want {
		t.Fatalf("body = %q, want %q", rec.bodies[0], want)
	}
}

func TestTickInactiveSilentWhenDisabled(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.RemindOnInactivity = false
	rec := &captureSink{}
	svc, _ := newTestService(cfg, &fakeSource{}, rec)

	svc.tick()

	if len(rec.bodies) != 0 {
		t.Fatalf("expected silent skip, got %d deliveries", len(rec.bodies))
	}
}

func TestTickInactiveRemindsWhenEnabled(t *testing.T) {
	t.Parallel()
	recA := &captureSink{}
	recB := &captureSink{}
	svc, _ := newTestService(testConfig(), &fakeSource{}, recA, recB)

	svc.tick()

	for i, c := range []*captureSink{recA, recB} {
		if len(c.bodies) != 1 {
			t.Fatalf("sink %d: expected 1 delivery, got %d", i, len(c.bodies))
		}
		if c.bodies[0] != "No task is being clocked now!" {
			t.Fatalf("sink %d: body = %q", i, c.bodies[0])
		}
	}
}

func TestTickRenderFailureSkipsDelivery(t *testing.T) {
	t.Parallel()
	src := &fakeSource{active: true, broken: true}
	rec := &captureSink{}

	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	chain := sink.NewChain(logx.Nop(), nil)
	chain.Add("rec", rec)
	svc := New(testConfig(), src, chain, clock.Directives(src), logx.Nop(), bus)

	svc.tick()

	if len(rec.bodies) != 0 {
		t.Fatalf("expected no delivery on render failure, got %d", len(rec.bodies))
	}
	select {
	case ev := <-events:
		if ev.Type != eventbus.TypeReminderSkipped {
			t.Fatalf("event type = %s, want %s", ev.Type, eventbus.TypeReminderSkipped)
		}
	case <-time.After(time.Second):
		t.Fatal("no reminder.skipped event published")
	}
}

func TestTickFailingSinkDoesNotStopChain(t *testing.T) {
	t.Parallel()
	failing := sink.Func(func(context.Context, string, string) error {
		return errors.New("delivery broken")
	})
	rec := &captureSink{}
	svc, _ := newTestService(testConfig(), &fakeSource{}, failing, rec)

	svc.tick()

	if len(rec.bodies) != 1 {
		t.Fatalf("later sink skipped after failure: %d deliveries", len(rec.bodies))
	}
}

func TestApplyKeepsRunningIntervalUntilRestart(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(testConfig(), &fakeSource{})
	defer svc.Deactivate()

	if err := svc.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	cfg := testConfig()
	cfg.Interval = time.Minute
	svc.Apply(cfg)

	// Still active on the old timer; the new interval only binds on the
	// next activation cycle.
	if !svc.Active() {
		t.Fatal("Apply must not stop a running timer")
	}
}
