// Package reminder owns the periodic "what are you clocking?" timer: a
// lifecycle state machine, a single recurring tick, and the decision of
// what (if anything) to deliver on each tick.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"clocknag/internal/clock"
	"clocknag/internal/eventbus"
	"clocknag/internal/format"
	"clocknag/internal/sink"
	logx "clocknag/pkg/logx"
)

// ErrInvalidInterval rejects activation with a non-positive interval.
var ErrInvalidInterval = errors.New("reminder: interval must be a positive duration")

// Config is the reminder snapshot read on every tick.
//
// Interval is bound when the timer is created: changing it through
// Apply() only takes effect on the next Deactivate/Activate cycle
// (documented limitation, not a bug).
type Config struct {
	Interval           time.Duration
	RemindOnInactivity bool
	Title              string
	Format             string // active-task template
	EmptyText          string // body when nothing is clocked in
}

// TickEvent is the payload of reminder.sent bus events.
type TickEvent struct {
	At     time.Time `json:"at"`
	Active bool      `json:"active"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
}

// SkipEvent is the payload of reminder.skipped bus events.
type SkipEvent struct {
	At     time.Time `json:"at"`
	Reason string    `json:"reason"`
}

// Service drives the reminder lifecycle. Safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	bus eventbus.Bus

	src        clock.Source
	chain      *sink.Chain
	directives []format.Directive

	cfg Config

	// c is the single recurring timer; nil while dormant. At most one
	// live cron per Service (activation is idempotent).
	c     *cron.Cron
	state State
}

func New(cfg Config, src clock.Source, chain *sink.Chain, directives []format.Directive, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:        log,
		bus:        bus,
		src:        src,
		chain:      chain,
		directives: directives,
		cfg:        cfg,
		state:      StateDormant,
	}
}

// Apply replaces the tick-time config. A changed Interval does not
// reschedule a running timer; it applies on the next activation.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	running := s.c != nil
	old := s.cfg.Interval
	s.cfg = cfg
	s.mu.Unlock()

	if running && cfg.Interval != old {
		s.log.Info("reminder interval change takes effect after the next deactivate/activate cycle",
			logx.Duration("current", old), logx.Duration("next", cfg.Interval))
	}
}

// SetChain swaps the sink chain (used on config reload).
func (s *Service) SetChain(chain *sink.Chain) {
	s.mu.Lock()
	s.chain = chain
	s.mu.Unlock()
}

// State returns the advisory lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether the recurring timer is live.
func (s *Service) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c != nil
}

// Activate starts the recurring timer. The first tick fires one full
// interval after activation, not immediately. Calling Activate while
// already active is a no-op.
func (s *Service) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.c != nil {
		s.log.Debug("activate ignored: already active")
		return nil
	}
	if s.cfg.Interval <= 0 {
		return fmt.Errorf("%w (got %s)", ErrInvalidInterval, s.cfg.Interval)
	}

	clog := cronLogger{log: s.log}
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(clog),
		cron.Recover(clog),
	))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.cfg.Interval), s.tick); err != nil {
		return fmt.Errorf("reminder: schedule tick: %w", err)
	}
	c.Start()
	s.c = c

	s.applyLocked(TriggerActivate)
	// A task may already be live at activation; observe it right away so
	// the advisory state doesn't lag until the first signal.
	if s.src != nil && s.src.IsActive() {
		s.applyLocked(TriggerClockIn)
	}

	s.log.Info("reminders activated", logx.Duration("interval", s.cfg.Interval))
	return nil
}

// Deactivate cancels the timer. No tick fires after it returns. Calling
// Deactivate while dormant is a no-op.
func (s *Service) Deactivate() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	if c != nil {
		s.applyLocked(TriggerDeactivate)
	}
	s.mu.Unlock()

	if c == nil {
		return
	}
	// Stop scheduling immediately, then wait out any in-flight tick.
	<-c.Stop().Done()
	s.log.Info("reminders deactivated")
}

// OnClockIn records an activity-start signal (driven by clock.in events,
// independent of the tick cadence).
func (s *Service) OnClockIn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(TriggerClockIn)
}

// OnClockOut records an activity-stop signal.
func (s *Service) OnClockOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(TriggerClockOut)
}

func (s *Service) applyLocked(trg Trigger) {
	next, ok := transition(s.state, trg)
	if !ok {
		// Clock signals while dormant are routine (the user keeps
		// clocking with reminders off); anything else is a contract
		// violation worth a warning.
		if s.state == StateDormant && (trg == TriggerClockIn || trg == TriggerClockOut) {
			s.log.Debug("lifecycle signal ignored while dormant", logx.String("trigger", trg.String()))
		} else {
			s.log.Warn("out-of-table lifecycle transition ignored",
				logx.String("state", s.state.String()), logx.String("trigger", trg.String()))
		}
		return
	}
	if next == s.state {
		return
	}
	s.log.Debug("lifecycle transition",
		logx.String("from", s.state.String()), logx.String("to", next.String()),
		logx.String("trigger", trg.String()))
	s.state = next
}

// tick runs once per interval on the cron goroutine. Ticks never overlap
// (SkipIfStillRunning) and no per-tick failure stops the timer.
func (s *Service) tick() {
	s.mu.Lock()
	cfg := s.cfg
	chain := s.chain
	dirs := s.directives
	s.mu.Unlock()

	// Live presence query; the cached lifecycle state is deliberately
	// not consulted here.
	active := s.src != nil && s.src.IsActive()

	var (
		body string
		err  error
	)
	switch {
	case active:
		body, err = format.Render(cfg.Format, dirs)
	case cfg.RemindOnInactivity:
		body, err = format.Render(cfg.EmptyText, dirs)
	default:
		s.publishSkip("inactive")
		return
	}
	if err != nil {
		// Caller misuse (e.g. empty-text template referencing a task
		// directive) or a racing clock-out; skip delivery this tick.
		s.log.Error("render failed, skipping delivery", logx.Err(err), logx.Bool("active", active))
		s.publishSkip("render: " + err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if chain == nil || !chain.Notify(ctx, cfg.Title, body) {
		s.publishSkip("rate limited")
		return
	}

	s.log.Debug("reminder delivered", logx.Bool("active", active), logx.String("body", body))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypeReminderSent,
			Data: TickEvent{At: time.Now(), Active: active, Title: cfg.Title, Body: body},
		})
	}
}

func (s *Service) publishSkip(reason string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeReminderSkipped,
		Data: SkipEvent{At: time.Now(), Reason: reason},
	})
}

// cronLogger adapts logx to cron's logging interface. Routine messages
// are noise; keep them at debug.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, logx.Any("details", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Warn("cron: "+msg, logx.Err(err), logx.Any("details", kv))
}
