// Package sink delivers rendered reminders.
//
// A Chain runs every registered sink in order, synchronously, on the
// tick's goroutine. A failing (or panicking) sink is reported and skipped;
// it never stops the sinks registered after it.
package sink

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"clocknag/internal/eventbus"
	logx "clocknag/pkg/logx"
)

// Sink is one delivery target. Delivery is fire-and-forget: the chain
// logs errors but offers no retries or acknowledgments.
type Sink interface {
	Notify(ctx context.Context, title, body string) error
}

// Func adapts a plain function to the Sink interface.
type Func func(ctx context.Context, title, body string) error

func (f Func) Notify(ctx context.Context, title, body string) error { return f(ctx, title, body) }

// FailureEvent is the payload of sink.failed bus events.
type FailureEvent struct {
	Sink  string    `json:"sink"`
	At    time.Time `json:"at"`
	Error string    `json:"error"`
}

type entry struct {
	name string
	sink Sink
}

// Chain fans a notification out to its sinks in registration order.
type Chain struct {
	log logx.Logger
	bus eventbus.Bus

	// limiter caps bursts across the whole chain; nil means unlimited.
	limiter *rate.Limiter

	sinks []entry
}

func NewChain(log logx.Logger, bus eventbus.Bus) *Chain {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Chain{log: log, bus: bus}
}

// SetRatePerMinute installs a token bucket allowing n notifications per
// minute. n <= 0 removes the limit.
func (c *Chain) SetRatePerMinute(n int) {
	if n <= 0 {
		c.limiter = nil
		return
	}
	c.limiter = rate.NewLimiter(rate.Limit(float64(n)/60.0), 1)
}

// Add registers a sink under a short name used in logs and events.
func (c *Chain) Add(name string, s Sink) {
	if s == nil {
		return
	}
	c.sinks = append(c.sinks, entry{name: name, sink: s})
}

func (c *Chain) Len() int { return len(c.sinks) }

// Notify runs every sink with the given payload. It returns whether the
// payload was delivered to the chain at all (false only when rate
// limited); individual sink failures are isolated, not returned.
func (c *Chain) Notify(ctx context.Context, title, body string) bool {
	if c.limiter != nil && !c.limiter.Allow() {
		c.log.Debug("notification rate limited", logx.String("title", title))
		return false
	}

	for _, e := range c.sinks {
		if err := c.deliver(ctx, e, title, body); err != nil {
			c.log.Warn("sink delivery failed", logx.String("sink", e.name), logx.Err(err))
			if c.bus != nil {
				c.bus.Publish(eventbus.Event{
					Type: eventbus.TypeSinkFailed,
					Data: FailureEvent{Sink: e.name, At: time.Now(), Error: err.Error()},
				})
			}
		}
	}
	return true
}

func (c *Chain) deliver(ctx context.Context, e entry, title, body string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.sink.Notify(ctx, title, body)
}
