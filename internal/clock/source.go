// Package clock tracks the currently clocked task and answers the
// reminder service's "is something being worked on right now?" query.
package clock

import (
	"errors"
	"strconv"
	"time"

	"clocknag/internal/format"
)

// ErrNotClockedIn is returned by label/elapsed queries while idle.
var ErrNotClockedIn = errors.New("clock: no task is clocked in")

// Source is the read-only view consumed by the reminder service.
//
// CurrentLabel and Elapsed are only valid while IsActive() is true;
// otherwise they return ErrNotClockedIn.
type Source interface {
	IsActive() bool
	CurrentLabel() (string, error)
	Elapsed() (time.Duration, error)
}

// Directives returns the built-in template directives bound to src:
//
//	%h  current task label
//	%c  clocked minutes (integer)
//
// Expansions fail with ErrNotClockedIn when evaluated while idle, so the
// active-task template must only be rendered for an active source.
func Directives(src Source) []format.Directive {
	return []format.Directive{
		{Char: 'h', Expand: func() (string, error) {
			return src.CurrentLabel()
		}},
		{Char: 'c', Expand: func() (string, error) {
			d, err := src.Elapsed()
			if err != nil {
				return "", err
			}
			return strconv.Itoa(int(d.Minutes())), nil
		}},
	}
}
