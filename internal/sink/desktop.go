package sink

import (
	"context"

	"github.com/gen2brain/beeep"

	"clocknag/internal/clock"
)

// Icons configures the optional notification icon pair.
type Icons struct {
	Enabled  bool
	Active   string // shown while a task is clocked in
	Inactive string
}

// Desktop delivers reminders through the host notification mechanism.
type Desktop struct {
	src   clock.Source
	icons Icons
}

func NewDesktop(src clock.Source, icons Icons) *Desktop {
	return &Desktop{src: src, icons: icons}
}

func (d *Desktop) Notify(_ context.Context, title, body string) error {
	return beeep.Notify(title, body, d.icon())
}

func (d *Desktop) icon() string {
	if !d.icons.Enabled {
		return ""
	}
	if d.src != nil && d.src.IsActive() {
		return d.icons.Active
	}
	return d.icons.Inactive
}
