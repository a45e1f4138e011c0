package scheduler

import (
	"time"

	"github.com/ignite/campaign-engine/internal/config"
)

// Rules is the temporal policy of the scheduler: the operating timezone,
// the working-hour window, and the per-domain minimum spacing. All window
// math happens in the configured location; candidates outside the window
// are moved forward, never backward.
type Rules struct {
	Loc        *time.Location
	StartHour  int
	EndHour    int
	MinSpacing time.Duration
	// AlwaysOpen disables the window entirely (24/7 sending).
	AlwaysOpen bool
}

// NewRules builds Rules from configuration.
func NewRules(cfg config.SchedulingConfig) Rules {
	return Rules{
		Loc:        cfg.Location(),
		StartHour:  cfg.WorkingHourStart,
		EndHour:    cfg.WorkingHourEnd,
		MinSpacing: cfg.MinSpacing(),
		AlwaysOpen: cfg.DisableWorkingHours,
	}
}

// AdjustToWindow returns the earliest send time at or after t that falls
// inside the window: a working-hours weekday. A time past the end of a
// Friday lands on Monday at the start hour. Minutes within the window are
// preserved; times moved to another day land exactly on the start hour.
func (r Rules) AdjustToWindow(t time.Time) time.Time {
	if r.AlwaysOpen {
		return t
	}

	lt := t.In(r.Loc)
	for {
		switch lt.Weekday() {
		case time.Saturday:
			lt = r.atStart(lt.AddDate(0, 0, 2))
			continue
		case time.Sunday:
			lt = r.atStart(lt.AddDate(0, 0, 1))
			continue
		}
		if lt.Hour() < r.StartHour {
			lt = r.atStart(lt)
			continue
		}
		if lt.Hour() >= r.EndHour {
			lt = r.atStart(lt.AddDate(0, 0, 1))
			continue
		}
		return lt
	}
}

// InWindow reports whether t is a permissible send time. The dispatch
// worker gates its polls on this so claims never fire out of hours even
// when the queue holds due rows.
func (r Rules) InWindow(t time.Time) bool {
	if r.AlwaysOpen {
		return true
	}
	lt := t.In(r.Loc)
	if wd := lt.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return lt.Hour() >= r.StartHour && lt.Hour() < r.EndHour
}

func (r Rules) atStart(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), r.StartHour, 0, 0, 0, r.Loc)
}
