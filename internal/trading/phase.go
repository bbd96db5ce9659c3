package trading

import (
	"fmt"
	"log/slog"
	"time"
)

// DayPhase is the controller's position inside the trading day. It only
// moves forward; a new day is a new process run.
type DayPhase int

const (
	Morning DayPhase = iota
	Day
	Evening
)

func (p DayPhase) String() string {
	switch p {
	case Day:
		return "DAY"
	case Evening:
		return "EVENING"
	default:
		return "MORNING"
	}
}

// PhaseClock maps wall-clock samples onto the day-phase state machine.
// It is owned by a single controller, never shared.
type PhaseClock struct {
	logger     *slog.Logger
	morningEnd time.Duration // offset from midnight
	dayEnd     time.Duration
	holiday    func(time.Time) bool
	current    DayPhase
	started    bool
}

// NewPhaseClock parses "HH:MM" boundaries. holiday may be nil.
func NewPhaseClock(logger *slog.Logger, morningEnd, dayEnd string, holiday func(time.Time) bool) (*PhaseClock, error) {
	me, err := parseClock(morningEnd)
	if err != nil {
		return nil, fmt.Errorf("morning end: %w", err)
	}
	de, err := parseClock(dayEnd)
	if err != nil {
		return nil, fmt.Errorf("day end: %w", err)
	}
	if holiday == nil {
		holiday = func(time.Time) bool { return false }
	}
	return &PhaseClock{logger: logger, morningEnd: me, dayEnd: de, holiday: holiday}, nil
}

// Advance re-evaluates the phase for the given wall-clock sample. The
// result never moves backward.
func (p *PhaseClock) Advance(now time.Time) DayPhase {
	observed := Morning
	offset := time.Duration(now.Hour())*time.Hour + time.Duration(now.Minute())*time.Minute
	switch {
	case p.holiday(now) || offset >= p.dayEnd:
		observed = Evening
	case offset >= p.morningEnd:
		observed = Day
	}
	if !p.started {
		p.started = true
		p.current = observed
		p.logger.Info("day phase initialized", "phase", observed)
		return observed
	}
	if observed > p.current {
		p.logger.Info("day phase transition", "from", p.current, "to", observed)
		p.current = observed
	}
	return p.current
}

// Current returns the phase without advancing it.
func (p *PhaseClock) Current() DayPhase { return p.current }

// HolidaySet builds a holiday predicate from "2006-01-02" dates.
func HolidaySet(dates []string) func(time.Time) bool {
	set := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		set[d] = struct{}{}
	}
	return func(t time.Time) bool {
		_, ok := set[t.Format("2006-01-02")]
		return ok
	}
}

func parseClock(s string) (time.Duration, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("malformed clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}
