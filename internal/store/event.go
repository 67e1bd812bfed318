package store

import (
	"time"
)

// EventAlarm is an alert trigger defined on the event itself (a VALARM).
// Offset is the duration before the occurrence start at which the alarm
// fires; a negative offset fires after the start.
type EventAlarm struct {
	Offset  time.Duration
	Message string
}

// Override is a single moved or modified instance of a recurring event
// (a RECURRENCE-ID component). RecurrenceID names the rule-generated
// instant it replaces; Start/End are the instance's actual times.
type Override struct {
	RecurrenceID time.Time
	Start        time.Time
	End          time.Time
	Summary      string
}

// Event is one parsed calendar component, a VEVENT or a VTODO reminder.
// Events are immutable once parsed;
// a re-parse of the owning file produces replacement values, never
// in-place mutation.
type Event struct {
	UID     string
	Summary string
	Start   time.Time
	End     time.Time
	AllDay  bool

	// RRule is the raw RRULE value ("FREQ=WEEKLY;..."), empty for
	// non-recurring events.
	RRule string

	// ExDates are instants excluded from the recurrence set.
	ExDates []time.Time

	// RDates are explicit additional instants.
	RDates []time.Time

	// Overrides are RECURRENCE-ID instances replacing rule-generated ones.
	Overrides []Override

	// Alarms are the event's own VALARM triggers. When empty, the
	// configured default offsets apply instead.
	Alarms []EventAlarm

	// Todo marks a VTODO component. Its Start is the DUE instant.
	Todo bool

	// Completed suppresses all alarms of a todo (STATUS:COMPLETED).
	Completed bool

	// Sequence is the completion count of a recurring todo; the first
	// Sequence occurrences of the rule are treated as done.
	Sequence int
}

// Recurring reports whether the event generates more than its base instance.
func (e Event) Recurring() bool {
	return e.RRule != "" || len(e.RDates) > 0
}

// Duration returns the length of one instance of the event.
func (e Event) Duration() time.Duration {
	if e.End.IsZero() {
		return 0
	}
	return e.End.Sub(e.Start)
}

// MaxAlarmOffset returns the largest alarm offset defined on the event,
// or zero when the event defines no alarms.
func (e Event) MaxAlarmOffset() time.Duration {
	var max time.Duration
	for _, a := range e.Alarms {
		if a.Offset > max {
			max = a.Offset
		}
	}
	return max
}

// IsExDate reports whether the given instant is excluded from the
// recurrence set. Comparison is instant-based, not wall-clock-based.
func (e Event) IsExDate(t time.Time) bool {
	for _, ex := range e.ExDates {
		if ex.Equal(t) {
			return true
		}
	}
	return false
}

// OverrideFor returns the override replacing the rule-generated instant t.
func (e Event) OverrideFor(t time.Time) (Override, bool) {
	for _, o := range e.Overrides {
		if o.RecurrenceID.Equal(t) {
			return o, true
		}
	}
	return Override{}, false
}
