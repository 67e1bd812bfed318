// Package expand turns stored events into concrete occurrences within a
// time window, resolving recurrence rules, exception dates, additional
// dates and per-instance overrides.
package expand

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"calremind/internal/store"
)

// Safety cap so a pathological rule cannot stall the scheduler.
const maxOccurrencesPerEvent = 5000

// Occurrence is one concrete instance of an event within the window.
type Occurrence struct {
	UID     string
	Summary string
	Start   time.Time
	End     time.Time
	AllDay  bool
	Alarms  []store.EventAlarm
}

// Expander expands events into occurrences within a sliding window.
type Expander struct {
	loc *time.Location
}

// NewExpander creates an expander normalizing occurrences into loc.
func NewExpander(loc *time.Location) *Expander {
	if loc == nil {
		loc = time.Local
	}
	return &Expander{loc: loc}
}

// Expand returns the occurrences of event with start inside
// [winStart, winEnd], in ascending start order. A malformed recurrence
// rule yields an error and no occurrences; the event is skipped rather
// than aborting the surrounding expansion pass.
func (e *Expander) Expand(event store.Event, winStart, winEnd time.Time) ([]Occurrence, error) {
	if winEnd.Before(winStart) {
		return nil, fmt.Errorf("expand: window end before start")
	}
	if event.Completed {
		return nil, nil
	}

	var starts []time.Time

	if event.RRule != "" {
		ruleStarts, err := e.ruleInstants(event, winStart, winEnd)
		if err != nil {
			return nil, err
		}
		if event.Todo && event.Sequence > 0 {
			ruleStarts, err = e.dropCompleted(event, ruleStarts)
			if err != nil {
				return nil, err
			}
		}
		starts = ruleStarts
	} else if intersectsWindow(event.Start, event.Start.Add(event.Duration()), winStart, winEnd) {
		starts = append(starts, event.Start)
	}

	for _, rd := range event.RDates {
		if rd.Before(winStart) || rd.After(winEnd) {
			continue
		}
		starts = append(starts, rd)
	}

	occurrences := make([]Occurrence, 0, len(starts))
	seen := make(map[int64]bool, len(starts))
	duration := event.Duration()

	for _, start := range starts {
		if event.IsExDate(start) {
			continue
		}
		if _, overridden := event.OverrideFor(start); overridden {
			// The detached instance is emitted below from its own start.
			continue
		}
		if seen[start.Unix()] {
			continue
		}
		seen[start.Unix()] = true
		occurrences = append(occurrences, e.makeOccurrence(event, start, start.Add(duration)))
	}

	// Detached RECURRENCE-ID instances carry their own start and may move
	// into or out of the window independently of the rule.
	for _, ov := range event.Overrides {
		if ov.Start.Before(winStart) || ov.Start.After(winEnd) {
			continue
		}
		occ := e.makeOccurrence(event, ov.Start, ov.End)
		if ov.Summary != "" {
			occ.Summary = ov.Summary
		}
		occurrences = append(occurrences, occ)
	}

	sort.Slice(occurrences, func(i, j int) bool {
		return occurrences[i].Start.Before(occurrences[j].Start)
	})
	return occurrences, nil
}

// intersectsWindow reports whether [start, end) touches the window. A
// zero-length event counts when its instant lies inside.
func intersectsWindow(start, end, winStart, winEnd time.Time) bool {
	if start.After(winEnd) {
		return false
	}
	return end.After(winStart) || !start.Before(winStart)
}

// dropCompleted removes the first event.Sequence rule instants; each
// completion of a recurring todo bumps SEQUENCE by one.
func (e *Expander) dropCompleted(event store.Event, starts []time.Time) ([]time.Time, error) {
	r, err := rrule.StrToRRule(event.RRule)
	if err != nil {
		return nil, fmt.Errorf("expand: invalid recurrence rule for %s: %w", event.UID, err)
	}
	r.DTStart(event.Start)

	next := r.Iterator()
	var lastDone time.Time
	for i := 0; i < event.Sequence; i++ {
		t, ok := next()
		if !ok {
			// The rule is exhausted, everything is done.
			return nil, nil
		}
		lastDone = t
	}

	kept := starts[:0]
	for _, t := range starts {
		if t.After(lastDone) {
			kept = append(kept, t)
		}
	}
	return kept, nil
}

func (e *Expander) ruleInstants(event store.Event, winStart, winEnd time.Time) ([]time.Time, error) {
	r, err := rrule.StrToRRule(event.RRule)
	if err != nil {
		return nil, fmt.Errorf("expand: invalid recurrence rule for %s: %w", event.UID, err)
	}
	r.DTStart(event.Start)

	var set rrule.Set
	set.RRule(r)

	// Query in the event's own location so week and month boundaries
	// follow the event's clock, not the display clock.
	eventLoc := event.Start.Location()
	instants := set.Between(winStart.In(eventLoc), winEnd.In(eventLoc), true)

	if len(instants) > maxOccurrencesPerEvent {
		instants = instants[:maxOccurrencesPerEvent]
	}
	return instants, nil
}

func (e *Expander) makeOccurrence(event store.Event, start, end time.Time) Occurrence {
	if event.AllDay {
		// Date-only components have no wall-clock time of their own;
		// anchor their alarms at noon local so nobody is woken at
		// midnight.
		start = time.Date(start.Year(), start.Month(), start.Day(), 12, 0, 0, 0, e.loc)
		end = time.Date(start.Year(), start.Month(), start.Day()+1, 0, 0, 0, 0, e.loc)
	}
	return Occurrence{
		UID:     event.UID,
		Summary: event.Summary,
		Start:   start.In(e.loc),
		End:     end.In(e.loc),
		AllDay:  event.AllDay,
		Alarms:  event.Alarms,
	}
}
