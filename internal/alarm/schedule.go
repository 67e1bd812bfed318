package alarm

import (
	"sort"
	"time"
)

// Schedule holds pending alarms ordered by due date. It is not safe for
// concurrent use; the scheduler loop is its single owner.
type Schedule struct {
	entries []Alarm
	byFP    map[string]bool
}

// NewSchedule creates an empty schedule.
func NewSchedule() *Schedule {
	return &Schedule{byFP: make(map[string]bool)}
}

// Len returns the number of pending alarms.
func (s *Schedule) Len() int {
	return len(s.entries)
}

// Contains reports whether an alarm with the given fingerprint is pending.
func (s *Schedule) Contains(fingerprint string) bool {
	return s.byFP[fingerprint]
}

// Upsert replaces all pending alarms of a calendar with the given set.
// Alarms of other calendars are untouched. Within the new set, a
// repeated fingerprint keeps only its first alarm.
func (s *Schedule) Upsert(calendarID string, alarms []Alarm) {
	kept := s.entries[:0]
	for _, a := range s.entries {
		if a.CalendarID == calendarID {
			delete(s.byFP, a.Fingerprint)
			continue
		}
		kept = append(kept, a)
	}
	s.entries = kept

	for _, a := range alarms {
		s.insert(a)
	}
}

// Insert adds a single alarm unless its fingerprint is already pending.
func (s *Schedule) Insert(a Alarm) bool {
	return s.insert(a)
}

func (s *Schedule) insert(a Alarm) bool {
	if s.byFP[a.Fingerprint] {
		return false
	}
	s.byFP[a.Fingerprint] = true

	// Ties on due date break by ascending fingerprint so order is
	// deterministic across runs.
	i := sort.Search(len(s.entries), func(i int) bool {
		e := s.entries[i]
		if !e.DueDate.Equal(a.DueDate) {
			return e.DueDate.After(a.DueDate)
		}
		return e.Fingerprint > a.Fingerprint
	})
	s.entries = append(s.entries, Alarm{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = a
	return true
}

// Remove drops the alarm with the given fingerprint, if pending.
func (s *Schedule) Remove(fingerprint string) bool {
	if !s.byFP[fingerprint] {
		return false
	}
	delete(s.byFP, fingerprint)
	for i, a := range s.entries {
		if a.Fingerprint == fingerprint {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	return true
}

// NextDue returns the earliest pending alarm without removing it.
func (s *Schedule) NextDue() (Alarm, bool) {
	if len(s.entries) == 0 {
		return Alarm{}, false
	}
	return s.entries[0], true
}

// DrainDue removes and returns all alarms with a due date at or before
// now, in due order.
func (s *Schedule) DrainDue(now time.Time) []Alarm {
	i := 0
	for i < len(s.entries) && !s.entries[i].DueDate.After(now) {
		i++
	}
	if i == 0 {
		return nil
	}
	due := make([]Alarm, i)
	copy(due, s.entries[:i])
	s.entries = append(s.entries[:0], s.entries[i:]...)
	for _, a := range due {
		delete(s.byFP, a.Fingerprint)
	}
	return due
}

// Pending returns a copy of all pending alarms in due order.
func (s *Schedule) Pending() []Alarm {
	out := make([]Alarm, len(s.entries))
	copy(out, s.entries)
	return out
}
