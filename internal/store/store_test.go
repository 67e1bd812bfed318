package store

import (
	"testing"
	"time"
)

func TestAddCalendarDuplicate(t *testing.T) {
	s := NewCalendarStore()
	if err := s.AddCalendar("work", "Work", "/cal/work"); err != nil {
		t.Fatalf("AddCalendar failed: %v", err)
	}
	if err := s.AddCalendar("work", "Work Again", "/cal/other"); err == nil {
		t.Error("duplicate calendar ID accepted")
	}
}

func TestCalendarLookup(t *testing.T) {
	s := NewCalendarStore()
	if err := s.AddCalendar("home", "Home", "/cal/home"); err != nil {
		t.Fatalf("AddCalendar failed: %v", err)
	}

	cal, ok := s.Calendar("home")
	if !ok {
		t.Fatal("registered calendar not found")
	}
	if cal.Name != "Home" || cal.Path != "/cal/home" {
		t.Errorf("unexpected calendar: %+v", cal)
	}

	if _, ok := s.Calendar("nope"); ok {
		t.Error("unknown calendar reported as found")
	}
}

func TestCalendarIDsSorted(t *testing.T) {
	s := NewCalendarStore()
	for _, id := range []string{"zeta", "alpha", "mid"} {
		if err := s.AddCalendar(id, id, "/cal/"+id); err != nil {
			t.Fatalf("AddCalendar failed: %v", err)
		}
	}

	ids := s.CalendarIDs()
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
}

func TestCalendarIDForPath(t *testing.T) {
	s := NewCalendarStore()
	if err := s.AddCalendar("work", "Work", "/cal/work"); err != nil {
		t.Fatalf("AddCalendar failed: %v", err)
	}

	id, ok := s.CalendarIDForPath("/cal/work/meeting.ics")
	if !ok || id != "work" {
		t.Errorf("path not resolved: %s, %v", id, ok)
	}
	if _, ok := s.CalendarIDForPath("/elsewhere/x.ics"); ok {
		t.Error("unrelated path resolved to a calendar")
	}
}

func TestReplaceFileProvenance(t *testing.T) {
	s := NewCalendarStore()
	if err := s.AddCalendar("work", "Work", "/cal/work"); err != nil {
		t.Fatalf("AddCalendar failed: %v", err)
	}

	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	if err := s.ReplaceFile("work", "a.ics", []Event{
		{UID: "a-1", Start: start, End: start.Add(time.Hour)},
		{UID: "a-2", Start: start, End: start.Add(time.Hour)},
	}); err != nil {
		t.Fatalf("ReplaceFile failed: %v", err)
	}
	if err := s.ReplaceFile("work", "b.ics", []Event{
		{UID: "b-1", Start: start, End: start.Add(time.Hour)},
	}); err != nil {
		t.Fatalf("ReplaceFile failed: %v", err)
	}

	if s.EventCount() != 3 {
		t.Fatalf("expected 3 events, got %d", s.EventCount())
	}

	// Replacing a.ics with one event removes exactly its old events.
	if err := s.ReplaceFile("work", "a.ics", []Event{
		{UID: "a-3", Start: start, End: start.Add(time.Hour)},
	}); err != nil {
		t.Fatalf("ReplaceFile failed: %v", err)
	}

	events := s.Events("work")
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].UID != "a-3" || events[1].UID != "b-1" {
		t.Errorf("unexpected events: %s, %s", events[0].UID, events[1].UID)
	}

	// Deleting a file removes its events.
	if err := s.ReplaceFile("work", "b.ics", nil); err != nil {
		t.Fatalf("ReplaceFile failed: %v", err)
	}
	if s.EventCount() != 1 {
		t.Errorf("expected 1 event after file removal, got %d", s.EventCount())
	}
}

func TestReplaceAll(t *testing.T) {
	s := NewCalendarStore()
	if err := s.AddCalendar("work", "Work", "/cal/work"); err != nil {
		t.Fatalf("AddCalendar failed: %v", err)
	}

	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	if err := s.ReplaceFile("work", "old.ics", []Event{
		{UID: "old-1", Start: start, End: start.Add(time.Hour)},
	}); err != nil {
		t.Fatalf("ReplaceFile failed: %v", err)
	}

	if err := s.ReplaceAll("work", map[string][]Event{
		"new.ics": {{UID: "new-1", Start: start, End: start.Add(time.Hour)}},
	}); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}

	events := s.Events("work")
	if len(events) != 1 || events[0].UID != "new-1" {
		t.Errorf("full replacement failed: %+v", events)
	}
}

func TestReplaceUnknownCalendar(t *testing.T) {
	s := NewCalendarStore()
	if err := s.ReplaceAll("ghost", nil); err == nil {
		t.Error("ReplaceAll on unknown calendar accepted")
	}
	if err := s.ReplaceFile("ghost", "x.ics", nil); err == nil {
		t.Error("ReplaceFile on unknown calendar accepted")
	}
}

func TestEventHelpers(t *testing.T) {
	start := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)
	ev := Event{
		UID:     "helper",
		Start:   start,
		End:     start.Add(30 * time.Minute),
		RRule:   "FREQ=WEEKLY",
		ExDates: []time.Time{start.AddDate(0, 0, 7)},
		Alarms: []EventAlarm{
			{Offset: 5 * time.Minute},
			{Offset: time.Hour},
		},
		Overrides: []Override{
			{RecurrenceID: start.AddDate(0, 0, 14), Start: start.AddDate(0, 0, 15)},
		},
	}

	if !ev.Recurring() {
		t.Error("event with rule not recurring")
	}
	if ev.Duration() != 30*time.Minute {
		t.Errorf("unexpected duration: %v", ev.Duration())
	}
	if ev.MaxAlarmOffset() != time.Hour {
		t.Errorf("unexpected max offset: %v", ev.MaxAlarmOffset())
	}

	if !ev.IsExDate(start.AddDate(0, 0, 7)) {
		t.Error("exdate not detected")
	}
	// The same instant in another zone still matches.
	if !ev.IsExDate(start.AddDate(0, 0, 7).In(time.FixedZone("X", 3600))) {
		t.Error("exdate comparison not instant-based")
	}
	if ev.IsExDate(start) {
		t.Error("non-excluded instant reported as exdate")
	}

	if _, ok := ev.OverrideFor(start.AddDate(0, 0, 14)); !ok {
		t.Error("override not found")
	}
	if _, ok := ev.OverrideFor(start); ok {
		t.Error("override reported for plain instant")
	}

	if (Event{UID: "x", Start: start}).Recurring() {
		t.Error("plain event reported recurring")
	}
}
