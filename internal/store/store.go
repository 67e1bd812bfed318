package store

import (
	"fmt"
	"sort"
	"sync"
)

// Calendar is one watched calendar source and its current event set.
type Calendar struct {
	ID   string
	Name string
	Path string

	events map[string]Event
	// fileUIDs tracks which UIDs each file contributed, so replacing a
	// single changed file removes exactly its previous events.
	fileUIDs map[string][]string
}

// CalendarStore holds the current in-memory event sets of all configured
// calendars. Event sets are replaced wholesale (directory re-scan) or
// per-file (single file change), never edited in place.
type CalendarStore struct {
	mu        sync.RWMutex
	calendars map[string]*Calendar
}

// NewCalendarStore creates an empty store.
func NewCalendarStore() *CalendarStore {
	return &CalendarStore{calendars: make(map[string]*Calendar)}
}

// AddCalendar registers a calendar source. It is an error to register the
// same ID twice.
func (s *CalendarStore) AddCalendar(id, name, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.calendars[id]; exists {
		return fmt.Errorf("calendar %q already registered", id)
	}
	s.calendars[id] = &Calendar{
		ID:       id,
		Name:     name,
		Path:     path,
		events:   make(map[string]Event),
		fileUIDs: make(map[string][]string),
	}
	return nil
}

// Calendar returns the calendar registered under id.
func (s *CalendarStore) Calendar(id string) (*Calendar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cal, ok := s.calendars[id]
	return cal, ok
}

// CalendarIDs returns all registered calendar IDs in sorted order.
func (s *CalendarStore) CalendarIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.calendars))
	for id := range s.calendars {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CalendarIDForPath returns the ID of the calendar whose source path is a
// prefix of the given file path.
func (s *CalendarStore) CalendarIDForPath(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, cal := range s.calendars {
		if len(path) >= len(cal.Path) && path[:len(cal.Path)] == cal.Path {
			return id, true
		}
	}
	return "", false
}

// ReplaceAll replaces a calendar's entire event set, keyed per source file.
func (s *CalendarStore) ReplaceAll(calendarID string, byFile map[string][]Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cal, ok := s.calendars[calendarID]
	if !ok {
		return fmt.Errorf("unknown calendar %q", calendarID)
	}

	cal.events = make(map[string]Event)
	cal.fileUIDs = make(map[string][]string)
	for file, events := range byFile {
		for _, ev := range events {
			cal.events[ev.UID] = ev
			cal.fileUIDs[file] = append(cal.fileUIDs[file], ev.UID)
		}
	}
	return nil
}

// ReplaceFile replaces the events a single file contributed to a calendar.
// Passing an empty slice removes the file's events (file deleted).
func (s *CalendarStore) ReplaceFile(calendarID, file string, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cal, ok := s.calendars[calendarID]
	if !ok {
		return fmt.Errorf("unknown calendar %q", calendarID)
	}

	for _, uid := range cal.fileUIDs[file] {
		delete(cal.events, uid)
	}
	delete(cal.fileUIDs, file)

	for _, ev := range events {
		cal.events[ev.UID] = ev
		cal.fileUIDs[file] = append(cal.fileUIDs[file], ev.UID)
	}
	return nil
}

// Events returns the calendar's current events sorted by UID.
func (s *CalendarStore) Events(calendarID string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cal, ok := s.calendars[calendarID]
	if !ok {
		return nil
	}
	events := make([]Event, 0, len(cal.events))
	for _, ev := range cal.events {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].UID < events[j].UID })
	return events
}

// EventCount returns the number of events across all calendars.
func (s *CalendarStore) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, cal := range s.calendars {
		n += len(cal.events)
	}
	return n
}
