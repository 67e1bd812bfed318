// Package parser reads ICS calendar files into the event model. gocal
// covers the base VEVENT fields; alarm, additional-date and override
// properties it does not surface are scanned from the raw component
// blocks.
package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	duration "github.com/ChannelMeter/iso8601duration"
	"github.com/apognu/gocal"

	"calremind/internal/store"
)

// Parser handles parsing of ICS files.
type Parser struct {
	maxEvents int
	timeZone  *time.Location
}

// NewParser creates a new parser instance.
func NewParser() *Parser {
	return &Parser{
		maxEvents: 10000, // Reasonable limit to prevent memory issues
		timeZone:  time.Local,
	}
}

// SetMaxEvents sets the maximum number of events to parse from a single file.
func (p *Parser) SetMaxEvents(max int) {
	p.maxEvents = max
}

// SetTimeZone sets the default timezone for parsing.
func (p *Parser) SetTimeZone(tz *time.Location) {
	p.timeZone = tz
}

// ParseFile parses a single ICS file and returns its events.
func (p *Parser) ParseFile(filePath string) ([]store.Event, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}
	return p.ParseBytes(data)
}

// ParseDirectory parses all ICS files under dirPath, keyed by file path.
// Files that fail to parse are logged and skipped so one broken file
// cannot take down the rest of the calendar.
func (p *Parser) ParseDirectory(dirPath string) (map[string][]store.Event, error) {
	byFile := make(map[string][]store.Event)

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(info.Name()), ".ics") {
			return nil
		}

		events, parseErr := p.ParseFile(path)
		if parseErr != nil {
			fmt.Fprintf(os.Stderr, "Error parsing file %s: %v\n", path, parseErr)
			return nil
		}

		byFile[path] = events
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk directory %s: %w", dirPath, err)
	}

	return byFile, nil
}

// ParseBytes parses ICS data and returns one Event per UID, with
// recurrence rules unexpanded.
func (p *Parser) ParseBytes(data []byte) ([]store.Event, error) {
	// Wide bounds so gocal accepts events anywhere on the calendar; the
	// expander applies the real window later. RRULE properties are
	// stripped first so gocal emits one event per VEVENT instead of
	// materializing decades of instances here.
	start := time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2100, 12, 31, 23, 59, 59, 0, time.UTC)

	cal := gocal.NewParser(strings.NewReader(stripRecurrenceRules(string(data))))
	cal.Start, cal.End = &start, &end

	if err := cal.Parse(); err != nil {
		return nil, fmt.Errorf("failed to parse ICS data: %w", err)
	}

	scans := scanVEvents(string(data), p.timeZone)

	// The raw base block carries DTSTART, the recurrence rule and
	// everything else gocal does not surface.
	byUID := make(map[string]*store.Event)
	var order []string
	count := 0

	for _, ge := range cal.Events {
		if ge.Uid == "" {
			fmt.Fprintf(os.Stderr, "Skipping event without UID\n")
			continue
		}
		if count >= p.maxEvents {
			fmt.Fprintf(os.Stderr, "Warning: Reached maximum event limit (%d), skipping remaining events\n", p.maxEvents)
			break
		}
		count++

		if _, ok := byUID[ge.Uid]; ok {
			continue
		}
		if ge.Start == nil || ge.End == nil {
			fmt.Fprintf(os.Stderr, "Skipping event %s without start or end\n", ge.Uid)
			continue
		}

		event := store.Event{
			UID:     ge.Uid,
			Summary: ge.Summary,
			Start:   *ge.Start,
			End:     *ge.End,
			AllDay:  ge.RawStart.Params["VALUE"] == "DATE",
		}

		if scan, ok := scans[ge.Uid]; ok && scan.base != nil {
			applyBase(&event, scan.base)
		}

		byUID[ge.Uid] = &event
		order = append(order, ge.Uid)
	}

	// VTODO reminders never pass through gocal; emit them, and any
	// other scanned component gocal dropped, straight from the scan.
	var scanOnly []string
	for uid, scan := range scans {
		if _, ok := byUID[uid]; ok || scan.base == nil || !scan.base.hasTimes {
			continue
		}
		scanOnly = append(scanOnly, uid)
	}
	sort.Strings(scanOnly)
	for _, uid := range scanOnly {
		if count >= p.maxEvents {
			break
		}
		count++
		event := store.Event{UID: uid}
		applyBase(&event, scans[uid].base)
		byUID[uid] = &event
		order = append(order, uid)
	}

	// Attach detached RECURRENCE-ID instances to their base event.
	for uid, scan := range scans {
		base, ok := byUID[uid]
		if !ok {
			continue
		}
		base.Overrides = append(base.Overrides, scan.overrides...)
	}

	events := make([]store.Event, 0, len(order))
	for _, uid := range order {
		ev := byUID[uid]
		sort.Slice(ev.Overrides, func(i, j int) bool {
			return ev.Overrides[i].Start.Before(ev.Overrides[j].Start)
		})
		events = append(events, *ev)
	}
	return events, nil
}

// applyBase overlays the raw-scan properties onto an event.
func applyBase(event *store.Event, b *baseProps) {
	if b.summary != "" {
		event.Summary = b.summary
	}
	if b.hasTimes {
		event.Start = b.start
		event.End = b.end
	}
	if b.allDay {
		event.AllDay = true
	}
	event.RRule = b.rrule
	event.ExDates = b.exDates
	event.RDates = b.rDates
	event.Alarms = b.alarms
	event.Todo = b.todo
	event.Completed = b.completed
	event.Sequence = b.sequence
}

// ValidateICS validates ICS data without fully parsing it.
func (p *Parser) ValidateICS(data []byte) error {
	content := string(data)

	if !strings.Contains(content, "BEGIN:VCALENDAR") {
		return fmt.Errorf("missing BEGIN:VCALENDAR")
	}
	if !strings.Contains(content, "END:VCALENDAR") {
		return fmt.Errorf("missing END:VCALENDAR")
	}

	// Check for matching BEGIN/END pairs.
	lines := strings.Split(content, "\n")
	stack := make([]string, 0)

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "BEGIN:") {
			component := strings.TrimPrefix(line, "BEGIN:")
			stack = append(stack, component)
		} else if strings.HasPrefix(line, "END:") {
			component := strings.TrimPrefix(line, "END:")
			if len(stack) == 0 {
				return fmt.Errorf("unexpected END:%s without matching BEGIN", component)
			}
			if stack[len(stack)-1] != component {
				return fmt.Errorf("mismatched BEGIN/END: expected %s, got %s", stack[len(stack)-1], component)
			}
			stack = stack[:len(stack)-1]
		}
	}

	if len(stack) > 0 {
		return fmt.Errorf("unclosed BEGIN statements: %v", stack)
	}

	return nil
}

// parseTrigger converts a VALARM TRIGGER duration into a before-start
// offset. A positive trigger (after start) yields a negative offset.
func parseTrigger(trigger string) (time.Duration, error) {
	value := strings.TrimSpace(trigger)
	negative := strings.HasPrefix(value, "-")
	value = strings.TrimPrefix(value, "-")
	value = strings.TrimPrefix(value, "+")

	d, err := duration.FromString(value)
	if err != nil {
		return 0, fmt.Errorf("invalid trigger duration %q: %w", trigger, err)
	}

	offset := d.ToDuration()
	if !negative {
		offset = -offset
	}
	return offset, nil
}
