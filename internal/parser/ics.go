package parser

import (
	"strconv"
	"strings"
	"time"

	"calremind/internal/store"
)

// baseProps holds the properties of a base VEVENT or VTODO block that
// gocal does not surface, plus the authoritative DTSTART/DTEND.
type baseProps struct {
	summary  string
	start    time.Time
	end      time.Time
	hasTimes bool
	allDay   bool
	rrule    string
	exDates  []time.Time
	rDates   []time.Time
	alarms   []store.EventAlarm

	todo      bool
	completed bool
	sequence  int
}

// veventScan is everything scanned for one UID: the base block, if
// present, and any detached RECURRENCE-ID instances.
type veventScan struct {
	base      *baseProps
	overrides []store.Override
}

// scanVEvents extracts per-UID properties from the raw ICS text. VTODO
// reminders are scanned alongside VEVENTs; their DUE instant takes the
// place of DTSTART.
func scanVEvents(content string, defaultLoc *time.Location) map[string]*veventScan {
	scans := make(map[string]*veventScan)
	lines := unfold(content)

	for _, block := range componentBlocks(lines, "VEVENT") {
		uid := propertyValue(block, "UID")
		if uid == "" {
			continue
		}

		scan := scans[uid]
		if scan == nil {
			scan = &veventScan{}
			scans[uid] = scan
		}

		ridValue, ridParams, hasRID := property(block, "RECURRENCE-ID")
		if hasRID {
			rid, _, err := parseICSTime(ridValue, ridParams, defaultLoc)
			if err != nil {
				continue
			}
			ov := store.Override{
				RecurrenceID: rid,
				Summary:      propertyValue(block, "SUMMARY"),
			}
			if v, params, ok := property(block, "DTSTART"); ok {
				if t, _, err := parseICSTime(v, params, defaultLoc); err == nil {
					ov.Start = t
				}
			}
			if v, params, ok := property(block, "DTEND"); ok {
				if t, _, err := parseICSTime(v, params, defaultLoc); err == nil {
					ov.End = t
				}
			}
			if ov.Start.IsZero() {
				ov.Start = rid
			}
			if ov.End.IsZero() {
				ov.End = ov.Start
			}
			scan.overrides = append(scan.overrides, ov)
			continue
		}

		base := &baseProps{
			summary: propertyValue(block, "SUMMARY"),
			rrule:   propertyValue(block, "RRULE"),
		}
		if v, params, ok := property(block, "DTSTART"); ok {
			if t, allDay, err := parseICSTime(v, params, defaultLoc); err == nil {
				base.start = t
				base.end = t
				base.hasTimes = true
				base.allDay = allDay
			}
		}
		if v, params, ok := property(block, "DTEND"); ok {
			if t, _, err := parseICSTime(v, params, defaultLoc); err == nil && base.hasTimes {
				base.end = t
			}
		}
		base.exDates = propertyTimes(block, "EXDATE", defaultLoc)
		base.rDates = propertyTimes(block, "RDATE", defaultLoc)
		base.alarms = scanAlarms(block)

		scan.base = base
	}

	for _, block := range componentBlocks(lines, "VTODO") {
		uid := propertyValue(block, "UID")
		if uid == "" {
			continue
		}

		base := &baseProps{
			summary: propertyValue(block, "SUMMARY"),
			rrule:   propertyValue(block, "RRULE"),
			todo:    true,
		}

		// DUE anchors the reminder; DTSTART is the fallback. A todo
		// without either never becomes due.
		due, params, ok := property(block, "DUE")
		if !ok {
			due, params, ok = property(block, "DTSTART")
		}
		if ok {
			if t, allDay, err := parseICSTime(due, params, defaultLoc); err == nil {
				base.start = t
				base.end = t
				base.hasTimes = true
				base.allDay = allDay
			}
		}

		base.completed = strings.EqualFold(propertyValue(block, "STATUS"), "COMPLETED")
		if seq := propertyValue(block, "SEQUENCE"); seq != "" {
			if n, err := strconv.Atoi(seq); err == nil && n > 0 {
				base.sequence = n
			}
		}
		base.alarms = scanAlarms(block)

		if scan := scans[uid]; scan == nil {
			scans[uid] = &veventScan{base: base}
		} else if scan.base == nil {
			scan.base = base
		}
	}

	return scans
}

// scanAlarms collects the VALARM triggers of one component block.
func scanAlarms(block []string) []store.EventAlarm {
	var alarms []store.EventAlarm
	for _, alarmBlock := range componentBlocks(block, "VALARM") {
		trigger, params, ok := property(alarmBlock, "TRIGGER")
		if !ok || params["VALUE"] == "DATE-TIME" {
			// Absolute triggers are rare and tied to a wall-clock
			// instant, not an occurrence; skip them.
			continue
		}
		offset, err := parseTrigger(trigger)
		if err != nil {
			continue
		}
		alarms = append(alarms, store.EventAlarm{
			Offset:  offset,
			Message: propertyValue(alarmBlock, "DESCRIPTION"),
		})
	}
	return alarms
}

// stripRecurrenceRules removes RRULE properties from the ICS text so
// gocal parses each recurring VEVENT once instead of materializing its
// full instance series at read time; expansion happens per window later.
func stripRecurrenceRules(content string) string {
	lines := unfold(content)
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		name, _, _, ok := splitProperty(strings.TrimSpace(line))
		if ok && name == "RRULE" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\r\n")
}

// unfold joins continuation lines per RFC 5545 section 3.1.
func unfold(content string) []string {
	raw := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && len(lines) > 0 {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// componentBlocks returns the line groups between each BEGIN:name and
// its END:name, outermost matches only.
func componentBlocks(lines []string, name string) [][]string {
	var blocks [][]string
	begin := "BEGIN:" + name
	end := "END:" + name

	depth := 0
	var current []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == begin:
			depth++
			if depth == 1 {
				current = nil
				continue
			}
		case trimmed == end:
			depth--
			if depth == 0 {
				blocks = append(blocks, current)
				continue
			}
		}
		if depth > 0 {
			current = append(current, line)
		}
	}
	return blocks
}

// property returns the value and parameters of the first top-level
// occurrence of the named property in the block. Properties inside
// nested components are skipped.
func property(block []string, name string) (string, map[string]string, bool) {
	depth := 0
	for _, line := range block {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "BEGIN:") {
			depth++
			continue
		}
		if strings.HasPrefix(trimmed, "END:") {
			depth--
			continue
		}
		if depth > 0 {
			continue
		}

		propName, params, value, ok := splitProperty(trimmed)
		if ok && propName == name {
			return value, params, true
		}
	}
	return "", nil, false
}

func propertyValue(block []string, name string) string {
	value, _, _ := property(block, name)
	return value
}

// propertyTimes collects all occurrences of a date-list property such
// as EXDATE or RDATE, each of which may carry several comma-separated
// values.
func propertyTimes(block []string, name string, defaultLoc *time.Location) []time.Time {
	var times []time.Time
	depth := 0
	for _, line := range block {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "BEGIN:") {
			depth++
			continue
		}
		if strings.HasPrefix(trimmed, "END:") {
			depth--
			continue
		}
		if depth > 0 {
			continue
		}

		propName, params, value, ok := splitProperty(trimmed)
		if !ok || propName != name {
			continue
		}
		if params["VALUE"] == "PERIOD" {
			continue
		}
		for _, v := range strings.Split(value, ",") {
			if t, _, err := parseICSTime(strings.TrimSpace(v), params, defaultLoc); err == nil {
				times = append(times, t)
			}
		}
	}
	return times
}

// splitProperty breaks "NAME;PARAM=X;PARAM2=Y:value" into parts.
func splitProperty(line string) (string, map[string]string, string, bool) {
	colon := strings.Index(line, ":")
	if colon < 0 {
		return "", nil, "", false
	}
	head := line[:colon]
	value := line[colon+1:]

	parts := strings.Split(head, ";")
	name := strings.ToUpper(parts[0])

	var params map[string]string
	if len(parts) > 1 {
		params = make(map[string]string, len(parts)-1)
		for _, part := range parts[1:] {
			if eq := strings.Index(part, "="); eq > 0 {
				params[strings.ToUpper(part[:eq])] = strings.Trim(part[eq+1:], `"`)
			}
		}
	}
	return name, params, value, true
}

// parseICSTime parses an ICS date or date-time value. The second return
// reports whether the value was a bare date.
func parseICSTime(value string, params map[string]string, defaultLoc *time.Location) (time.Time, bool, error) {
	loc := defaultLoc
	if tzid := params["TZID"]; tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}

	if params["VALUE"] == "DATE" || len(value) == 8 {
		t, err := time.ParseInLocation("20060102", value, loc)
		return t, true, err
	}
	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse("20060102T150405Z", value)
		return t, false, err
	}
	t, err := time.ParseInLocation("20060102T150405", value, loc)
	return t, false, err
}
