// Package alarm derives concrete alarms from event occurrences and
// maintains the live schedule of pending alarms.
package alarm

import (
	"fmt"
	"strings"
	"time"

	"calremind/internal/expand"
)

// Alarm is one pending notification, pinned to a single occurrence of a
// single event at a single offset.
type Alarm struct {
	// Fingerprint identifies this alarm across restarts and
	// re-expansions: uid, occurrence start and offset together.
	Fingerprint string

	UID          string
	CalendarID   string
	CalendarName string
	Summary      string
	Message      string
	Offset       time.Duration
	Start        time.Time // occurrence start
	DueDate      time.Time // Start minus Offset
}

// Fingerprint builds the stable identity of an alarm. The occurrence
// start is normalized to UTC so the same instant always hashes the same
// regardless of the source timezone.
func Fingerprint(uid string, start time.Time, offset time.Duration) string {
	return fmt.Sprintf("%s|%s|%s", uid, start.UTC().Format(time.RFC3339), offset)
}

// Deriver turns occurrences into alarms according to the notification
// configuration.
type Deriver struct {
	defaultOffsets   []time.Duration
	overrideMessages map[string]bool
}

// NewDeriver creates a deriver. defaultOffsets apply to occurrences
// without alarms of their own; overrideMessages lists upper-cased alarm
// messages that are replaced by the event summary.
func NewDeriver(defaultOffsets []time.Duration, overrideMessages []string) *Deriver {
	if len(defaultOffsets) == 0 {
		defaultOffsets = []time.Duration{0}
	}
	override := make(map[string]bool, len(overrideMessages))
	for _, msg := range overrideMessages {
		override[msg] = true
	}
	return &Deriver{
		defaultOffsets:   defaultOffsets,
		overrideMessages: override,
	}
}

// MaxDefaultOffset returns the largest configured default offset.
func (d *Deriver) MaxDefaultOffset() time.Duration {
	var max time.Duration
	for _, off := range d.defaultOffsets {
		if off > max {
			max = off
		}
	}
	return max
}

// Derive returns the alarms for one occurrence. An occurrence that
// defines its own alarms gets exactly those; otherwise the configured
// default offsets apply with the event summary as message. Duplicate
// fingerprints within the occurrence collapse to one alarm.
func (d *Deriver) Derive(calendarID, calendarName string, occ expand.Occurrence) []Alarm {
	type spec struct {
		offset  time.Duration
		message string
	}

	var specs []spec
	if len(occ.Alarms) > 0 {
		for _, a := range occ.Alarms {
			msg := a.Message
			if msg == "" || d.overrideMessages[strings.ToUpper(msg)] {
				msg = occ.Summary
			}
			specs = append(specs, spec{offset: a.Offset, message: msg})
		}
	} else {
		for _, off := range d.defaultOffsets {
			specs = append(specs, spec{offset: off, message: occ.Summary})
		}
	}

	alarms := make([]Alarm, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		fp := Fingerprint(occ.UID, occ.Start, s.offset)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		alarms = append(alarms, Alarm{
			Fingerprint:  fp,
			UID:          occ.UID,
			CalendarID:   calendarID,
			CalendarName: calendarName,
			Summary:      occ.Summary,
			Message:      s.message,
			Offset:       s.offset,
			Start:        occ.Start,
			DueDate:      occ.Start.Add(-s.offset),
		})
	}
	return alarms
}
