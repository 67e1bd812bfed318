// Package scheduler owns the live schedule: it expands events into a
// sliding window of alarms, waits for the next due date, and hands due
// alarms to the dispatcher exactly once.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"calremind/internal/alarm"
	"calremind/internal/config"
	"calremind/internal/expand"
	"calremind/internal/ledger"
	"calremind/internal/store"
)

// Alarms dispatched more than this after their due date are flagged as
// late to the dispatcher.
const lateThreshold = time.Minute

// Minimum wait before retrying an alarm whose delivery failed.
const retryInterval = 15 * time.Second

// Dispatcher delivers one alarm. An error means the outcome is unknown.
type Dispatcher interface {
	Dispatch(ctx context.Context, a alarm.Alarm, late bool) error
}

// Scheduler drives the alarm pipeline. All schedule and ledger access
// happens on the Run goroutine; other goroutines communicate through
// NotifyChange.
type Scheduler struct {
	store      *store.CalendarStore
	expander   *expand.Expander
	deriver    *alarm.Deriver
	schedule   *alarm.Schedule
	ledger     *ledger.Ledger
	dispatcher Dispatcher

	lookahead time.Duration
	slide     time.Duration
	grace     time.Duration

	changes chan string

	// now is replaceable for tests.
	now func() time.Time
}

// New creates a scheduler.
func New(
	st *store.CalendarStore,
	expander *expand.Expander,
	deriver *alarm.Deriver,
	led *ledger.Ledger,
	dispatcher Dispatcher,
	cfg config.SchedulerConfig,
) *Scheduler {
	return &Scheduler{
		store:      st,
		expander:   expander,
		deriver:    deriver,
		schedule:   alarm.NewSchedule(),
		ledger:     led,
		dispatcher: dispatcher,
		lookahead:  cfg.Lookahead(),
		slide:      cfg.SlideInterval(),
		grace:      cfg.Grace(),
		changes:    make(chan string, 16),
		now:        time.Now,
	}
}

// SetClock replaces the scheduler's clock.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// NotifyChange signals that a calendar's events changed and its alarms
// need recomputing. Safe to call from any goroutine; a full queue drops
// the signal, which the next slide pass makes up for.
func (s *Scheduler) NotifyChange(calendarID string) {
	select {
	case s.changes <- calendarID:
	default:
	}
}

// Pending returns the alarms currently scheduled. Test hook; not safe
// while Run is active.
func (s *Scheduler) Pending() []alarm.Alarm {
	return s.schedule.Pending()
}

// Run expands all calendars, catches up on alarms missed while the
// process was down, then serves the schedule until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.RecomputeAll(); err != nil {
		return err
	}
	// Startup catch-up: anything due within the grace window fires now.
	s.DispatchDue(ctx)

	slideTicker := time.NewTicker(s.slide)
	defer slideTicker.Stop()

	timer := time.NewTimer(s.untilNextDue())
	defer timer.Stop()

	for {
		var needRetry bool

		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timer.C:
			needRetry = s.DispatchDue(ctx)

		case calendarID := <-s.changes:
			if err := s.Recompute(calendarID); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to recompute calendar %s: %v\n", calendarID, err)
			}
			// A change can make an alarm due immediately.
			needRetry = s.DispatchDue(ctx)

		case <-slideTicker.C:
			if err := s.RecomputeAll(); err != nil {
				fmt.Fprintf(os.Stderr, "Slide recompute failed: %v\n", err)
			}
			needRetry = s.DispatchDue(ctx)
			s.pruneLedger()
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}

		wait := s.untilNextDue()
		if needRetry && wait < retryInterval {
			wait = retryInterval
		}
		timer.Reset(wait)
	}
}

func (s *Scheduler) untilNextDue() time.Duration {
	next, ok := s.schedule.NextDue()
	if !ok {
		// Nothing pending; the slide ticker wakes us up anyway.
		return s.slide
	}
	until := next.DueDate.Sub(s.now())
	if until < 0 {
		return 0
	}
	return until
}

// RecomputeAll re-expands every calendar into the current window.
func (s *Scheduler) RecomputeAll() error {
	var firstErr error
	for _, id := range s.store.CalendarIDs() {
		if err := s.Recompute(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Recompute replaces the schedule entries of one calendar with alarms
// derived from its events in the window [now-grace, now+lookahead].
// Events with malformed recurrence rules are skipped so one bad event
// cannot block the rest of the calendar.
func (s *Scheduler) Recompute(calendarID string) error {
	cal, ok := s.store.Calendar(calendarID)
	if !ok {
		return fmt.Errorf("unknown calendar %q", calendarID)
	}

	now := s.now()
	winStart := now.Add(-s.grace)
	winEnd := now.Add(s.lookahead)

	var alarms []alarm.Alarm
	for _, event := range s.store.Events(calendarID) {
		// Extend the occurrence window so an alarm due inside the
		// lookahead still surfaces when its occurrence lies beyond it.
		maxOffset := event.MaxAlarmOffset()
		if len(event.Alarms) == 0 {
			maxOffset = s.deriver.MaxDefaultOffset()
		}
		occWinEnd := winEnd.Add(maxOffset)

		occs, err := s.expander.Expand(event, winStart, occWinEnd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Skipping event %s in calendar %s: %v\n", event.UID, calendarID, err)
			continue
		}

		for _, occ := range occs {
			for _, a := range s.deriver.Derive(calendarID, cal.Name, occ) {
				if a.DueDate.Before(winStart) || a.DueDate.After(winEnd) {
					continue
				}
				fired, err := s.ledger.HasFired(a.Fingerprint)
				if err != nil {
					return fmt.Errorf("ledger unavailable during recompute: %w", err)
				}
				if fired {
					continue
				}
				alarms = append(alarms, a)
			}
		}
	}

	s.schedule.Upsert(calendarID, alarms)
	return nil
}

// DispatchDue fires every alarm whose due date has passed and reports
// whether any alarm was held back for retry. The ledger is consulted
// immediately before and written immediately after each delivery, so a
// crash between the two costs at most one duplicate and never a silent
// loss.
func (s *Scheduler) DispatchDue(ctx context.Context) bool {
	now := s.now()
	needRetry := false

	for _, a := range s.schedule.DrainDue(now) {
		age := now.Sub(a.DueDate)
		if age > s.grace {
			fmt.Fprintf(os.Stderr, "Skipping alarm %s: %s past due, beyond grace window\n", a.Fingerprint, age)
			continue
		}

		fired, err := s.ledger.HasFired(a.Fingerprint)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ledger check failed for %s, holding alarm: %v\n", a.Fingerprint, err)
			s.schedule.Insert(a)
			needRetry = true
			continue
		}
		if fired {
			continue
		}

		if err := s.dispatcher.Dispatch(ctx, a, age > lateThreshold); err != nil {
			// Outcome unknown; keep the alarm for retry while it is
			// younger than the grace window rather than mark it fired.
			fmt.Fprintf(os.Stderr, "Dispatch failed for %s: %v\n", a.Fingerprint, err)
			s.schedule.Insert(a)
			needRetry = true
			continue
		}

		if err := s.ledger.Record(a.Fingerprint, a.DueDate, s.now()); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to record fired alarm %s: %v\n", a.Fingerprint, err)
		}
	}

	return needRetry
}

func (s *Scheduler) pruneLedger() {
	cutoff := s.now().Add(-s.lookahead)
	if n, err := s.ledger.Prune(cutoff); err != nil {
		fmt.Fprintf(os.Stderr, "Ledger prune failed: %v\n", err)
	} else if n > 0 {
		fmt.Fprintf(os.Stderr, "Pruned %d fired alarms older than %s\n", n, cutoff.Format(time.RFC3339))
	}
}
