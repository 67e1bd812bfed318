package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestWatchDirectoryDeliversICSEvents(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var paths []string

	fw, err := NewFSNotifyWatcher()
	if err != nil {
		t.Fatalf("NewFSNotifyWatcher failed: %v", err)
	}
	defer fw.Stop()

	err = fw.WatchDirectory(dir, func(path string) {
		mu.Lock()
		paths = append(paths, path)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("WatchDirectory failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "event.ics"), []byte("BEGIN:VCALENDAR\nEND:VCALENDAR"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(paths) > 0
	})

	mu.Lock()
	defer mu.Unlock()
	if filepath.Base(paths[0]) != "event.ics" {
		t.Errorf("unexpected path: %s", paths[0])
	}
}

func TestWatchDirectoryIgnoresNonICS(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	count := 0

	fw, err := NewFSNotifyWatcher()
	if err != nil {
		t.Fatalf("NewFSNotifyWatcher failed: %v", err)
	}
	defer fw.Stop()

	err = fw.WatchDirectory(dir, func(string) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("WatchDirectory failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("non-ICS file triggered %d events", count)
	}
}

func TestWatchDirectoryMissing(t *testing.T) {
	fw, err := NewFSNotifyWatcher()
	if err != nil {
		t.Fatalf("NewFSNotifyWatcher failed: %v", err)
	}
	defer fw.Stop()

	if err := fw.WatchDirectory("/does/not/exist", func(string) {}); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestCalendarWatcherDebounce(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var signals []string

	cw, err := NewCalendarWatcher(func(calendarID string) {
		mu.Lock()
		signals = append(signals, calendarID)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("NewCalendarWatcher failed: %v", err)
	}
	defer cw.Stop()
	cw.SetDebounce(100 * time.Millisecond)

	if err := cw.AddCalendar("work", dir); err != nil {
		t.Fatalf("AddCalendar failed: %v", err)
	}

	// A burst of writes must coalesce into one signal.
	for i := 0; i < 5; i++ {
		name := filepath.Join(dir, "burst.ics")
		if err := os.WriteFile(name, []byte("BEGIN:VCALENDAR\nEND:VCALENDAR"), 0644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(signals) > 0
	})

	// Allow any stray timers to fire, then check coalescing.
	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(signals) != 1 {
		t.Errorf("expected 1 coalesced signal, got %d", len(signals))
	}
	if signals[0] != "work" {
		t.Errorf("unexpected calendar id: %s", signals[0])
	}
}

func TestCalendarWatcherStopCancelsPending(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	count := 0

	cw, err := NewCalendarWatcher(func(calendarID string) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("NewCalendarWatcher failed: %v", err)
	}
	cw.SetDebounce(200 * time.Millisecond)

	if err := cw.AddCalendar("work", dir); err != nil {
		t.Fatalf("AddCalendar failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "x.ics"), []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if err := cw.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	time.Sleep(400 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("pending signal fired after Stop: %d", count)
	}
}
