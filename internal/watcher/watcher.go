// Package watcher monitors calendar directories for changes and turns
// bursts of file events into one reload signal per calendar.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileChangeCallback is called with the path of a changed ICS file.
type FileChangeCallback func(path string)

// FSNotifyWatcher watches directories for ICS file changes using fsnotify.
type FSNotifyWatcher struct {
	watcher   *fsnotify.Watcher
	callbacks map[string]FileChangeCallback
	mutex     sync.RWMutex
	stopChan  chan struct{}
	stopped   bool
}

// NewFSNotifyWatcher creates a new file watcher using fsnotify
func NewFSNotifyWatcher() (*FSNotifyWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	fw := &FSNotifyWatcher{
		watcher:   watcher,
		callbacks: make(map[string]FileChangeCallback),
		stopChan:  make(chan struct{}),
	}

	// Start the event processing goroutine
	go fw.processEvents()

	return fw, nil
}

// WatchDirectory adds a directory to the watch list
func (fw *FSNotifyWatcher) WatchDirectory(path string, callback FileChangeCallback) error {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()

	if fw.stopped {
		return fmt.Errorf("watcher is stopped")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for %s: %w", path, err)
	}

	if info, err := os.Stat(absPath); err != nil {
		return fmt.Errorf("directory %s does not exist: %w", absPath, err)
	} else if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", absPath)
	}

	if err := fw.watcher.Add(absPath); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", absPath, err)
	}

	fw.callbacks[absPath] = callback
	return nil
}

// Stop stops the file watcher and cleans up resources
func (fw *FSNotifyWatcher) Stop() error {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()

	if fw.stopped {
		return nil
	}

	fw.stopped = true
	close(fw.stopChan)

	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close fsnotify watcher: %w", err)
	}

	fw.callbacks = make(map[string]FileChangeCallback)
	return nil
}

// processEvents processes file system events from fsnotify
func (fw *FSNotifyWatcher) processEvents() {
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fmt.Fprintf(os.Stderr, "File watcher error: %v\n", err)

		case <-fw.stopChan:
			return
		}
	}
}

// handleEvent dispatches a single fsnotify event to the directory's
// callback. Only .ics files are forwarded.
func (fw *FSNotifyWatcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(strings.ToLower(event.Name), ".ics") {
		return
	}

	fw.mutex.RLock()
	callback, found := fw.callbacks[filepath.Dir(event.Name)]
	fw.mutex.RUnlock()

	if !found {
		return
	}

	callback(event.Name)
}

// ChangeHandler receives a debounced change signal for one calendar.
type ChangeHandler func(calendarID string)

// CalendarWatcher watches the directories of all configured calendars
// and coalesces rapid event bursts (sync clients touch many files at
// once) into a single signal per calendar.
type CalendarWatcher struct {
	fileWatcher *FSNotifyWatcher
	handler     ChangeHandler
	debounce    time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewCalendarWatcher creates a watcher delivering debounced change
// signals to handler.
func NewCalendarWatcher(handler ChangeHandler) (*CalendarWatcher, error) {
	fileWatcher, err := NewFSNotifyWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &CalendarWatcher{
		fileWatcher: fileWatcher,
		handler:     handler,
		debounce:    500 * time.Millisecond,
		timers:      make(map[string]*time.Timer),
	}, nil
}

// SetDebounce overrides the coalescing delay.
func (cw *CalendarWatcher) SetDebounce(d time.Duration) {
	cw.debounce = d
}

// AddCalendar watches one calendar directory.
func (cw *CalendarWatcher) AddCalendar(calendarID, path string) error {
	err := cw.fileWatcher.WatchDirectory(path, func(string) {
		cw.scheduleSignal(calendarID)
	})
	if err != nil {
		return fmt.Errorf("failed to watch calendar %s: %w", calendarID, err)
	}
	return nil
}

// scheduleSignal arms (or re-arms) the calendar's debounce timer.
func (cw *CalendarWatcher) scheduleSignal(calendarID string) {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if timer, ok := cw.timers[calendarID]; ok {
		timer.Reset(cw.debounce)
		return
	}

	cw.timers[calendarID] = time.AfterFunc(cw.debounce, func() {
		cw.mu.Lock()
		delete(cw.timers, calendarID)
		cw.mu.Unlock()
		cw.handler(calendarID)
	})
}

// Stop stops watching and cancels pending signals.
func (cw *CalendarWatcher) Stop() error {
	cw.mu.Lock()
	for id, timer := range cw.timers {
		timer.Stop()
		delete(cw.timers, id)
	}
	cw.mu.Unlock()

	return cw.fileWatcher.Stop()
}
