package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"calremind/internal/alarm"
	"calremind/internal/config"
	"calremind/internal/expand"
	"calremind/internal/ledger"
	"calremind/internal/notify"
	"calremind/internal/parser"
	"calremind/internal/scheduler"
	"calremind/internal/store"
	"calremind/internal/watcher"
)

// CalRemind represents the main application
type CalRemind struct {
	config     *config.Config
	store      *store.CalendarStore
	parser     *parser.Parser
	ledger     *ledger.Ledger
	dispatcher *notify.Dispatcher
	scheduler  *scheduler.Scheduler
	watcher    *watcher.CalendarWatcher

	cancel context.CancelFunc
	done   chan struct{}
}

// NewCalRemind creates a new CalRemind instance
func NewCalRemind() *CalRemind {
	return &CalRemind{
		done: make(chan struct{}),
	}
}

// Initialize sets up all components
func (cr *CalRemind) Initialize() error {
	fmt.Fprintf(os.Stderr, "Initializing CalRemind...\n")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cr.config = cfg

	fmt.Fprintf(os.Stderr, "Loaded configuration with %d calendars\n", len(cfg.Calendars))

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return err
	}

	cr.store = store.NewCalendarStore()
	for id, cal := range cfg.Calendars {
		if err := cr.store.AddCalendar(id, cal.Name, cal.Path); err != nil {
			return fmt.Errorf("failed to register calendar %s: %w", id, err)
		}
	}

	cr.parser = parser.NewParser()
	cr.parser.SetTimeZone(loc)

	cr.ledger, err = ledger.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open fired-alarm ledger: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Fired-alarm ledger: %s\n", cr.ledger.Path())

	sink, err := notify.NewDBusSink(cfg.Notifications.Timeout)
	if err != nil {
		cr.ledger.Close()
		return fmt.Errorf("failed to connect notification sink: %w", err)
	}
	cr.dispatcher = notify.NewDispatcher(sink, notify.NewRenderer(cfg.Notifications.Template))

	deriver := alarm.NewDeriver(
		cfg.Notifications.DefaultOffsets(),
		cfg.Notifications.OverrideAlertMessage,
	)
	cr.scheduler = scheduler.New(
		cr.store,
		expand.NewExpander(loc),
		deriver,
		cr.ledger,
		cr.dispatcher,
		cfg.Scheduler,
	)

	cr.watcher, err = watcher.NewCalendarWatcher(cr.handleCalendarChange)
	if err != nil {
		cr.dispatcher.Close()
		cr.ledger.Close()
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	for id, cal := range cfg.Calendars {
		fmt.Fprintf(os.Stderr, "Watching calendar %s: %s\n", id, cal.Path)
		if err := cr.watcher.AddCalendar(id, cal.Path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to watch calendar %s: %v\n", id, err)
		}
	}

	return nil
}

// Start loads all calendars and runs the scheduler until Stop.
func (cr *CalRemind) Start() error {
	fmt.Fprintf(os.Stderr, "Starting CalRemind daemon...\n")

	if err := cr.performInitialScan(); err != nil {
		return fmt.Errorf("initial scan failed: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cr.cancel = cancel

	go func() {
		defer close(cr.done)
		if err := cr.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Scheduler stopped: %v\n", err)
		}
	}()

	fmt.Fprintf(os.Stderr, "CalRemind daemon started, watching %d calendars\n", len(cr.config.Calendars))
	return nil
}

// Stop shuts the daemon down.
func (cr *CalRemind) Stop() {
	fmt.Fprintf(os.Stderr, "Stopping CalRemind daemon...\n")

	if cr.watcher != nil {
		if err := cr.watcher.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error stopping file watcher: %v\n", err)
		}
	}
	if cr.cancel != nil {
		cr.cancel()
		<-cr.done
	}
	if cr.dispatcher != nil {
		if err := cr.dispatcher.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing notification sink: %v\n", err)
		}
	}
	if cr.ledger != nil {
		if err := cr.ledger.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing ledger: %v\n", err)
		}
	}

	fmt.Fprintf(os.Stderr, "CalRemind daemon stopped\n")
}

// performInitialScan loads every configured calendar into the store.
func (cr *CalRemind) performInitialScan() error {
	fmt.Fprintf(os.Stderr, "Performing initial scan of calendar directories...\n")

	totalEvents := 0
	for _, id := range cr.store.CalendarIDs() {
		cal := cr.config.Calendars[id]

		byFile, err := cr.parser.ParseDirectory(cal.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to parse calendar %s: %v\n", id, err)
			continue
		}

		if err := cr.store.ReplaceAll(id, byFile); err != nil {
			return fmt.Errorf("failed to store calendar %s: %w", id, err)
		}

		count := 0
		for _, events := range byFile {
			count += len(events)
		}
		fmt.Fprintf(os.Stderr, "Loaded %d events from %s\n", count, cal.Path)
		totalEvents += count
	}

	fmt.Fprintf(os.Stderr, "Initial scan complete: loaded %d total events\n", totalEvents)
	return nil
}

// handleCalendarChange re-reads a changed calendar and signals the
// scheduler. Runs on the watcher's debounce goroutine.
func (cr *CalRemind) handleCalendarChange(calendarID string) {
	cal, ok := cr.config.Calendars[calendarID]
	if !ok {
		return
	}

	fmt.Fprintf(os.Stderr, "Calendar %s changed, reloading\n", calendarID)

	byFile, err := cr.parser.ParseDirectory(cal.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reloading calendar %s: %v\n", calendarID, err)
		return
	}
	if err := cr.store.ReplaceAll(calendarID, byFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error storing calendar %s: %v\n", calendarID, err)
		return
	}

	cr.scheduler.NotifyChange(calendarID)
}

// setupSignalHandling sets up graceful shutdown on SIGINT/SIGTERM
func setupSignalHandling(stop chan<- struct{}) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "Received signal %v, shutting down...\n", sig)
		close(stop)
	}()
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "init":
			fmt.Println("Creating default configuration...")

			configPath, err := config.WriteDefaultConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating default config: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Created default configuration at: %s\n", configPath)

			if err := notify.CreateDefaultTemplates(); err != nil {
				fmt.Fprintf(os.Stderr, "Error creating default templates: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("Created default notification templates")
			return
		case "help", "-h", "--help":
			fmt.Println("CalRemind - Calendar Alarm Daemon")
			fmt.Println("")
			fmt.Println("Usage:")
			fmt.Println("  calremind          Start the daemon")
			fmt.Println("  calremind init     Create default configuration and templates")
			fmt.Println("  calremind help     Show this help")
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
			fmt.Fprintf(os.Stderr, "Use 'calremind help' for usage information\n")
			os.Exit(1)
		}
	}

	app := NewCalRemind()

	if err := app.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Initialization failed: %v\n", err)
		os.Exit(1)
	}

	stop := make(chan struct{})
	setupSignalHandling(stop)

	if err := app.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start CalRemind: %v\n", err)
		app.Stop()
		os.Exit(1)
	}

	<-stop
	app.Stop()

	fmt.Fprintf(os.Stderr, "CalRemind exiting\n")
}
