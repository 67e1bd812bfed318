package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	calDir := t.TempDir()

	content := `
notifications:
  alert_before_event_minutes: [15, 5, 0]
  timeout: 10000
  override_alert_message: ["None", "Reminder"]
scheduler:
  lookahead_hours: 24
  slide_interval_minutes: 2
  grace_minutes: 10
calendars:
  work:
    name: Work
    path: ` + calDir + `
logging:
  level: debug
`
	path := writeConfigFile(t, content)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if got := cfg.Notifications.AlertBeforeEventMinutes; len(got) != 3 || got[0] != 15 || got[1] != 5 || got[2] != 0 {
		t.Errorf("unexpected offsets: %v", got)
	}
	if cfg.Notifications.Timeout.Kind != TimeoutMillis || cfg.Notifications.Timeout.Millis != 10000 {
		t.Errorf("unexpected timeout: %+v", cfg.Notifications.Timeout)
	}
	if cfg.Notifications.OverrideAlertMessage[0] != "NONE" || cfg.Notifications.OverrideAlertMessage[1] != "REMINDER" {
		t.Errorf("override messages not upper-cased: %v", cfg.Notifications.OverrideAlertMessage)
	}
	if cfg.Scheduler.Lookahead() != 24*time.Hour {
		t.Errorf("unexpected lookahead: %v", cfg.Scheduler.Lookahead())
	}
	if cfg.Scheduler.SlideInterval() != 2*time.Minute {
		t.Errorf("unexpected slide interval: %v", cfg.Scheduler.SlideInterval())
	}
	if cfg.Scheduler.Grace() != 10*time.Minute {
		t.Errorf("unexpected grace: %v", cfg.Scheduler.Grace())
	}
	if cfg.Calendars["work"].Name != "Work" {
		t.Errorf("unexpected calendar name: %s", cfg.Calendars["work"].Name)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("unexpected log level: %s", cfg.Logging.Level)
	}
}

func TestLoadFromFileDefaults(t *testing.T) {
	calDir := t.TempDir()

	content := `
calendars:
  home:
    path: ` + calDir + `
`
	path := writeConfigFile(t, content)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if got := cfg.Notifications.AlertBeforeEventMinutes; len(got) != 1 || got[0] != 0 {
		t.Errorf("expected default offsets [0], got %v", got)
	}
	if cfg.Notifications.Timeout.Kind != TimeoutDefault {
		t.Errorf("expected DEFAULT timeout, got %+v", cfg.Notifications.Timeout)
	}
	if cfg.Scheduler.LookaheadHours != 48 {
		t.Errorf("expected default lookahead 48h, got %d", cfg.Scheduler.LookaheadHours)
	}
	if cfg.Scheduler.SlideIntervalMinutes != 1 {
		t.Errorf("expected default slide interval 1m, got %d", cfg.Scheduler.SlideIntervalMinutes)
	}
	if cfg.Scheduler.GraceMinutes != 5 {
		t.Errorf("expected default grace 5m, got %d", cfg.Scheduler.GraceMinutes)
	}
	if cfg.Calendars["home"].Name != "home" {
		t.Errorf("expected calendar name to default to id, got %s", cfg.Calendars["home"].Name)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
}

func TestTimeoutPolicyForms(t *testing.T) {
	calDir := t.TempDir()

	tests := []struct {
		name  string
		value string
		want  TimeoutPolicy
	}{
		{"default", "DEFAULT", TimeoutPolicy{Kind: TimeoutDefault}},
		{"never", "NEVER", TimeoutPolicy{Kind: TimeoutNever}},
		{"never lowercase", "never", TimeoutPolicy{Kind: TimeoutNever}},
		{"millis", "5000", TimeoutPolicy{Kind: TimeoutMillis, Millis: 5000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := `
notifications:
  timeout: ` + tt.value + `
calendars:
  c:
    path: ` + calDir + `
`
			cfg, err := LoadFromFile(writeConfigFile(t, content))
			if err != nil {
				t.Fatalf("LoadFromFile failed: %v", err)
			}
			if cfg.Notifications.Timeout != tt.want {
				t.Errorf("got %+v, want %+v", cfg.Notifications.Timeout, tt.want)
			}
		})
	}
}

func TestTimeoutPolicyInvalid(t *testing.T) {
	calDir := t.TempDir()
	content := `
notifications:
  timeout: sometimes
calendars:
  c:
    path: ` + calDir + `
`
	if _, err := LoadFromFile(writeConfigFile(t, content)); err == nil {
		t.Error("expected error for invalid timeout value")
	}
}

func TestValidateErrors(t *testing.T) {
	calDir := t.TempDir()

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no calendars", func(c *Config) { c.Calendars = nil }},
		{"empty path", func(c *Config) {
			c.Calendars["c"] = CalendarConfig{Name: "c"}
		}},
		{"missing directory", func(c *Config) {
			c.Calendars["c"] = CalendarConfig{Path: filepath.Join(calDir, "nope")}
		}},
		{"negative offset", func(c *Config) {
			c.Notifications.AlertBeforeEventMinutes = []int{-5}
		}},
		{"negative lookahead", func(c *Config) {
			c.Scheduler.LookaheadHours = -1
		}},
		{"bad timezone", func(c *Config) {
			c.Scheduler.Timezone = "Mars/Olympus"
		}},
		{"bad log level", func(c *Config) {
			c.Logging.Level = "loud"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Calendars: map[string]CalendarConfig{
					"c": {Path: calDir},
				},
			}
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	cal := CalendarConfig{Path: "~/.calendars/test"}
	if err := cal.ExpandPath(); err != nil {
		t.Fatalf("ExpandPath failed: %v", err)
	}
	want := filepath.Join(home, ".calendars/test")
	if cal.Path != want {
		t.Errorf("got %s, want %s", cal.Path, want)
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if len(cfg.Calendars) == 0 {
		t.Error("default config has no calendars")
	}
	if cfg.Scheduler.LookaheadHours != 48 {
		t.Errorf("unexpected default lookahead: %d", cfg.Scheduler.LookaheadHours)
	}
}
