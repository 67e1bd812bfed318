package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Notifications NotificationsConfig       `yaml:"notifications"`
	Scheduler     SchedulerConfig           `yaml:"scheduler"`
	Calendars     map[string]CalendarConfig `yaml:"calendars"`
	Logging       LoggingConfig             `yaml:"logging"`
}

// NotificationsConfig controls alarm derivation and delivery.
type NotificationsConfig struct {
	// AlertBeforeEventMinutes are the default offsets applied to events
	// that define no alarms of their own. Defaults to [0].
	AlertBeforeEventMinutes []int `yaml:"alert_before_event_minutes"`

	// Timeout is the on-screen lifetime policy: DEFAULT, NEVER, or an
	// integer number of milliseconds.
	Timeout TimeoutPolicy `yaml:"timeout"`

	// OverrideAlertMessage lists alarm messages (compared upper-cased)
	// that are replaced by the event summary.
	OverrideAlertMessage []string `yaml:"override_alert_message"`

	// Template is the notification template file name.
	Template string `yaml:"template"`
}

// SchedulerConfig controls the lookahead window and loop timing.
type SchedulerConfig struct {
	LookaheadHours       int    `yaml:"lookahead_hours"`
	SlideIntervalMinutes int    `yaml:"slide_interval_minutes"`
	GraceMinutes         int    `yaml:"grace_minutes"`
	Timezone             string `yaml:"timezone"`
}

// CalendarConfig represents one watched calendar source.
type CalendarConfig struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// TimeoutKind discriminates the notification timeout policy forms.
type TimeoutKind int

const (
	TimeoutDefault TimeoutKind = iota // notification server decides
	TimeoutNever                      // stays until dismissed
	TimeoutMillis                     // explicit duration
)

// TimeoutPolicy is the parsed notifications.timeout value.
type TimeoutPolicy struct {
	Kind   TimeoutKind
	Millis int
}

// UnmarshalYAML accepts "DEFAULT", "NEVER", or an integer scalar.
func (t *TimeoutPolicy) UnmarshalYAML(node *yaml.Node) error {
	raw := strings.TrimSpace(node.Value)
	switch strings.ToUpper(raw) {
	case "", "DEFAULT":
		*t = TimeoutPolicy{Kind: TimeoutDefault}
		return nil
	case "NEVER":
		*t = TimeoutPolicy{Kind: TimeoutNever}
		return nil
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms < 0 {
		return fmt.Errorf("invalid notification timeout %q: want DEFAULT, NEVER or milliseconds", raw)
	}
	*t = TimeoutPolicy{Kind: TimeoutMillis, Millis: ms}
	return nil
}

// MarshalYAML renders the policy back into its scalar form.
func (t TimeoutPolicy) MarshalYAML() (interface{}, error) {
	switch t.Kind {
	case TimeoutNever:
		return "NEVER", nil
	case TimeoutMillis:
		return t.Millis, nil
	default:
		return "DEFAULT", nil
	}
}

// DefaultOffsets returns alert_before_event_minutes as durations, in
// configured order.
func (n NotificationsConfig) DefaultOffsets() []time.Duration {
	offsets := make([]time.Duration, 0, len(n.AlertBeforeEventMinutes))
	for _, m := range n.AlertBeforeEventMinutes {
		offsets = append(offsets, time.Duration(m)*time.Minute)
	}
	return offsets
}

// Lookahead returns the forward window within which alarms are materialized.
func (s SchedulerConfig) Lookahead() time.Duration {
	return time.Duration(s.LookaheadHours) * time.Hour
}

// SlideInterval returns the periodic re-expansion interval.
func (s SchedulerConfig) SlideInterval() time.Duration {
	return time.Duration(s.SlideIntervalMinutes) * time.Minute
}

// Grace returns the catch-up window for alarms found past-due at dispatch.
func (s SchedulerConfig) Grace() time.Duration {
	return time.Duration(s.GraceMinutes) * time.Minute
}

// Location resolves the reference clock all instants are normalized to.
func (s SchedulerConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// ExpandPath expands ~ and environment variables in the calendar path.
func (c *CalendarConfig) ExpandPath() error {
	expanded := os.ExpandEnv(c.Path)
	if len(expanded) > 0 && expanded[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		expanded = filepath.Join(homeDir, expanded[1:])
	}
	c.Path = expanded
	return nil
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if len(c.Calendars) == 0 {
		return fmt.Errorf("at least one calendar must be configured")
	}

	ids := make([]string, 0, len(c.Calendars))
	for id := range c.Calendars {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		cal := c.Calendars[id]
		if cal.Path == "" {
			return fmt.Errorf("calendar %q: path cannot be empty", id)
		}
		if err := cal.ExpandPath(); err != nil {
			return fmt.Errorf("calendar %q: %w", id, err)
		}
		if _, err := os.Stat(cal.Path); os.IsNotExist(err) {
			return fmt.Errorf("calendar %q: directory does not exist: %s", id, cal.Path)
		}
		if cal.Name == "" {
			cal.Name = id
		}
		c.Calendars[id] = cal
	}

	if len(c.Notifications.AlertBeforeEventMinutes) == 0 {
		c.Notifications.AlertBeforeEventMinutes = []int{0}
	}
	for i, m := range c.Notifications.AlertBeforeEventMinutes {
		if m < 0 {
			return fmt.Errorf("alert_before_event_minutes[%d]: must be non-negative, got %d", i, m)
		}
	}

	// Comparison against alarm messages is case-insensitive; normalize
	// once here so derivation can compare directly.
	for i, msg := range c.Notifications.OverrideAlertMessage {
		c.Notifications.OverrideAlertMessage[i] = strings.ToUpper(msg)
	}

	if c.Scheduler.LookaheadHours == 0 {
		c.Scheduler.LookaheadHours = 48
	}
	if c.Scheduler.LookaheadHours < 0 {
		return fmt.Errorf("lookahead_hours must be positive, got %d", c.Scheduler.LookaheadHours)
	}
	if c.Scheduler.SlideIntervalMinutes == 0 {
		c.Scheduler.SlideIntervalMinutes = 1
	}
	if c.Scheduler.SlideIntervalMinutes < 0 {
		return fmt.Errorf("slide_interval_minutes must be positive, got %d", c.Scheduler.SlideIntervalMinutes)
	}
	if c.Scheduler.GraceMinutes == 0 {
		c.Scheduler.GraceMinutes = 5
	}
	if c.Scheduler.GraceMinutes < 0 {
		return fmt.Errorf("grace_minutes must be positive, got %d", c.Scheduler.GraceMinutes)
	}
	if _, err := c.Scheduler.Location(); err != nil {
		return err
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	return nil
}

// Load loads configuration from XDG-compliant locations.
func Load() (*Config, error) {
	configPath, err := xdg.SearchConfigFile("calremind/config.yaml")
	if err != nil {
		configPath, err = xdg.ConfigFile("calremind/config.yaml")
		if err != nil {
			return nil, fmt.Errorf("failed to determine config file path: %w", err)
		}
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s", configPath)
		}
	}

	return LoadFromFile(configPath)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Notifications: NotificationsConfig{
			AlertBeforeEventMinutes: []int{15, 5, 0},
			Timeout:                 TimeoutPolicy{Kind: TimeoutDefault},
			Template:                "default.tpl",
		},
		Scheduler: SchedulerConfig{
			LookaheadHours:       48,
			SlideIntervalMinutes: 1,
			GraceMinutes:         5,
		},
		Calendars: map[string]CalendarConfig{
			"personal": {
				Name: "Personal",
				Path: "~/.calendars/personal",
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// WriteDefaultConfig writes a default configuration to the XDG config
// directory and returns its path.
func WriteDefaultConfig() (string, error) {
	configPath, err := xdg.ConfigFile("calremind/config.yaml")
	if err != nil {
		return "", fmt.Errorf("failed to determine config file path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	config := DefaultConfig()
	data, err := yaml.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("failed to marshal default config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return configPath, nil
}
