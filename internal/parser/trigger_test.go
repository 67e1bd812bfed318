package parser

import (
	"testing"
	"time"
)

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		name     string
		trigger  string
		expected time.Duration
		wantErr  bool
	}{
		{
			name:     "15 minutes before",
			trigger:  "-PT15M",
			expected: 15 * time.Minute,
		},
		{
			name:     "1 hour before",
			trigger:  "-PT1H",
			expected: 1 * time.Hour,
		},
		{
			name:     "1 day before",
			trigger:  "-P1D",
			expected: 24 * time.Hour,
		},
		{
			name:     "complex duration",
			trigger:  "-P1DT2H30M",
			expected: 24*time.Hour + 2*time.Hour + 30*time.Minute,
		},
		{
			name:     "30 seconds before",
			trigger:  "-PT30S",
			expected: 30 * time.Second,
		},
		{
			name:     "at start",
			trigger:  "PT0S",
			expected: 0,
		},
		{
			name:     "after start",
			trigger:  "PT10M",
			expected: -10 * time.Minute,
		},
		{
			name:    "invalid format",
			trigger: "invalid",
			wantErr: true,
		},
		{
			name:    "missing P prefix",
			trigger: "T15M",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseTrigger(tt.trigger)

			if tt.wantErr {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}

			if result != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, result)
			}
		})
	}
}
