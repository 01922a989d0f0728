package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		development bool
		level       string
		enabled     zapcore.Level
		disabled    zapcore.Level
	}{
		{"development default", true, "", zapcore.DebugLevel, zapcore.InvalidLevel},
		{"production default", false, "", zapcore.InfoLevel, zapcore.DebugLevel},
		{"production warn", false, "warn", zapcore.WarnLevel, zapcore.InfoLevel},
		{"development override", true, "error", zapcore.ErrorLevel, zapcore.WarnLevel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			logger, err := New(tc.development, tc.level)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush
			if !logger.Core().Enabled(tc.enabled) {
				t.Fatalf("expected %s to be enabled", tc.enabled)
			}
			if tc.disabled != zapcore.InvalidLevel && logger.Core().Enabled(tc.disabled) {
				t.Fatalf("expected %s to be disabled", tc.disabled)
			}
		})
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	if _, err := New(false, "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
