package logger

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &Logger{zap: zap.New(core)}, logs
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"console debug", Config{Level: "debug", Format: "console"}, false},
		{"json warn", Config{Level: "WARN", Format: "json"}, false},
		{"defaults", Config{}, false},
		{"unknown level", Config{Level: "trace"}, true},
		{"unknown format", Config{Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && l == nil {
				t.Fatal("New() returned nil logger")
			}
		})
	}
}

func TestFieldsAndNames(t *testing.T) {
	l, logs := newObserved(zapcore.DebugLevel)
	at := time.Date(2024, 5, 16, 12, 30, 0, 0, time.UTC)

	l.Named("weather-service").Warn("METAR fetch returned no data for any station",
		Bool("entered_error_state", true),
		Int64("metar_failures", 3),
		Time("at", at),
		Duration("delay", 780*time.Second),
		Strings("stations", []string{"EPWA", "EPKK"}),
		Error(errors.New("connection refused")))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.LoggerName != "weather-service" || e.Level != zapcore.WarnLevel {
		t.Errorf("entry = %s/%s", e.LoggerName, e.Level)
	}

	fields := e.ContextMap()
	if fields["metar_failures"] != int64(3) {
		t.Errorf("metar_failures = %v", fields["metar_failures"])
	}
	if got, ok := fields["at"].(time.Time); !ok || !got.Equal(at) {
		t.Errorf("at = %v", fields["at"])
	}
	if fields["error"] != "connection refused" {
		t.Errorf("error = %v", fields["error"])
	}
}

func TestLevelFiltering(t *testing.T) {
	l, logs := newObserved(zapcore.InfoLevel)

	l.Debug("hidden")
	l.Info("shown", String("feed", "metar"), Int("changed", 2))

	if logs.Len() != 1 || logs.All()[0].Message != "shown" {
		t.Errorf("entries = %v", logs.All())
	}
	if err := NewNop().Sync(); err != nil {
		t.Errorf("Sync() error = %v", err)
	}
}
