package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
)

func newBufferLogger(t *testing.T, level Level) (Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	log, err := NewLoggerWithWriter(&Config{
		Level:            level,
		Format:           JSONFormat,
		Output:           StderrOutput,
		DisableTimestamp: true,
	}, buf)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return log, buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", *DefaultConfig(), false},
		{"debug", *DebugConfig(), false},
		{"bad level", Config{Level: "loud", Format: TextFormat, Output: StderrOutput}, true},
		{"bad format", Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"bad output", Config{Level: InfoLevel, Format: TextFormat, Output: "syslog"}, true},
		{"file without path", Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFieldsAccumulate(t *testing.T) {
	log, buf := newBufferLogger(t, InfoLevel)

	log.WithComponent("engine").
		WithFields(Fields{"day": "2024-03-01"}).
		WithError(errors.New("boom")).
		Info("day processed")

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry["component"] != "engine" {
		t.Errorf("expected component field, got %v", entry["component"])
	}
	if entry["day"] != "2024-03-01" {
		t.Errorf("expected day field, got %v", entry["day"])
	}
	if entry["error"] != "boom" {
		t.Errorf("expected error field, got %v", entry["error"])
	}
	if entry["msg"] != "day processed" {
		t.Errorf("expected message, got %v", entry["msg"])
	}
}

func TestLevelFiltering(t *testing.T) {
	log, buf := newBufferLogger(t, WarnLevel)

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")

	if log.IsDebugEnabled() {
		t.Error("expected debug to be disabled at warn level")
	}
	if entries := decodeLines(t, buf); len(entries) != 1 {
		t.Errorf("expected 1 entry, got %d", len(entries))
	}
}

func TestGlobalLogger(t *testing.T) {
	original := GetGlobalLogger()
	defer SetGlobalLogger(original)

	log, buf := newBufferLogger(t, DebugLevel)
	SetGlobalLogger(log)

	WithComponent("cli").Debug("from global")
	if !strings.Contains(buf.String(), "from global") {
		t.Errorf("expected global logger to write to buffer, got %q", buf.String())
	}
}

func TestProgressTracker(t *testing.T) {
	log, buf := newBufferLogger(t, InfoLevel)

	tracker := NewProgressTracker(ProgressConfig{
		Operation: "matching",
		Total:     10,
		Logger:    log,
	})

	var wg sync.WaitGroup
	for i := 1; i <= 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tracker.Add(1)
		}(i)
	}
	wg.Wait()

	stats := tracker.GetStats()
	if stats.Current != 5 {
		t.Errorf("expected 5 processed, got %d", stats.Current)
	}
	if stats.Percentage != 50 {
		t.Errorf("expected 50%%, got %.1f", stats.Percentage)
	}

	tracker.Observe(20, 20)
	tracker.Complete()

	stats = tracker.GetStats()
	if stats.Total != 20 || stats.Current != 20 {
		t.Errorf("expected 20/20, got %d/%d", stats.Current, stats.Total)
	}
	if !strings.Contains(stats.String(), "matching: 20/20") {
		t.Errorf("unexpected stats string %q", stats.String())
	}

	entries := decodeLines(t, buf)
	last := entries[len(entries)-1]
	if last["msg"] != "Operation completed" {
		t.Errorf("expected completion entry, got %v", last["msg"])
	}
	if last["processed"] != float64(20) {
		t.Errorf("expected processed 20, got %v", last["processed"])
	}
}

func TestTimedOperation(t *testing.T) {
	log, buf := newBufferLogger(t, InfoLevel)

	if err := TimedOperation("load statement", log, func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	failure := errors.New("missing column")
	if err := TimedOperation("load report", log, func() error { return failure }); err != failure {
		t.Fatalf("expected the function error to be returned, got %v", err)
	}

	entries := decodeLines(t, buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0]["status"] != "success" || entries[1]["status"] != "error" {
		t.Errorf("unexpected statuses %v / %v", entries[0]["status"], entries[1]["status"])
	}
	if entries[1]["operation"] != "load report" {
		t.Errorf("expected operation field, got %v", entries[1]["operation"])
	}
}
