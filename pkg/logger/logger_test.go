package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newBufferLogger(t *testing.T, level Level) (Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	log, err := NewLogger(&Config{
		Level:            level,
		Format:           JSONFormat,
		Output:           WriterOutput,
		Writer:           buf,
		DisableTimestamp: true,
	})
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
		entry := map[string]interface{}{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid json log line %q: %v", line, err)
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
		{"service", *ServiceConfig(), false},
		{"bad level", Config{Level: "loud", Format: TextFormat, Output: StderrOutput}, true},
		{"bad format", Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"file without path", Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput}, true},
		{"writer without writer", Config{Level: InfoLevel, Format: TextFormat, Output: WriterOutput}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDerivedLoggersKeepFields(t *testing.T) {
	log, buf := newBufferLogger(t, InfoLevel)

	log.WithComponent("matcher").
		WithField("workflow", "A").
		WithError(errors.New("boom")).
		Info("stage finished")

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry["component"] != "matcher" {
		t.Errorf("expected component field, got %v", entry["component"])
	}
	if entry["workflow"] != "A" {
		t.Errorf("expected workflow field, got %v", entry["workflow"])
	}
	if entry["error"] != "boom" {
		t.Errorf("expected error field, got %v", entry["error"])
	}
}

func TestLevelFiltering(t *testing.T) {
	log, buf := newBufferLogger(t, WarnLevel)
	log.Info("hidden")
	log.Warn("shown")

	entries := decodeLines(t, buf)
	if len(entries) != 1 || entries[0]["msg"] != "shown" {
		t.Errorf("expected only the warning entry, got %v", entries)
	}
}

func TestTimedOperation(t *testing.T) {
	log, buf := newBufferLogger(t, InfoLevel)

	err := TimedOperation("export", log, func() error { return errors.New("disk full") })
	if err == nil {
		t.Fatal("expected error to be returned")
	}

	entries := decodeLines(t, buf)
	last := entries[len(entries)-1]
	if last["status"] != "error" || last["operation"] != "export" {
		t.Errorf("unexpected final entry: %v", last)
	}
}
