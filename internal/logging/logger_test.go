package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogLevels(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LevelFatal, "FATAL"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if tt.level.String() != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, tt.level.String())
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"fatal", LevelFatal},
		{"unknown", LevelInfo}, // Default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("ParseLevel(%s) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:    LevelDebug,
		Colored:  false,
		ShowTime: false,
	}

	logger := New(cfg)
	logger.output = &buf

	logger.Info("routing %d models", 3)

	output := buf.String()
	if !strings.Contains(output, "INFO") {
		t.Errorf("expected output to contain 'INFO', got: %s", output)
	}
	if !strings.Contains(output, "routing 3 models") {
		t.Errorf("expected formatted message, got: %s", output)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:    LevelWarn,
		Colored:  false,
		ShowTime: false,
	}

	logger := New(cfg)
	logger.output = &buf

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()

	if strings.Contains(output, "debug message") {
		t.Error("debug message should be filtered")
	}
	if strings.Contains(output, "info message") {
		t.Error("info message should be filtered")
	}
	if !strings.Contains(output, "warn message") {
		t.Error("warn message should be present")
	}
	if !strings.Contains(output, "error message") {
		t.Error("error message should be present")
	}
}

func TestLoggerWithComponent(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:    LevelDebug,
		Colored:  false,
		ShowTime: false,
	}

	logger := New(cfg)
	logger.output = &buf

	logger.WithComponent("registry").Info("snapshot rebuilt")

	output := buf.String()
	if !strings.Contains(output, "[registry]") {
		t.Errorf("expected component prefix, got: %s", output)
	}
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:    LevelDebug,
		Colored:  false,
		ShowTime: false,
	}

	logger := New(cfg)
	logger.output = &buf

	logger.WithField("tier", "large").Info("model selected")

	output := buf.String()
	if !strings.Contains(output, "tier=large") {
		t.Errorf("expected field in output, got: %s", output)
	}
}

func TestLoggerFieldsDoNotLeakBetweenDerived(t *testing.T) {
	var buf bytes.Buffer

	logger := New(&Config{Level: LevelDebug, Colored: false, ShowTime: false})
	logger.output = &buf

	a := logger.WithField("path", "heuristic")
	_ = logger.WithField("path", "classifier")

	a.Info("first")
	output := buf.String()
	if !strings.Contains(output, "path=heuristic") {
		t.Errorf("derived logger lost its field: %s", output)
	}
	if strings.Contains(output, "classifier") {
		t.Errorf("sibling logger field leaked: %s", output)
	}
}

func TestLoggerFileOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "router.log")

	logger := New(&Config{Level: LevelDebug, Colored: true, ShowTime: false})
	logger.output = &bytes.Buffer{}
	if err := logger.SetFileOutput(path); err != nil {
		t.Fatalf("SetFileOutput: %v", err)
	}

	logger.Info("persisted line")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "persisted line") {
		t.Errorf("log file missing message: %s", content)
	}
	if strings.Contains(content, "\033") {
		t.Error("log file should not contain ANSI escapes")
	}
}

func TestStripANSI(t *testing.T) {
	in := "\033[32mINFO\033[0m message"
	out := stripANSI(in)
	if out != "INFO message" {
		t.Errorf("stripANSI = %q", out)
	}
}
