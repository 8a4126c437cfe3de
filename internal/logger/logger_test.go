// ABOUTME: Tests for structured logging with verbosity control
// ABOUTME: Validates level filtering, component prefixes and log.Printf compatibility

package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetVerbose(t *testing.T) {
	// Default should be non-verbose
	if IsVerbose() {
		t.Error("Logger should default to non-verbose")
	}

	SetVerbose(true)
	if !IsVerbose() {
		t.Error("SetVerbose(true) did not enable verbose mode")
	}

	SetVerbose(false)
	if IsVerbose() {
		t.Error("SetVerbose(false) did not disable verbose mode")
	}
}

func TestDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	// Debug should not show when not verbose
	SetVerbose(false)
	Debug("test debug message")
	if buf.Len() > 0 {
		t.Error("Debug output when not verbose")
	}

	// Debug should show when verbose
	SetVerbose(true)
	buf.Reset()
	Debug("test debug message")
	if !strings.Contains(buf.String(), "[DEBUG]") {
		t.Error("Debug did not output [DEBUG] prefix")
	}
	if !strings.Contains(buf.String(), "test debug message") {
		t.Error("Debug did not output message")
	}
}

func TestInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	Info("test info message")
	if !strings.Contains(buf.String(), "[INFO]") {
		t.Error("Info did not output [INFO] prefix")
	}
	if !strings.Contains(buf.String(), "test info message") {
		t.Error("Info did not output message")
	}
}

func TestWarnLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	Warn("test warn message")
	if !strings.Contains(buf.String(), "[WARN]") {
		t.Error("Warn did not output [WARN] prefix")
	}
	if !strings.Contains(buf.String(), "test warn message") {
		t.Error("Warn did not output message")
	}
}

func TestErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	Error("test error message")
	if !strings.Contains(buf.String(), "[ERROR]") {
		t.Error("Error did not output [ERROR] prefix")
	}
	if !strings.Contains(buf.String(), "test error message") {
		t.Error("Error did not output message")
	}
}

func TestFormatting(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	Info("formatted %s: %d", "test", 42)
	output := buf.String()

	if !strings.Contains(output, "formatted test: 42") {
		t.Errorf("Formatting failed, got: %q", output)
	}
}

func TestNamedLoggerPrefixesComponent(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	Named("rpc").Warn("call %s failed", "HostGroup.FindHosts")
	if !strings.Contains(buf.String(), "[WARN] rpc: call HostGroup.FindHosts failed") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestSetLevelFiltersBelow(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)
	defer SetLevel(LevelInfo)

	SetLevel(LevelError)
	Info("hidden")
	Named("chunk").Warn("hidden too")
	if buf.Len() > 0 {
		t.Errorf("expected no output below ERROR, got %q", buf.String())
	}

	Error("shown")
	if !strings.Contains(buf.String(), "[ERROR] shown") {
		t.Errorf("expected error output, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"":        LevelInfo,
		"warning": LevelWarn,
		"Error":   LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q) returned error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
