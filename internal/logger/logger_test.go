package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"err":     slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for name, want := range tests {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestValidLevel(t *testing.T) {
	if !ValidLevel("Debug") {
		t.Error("debug should be valid")
	}
	if ValidLevel("verbose") {
		t.Error("verbose should not be valid")
	}
}

func TestNewWritesPlainTextToNonTerminal(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(buf, "warn")

	log.Info("hidden")
	log.Warn("engine slow", "pass", "simple")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info message should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "level=warn") || !strings.Contains(out, "pass=simple") {
		t.Fatalf("unexpected log output: %s", out)
	}
	if IsTerminal(buf) {
		t.Fatal("a buffer is not a terminal")
	}
}
