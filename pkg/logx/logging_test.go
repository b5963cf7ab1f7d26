package logx

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestZeroValueLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero value must report IsZero")
	}
	// Must not panic.
	l.Info("hello", String("k", "v"))
	l.With(Int("n", 1)).Error("still fine")
}

func TestNopLoggerIsNotZero(t *testing.T) {
	t.Parallel()
	l := Nop()
	if l.IsZero() {
		t.Fatal("Nop logger must not report IsZero")
	}
	l.Warn("silent")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want zerolog.Level
	}{
		{raw: "DEBUG", want: zerolog.DebugLevel},
		{raw: "debug", want: zerolog.DebugLevel},
		{raw: " info ", want: zerolog.InfoLevel},
		{raw: "WARNING", want: zerolog.WarnLevel},
		{raw: "ERROR", want: zerolog.ErrorLevel},
		{raw: "bogus", want: zerolog.InfoLevel},
		{raw: "", want: zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.raw, zerolog.InfoLevel); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestFormatTelegramJSON(t *testing.T) {
	t.Parallel()
	line := `{"level":"error","time":"2026-01-01T00:00:00Z","message":"db down","err":"locked"}`
	got := formatTelegramJSON([]byte(line))
	if !strings.HasPrefix(got, "[ERROR] db down") {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(got, "err=locked") {
		t.Fatalf("missing attr in %q", got)
	}

	// Non-JSON falls back to the raw line.
	if got := formatTelegramJSON([]byte("plain text line")); got != "plain text line" {
		t.Fatalf("fallback got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	if got := truncate("short", 100); got != "short" {
		t.Fatalf("got %q", got)
	}
	long := strings.Repeat("x", 50)
	got := truncate(long, 20)
	if len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Fatalf("got %q (len %d)", got, len(got))
	}
}
