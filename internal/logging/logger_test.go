package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestLogger(buf *bytes.Buffer, level string) *slog.Logger {
	lvl := new(slog.LevelVar)
	lvl.Set(parseLevel(level))
	return slog.New(newConsoleHandler(buf, lvl))
}

func TestConsoleHandlerFormatsLine(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, "info")

	logger.Info("job finished", String("job", "a1"), Float64("seconds", 10.5))

	line := strings.TrimSpace(buf.String())
	for _, want := range []string{"INFO", "job finished", "job=a1", "seconds=10.5"} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q missing %q", line, want)
		}
	}
}

func TestConsoleHandlerPromotesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewComponentLogger(newTestLogger(&buf, "info"), "scheduler")

	logger.Info("batch submitted")

	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, "scheduler: batch submitted") {
		t.Fatalf("component not promoted to prefix: %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component attr should not repeat as key/value: %q", line)
	}
}

func TestConsoleHandlerHonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, "warn")

	logger.Info("suppressed")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Fatalf("info record leaked past warn level: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn record missing: %q", out)
	}
}

func TestQuotingOfAwkwardValues(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, "info")

	logger.Info("msg", String("path", "/tmp/with space.mp3"), String("empty", ""))

	line := buf.String()
	if !strings.Contains(line, `path="/tmp/with space.mp3"`) {
		t.Fatalf("spaced value not quoted: %q", line)
	}
	if !strings.Contains(line, `empty=""`) {
		t.Fatalf("empty value not quoted: %q", line)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("nop logger should report disabled at every level")
	}
	// Must not panic.
	logger.Error("ignored", Duration("d", time.Second))
}
