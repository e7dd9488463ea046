package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"aprsbridge/config"
)

func TestLogFileNameForDate(t *testing.T) {
	when := time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)
	if got := logFileNameForDate(when); got != "05-Mar-2026.log" {
		t.Fatalf("logFileNameForDate = %q, want 05-Mar-2026.log", got)
	}
}

func TestParseLogFileDate(t *testing.T) {
	parsed, ok := parseLogFileDate("05-Mar-2026.log")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if parsed.Year() != 2026 || parsed.Month() != time.March || parsed.Day() != 5 {
		t.Fatalf("unexpected parsed date: %s", parsed.Format(time.RFC3339))
	}
	if _, ok := parseLogFileDate("positions.db"); ok {
		t.Fatal("expected non-log file to be rejected")
	}
}

func TestCleanupOldLogsRemovesOnlyExpiredLogFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"01-Mar-2026.log", "04-Mar-2026.log", "05-Mar-2026.log", "config.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	now := time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)
	if err := cleanupOldLogs(dir, now, 2); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "01-Mar-2026.log")); !os.IsNotExist(err) {
		t.Fatalf("expired log not removed: %v", err)
	}
	for _, name := range []string{"04-Mar-2026.log", "05-Mar-2026.log", "config.yaml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to remain: %v", name, err)
		}
	}
}

func TestLogFanoutSplitsLinesToBothSinks(t *testing.T) {
	var console, file strings.Builder
	fanout := newLogFanout(
		&ioLineSink{w: &console},
		&ioLineSink{w: &file},
	)
	if _, err := fanout.Write([]byte("first line\nsecond line\n")); err != nil {
		t.Fatalf("Write() = %v", err)
	}
	for name, got := range map[string]string{"console": console.String(), "file": file.String()} {
		if got != "first line\nsecond line\n" {
			t.Fatalf("%s sink got %q", name, got)
		}
	}
}

func TestLogFanoutBuffersPartialLines(t *testing.T) {
	var console strings.Builder
	fanout := newLogFanout(&ioLineSink{w: &console}, nil)
	fanout.Write([]byte("partial"))
	if console.String() != "" {
		t.Fatalf("partial line emitted early: %q", console.String())
	}
	fanout.Write([]byte(" done\n"))
	if console.String() != "partial done\n" {
		t.Fatalf("joined line = %q", console.String())
	}
}

func TestWriteFileOnlyLineSkipsConsole(t *testing.T) {
	var console, file strings.Builder
	fanout := newLogFanout(&ioLineSink{w: &console}, &ioLineSink{w: &file})
	fanout.WriteFileOnlyLine("stats: 12 received", time.Now())
	if console.String() != "" {
		t.Fatalf("console got file-only line: %q", console.String())
	}
	if file.String() != "stats: 12 received\n" {
		t.Fatalf("file sink got %q", file.String())
	}
}

func TestSetupLoggingDisabledHasNoFileSink(t *testing.T) {
	var console strings.Builder
	fanout, err := setupLogging(config.LoggingConfig{Enabled: false}, &console)
	if err != nil {
		t.Fatalf("setupLogging() = %v", err)
	}
	if fanout.HasFileSink() {
		t.Fatal("file sink active while disabled")
	}
}

func TestSetupLoggingCreatesDailyFile(t *testing.T) {
	dir := t.TempDir()
	var console strings.Builder
	fanout, err := setupLogging(config.LoggingConfig{Enabled: true, Dir: dir, RetentionDays: 3}, &console)
	if err != nil {
		t.Fatalf("setupLogging() = %v", err)
	}
	defer fanout.Close()

	fanout.Write([]byte("hello\n"))
	path := filepath.Join(dir, logFileNameForDate(time.Now().UTC()))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read daily log: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Fatalf("daily log content = %q", data)
	}
}
