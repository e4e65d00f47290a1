package logbook

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestAppendAndTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "meeting.log")
	lb, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	lb.Info("session opened · %s", "s1")
	lb.Warn("stream gap suspected")
	lb.Error("terminated: %s", "user request")

	lines := lb.Tail(10)
	if len(lines) != 3 {
		t.Fatalf("tail = %d lines, want 3", len(lines))
	}
	if !strings.Contains(lines[0], "INFO") || !strings.Contains(lines[0], "session opened") {
		t.Fatalf("unexpected first line: %q", lines[0])
	}
	if !strings.Contains(lines[2], "ERROR") {
		t.Fatalf("unexpected last line: %q", lines[2])
	}
}

func TestTailLimitsToMostRecent(t *testing.T) {
	lb, err := New(filepath.Join(t.TempDir(), "meeting.log"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 20; i++ {
		lb.Info("entry %d", i)
	}
	lines := lb.Tail(5)
	if len(lines) != 5 {
		t.Fatalf("tail = %d lines, want 5", len(lines))
	}
	if !strings.Contains(lines[4], "entry 19") {
		t.Fatalf("tail did not keep the most recent entries: %q", lines[4])
	}
}

func TestComponentLoggerPrefix(t *testing.T) {
	lb, err := New(filepath.Join(t.TempDir(), "meeting.log"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	lb.Component("stream").Printf("reconnect attempt %d", 2)
	lines := lb.Tail(1)
	if len(lines) != 1 || !strings.Contains(lines[0], "[stream] reconnect attempt 2") {
		t.Fatalf("component prefix missing: %v", lines)
	}
}

func TestNilLogbookIsInert(t *testing.T) {
	var lb *Logbook
	lb.Info("ignored")
	if lines := lb.Tail(3); lines != nil {
		t.Fatalf("nil logbook returned lines: %v", lines)
	}
	lb.Component("x").Printf("also ignored")
}
