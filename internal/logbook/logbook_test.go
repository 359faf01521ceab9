package logbook

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLogbook(t *testing.T) *Logbook {
	t.Helper()
	lb, err := New(filepath.Join(t.TempDir(), "logs", "pipedeck.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	return lb
}

func TestAppendWritesTimestampedLines(t *testing.T) {
	lb := newTestLogbook(t)
	lb.Info("session %s opened", "abc")
	lb.Warn("something odd")
	lb.Error("something broke")

	data, err := os.ReadFile(lb.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "INFO") || !strings.Contains(lines[0], "session abc opened") {
		t.Fatalf("unexpected first line: %q", lines[0])
	}
	if !strings.Contains(lines[1], "WARN") {
		t.Fatalf("expected WARN level: %q", lines[1])
	}
	if !strings.Contains(lines[2], "ERROR") {
		t.Fatalf("expected ERROR level: %q", lines[2])
	}
}

func TestTailReturnsMostRecent(t *testing.T) {
	lb := newTestLogbook(t)
	for i := 0; i < 10; i++ {
		lb.Info("entry %d", i)
	}
	tail := lb.Tail(3)
	if len(tail) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(tail))
	}
	if !strings.Contains(tail[2], "entry 9") {
		t.Fatalf("expected newest entry last, got %q", tail[2])
	}
	if got := lb.Tail(0); got != nil {
		t.Fatalf("expected nil for non-positive limit")
	}
}

func TestDomainHelpersFormatEvents(t *testing.T) {
	lb := newTestLogbook(t)
	lb.StageActivated(2, "review", "Review")
	lb.StageErrored("review")
	lb.TurnCompleted(2, 5)
	tail := lb.Tail(10)
	if len(tail) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(tail))
	}
	if !strings.Contains(tail[0], "turn 2: stage review (Review) processing") {
		t.Fatalf("unexpected activation line: %q", tail[0])
	}
	if !strings.Contains(tail[1], "blocked until retry or skip") {
		t.Fatalf("unexpected error line: %q", tail[1])
	}
	if !strings.Contains(tail[2], "turn 2 complete, queue length now 5") {
		t.Fatalf("unexpected rollover line: %q", tail[2])
	}
}

func TestNilLogbookIsSafe(t *testing.T) {
	var lb *Logbook
	lb.Info("ignored")
	lb.Append(LevelError, "ignored")
	if lb.Tail(5) != nil {
		t.Fatalf("expected nil tail from nil logbook")
	}
	if lb.Path() != "" {
		t.Fatalf("expected empty path from nil logbook")
	}
}
