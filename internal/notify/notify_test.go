package notify

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
)

func TestNoticesExpireAfterTTL(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	n := New(nil).WithClock(func() time.Time { return now })

	n.Success("Saved")
	now = start.Add(2 * time.Second)
	n.Error("Delete failed")

	if got := n.Active(start.Add(2500 * time.Millisecond)); len(got) != 2 {
		t.Fatalf("expected 2 active notices, got %d", len(got))
	}
	got := n.Active(start.Add(3 * time.Second))
	if len(got) != 1 || got[0].Message != "Delete failed" || got[0].Level != Error {
		t.Fatalf("expected only the error to remain, got %+v", got)
	}
	if got := n.Active(start.Add(10 * time.Second)); len(got) != 0 {
		t.Fatalf("expected no notices, got %+v", got)
	}
}

func TestNotifierWritesToTerminal(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	n := New(&buf)
	n.Info("Loaded %d users", 3)

	if !strings.Contains(buf.String(), "Loaded 3 users") {
		t.Fatalf("expected message in output, got %q", buf.String())
	}
	if len(n.Drain()) != 1 {
		t.Fatalf("expected drain to return the notice")
	}
	if len(n.Drain()) != 0 {
		t.Fatalf("expected drain to forget notices")
	}
}
