package stats

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestAddAppliesDeltas(t *testing.T) {
	t.Parallel()

	s := New(prometheus.NewRegistry())
	s.Add(1, 1, 0, 0, 0, 0, 0)
	s.Add(0, 0, 0, 1, 0, 0, 0)
	s.Add(0, 0, 1, -1, 0, 0, 0)
	s.Add(0, 0, 0, 0, 0, 0, 1)

	c := s.Snapshot()
	if c.Registered != 1 || c.Online != 1 {
		t.Fatalf("presence counters: %+v", c)
	}
	if c.Delivered != 1 || c.NotDelivered != 0 {
		t.Fatalf("delivery counters after reconcile: %+v", c)
	}
	if c.Errors != 1 {
		t.Fatalf("errors = %d, want 1", c.Errors)
	}
}

func TestNegativeDeltas(t *testing.T) {
	t.Parallel()

	s := New(prometheus.NewRegistry())
	s.Add(1, 1, 0, 0, 0, 0, 0)
	s.Add(-1, -1, 0, 0, 0, 0, 0)
	c := s.Snapshot()
	if c.Registered != 0 || c.Online != 0 {
		t.Fatalf("counters after unregister: %+v", c)
	}
}

func TestDumpAppendsParsableLine(t *testing.T) {
	t.Parallel()

	s := New(prometheus.NewRegistry())
	s.Add(2, 1, 3, 4, 5, 6, 7)

	path := filepath.Join(t.TempDir(), "stats.txt")
	if err := s.Dump(path); err != nil {
		t.Fatalf("dump: %v", err)
	}
	if err := s.Dump(path); err != nil {
		t.Fatalf("second dump: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read stats file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 appended lines, got %d", len(lines))
	}

	var ts, reg, online, del, ndel, fdel, fndel, errs int64
	if _, err := fmt.Sscanf(lines[0], "%d - %d %d %d %d %d %d %d",
		&ts, &reg, &online, &del, &ndel, &fdel, &fndel, &errs); err != nil {
		t.Fatalf("parse line %q: %v", lines[0], err)
	}
	if reg != 2 || online != 1 || del != 3 || ndel != 4 || fdel != 5 || fndel != 6 || errs != 7 {
		t.Fatalf("dumped counters: %s", lines[0])
	}
	if ts <= 0 {
		t.Fatalf("timestamp %d not positive", ts)
	}
}

func TestBroadcastDoubleCountIsPreserved(t *testing.T) {
	t.Parallel()

	// A broadcast stores for every recipient, then bumps delivered on
	// each direct send without reconciling the stored count. The sum
	// of both buckets therefore exceeds the number of messages.
	s := New(prometheus.NewRegistry())
	s.Add(0, 0, 0, 2, 0, 0, 0) // stored for both recipients
	s.Add(0, 0, 1, 0, 0, 0, 0) // one was online too

	c := s.Snapshot()
	if c.Delivered != 1 || c.NotDelivered != 2 {
		t.Fatalf("broadcast accounting changed: %+v", c)
	}
}
