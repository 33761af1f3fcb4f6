package listing

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerCoalescesBursts(t *testing.T) {
	var runs int32
	d := NewDebouncer(30*time.Millisecond, func() { atomic.AddInt32(&runs, 1) })

	for i := 0; i < 5; i++ {
		d.Trigger()
		time.Sleep(5 * time.Millisecond)
	}
	if atomic.LoadInt32(&runs) != 0 {
		t.Fatalf("expected no run during the burst")
	}

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&runs) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Fatalf("expected exactly one run, got %d", got)
	}
	if d.Pending() {
		t.Fatalf("expected nothing pending after the run")
	}
}

func TestDebouncerFlushRunsImmediately(t *testing.T) {
	var runs int32
	d := NewDebouncer(time.Hour, func() { atomic.AddInt32(&runs, 1) })

	d.Trigger()
	if !d.Pending() {
		t.Fatalf("expected a pending run")
	}
	d.Flush()
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Fatalf("expected flush to run once, got %d", got)
	}
	if d.Pending() {
		t.Fatalf("expected flush to cancel the pending run")
	}
}

func TestDebouncerLateFireKeepsNewerTimer(t *testing.T) {
	var runs int32
	d := NewDebouncer(time.Hour, func() { atomic.AddInt32(&runs, 1) })

	d.Trigger()
	d.mu.Lock()
	stale := d.gen
	d.mu.Unlock()
	d.Trigger()

	// The first timer expired just before the second Trigger took the lock.
	d.fire(stale)
	if atomic.LoadInt32(&runs) != 0 {
		t.Fatalf("expected the replaced timer not to run the action")
	}
	if !d.Pending() {
		t.Fatalf("expected the newer timer to stay pending")
	}

	d.Cancel()
	if d.Pending() {
		t.Fatalf("expected cancel to drop the newer timer")
	}
	d.fire(stale + 1)
	if atomic.LoadInt32(&runs) != 0 {
		t.Fatalf("expected a cancelled timer not to run the action")
	}
}
