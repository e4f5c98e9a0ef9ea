package rendezvous

import (
	"context"
	"testing"
	"time"
)

func TestDeliverThenWaitReturnsStoredResponse(t *testing.T) {
	q := New()

	if delivered := q.Deliver("sess-1", "req-1", "yes"); delivered {
		t.Fatal("Deliver should report false when nothing was waiting yet")
	}

	resp, ok := q.WaitForResponse(context.Background(), "sess-1", "req-1", time.Second)
	if !ok || resp != "yes" {
		t.Errorf("WaitForResponse = (%q, %v), want (yes, true)", resp, ok)
	}
}

func TestWaitThenDeliverUnblocksImmediately(t *testing.T) {
	q := New()
	done := make(chan struct{})
	var resp string
	var ok bool

	go func() {
		resp, ok = q.WaitForResponse(context.Background(), "sess-1", "req-1", 5*time.Second)
		close(done)
	}()

	// Give the waiter a moment to register before delivering.
	time.Sleep(20 * time.Millisecond)
	if delivered := q.Deliver("sess-1", "req-1", "no"); !delivered {
		t.Fatal("Deliver should have found the live waiter")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForResponse did not unblock after Deliver")
	}
	if !ok || resp != "no" {
		t.Errorf("WaitForResponse = (%q, %v), want (no, true)", resp, ok)
	}
}

func TestWaitForResponseTimesOut(t *testing.T) {
	q := New()
	resp, ok := q.WaitForResponse(context.Background(), "sess-1", "req-1", 20*time.Millisecond)
	if ok || resp != "" {
		t.Errorf("expected a timeout, got (%q, %v)", resp, ok)
	}
}

func TestDeliverWithoutRequestIDMatchesOldestWaiter(t *testing.T) {
	q := New()
	done := make(chan struct{})
	var resp string

	go func() {
		resp, _ = q.WaitForResponse(context.Background(), "sess-1", "req-1", 5*time.Second)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if delivered := q.Deliver("sess-1", "", "freeform reply"); !delivered {
		t.Fatal("Deliver with empty requestID should match the pending waiter")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForResponse did not unblock")
	}
	if resp != "freeform reply" {
		t.Errorf("resp = %q, want %q", resp, "freeform reply")
	}
}

func TestCancelAllWaitsUnblocksWithoutResponse(t *testing.T) {
	q := New()
	done := make(chan struct{})
	var ok bool

	go func() {
		_, ok = q.WaitForResponse(context.Background(), "sess-1", "req-1", 5*time.Second)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	q.CancelAllWaits("sess-1")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForResponse did not unblock after CancelAllWaits")
	}
	if ok {
		t.Error("expected ok=false after cancellation")
	}
}

func TestHasPendingWaits(t *testing.T) {
	q := New()
	if q.HasPendingWaits("sess-1") {
		t.Fatal("expected no pending waits initially")
	}

	q.Park("sess-1", "req-1")
	if !q.HasPendingWaits("sess-1") {
		t.Error("expected a pending wait after Park")
	}
	if q.HasPendingWaits("sess-2") {
		t.Error("Park for sess-1 should not affect sess-2")
	}
}
