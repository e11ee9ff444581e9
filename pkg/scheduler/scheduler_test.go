package scheduler

import (
	"testing"
	"time"
)

func TestPopInReadyOrder(t *testing.T) {
	dq := NewQueue[string](8)
	defer dq.Close()

	now := time.Now()
	dq.Push(Entry[string]{ID: "b", Value: "b", ReadyAt: now.Add(40 * time.Millisecond)})
	dq.Push(Entry[string]{ID: "a", Value: "a", ReadyAt: now.Add(10 * time.Millisecond)})

	first := recv(t, dq)
	second := recv(t, dq)

	if first.ID != "a" || second.ID != "b" {
		t.Errorf("expected a then b, got %s then %s", first.ID, second.ID)
	}
}

func TestPushSameIDReschedules(t *testing.T) {
	dq := NewQueue[string](8)
	defer dq.Close()

	dq.Push(Entry[string]{ID: "a", Value: "old", ReadyAt: time.Now().Add(time.Hour)})
	dq.Push(Entry[string]{ID: "a", Value: "new", ReadyAt: time.Now().Add(10 * time.Millisecond)})

	got := recv(t, dq)
	if got.Value != "new" {
		t.Errorf("expected rescheduled entry, got %q", got.Value)
	}

	select {
	case extra := <-dq.Out:
		t.Errorf("unexpected second delivery: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRemoveCancelsEntry(t *testing.T) {
	dq := NewQueue[string](8)
	defer dq.Close()

	dq.Push(Entry[string]{ID: "a", Value: "a", ReadyAt: time.Now().Add(20 * time.Millisecond)})

	if !dq.Remove("a") {
		t.Fatal("Remove returned false for a present entry")
	}
	if dq.Remove("a") {
		t.Error("Remove returned true for an absent entry")
	}

	select {
	case got := <-dq.Out:
		t.Errorf("removed entry was delivered: %+v", got)
	case <-time.After(80 * time.Millisecond):
	}
}

func TestCloseRejectsPush(t *testing.T) {
	dq := NewQueue[string](8)
	dq.Close()

	if err := dq.Push(Entry[string]{ID: "a", ReadyAt: time.Now()}); err == nil {
		t.Error("expected an error pushing to a closed queue")
	}
}

func recv(t *testing.T, dq *DelayQueue[string]) Entry[string] {
	t.Helper()
	select {
	case entry := <-dq.Out:
		return entry
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for entry")
		return Entry[string]{}
	}
}
