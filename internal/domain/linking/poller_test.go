package linking

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"fclink/internal/domain/customer"
)

func pendingSession(t *testing.T, store customer.Store, customerID string) string {
	t.Helper()
	seedCustomer(t, store, customerID)
	stateID, err := NewTracker(store).CreateSession(context.Background(), customerID, nil)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return stateID
}

func setStatus(t *testing.T, store customer.Store, customerID, stateID string, status customer.Status) {
	t.Helper()
	if err := store.UpdateSession(context.Background(), customerID, stateID, customer.SessionUpdate{Status: &status}); err != nil {
		t.Fatalf("failed to set status: %v", err)
	}
}

func TestPoller_CompletedCallbackExactlyOnce(t *testing.T) {
	store := newTestStore(t)
	stateID := pendingSession(t, store, "cus_1")
	poller := NewPoller(store, 5*time.Millisecond)

	var completed, failed atomic.Int32
	done := make(chan string, 1)
	poller.Watch(context.Background(), "cus_1", stateID,
		func(id string) {
			completed.Add(1)
			done <- id
		},
		func(id string) { failed.Add(1) },
	)

	setStatus(t, store, "cus_1", stateID, customer.StatusCompleted)

	select {
	case id := <-done:
		if id != stateID {
			t.Errorf("callback state id = %q, want %q", id, stateID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never fired")
	}

	poller.Wait()
	if got := completed.Load(); got != 1 {
		t.Errorf("completed callback ran %d times, want 1", got)
	}
	if got := failed.Load(); got != 0 {
		t.Errorf("failed callback ran %d times, want 0", got)
	}
	if poller.StateID() != "" {
		t.Errorf("StateID() = %q after resolution, want empty", poller.StateID())
	}
}

func TestPoller_FailedCallback(t *testing.T) {
	store := newTestStore(t)
	stateID := pendingSession(t, store, "cus_1")
	poller := NewPoller(store, 5*time.Millisecond)

	done := make(chan struct{})
	poller.Watch(context.Background(), "cus_1", stateID,
		func(string) { t.Error("completed callback fired for failed session") },
		func(string) { close(done) },
	)

	setStatus(t, store, "cus_1", stateID, customer.StatusFailed)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("failure callback never fired")
	}
	poller.Wait()
}

func TestPoller_StopPreventsCallback(t *testing.T) {
	store := newTestStore(t)
	stateID := pendingSession(t, store, "cus_1")
	poller := NewPoller(store, 5*time.Millisecond)

	poller.Watch(context.Background(), "cus_1", stateID,
		func(string) { t.Error("callback fired after Stop") },
		func(string) { t.Error("callback fired after Stop") },
	)

	poller.Stop()
	poller.Wait()

	// Terminal status written after Stop must go unobserved.
	setStatus(t, store, "cus_1", stateID, customer.StatusCompleted)
	time.Sleep(30 * time.Millisecond)

	if poller.StateID() != "" {
		t.Errorf("StateID() = %q after Stop, want empty", poller.StateID())
	}
}

func TestPoller_NewWatchReplacesPrevious(t *testing.T) {
	store := newTestStore(t)
	first := pendingSession(t, store, "cus_1")
	seedCustomer(t, store, "cus_2")
	second, err := NewTracker(store).CreateSession(context.Background(), "cus_2", nil)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	poller := NewPoller(store, 5*time.Millisecond)

	poller.Watch(context.Background(), "cus_1", first,
		func(string) { t.Error("replaced watch fired its callback") },
		func(string) { t.Error("replaced watch fired its callback") },
	)

	done := make(chan struct{})
	poller.Watch(context.Background(), "cus_2", second,
		func(string) { close(done) },
		func(string) { t.Error("failed callback fired") },
	)

	if poller.StateID() != second {
		t.Errorf("StateID() = %q, want %q", poller.StateID(), second)
	}

	// Resolving the first session must not trigger anything; only the
	// second, active watch may fire.
	setStatus(t, store, "cus_1", first, customer.StatusCompleted)
	setStatus(t, store, "cus_2", second, customer.StatusCompleted)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("active watch never resolved")
	}
	poller.Wait()
}

func TestPoller_DefaultInterval(t *testing.T) {
	poller := NewPoller(newTestStore(t), 0)
	if poller.interval != defaultPollInterval {
		t.Errorf("interval = %v, want %v", poller.interval, defaultPollInterval)
	}
}
