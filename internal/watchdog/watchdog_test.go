package watchdog

import (
	"context"
	"testing"
)

func TestTickHappyPathMarksReady(t *testing.T) {
	h := &fakeHelper{}
	w := New(h, func() int { return 0 }, func() bool { return true })

	w.tick(context.Background())

	if !w.Ready() {
		t.Fatal("expected ready after a successful ping")
	}
	if h.EnsureCalls != 1 || h.PingCalls != 1 || h.ResetCalls != 0 {
		t.Fatalf("unexpected call counts: ensure=%d ping=%d reset=%d", h.EnsureCalls, h.PingCalls, h.ResetCalls)
	}
}

// TestTickPingFailureResetsAndRetries covers spec scenario S8: a single
// failed ping causes one reset_connection and one additional
// ensure_helper_started call, and ready becomes true again once the
// retried ping succeeds.
func TestTickPingFailureResetsAndRetries(t *testing.T) {
	h := &fakeHelper{PingSeq: []bool{false, true}}
	w := New(h, func() int { return 1 }, func() bool { return true })

	w.tick(context.Background())

	if !w.Ready() {
		t.Fatal("expected ready after the retried ping succeeds")
	}
	if h.ResetCalls != 1 {
		t.Fatalf("expected exactly one reset, got %d", h.ResetCalls)
	}
	if h.EnsureCalls != 2 {
		t.Fatalf("expected ensure called once before and once after reset, got %d", h.EnsureCalls)
	}
	if h.PingCalls != 2 {
		t.Fatalf("expected two ping attempts, got %d", h.PingCalls)
	}
}

func TestTickDisabledResetsAndMarksNotReady(t *testing.T) {
	h := &fakeHelper{}
	w := New(h, func() int { return 0 }, func() bool { return false })
	w.setReady(true)

	w.tick(context.Background())

	if w.Ready() {
		t.Fatal("expected not-ready when the feature is disabled")
	}
	if h.ResetCalls != 1 {
		t.Fatalf("expected reset when disabled, got %d", h.ResetCalls)
	}
	if h.EnsureCalls != 0 || h.PingCalls != 0 {
		t.Fatal("disabled tick must not touch ensure/ping")
	}
}

func TestIntervalSwitchesOnSessionCount(t *testing.T) {
	count := 0
	w := New(&fakeHelper{}, func() int { return count }, func() bool { return true })

	if got := w.interval(); got != SuspendedInterval {
		t.Fatalf("expected suspended interval with no sessions, got %v", got)
	}
	count = 1
	if got := w.interval(); got != ActiveInterval {
		t.Fatalf("expected active interval with a session, got %v", got)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	h := &fakeHelper{}
	w := New(h, func() int { return 0 }, func() bool { return true })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	w.Stop()
	<-done

	if h.EnsureCalls == 0 {
		t.Fatal("expected at least the immediate tick to have run")
	}
}
