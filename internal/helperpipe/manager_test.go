package helperpipe

import (
	"context"
	"testing"

	"github.com/vistadeck/hostd/internal/watchdog"
)

// TestProcessManagerSatisfiesWatchdogHelper is a compile-time check that
// *ProcessManager implements watchdog.Helper.
func TestProcessManagerSatisfiesWatchdogHelper(t *testing.T) {
	var _ watchdog.Helper = (*ProcessManager)(nil)
}

func TestResetConnectionWithNoClientIsNoop(t *testing.T) {
	m := NewProcessManager("/nonexistent/helper", "/tmp/does-not-exist.sock", "tok", "hash")
	m.ResetConnection(context.Background())
	if m.Client() != nil {
		t.Fatal("expected nil client")
	}
}

func TestPingWithNoClientReturnsFalse(t *testing.T) {
	m := NewProcessManager("/nonexistent/helper", "/tmp/does-not-exist.sock", "tok", "hash")
	if m.Ping(context.Background()) {
		t.Fatal("expected Ping false with no client")
	}
}
