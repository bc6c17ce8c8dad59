package control

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/vistadeck/hostd/internal/displaybackend"
	"github.com/vistadeck/hostd/internal/operations"
	"github.com/vistadeck/hostd/internal/statemachine"
)

// fakeMachine records the last submitted command for assertions,
// standing in for *statemachine.Machine the way the dispatcher tests
// use a fake port instead of a real backend.
type fakeMachine struct {
	lastApplyReq    operations.Request
	applyCount      int
	revertCount     int
	disarmCount     int
	exportBlacklist map[displaybackend.DeviceID]bool
	snapshotBlacklist map[displaybackend.DeviceID]bool
	exportErr       error
	snapshotErr     error

	state         statemachine.State
	recoveryArmed bool
	generation    uint64
}

func (m *fakeMachine) SubmitApply(req operations.Request) {
	m.lastApplyReq = req
	m.applyCount++
}
func (m *fakeMachine) SubmitRevert()  { m.revertCount++ }
func (m *fakeMachine) SubmitDisarm()  { m.disarmCount++ }
func (m *fakeMachine) SubmitExportGolden(ctx context.Context, blacklist map[displaybackend.DeviceID]bool) error {
	m.exportBlacklist = blacklist
	return m.exportErr
}
func (m *fakeMachine) SubmitSnapshotCurrent(ctx context.Context, blacklist map[displaybackend.DeviceID]bool) error {
	m.snapshotBlacklist = blacklist
	return m.snapshotErr
}
func (m *fakeMachine) State() statemachine.State { return m.state }
func (m *fakeMachine) RecoveryArmed() bool       { return m.recoveryArmed }
func (m *fakeMachine) CurrentGeneration() uint64 { return m.generation }

type fakeDeferral struct{ pending bool }

func (f *fakeDeferral) HasPending() bool { return f.pending }

func startTestServer(t *testing.T, machine Machine, def Deferral, authToken string) (string, func()) {
	t.Helper()
	endpoint := filepath.Join(t.TempDir(), "control.sock")
	srv := NewServer(machine, def, nil, authToken)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	ready := make(chan struct{})
	go func() {
		close(ready)
		errCh <- srv.Serve(ctx, endpoint)
	}()
	<-ready
	time.Sleep(20 * time.Millisecond) // let the listener bind before the first dial

	return endpoint, func() {
		cancel()
		srv.Close()
	}
}

func TestClientApplyRoundTrip(t *testing.T) {
	machine := &fakeMachine{}
	endpoint, stop := startTestServer(t, machine, &fakeDeferral{}, "tok")
	defer stop()

	client := NewClient(endpoint, "tok")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := client.Apply(ctx, ApplyPayload{
		PrimaryDeviceID: "dev-1",
		Preparation:     "ensure_active",
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected OK result, got %+v", res)
	}
	if machine.applyCount != 1 {
		t.Fatalf("applyCount = %d, want 1", machine.applyCount)
	}
	if machine.lastApplyReq.Configuration.Primary != "dev-1" {
		t.Fatalf("primary = %q, want dev-1", machine.lastApplyReq.Configuration.Primary)
	}
	if machine.lastApplyReq.Configuration.Preparation != displaybackend.EnsureActive {
		t.Fatalf("preparation = %v, want EnsureActive", machine.lastApplyReq.Configuration.Preparation)
	}
	if machine.lastApplyReq.SessionFingerprint == "" {
		t.Fatal("expected a generated session fingerprint")
	}
}

func TestClientApplyRejectsMissingPrimary(t *testing.T) {
	machine := &fakeMachine{}
	endpoint, stop := startTestServer(t, machine, &fakeDeferral{}, "tok")
	defer stop()

	client := NewClient(endpoint, "tok")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := client.Apply(ctx, ApplyPayload{})
	if err != nil {
		t.Fatalf("Apply transport error: %v", err)
	}
	if res.OK {
		t.Fatal("expected rejection for missing primaryDeviceId")
	}
	if machine.applyCount != 0 {
		t.Fatalf("applyCount = %d, want 0", machine.applyCount)
	}
}

func TestClientAuthRejected(t *testing.T) {
	machine := &fakeMachine{}
	endpoint, stop := startTestServer(t, machine, &fakeDeferral{}, "correct-token")
	defer stop()

	client := NewClient(endpoint, "wrong-token")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := client.Status(ctx); err == nil {
		t.Fatal("expected auth rejection error")
	}
}

func TestClientRevertAndDisarm(t *testing.T) {
	machine := &fakeMachine{}
	endpoint, stop := startTestServer(t, machine, &fakeDeferral{}, "tok")
	defer stop()

	client := NewClient(endpoint, "tok")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := client.Revert(ctx); err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if _, err := client.Disarm(ctx); err != nil {
		t.Fatalf("Disarm: %v", err)
	}
	if machine.revertCount != 1 || machine.disarmCount != 1 {
		t.Fatalf("revertCount=%d disarmCount=%d, want 1,1", machine.revertCount, machine.disarmCount)
	}
}

func TestClientExportGoldenAndSnapshotCurrentBlacklist(t *testing.T) {
	machine := &fakeMachine{}
	endpoint, stop := startTestServer(t, machine, &fakeDeferral{}, "tok")
	defer stop()

	client := NewClient(endpoint, "tok")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := client.ExportGolden(ctx, []string{"dev-2"}); err != nil {
		t.Fatalf("ExportGolden: %v", err)
	}
	if !machine.exportBlacklist[displaybackend.DeviceID("dev-2")] {
		t.Fatal("expected dev-2 in export blacklist")
	}

	if _, err := client.SnapshotCurrent(ctx, []string{"dev-3"}); err != nil {
		t.Fatalf("SnapshotCurrent: %v", err)
	}
	if !machine.snapshotBlacklist[displaybackend.DeviceID("dev-3")] {
		t.Fatal("expected dev-3 in snapshot blacklist")
	}
}

func TestClientStatus(t *testing.T) {
	machine := &fakeMachine{
		state:         statemachine.Recovery,
		recoveryArmed: true,
		generation:    7,
	}
	endpoint, stop := startTestServer(t, machine, &fakeDeferral{pending: true}, "tok")
	defer stop()

	client := NewClient(endpoint, "tok")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.State != "recovery" {
		t.Fatalf("State = %q, want recovery", status.State)
	}
	if !status.RecoveryArmed {
		t.Fatal("expected RecoveryArmed true")
	}
	if status.Generation != 7 {
		t.Fatalf("Generation = %d, want 7", status.Generation)
	}
	if !status.HasPending {
		t.Fatal("expected HasPending true")
	}
}

// TestRateLimiterBlocksExcessConnectionAttempts drives more than
// rateLimitAttempts connections from this process's own UID (the unix
// socket peer credential the test environment actually resolves to)
// within the window and expects the excess ones to be dropped before
// the auth handshake completes, mirroring the teacher's
// sessionbroker rate-limit behavior.
func TestRateLimiterBlocksExcessConnectionAttempts(t *testing.T) {
	machine := &fakeMachine{}
	endpoint, stop := startTestServer(t, machine, &fakeDeferral{}, "tok")
	defer stop()

	var lastErr error
	for i := 0; i < rateLimitAttempts+3; i++ {
		client := NewClient(endpoint, "tok")
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err := client.Revert(ctx)
		cancel()
		if err != nil {
			lastErr = err
		}
	}
	if lastErr == nil {
		t.Fatal("expected connection attempts beyond the rate limit to fail")
	}
	if machine.revertCount > rateLimitAttempts {
		t.Fatalf("expected at most %d reverts to reach the machine, got %d", rateLimitAttempts, machine.revertCount)
	}
}
