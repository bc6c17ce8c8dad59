package operations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vistadeck/hostd/internal/clock"
	"github.com/vistadeck/hostd/internal/displaybackend"
	"github.com/vistadeck/hostd/internal/snapshot"
)

func TestApplyRequestOverrideWinsForExpectedTopology(t *testing.T) {
	backend := displaybackend.NewFake("A")
	override := displaybackend.Topology{Groups: [][]displaybackend.DeviceID{{"A"}, {"virtual"}}}
	req := Request{
		Configuration:    displaybackend.SingleDisplayConfiguration{Primary: "A"},
		TopologyOverride: &override,
	}
	src := clock.NewCancellationSource()
	out := Apply(context.Background(), backend, nil, req, src.Token())
	if out.Status != Ok {
		t.Fatalf("expected Ok, got %v (%v)", out.Status, out.Err)
	}
	if out.ExpectedTopology == nil || !out.ExpectedTopology.Equal(override) {
		t.Fatalf("expected the override topology to win, got %+v", out.ExpectedTopology)
	}
}

func TestApplyCancelledBeforeDispatchReturnsFatal(t *testing.T) {
	backend := displaybackend.NewFake("A")
	src := clock.NewCancellationSource()
	tok := src.Token()
	src.Cancel()
	out := Apply(context.Background(), backend, nil, Request{Configuration: displaybackend.SingleDisplayConfiguration{Primary: "A"}}, tok)
	if out.Status != Fatal {
		t.Fatalf("expected Fatal for a stale token, got %v", out.Status)
	}
}

func TestApplyMapsVirtualDisplayInconsistency(t *testing.T) {
	backend := displaybackend.NewFake("A")
	backend.FailNext["Apply"] = VirtualDisplayInconsistencyError{}
	src := clock.NewCancellationSource()
	out := Apply(context.Background(), backend, nil, Request{Configuration: displaybackend.SingleDisplayConfiguration{Primary: "A"}}, src.Token())
	if out.Status != NeedsVirtualDisplayReset || !out.VirtualDisplayRequested {
		t.Fatalf("expected NeedsVirtualDisplayReset with reset requested, got %+v", out)
	}
}

func TestVerifySucceedsWithinSpinBound(t *testing.T) {
	backend := displaybackend.NewFake("A")
	mode := displaybackend.Mode{Width: 1920, Height: 1080}
	cfg := displaybackend.SingleDisplayConfiguration{Primary: "A", DesiredMode: &mode}
	if err := backend.Apply(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	mc := clock.NewMock(time.Unix(0, 0))
	src := clock.NewCancellationSource()
	ok := Verify(context.Background(), backend, mc, Request{Configuration: cfg}, nil, src.Token())
	if !ok {
		t.Fatal("expected verification to succeed once configuration matches")
	}
}

func TestVerifyFailsAfterSpinBoundExceeded(t *testing.T) {
	backend := displaybackend.NewFake("A")
	// Never apply anything — ConfigurationMatches always returns false
	// because DesiredMode never equals the unset stored mode... except
	// zero-value matches zero-value, so force the device to fail the
	// check by using a HDR requirement the fake never satisfies.
	hdr := displaybackend.HDREnabled
	cfg := displaybackend.SingleDisplayConfiguration{Primary: "A", DesiredHDR: &hdr}
	mc := clock.NewMock(time.Unix(0, 0))
	src := clock.NewCancellationSource()

	done := make(chan bool, 1)
	go func() {
		done <- Verify(context.Background(), backend, mc, Request{Configuration: cfg}, nil, src.Token())
	}()

	// Drain the spin by advancing past the bound. The mock Sleep calls
	// block on After, and Advance only fires waiters already registered,
	// so keep advancing until Verify returns.
	for {
		select {
		case ok := <-done:
			if ok {
				t.Fatal("expected verification to fail once the spin bound is exceeded")
			}
			return
		default:
			mc.Advance(VerifySpinInterval)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestRecoveryWalksOrderAndPicksFirstSuccess(t *testing.T) {
	backend := displaybackend.NewFake("A", "B")
	dir := t.TempDir()
	ledger := snapshot.NewLedger(dir, false)

	good := displaybackend.Snapshot{
		Topology:  displaybackend.Topology{Groups: [][]displaybackend.DeviceID{{"A"}}},
		Modes:     map[displaybackend.DeviceID]displaybackend.Mode{"A": {Width: 1920, Height: 1080}},
		HDRStates: map[displaybackend.DeviceID]displaybackend.HDRState{"A": displaybackend.HDRDisabled},
	}
	if err := ledger.Save(snapshot.Current, good, nil); err != nil {
		t.Fatal(err)
	}

	available := map[displaybackend.DeviceID]bool{"A": true, "B": true}
	mc := clock.NewMock(time.Unix(0, 0))
	src := clock.NewCancellationSource()
	result := Recovery(context.Background(), backend, mc, ledger, available, src.Token())
	if !result.Success || result.Tier != snapshot.Current {
		t.Fatalf("expected success from Current tier, got %+v", result)
	}
}

func TestRecoveryReturnsFailureWhenNoTierSucceeds(t *testing.T) {
	backend := displaybackend.NewFake("A")
	dir := t.TempDir()
	ledger := snapshot.NewLedger(dir, false)
	available := map[displaybackend.DeviceID]bool{"A": true}
	mc := clock.NewMock(time.Unix(0, 0))
	src := clock.NewCancellationSource()
	result := Recovery(context.Background(), backend, mc, ledger, available, src.Token())
	if result.Success {
		t.Fatal("expected failure when no tier has a saved snapshot")
	}
}

func TestRecoveryValidationDetectsMismatchAfterSettle(t *testing.T) {
	backend := displaybackend.NewFake("A")
	winner := displaybackend.Snapshot{
		Topology:  displaybackend.Topology{Groups: [][]displaybackend.DeviceID{{"A"}}},
		Modes:     map[displaybackend.DeviceID]displaybackend.Mode{"A": {Width: 3840, Height: 2160}},
		HDRStates: map[displaybackend.DeviceID]displaybackend.HDRState{"A": displaybackend.HDREnabled},
	}
	mc := clock.NewMock(time.Unix(0, 0))
	src := clock.NewCancellationSource()

	done := make(chan bool, 1)
	go func() { done <- RecoveryValidation(context.Background(), backend, mc, winner, src.Token()) }()
	// Advance only fires a Sleep already registered, so keep advancing
	// until the settle sleep has been released.
	for {
		select {
		case ok := <-done:
			if ok {
				t.Fatal("expected mismatch because the backend was never applied to the winner's state")
			}
			return
		default:
			mc.Advance(RecoveryValidationSettle)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestShouldSkipTier(t *testing.T) {
	cases := map[Status]bool{
		InvalidRequest:           true,
		Fatal:                    true,
		Retryable:                false,
		NeedsVirtualDisplayReset: false,
		Ok:                       false,
	}
	for status, want := range cases {
		if got := ShouldSkipTier(status); got != want {
			t.Errorf("ShouldSkipTier(%v) = %v, want %v", status, got, want)
		}
	}
}

func TestVirtualDisplayInconsistencyErrorUnwrap(t *testing.T) {
	cause := errors.New("driver busy")
	err := VirtualDisplayInconsistencyError{Cause: cause}
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to see through the wrapped cause")
	}
}
