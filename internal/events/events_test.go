package events

import (
	"testing"
	"time"

	"github.com/vistadeck/hostd/internal/clock"
)

func TestDebounceCoalescesBurst(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	d := NewDebounce(mc, 200*time.Millisecond)

	d.Notify()
	mc.Advance(50 * time.Millisecond)
	d.Notify()
	mc.Advance(50 * time.Millisecond)
	d.Notify()

	if d.ShouldFire() {
		t.Fatal("should not fire before the window elapses from the last notify")
	}

	mc.Advance(200 * time.Millisecond)
	if !d.ShouldFire() {
		t.Fatal("expected fire once the window elapses")
	}
	if d.ShouldFire() {
		t.Fatal("expected ShouldFire to be edge-triggered, firing at most once per window")
	}
}

func TestHeartbeatMonitorUnarmedNeverFires(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	h := NewHeartbeatMonitor(mc, 30*time.Second)
	mc.Advance(time.Hour)
	if h.CheckTimeout() {
		t.Fatal("unarmed monitor must never fire")
	}
}

func TestHeartbeatMonitorEdgeTriggered(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	h := NewHeartbeatMonitor(mc, 30*time.Second)
	h.Arm()
	mc.Advance(30 * time.Second)
	if !h.CheckTimeout() {
		t.Fatal("expected timeout once elapsed")
	}
	if h.CheckTimeout() {
		t.Fatal("expected check to re-arm to not-fired immediately after consuming")
	}
	mc.Advance(30 * time.Second)
	if !h.CheckTimeout() {
		t.Fatal("expected timeout to fire again after a fresh full interval")
	}
}

func TestDisconnectGraceReconnectSuppressesTrigger(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	g := NewDisconnectGrace(mc, 30*time.Second)
	g.OnDisconnect()
	mc.Advance(29 * time.Second)
	g.OnReconnect()
	mc.Advance(5 * time.Second)
	if g.ShouldTrigger() {
		t.Fatal("reconnect before the grace elapsed must suppress the trigger")
	}
}

func TestDisconnectGraceFiresOnceWithoutReconnect(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	g := NewDisconnectGrace(mc, 30*time.Second)
	g.OnDisconnect()
	mc.Advance(30 * time.Second)
	if !g.ShouldTrigger() {
		t.Fatal("expected trigger once grace elapses without a reconnect")
	}
	if g.ShouldTrigger() {
		t.Fatal("expected trigger to fire only once per episode")
	}
}

func TestReconnectControllerFreshDisconnectRestartsTimer(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	r := NewReconnectController(mc, 30*time.Second)

	if r.UpdateConnection(false) {
		t.Fatal("should not trigger immediately on disconnect")
	}
	mc.Advance(20 * time.Second)
	if r.UpdateConnection(true) {
		t.Fatal("reconnect should never itself report a revert")
	}
	if r.UpdateConnection(false) {
		t.Fatal("a fresh disconnect should restart the timer, not trigger immediately")
	}
	mc.Advance(29 * time.Second)
	if r.UpdateConnection(false) {
		t.Fatal("should not trigger before the restarted grace elapses")
	}
	mc.Advance(2 * time.Second)
	if !r.UpdateConnection(false) {
		t.Fatal("expected trigger once the restarted grace fully elapses")
	}
}

func TestReconnectControllerShouldRestartPipeLatches(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	r := NewReconnectController(mc, 30*time.Second)
	if r.ShouldRestartPipe() {
		t.Fatal("should not latch before OnBroken")
	}
	r.OnBroken()
	if !r.ShouldRestartPipe() {
		t.Fatal("expected latch to be true after OnBroken")
	}
	if r.ShouldRestartPipe() {
		t.Fatal("expected latch to be consumed after first read")
	}
}
