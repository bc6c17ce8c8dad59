// Package events implements the debounced external-event coordinator
// (C9): Debounce for display-change bursts, HeartbeatMonitor for the
// helper's liveness signal, DisconnectGrace and ReconnectController for
// session disconnect/reconnect handling. Each is a small clock-driven
// state machine, grounded on the teacher's internal/heartbeat ticker
// idiom (arm-then-check against a deadline) generalized beyond a single
// fixed interval.
package events

import (
	"sync"
	"time"

	"github.com/vistadeck/hostd/internal/clock"
)

// Debounce coalesces a burst of Notify calls into at most one
// should-fire signal per window, per spec.md §4.1/§8 property 7.
type Debounce struct {
	mu       sync.Mutex
	clock    clock.Clock
	window   time.Duration
	deadline time.Time
	armed    bool
}

// NewDebounce builds a Debounce with the given coalescing window.
func NewDebounce(c clock.Clock, window time.Duration) *Debounce {
	return &Debounce{clock: c, window: window}
}

// Notify records an event. ShouldFire reports true at most once per
// window boundary: the first Notify after a fired (or fresh) window
// arms the next deadline; subsequent Notify calls before that deadline
// just extend it without re-arming ShouldFire.
func (d *Debounce) Notify() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deadline = d.clock.Now().Add(d.window)
	d.armed = true
}

// ShouldFire reports and consumes whether the debounce window has
// elapsed since the last Notify with no further Notify arriving after
// it. It is edge-triggered: once it returns true, it will not return
// true again until a new Notify arrives and its window elapses.
func (d *Debounce) ShouldFire() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.armed {
		return false
	}
	if d.clock.Now().Before(d.deadline) {
		return false
	}
	d.armed = false
	return true
}
