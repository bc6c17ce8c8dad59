package events

import (
	"sync"
	"time"

	"github.com/vistadeck/hostd/internal/clock"
)

// HeartbeatMonitor implements spec.md §4.13: arm() records a time,
// check_timeout() reports (and consumes) whether timeout has elapsed
// since the last arm. Unarmed monitors never fire. Grounded on the
// teacher's internal/heartbeat.Heartbeat ticker loop, narrowed here to
// the pure arm/check decision without the ticker or the RMM payload
// the teacher sends alongside each tick.
type HeartbeatMonitor struct {
	mu      sync.Mutex
	clock   clock.Clock
	timeout time.Duration
	armedAt time.Time
	armed   bool
}

// NewHeartbeatMonitor builds a HeartbeatMonitor with the given timeout.
func NewHeartbeatMonitor(c clock.Clock, timeout time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{clock: c, timeout: timeout}
}

// Arm records now as the last-seen heartbeat time.
func (h *HeartbeatMonitor) Arm() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.armedAt = h.clock.Now()
	h.armed = true
}

// CheckTimeout reports whether the monitor is armed and timeout has
// elapsed. The check is edge-triggered: consuming a true result
// re-arms the monitor to "not fired" (it does not report true again
// until timeout elapses once more from this check's time).
func (h *HeartbeatMonitor) CheckTimeout() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.armed {
		return false
	}
	now := h.clock.Now()
	if now.Sub(h.armedAt) < h.timeout {
		return false
	}
	h.armedAt = now
	return true
}

// Disarm stops the monitor from firing until the next Arm.
func (h *HeartbeatMonitor) Disarm() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.armed = false
}
