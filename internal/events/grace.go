package events

import (
	"sync"
	"time"

	"github.com/vistadeck/hostd/internal/clock"
)

// DisconnectGrace implements spec.md §4.12: on_disconnect starts (or
// resets) a timer, on_reconnect cancels it, should_trigger fires
// exactly once when the grace elapses without a reconnect.
type DisconnectGrace struct {
	mu       sync.Mutex
	clock    clock.Clock
	grace    time.Duration
	deadline time.Time
	pending  bool
	fired    bool
}

// NewDisconnectGrace builds a DisconnectGrace with the given duration.
func NewDisconnectGrace(c clock.Clock, grace time.Duration) *DisconnectGrace {
	return &DisconnectGrace{clock: c, grace: grace}
}

// OnDisconnect starts or resets the grace timer.
func (g *DisconnectGrace) OnDisconnect() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deadline = g.clock.Now().Add(g.grace)
	g.pending = true
	g.fired = false
}

// OnReconnect cancels the pending trigger, per §8 property 8: a
// reconnect at any point before should_trigger observes the elapsed
// grace prevents that trigger from ever firing for this episode.
func (g *DisconnectGrace) OnReconnect() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = false
	g.fired = false
}

// ShouldTrigger reports true exactly once when the grace has fully
// elapsed without a reconnect.
func (g *DisconnectGrace) ShouldTrigger() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.pending || g.fired {
		return false
	}
	if g.clock.Now().Before(g.deadline) {
		return false
	}
	g.fired = true
	return true
}

// ReconnectController implements spec.md §4.12's ReconnectController,
// layering pipe-broken tracking on top of a DisconnectGrace.
type ReconnectController struct {
	mu                sync.Mutex
	grace             *DisconnectGrace
	connected         bool
	pipeBroken        bool
	shouldRestartPipe bool
}

// NewReconnectController builds a ReconnectController with the given
// grace duration. It starts in the connected state.
func NewReconnectController(c clock.Clock, grace time.Duration) *ReconnectController {
	return &ReconnectController{grace: NewDisconnectGrace(c, grace), connected: true}
}

// UpdateConnection drives the grace timer from a connected/disconnected
// observation and reports whether a revert should now run.
func (r *ReconnectController) UpdateConnection(connected bool) bool {
	r.mu.Lock()
	wasConnected := r.connected
	r.connected = connected
	r.mu.Unlock()

	if connected {
		if !wasConnected {
			r.grace.OnReconnect()
		}
		return false
	}
	if wasConnected {
		r.grace.OnDisconnect()
	}
	return r.grace.ShouldTrigger()
}

// OnBroken signals the helper IPC pipe broke.
func (r *ReconnectController) OnBroken() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pipeBroken = true
	r.shouldRestartPipe = true
}

// ShouldRestartPipe latches true until consumed once.
func (r *ReconnectController) ShouldRestartPipe() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.shouldRestartPipe {
		return false
	}
	r.shouldRestartPipe = false
	return true
}
