// Package deferral implements the Session Deferral Manager (C11): a
// single-slot Pending entry, coalesced on every set_pending, released
// only once a ready session has held steady through an initial settle
// delay, and re-staged with backoff when the state machine asks for a
// retry. Freshly authored for this domain: the single-slot
// coalesce-and-settle shape is grounded on the idle/retry bookkeeping
// the teacher's session layer used to track per-connection state
// (replaced-on-superseding-entry, elapsed-since-last-touch), not
// copied from any one teacher file.
package deferral

import (
	"sync"
	"time"

	"github.com/vistadeck/hostd/internal/clock"
	"github.com/vistadeck/hostd/internal/operations"
)

// InitialDelay is the minimum time a ready session must hold steady
// before a Pending becomes Ready, per spec.md §4.11 (at least the
// display-settle window used elsewhere).
const InitialDelay = 1500 * time.Millisecond

// SessionSnapshot is an immutable copy of session-visible fields
// captured at set_pending time (spec.md §3's Pending.session_snapshot).
type SessionSnapshot struct {
	ID                     string
	Width                  int
	Height                 int
	FPS                    int
	HDR                    bool
	SOPS                   bool
	VirtualDisplay         bool
	VirtualDisplayDeviceID string
	FrameGenRefreshRate    int
	Gen1FrameGenFix        bool
	Gen2FrameGenFix        bool
}

// Pending is spec.md §3's deferral entry.
type Pending struct {
	Request         operations.Request
	SessionSnapshot SessionSnapshot
	ScheduledAt     time.Time
	Attempts        int
}

// Outcome enumerates take_ready's result kinds.
type Outcome int

const (
	Nothing Outcome = iota
	SessionNotReady
	DelayStarted
	DelayPending
	Ready
)

// Manager holds at most one Pending entry.
type Manager struct {
	mu         sync.Mutex
	clock      clock.Clock
	pending    *Pending
	readyAt    time.Time
	delayArmed bool
}

// New builds a Manager using c as its time source.
func New(c clock.Clock) *Manager {
	return &Manager{clock: c}
}

// SetPending replaces any existing Pending atomically; the replaced
// entry is discarded. Replacing also resets the settle delay, since a
// newer request supersedes whatever steadiness the old one had earned.
func (m *Manager) SetPending(p Pending) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = &p
	m.delayArmed = false
}

// HasPending reports whether a Pending entry is currently held.
func (m *Manager) HasPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}

// TakeReady implements §4.11's take_ready.
func (m *Manager) TakeReady(sessionReady bool) (Outcome, *Pending) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == nil {
		return Nothing, nil
	}
	if !sessionReady {
		return SessionNotReady, nil
	}
	if !m.delayArmed {
		m.delayArmed = true
		m.readyAt = m.clock.Now().Add(InitialDelay)
		return DelayStarted, nil
	}
	if m.clock.Now().Before(m.readyAt) {
		return DelayPending, nil
	}
	ready := m.pending
	m.pending = nil
	m.delayArmed = false
	return Ready, ready
}

// RescheduleResult is what Reschedule reports back to the caller.
type RescheduleResult struct {
	DroppedForNewer bool
}

// RetryDelay is the backoff applied between reschedule attempts,
// bounded so it never grows unbounded: attempt 1 gets a small delay,
// each subsequent attempt doubles up to a ceiling.
func RetryDelay(attempts int) time.Duration {
	const base = 500 * time.Millisecond
	const ceiling = 8 * time.Second
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return d
}

// Reschedule is called by the state machine when an Apply drawn from a
// Pending should be tried again later. If a newer Pending has arrived
// in the meantime, the reschedule is dropped in favor of the newer
// entry; otherwise p is re-staged with attempts incremented and a
// retry-delay backoff before it can become Ready again.
func (m *Manager) Reschedule(p Pending) RescheduleResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != nil {
		return RescheduleResult{DroppedForNewer: true}
	}
	p.Attempts++
	m.pending = &p
	m.delayArmed = true
	m.readyAt = m.clock.Now().Add(RetryDelay(p.Attempts))
	return RescheduleResult{}
}
