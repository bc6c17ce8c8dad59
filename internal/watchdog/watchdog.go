// Package watchdog implements the Watchdog (C12): a periodic supervisor
// for the out-of-process display helper and its IPC connection. Grounded
// on the teacher's internal/heartbeat.Heartbeat.Start ticker loop (a
// single goroutine alternating on a ticker and a stop channel), adapted
// from a fixed interval to one that switches between an active and a
// suspended cadence depending on whether any streaming session is live,
// and from "send a heartbeat payload" to "ensure the helper process is
// running and ping it."
package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/vistadeck/hostd/internal/logging"
)

var log = logging.L("watchdog")

// ActiveInterval and SuspendedInterval are the tick cadences from
// spec.md §4.14: at most every 5s while a session is active, at least
// every 30s otherwise.
const (
	ActiveInterval    = 5 * time.Second
	SuspendedInterval = 30 * time.Second
)

// Helper is the surface the watchdog supervises. Implementations own
// the actual process-start and IPC-ping mechanics; the watchdog only
// sequences calls to them.
type Helper interface {
	EnsureStarted(ctx context.Context) error
	Ping(ctx context.Context) bool
	ResetConnection(ctx context.Context)
}

// SessionCounter reports how many streaming sessions are currently
// active, which selects the tick interval.
type SessionCounter func() int

// Watchdog owns its own hooks as explicit fields rather than relying on
// process-wide globals (redesigned per spec.md's REDESIGN FLAGS:
// "Global mutable helper state"): exactly one instance is constructed at
// startup and torn down at shutdown.
type Watchdog struct {
	helper   Helper
	sessions SessionCounter
	enabled  func() bool

	mu    sync.RWMutex
	ready bool

	stopChan chan struct{}
	doneChan chan struct{}
}

// New builds a Watchdog. enabled reports whether the helper feature is
// turned on at all; when it returns false, each tick resets the
// connection and marks the helper not-ready instead of pinging it.
func New(helper Helper, sessions SessionCounter, enabled func() bool) *Watchdog {
	return &Watchdog{
		helper:   helper,
		sessions: sessions,
		enabled:  enabled,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Ready reports whether the most recent ping succeeded.
func (w *Watchdog) Ready() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ready
}

func (w *Watchdog) setReady(v bool) {
	w.mu.Lock()
	w.ready = v
	w.mu.Unlock()
}

func (w *Watchdog) interval() time.Duration {
	if w.sessions() > 0 {
		return ActiveInterval
	}
	return SuspendedInterval
}

// Start runs the tick loop until Stop is called or ctx is cancelled.
// Intended to run in its own goroutine; Stop blocks until the loop has
// exited.
func (w *Watchdog) Start(ctx context.Context) {
	defer close(w.doneChan)

	w.tick(ctx)

	timer := time.NewTimer(w.interval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-timer.C:
			w.tick(ctx)
			timer.Reset(w.interval())
		}
	}
}

// Stop signals the loop to exit and waits for it to finish.
func (w *Watchdog) Stop() {
	close(w.stopChan)
	<-w.doneChan
}

// tick runs one supervision cycle per spec.md §4.14: if disabled, reset
// and mark not-ready; otherwise ensure the helper is started, then ping
// it, retrying once (after a reset) on a failed ping.
func (w *Watchdog) tick(ctx context.Context) {
	if !w.enabled() {
		w.helper.ResetConnection(ctx)
		w.setReady(false)
		return
	}

	if err := w.helper.EnsureStarted(ctx); err != nil {
		log.Warn("ensure helper started failed", logging.KeyError, err.Error())
		w.setReady(false)
		return
	}

	if w.helper.Ping(ctx) {
		w.setReady(true)
		return
	}

	log.Warn("helper ping failed, resetting connection")
	w.helper.ResetConnection(ctx)
	if err := w.helper.EnsureStarted(ctx); err != nil {
		log.Warn("ensure helper started failed after reset", logging.KeyError, err.Error())
		w.setReady(false)
		return
	}
	w.setReady(w.helper.Ping(ctx))
}
