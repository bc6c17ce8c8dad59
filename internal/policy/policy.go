// Package policy implements ApplyPolicy (C8): the fixed retry delay,
// retry ceiling, and virtual-display reset cooldown the state machine
// consults when deciding how to react to an Apply outcome.
package policy

import (
	"time"

	"github.com/vistadeck/hostd/internal/clock"
	"github.com/vistadeck/hostd/internal/operations"
)

// RetryDelay is ApplyPolicy.retry_delay(attempt): a constant 300 ms
// regardless of attempt number, never an exponential backoff
// (spec.md §4.8 is explicit that the default must stay fixed).
const RetryDelay = 300 * time.Millisecond

// MaxRetries is the number of Retryable outcomes the state machine
// tolerates before surfacing Retryable to the caller.
const MaxRetries = 3

// VirtualDisplayCooldown is the minimum interval between two
// virtual-display reset cycles.
const VirtualDisplayCooldown = 30 * time.Second

// ResetDecision is the result of maybe_reset_virtual_display.
type ResetDecision int

const (
	Proceed ResetDecision = iota
	ResetVirtualDisplay
)

// Policy tracks the last virtual-display reset time so
// MaybeResetVirtualDisplay can enforce the cooldown across calls.
type Policy struct {
	clock        clock.Clock
	lastResetAt  time.Time
	hasResetOnce bool
}

// New builds a Policy using c as its time source.
func New(c clock.Clock) *Policy {
	return &Policy{clock: c}
}

// MaybeResetVirtualDisplay implements §4.8's maybe_reset_virtual_display:
// resets the first time status requests it AND requested is true AND
// the cooldown has elapsed since the last reset.
func (p *Policy) MaybeResetVirtualDisplay(status operations.Status, requested bool) ResetDecision {
	if status != operations.NeedsVirtualDisplayReset || !requested {
		return Proceed
	}
	now := p.clock.Now()
	if p.hasResetOnce && now.Sub(p.lastResetAt) < VirtualDisplayCooldown {
		return Proceed
	}
	p.lastResetAt = now
	p.hasResetOnce = true
	return ResetVirtualDisplay
}

// ShouldSkipTier re-exports operations.ShouldSkipTier so callers that
// only import policy for ApplyPolicy semantics don't also need to
// import operations directly.
func ShouldSkipTier(status operations.Status) bool {
	return operations.ShouldSkipTier(status)
}
