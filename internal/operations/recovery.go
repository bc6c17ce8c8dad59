package operations

import (
	"context"
	"time"

	"github.com/vistadeck/hostd/internal/clock"
	"github.com/vistadeck/hostd/internal/displaybackend"
	"github.com/vistadeck/hostd/internal/snapshot"
)

// RecoveryRetryDelay is ApplyPolicy.retry_delay, reused here between
// apply_snapshot attempts within a single tier (§4.6 step 3).
const RecoveryRetryDelay = 300 * time.Millisecond

// RecoveryAttemptsPerTier is N in spec.md §4.6 step 3.
const RecoveryAttemptsPerTier = 2

// RecoveryResult is the (success, winning snapshot) pair §4.6 returns.
type RecoveryResult struct {
	Success bool
	Tier    snapshot.Tier
	Winner  displaybackend.Snapshot
}

// Recovery walks ledger.RecoveryOrder(), attempting to apply-and-verify
// each tier's snapshot in turn.
func Recovery(ctx context.Context, backend displaybackend.Port, c clock.Clock, ledger *snapshot.Ledger, available map[displaybackend.DeviceID]bool, tok clock.CancellationToken) RecoveryResult {
	for _, tier := range ledger.RecoveryOrder() {
		if tok.IsCancelled() {
			return RecoveryResult{}
		}
		snap, ok, err := ledger.Load(tier, available)
		if err != nil || !ok {
			continue
		}
		if err := backend.ValidateTopology(ctx, snap.Topology); err != nil {
			continue
		}
		if recoverViaTier(ctx, backend, c, snap, tok) {
			return RecoveryResult{Success: true, Tier: tier, Winner: snap}
		}
	}
	return RecoveryResult{}
}

func recoverViaTier(ctx context.Context, backend displaybackend.Port, c clock.Clock, snap displaybackend.Snapshot, tok clock.CancellationToken) bool {
	for attempt := 1; attempt <= RecoveryAttemptsPerTier; attempt++ {
		if tok.IsCancelled() {
			return false
		}
		if err := backend.ApplySnapshot(ctx, snap); err != nil {
			if attempt < RecoveryAttemptsPerTier {
				c.Sleep(RecoveryRetryDelay)
			}
			continue
		}
		if tok.IsCancelled() {
			return false
		}
		matches, err := backend.SnapshotMatchesCurrent(ctx, snap)
		if err == nil && matches {
			return true
		}
		if attempt < RecoveryAttemptsPerTier {
			c.Sleep(RecoveryRetryDelay)
		}
	}
	return false
}

// RecoveryValidationSettle is the brief settle period RecoveryValidation
// waits before re-capturing and comparing (§4.7).
const RecoveryValidationSettle = 200 * time.Millisecond

// RecoveryValidation re-captures the current snapshot and confirms it
// still matches the winning snapshot after a brief settle period.
func RecoveryValidation(ctx context.Context, backend displaybackend.Port, c clock.Clock, winner displaybackend.Snapshot, tok clock.CancellationToken) bool {
	if tok.IsCancelled() {
		return false
	}
	c.Sleep(RecoveryValidationSettle)
	if tok.IsCancelled() {
		return false
	}
	matches, err := backend.SnapshotMatchesCurrent(ctx, winner)
	if err != nil {
		return false
	}
	return matches
}
