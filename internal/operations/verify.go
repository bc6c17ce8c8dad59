package operations

import (
	"context"
	"time"

	"github.com/vistadeck/hostd/internal/clock"
	"github.com/vistadeck/hostd/internal/displaybackend"
)

// VerifySpinBound is the §4.5 bound on the total time Verification may
// spend spinning to ride out transient post-apply churn.
const VerifySpinBound = 500 * time.Millisecond

// VerifySpinInterval is the sleep between spin attempts.
const VerifySpinInterval = 100 * time.Millisecond

// Verify runs the §4.5 Verification operation: configuration_matches
// AND (if an expected topology was supplied) is_topology_same, with a
// bounded spin to tolerate transient post-apply churn.
func Verify(ctx context.Context, backend displaybackend.Port, c clock.Clock, req Request, expected *displaybackend.Topology, tok clock.CancellationToken) bool {
	deadline := c.Now().Add(VerifySpinBound)
	for {
		if tok.IsCancelled() {
			return false
		}
		if verifyOnce(ctx, backend, req, expected) {
			return true
		}
		if !c.Now().Before(deadline) {
			return false
		}
		c.Sleep(VerifySpinInterval)
	}
}

func verifyOnce(ctx context.Context, backend displaybackend.Port, req Request, expected *displaybackend.Topology) bool {
	matches, err := backend.ConfigurationMatches(ctx, req.Configuration.Primary, req.Configuration)
	if err != nil || !matches {
		return false
	}
	if expected == nil {
		return true
	}
	captured, err := backend.CaptureTopology(ctx)
	if err != nil {
		return false
	}
	return displaybackend.IsTopologySame(captured, *expected)
}
