package policy

import (
	"testing"
	"time"

	"github.com/vistadeck/hostd/internal/clock"
	"github.com/vistadeck/hostd/internal/operations"
)

func TestMaybeResetVirtualDisplayFirstTimeResets(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	p := New(mc)
	if got := p.MaybeResetVirtualDisplay(operations.NeedsVirtualDisplayReset, true); got != ResetVirtualDisplay {
		t.Fatalf("expected first reset to proceed, got %v", got)
	}
}

func TestMaybeResetVirtualDisplayRespectsCooldown(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	p := New(mc)
	p.MaybeResetVirtualDisplay(operations.NeedsVirtualDisplayReset, true)

	mc.Advance(29 * time.Second)
	if got := p.MaybeResetVirtualDisplay(operations.NeedsVirtualDisplayReset, true); got != Proceed {
		t.Fatalf("expected cooldown to block second reset within 30s, got %v", got)
	}

	mc.Advance(2 * time.Second)
	if got := p.MaybeResetVirtualDisplay(operations.NeedsVirtualDisplayReset, true); got != ResetVirtualDisplay {
		t.Fatalf("expected reset to proceed once cooldown elapses, got %v", got)
	}
}

func TestMaybeResetVirtualDisplayIgnoresOtherStatuses(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	p := New(mc)
	if got := p.MaybeResetVirtualDisplay(operations.Retryable, true); got != Proceed {
		t.Fatalf("expected Retryable to never request a reset, got %v", got)
	}
	if got := p.MaybeResetVirtualDisplay(operations.NeedsVirtualDisplayReset, false); got != Proceed {
		t.Fatalf("expected requested=false to never reset, got %v", got)
	}
}

func TestShouldSkipTierDelegates(t *testing.T) {
	if !ShouldSkipTier(operations.Fatal) {
		t.Fatal("expected Fatal to skip tier")
	}
	if ShouldSkipTier(operations.Retryable) {
		t.Fatal("expected Retryable not to skip tier")
	}
}
