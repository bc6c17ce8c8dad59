package clock

import (
	"testing"
	"time"
)

func TestMockAdvanceFiresWaiters(t *testing.T) {
	m := NewMock(time.Unix(0, 0))
	ch := m.After(300 * time.Millisecond)

	select {
	case <-ch:
		t.Fatal("fired before advance")
	default:
	}

	m.Advance(299 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("fired before deadline")
	default:
	}

	m.Advance(1 * time.Millisecond)
	select {
	case <-ch:
	default:
		t.Fatal("did not fire at deadline")
	}
}

func TestMockAfterZeroOrNegativeFiresImmediately(t *testing.T) {
	m := NewMock(time.Unix(0, 0))
	select {
	case <-m.After(0):
	default:
		t.Fatal("zero duration should fire immediately")
	}
}

func TestCancellationSourceGenerationDrop(t *testing.T) {
	src := NewCancellationSource()
	tok := src.Token()
	if tok.IsCancelled() {
		t.Fatal("fresh token reported cancelled")
	}

	src.Cancel()
	if !tok.IsCancelled() {
		t.Fatal("token should be cancelled after Cancel()")
	}

	fresh := src.Token()
	if fresh.IsCancelled() {
		t.Fatal("token issued after Cancel() should be current")
	}
	if fresh.Generation() <= tok.Generation() {
		t.Fatalf("expected strictly increasing generation, got %d <= %d", fresh.Generation(), tok.Generation())
	}
}

func TestCancellationSourceStartsNonZero(t *testing.T) {
	src := NewCancellationSource()
	if src.Current() == 0 {
		t.Fatal("generation 0 must never be current, so zero-value messages are always dropped")
	}
}
