package watchdog

import (
	"context"
	"sync"
)

// fakeHelper is an in-memory Helper for tests.
type fakeHelper struct {
	mu sync.Mutex

	EnsureCalls int
	PingCalls   int
	ResetCalls  int

	EnsureErr error
	PingSeq   []bool // consumed front-to-back; last value repeats once exhausted
}

func (f *fakeHelper) EnsureStarted(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.EnsureCalls++
	return f.EnsureErr
}

func (f *fakeHelper) Ping(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PingCalls++
	if len(f.PingSeq) == 0 {
		return true
	}
	v := f.PingSeq[0]
	if len(f.PingSeq) > 1 {
		f.PingSeq = f.PingSeq[1:]
	}
	return v
}

func (f *fakeHelper) ResetConnection(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ResetCalls++
}
