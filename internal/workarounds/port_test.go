package workarounds

import (
	"errors"
	"testing"
)

func TestFakeRevertTaskLifecycle(t *testing.T) {
	f := NewFake()
	exists, err := f.ProbeRevertTask(nil, "hostd-revert")
	if err != nil || exists {
		t.Fatalf("expected no task initially, got exists=%v err=%v", exists, err)
	}
	if err := f.CreateRevertTask(nil, "hostd-revert", []string{"hostd-revert.exe"}); err != nil {
		t.Fatal(err)
	}
	exists, err = f.ProbeRevertTask(nil, "hostd-revert")
	if err != nil || !exists {
		t.Fatalf("expected task to exist after create, got exists=%v err=%v", exists, err)
	}
	if err := f.DeleteRevertTask(nil, "hostd-revert"); err != nil {
		t.Fatal(err)
	}
	exists, _ = f.ProbeRevertTask(nil, "hostd-revert")
	if exists {
		t.Fatal("expected task to be gone after delete")
	}
}

func TestFakeBlankHDRFailureIsOneShot(t *testing.T) {
	f := NewFake()
	f.FailBlankHDR = errors.New("wmi unavailable")
	if err := f.BlankHDR(nil, "dev-0"); err == nil {
		t.Fatal("expected injected failure")
	}
	if err := f.BlankHDR(nil, "dev-0"); err != nil {
		t.Fatalf("injected failure should not persist: %v", err)
	}
	if f.BlankHDRCalls != 2 {
		t.Fatalf("expected 2 recorded calls, got %d", f.BlankHDRCalls)
	}
}
