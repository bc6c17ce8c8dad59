package statemachine

import (
	"context"
	"time"

	"github.com/vistadeck/hostd/internal/dispatcher"
	"github.com/vistadeck/hostd/internal/displaybackend"
	"github.com/vistadeck/hostd/internal/logging"
	"github.com/vistadeck/hostd/internal/operations"
	"github.com/vistadeck/hostd/internal/policy"
	"github.com/vistadeck/hostd/internal/snapshot"
)

// onApplyCommand handles Waiting --ApplyCommand--> InProgress.
func (m *Machine) onApplyCommand(ctx context.Context, cmd ApplyCommand) {
	if m.state != Waiting {
		return
	}
	if err := m.workarounds.CreateRevertTask(ctx, TaskName, m.revertCommand); err != nil {
		log.Warn("create revert task failed", logging.KeyError, err.Error())
	}
	m.currentRequest = cmd.Request
	m.attempts = 1
	m.state = InProgress
	m.dispatchApply(0, false)
}

func (m *Machine) dispatchApply(preDelay time.Duration, resetVD bool) {
	m.dispatcher.DispatchApply(dispatcher.ApplyJob{
		Request:             m.currentRequest,
		OtherDevices:        excludeDevice(m.OtherDevices(), m.currentRequest.Configuration.Primary),
		PreDelay:            preDelay,
		ResetVirtualDisplay: resetVD,
		Token:               m.cancellation.Token(),
	})
}

// excludeDevice returns devices with id removed, preserving order. The
// backend-backed OtherDevices closure enumerates every connected
// device without knowing which one the in-flight request treats as
// primary, so compute_expected_topology would otherwise double-count
// it as both the primary group and an "other" group.
func excludeDevice(devices []displaybackend.DeviceID, id displaybackend.DeviceID) []displaybackend.DeviceID {
	out := make([]displaybackend.DeviceID, 0, len(devices))
	for _, d := range devices {
		if d != id {
			out = append(out, d)
		}
	}
	return out
}

func (m *Machine) onApplyOutcome(ctx context.Context, outcome operations.Outcome) {
	if m.state != InProgress {
		return
	}
	switch outcome.Status {
	case operations.Ok:
		m.expectedTopo = outcome.ExpectedTopology
		m.state = Verification
		m.dispatcher.DispatchVerify(dispatcher.VerifyJob{
			Request:  m.currentRequest,
			Expected: m.expectedTopo,
			Token:    m.cancellation.Token(),
		})

	case operations.Retryable:
		if m.attempts < policy.MaxRetries {
			m.attempts++
			m.dispatchApply(policy.RetryDelay, false)
			return
		}
		m.emit(Signal{Kind: ApplyResultSignal, Status: operations.Retryable})
		m.state = Waiting

	case operations.NeedsVirtualDisplayReset:
		decision := m.policy.MaybeResetVirtualDisplay(outcome.Status, outcome.VirtualDisplayRequested)
		if decision == policy.ResetVirtualDisplay {
			m.dispatchApply(policy.RetryDelay, true)
			return
		}
		// Cooldown blocks the reset: treat as Retryable.
		if m.attempts < policy.MaxRetries {
			m.attempts++
			m.dispatchApply(policy.RetryDelay, false)
			return
		}
		m.emit(Signal{Kind: ApplyResultSignal, Status: operations.Retryable})
		m.state = Waiting

	case operations.InvalidRequest, operations.Fatal:
		m.emit(Signal{Kind: ApplyResultSignal, Status: outcome.Status})
		m.state = Waiting
	}
}

func (m *Machine) onVerificationResult(ctx context.Context, ok bool) {
	if m.state != Verification {
		return
	}
	if ok {
		if err := m.workarounds.RefreshShell(ctx); err != nil {
			log.Warn("refresh shell failed", logging.KeyError, err.Error())
		}
		m.scheduleHDRBlank(ctx)
		if err := m.ledger.Rotate(); err != nil {
			log.Warn("rotate current to previous failed", logging.KeyError, err.Error())
		}
		if snap, err := m.backend.CaptureSnapshot(ctx); err == nil {
			if err := m.ledger.Save(snapshot.Current, snap, nil); err != nil {
				log.Warn("save current snapshot failed", logging.KeyError, err.Error())
			}
		}
		m.recoveryArmed = true
		m.emit(Signal{Kind: ApplyResultSignal, Status: operations.Ok})
		m.state = Waiting
		return
	}
	m.emit(Signal{Kind: ApplyResultSignal, Status: operations.Retryable})
	m.state = Waiting
}

// hdrBlankDelay is the §4.10 "schedule HDR-blank (delay 1000ms)" pause
// before running the workaround.
const hdrBlankDelay = 1000 * time.Millisecond

func (m *Machine) scheduleHDRBlank(ctx context.Context) {
	go func() {
		m.clock.Sleep(hdrBlankDelay)
		id := string(m.currentRequest.Configuration.Primary)
		if err := m.workarounds.BlankHDR(ctx, id); err != nil {
			log.Warn("blank hdr failed", logging.KeyError, err.Error())
		}
	}()
}

func (m *Machine) onRevertCommand(ctx context.Context) {
	if m.state != Waiting && m.state != EventLoop {
		return
	}
	if err := m.workarounds.DeleteRevertTask(ctx, TaskName); err != nil {
		log.Warn("delete revert task failed", logging.KeyError, err.Error())
	}
	m.state = Recovery
	m.dispatcher.DispatchRecovery(dispatcher.RecoveryJob{
		Available: m.AvailableDevices(),
		Token:     m.cancellation.Token(),
	})
}

func (m *Machine) onRecoveryOutcome(ctx context.Context, result operations.RecoveryResult) {
	if m.state != Recovery {
		return
	}
	if result.Success {
		m.recoveryWinner = result.Winner
		m.state = RecoveryValidation
		m.dispatcher.DispatchRecoveryValidation(dispatcher.RecoveryValidationJob{
			Winner: result.Winner,
			Token:  m.cancellation.Token(),
		})
		return
	}
	m.recoveryArmed = true
	m.state = EventLoop
}

func (m *Machine) onRecoveryValidationResult(ok bool) {
	if m.state != RecoveryValidation {
		return
	}
	if ok {
		m.emit(Signal{Kind: ExitSignal, ExitCode: 0})
		return
	}
	m.recoveryArmed = true
	m.state = EventLoop
}

func (m *Machine) onDisplayEvent(ctx context.Context) {
	if m.state != EventLoop || !m.recoveryArmed {
		return
	}
	m.state = Recovery
	m.dispatcher.DispatchRecovery(dispatcher.RecoveryJob{
		Available: m.AvailableDevices(),
		Token:     m.cancellation.Token(),
	})
}

func (m *Machine) onHelperEvent(ctx context.Context) {
	// HeartbeatTimeout follows the same EventLoop re-arm trigger as a
	// display change.
	m.onDisplayEvent(ctx)
}

// onDisarmCommand handles DisarmCommand from any state, not only
// EventLoop: spec.md §5 names Disarm as one of the three triggers that
// bump the cancellation generation, and scenario S6 requires Disarm to
// cancel an Apply that is still in flight (InProgress/Verification),
// dropping its eventual late completion rather than waiting for
// EventLoop to be reached first.
func (m *Machine) onDisarmCommand(ctx context.Context) {
	if m.state == Waiting {
		return
	}
	m.cancellation.Cancel()
	if err := m.workarounds.DeleteRevertTask(ctx, TaskName); err != nil {
		log.Warn("delete revert task failed", logging.KeyError, err.Error())
	}
	m.recoveryArmed = false
	m.state = Waiting
}

// exportGolden runs synchronously in whatever goroutine calls it,
// since Export never touches state-machine state (DESIGN.md Open
// Question (c)).
func (m *Machine) exportGolden(ctx context.Context, blacklist map[displaybackend.DeviceID]bool) error {
	snap, err := m.backend.CaptureSnapshot(ctx)
	if err != nil {
		return err
	}
	return m.ledger.Save(snapshot.Golden, snap, blacklist)
}

// snapshotCurrent rotates Current→Previous then captures and saves a
// fresh Current, also run synchronously.
func (m *Machine) snapshotCurrent(ctx context.Context, blacklist map[displaybackend.DeviceID]bool) error {
	if err := m.ledger.Rotate(); err != nil {
		return err
	}
	snap, err := m.backend.CaptureSnapshot(ctx)
	if err != nil {
		return err
	}
	return m.ledger.Save(snapshot.Current, snap, blacklist)
}
