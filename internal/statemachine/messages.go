// Package statemachine implements the single-owner control state
// machine (C10): a strictly single-threaded event loop consuming a
// FIFO message queue, dispatching operations through C7 and reacting
// to their completions, with generational cancellation dropping stale
// messages. Grounded on the teacher's single-goroutine-owns-state
// convention seen in internal/heartbeat.Heartbeat (one loop goroutine,
// everything else communicates by channel), generalized here into a
// full transition table per spec.md §4.10.
package statemachine

import (
	"github.com/vistadeck/hostd/internal/dispatcher"
	"github.com/vistadeck/hostd/internal/displaybackend"
	"github.com/vistadeck/hostd/internal/operations"
)

// Message is the sum type the event loop consumes. Every message
// carries the generation it was created under; messages whose
// generation doesn't match the machine's current generation are
// dropped on arrival.
type Message interface {
	generation() uint64
}

type baseMsg struct{ Gen uint64 }

func (m baseMsg) generation() uint64 { return m.Gen }

// ApplyCommand requests a new Apply cycle.
type ApplyCommand struct {
	baseMsg
	Request operations.Request
}

// RevertCommand requests the display be restored to a prior snapshot.
type RevertCommand struct{ baseMsg }

// DisarmCommand clears the armed-recovery flag and removes the
// scheduled revert task without running a recovery.
type DisarmCommand struct{ baseMsg }

// ExportGoldenCommand captures the current display state into the
// Golden tier, filtering blacklist.
type ExportGoldenCommand struct {
	baseMsg
	Blacklist map[displaybackend.DeviceID]bool
}

// SnapshotCurrentCommand rotates Current→Previous and captures a fresh
// Current snapshot, filtering blacklist.
type SnapshotCurrentCommand struct {
	baseMsg
	Blacklist map[displaybackend.DeviceID]bool
}

// DisplayEventKind enumerates the external display-event stream's
// token types (spec.md §6 names only DisplayChange today).
type DisplayEventKind int

const (
	DisplayChange DisplayEventKind = iota
)

// DisplayEventMessage carries a debounced display-change notification.
type DisplayEventMessage struct {
	baseMsg
	Event DisplayEventKind
}

// HelperEventKind enumerates events originating from the watchdog's
// view of the out-of-process helper.
type HelperEventKind int

const (
	HeartbeatTimeout HelperEventKind = iota
)

// HelperEventMessage carries a helper-originated event.
type HelperEventMessage struct {
	baseMsg
	Event HelperEventKind
}

// applyOutcomeMessage wraps a dispatcher Apply completion.
type applyOutcomeMessage struct {
	baseMsg
	Outcome operations.Outcome
}

// verificationResultMessage wraps a dispatcher Verification completion.
type verificationResultMessage struct {
	baseMsg
	Result bool
}

// recoveryOutcomeMessage wraps a dispatcher Recovery completion.
type recoveryOutcomeMessage struct {
	baseMsg
	Result operations.RecoveryResult
}

// recoveryValidationResultMessage wraps a dispatcher RecoveryValidation
// completion.
type recoveryValidationResultMessage struct {
	baseMsg
	Result bool
}

// fromCompletion translates a dispatcher.Completion into the matching
// internal Message, preserving the single-queue ordering guarantee
// described in spec.md §5: completions join the same FIFO queue as
// commands rather than being handled on a separate path.
func fromCompletion(c dispatcher.Completion) Message {
	base := baseMsg{Gen: c.Generation}
	switch c.Kind {
	case dispatcher.ApplyCompletion:
		return applyOutcomeMessage{baseMsg: base, Outcome: c.ApplyOutcome}
	case dispatcher.VerificationCompletion:
		return verificationResultMessage{baseMsg: base, Result: c.VerificationResult}
	case dispatcher.RecoveryCompletion:
		return recoveryOutcomeMessage{baseMsg: base, Result: c.RecoveryResult}
	case dispatcher.RecoveryValidationCompletion:
		return recoveryValidationResultMessage{baseMsg: base, Result: c.RecoveryValidResult}
	default:
		return nil
	}
}
