package statemachine

import (
	"context"

	"github.com/vistadeck/hostd/internal/clock"
	"github.com/vistadeck/hostd/internal/dispatcher"
	"github.com/vistadeck/hostd/internal/displaybackend"
	"github.com/vistadeck/hostd/internal/logging"
	"github.com/vistadeck/hostd/internal/operations"
	"github.com/vistadeck/hostd/internal/policy"
	"github.com/vistadeck/hostd/internal/snapshot"
	"github.com/vistadeck/hostd/internal/workarounds"
)

var log = logging.L("statemachine")

// State enumerates spec.md §3's State.
type State int

const (
	Idle State = iota
	Waiting
	InProgress
	Verification
	Recovery
	RecoveryValidation
	EventLoop
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Waiting:
		return "waiting"
	case InProgress:
		return "in_progress"
	case Verification:
		return "verification"
	case Recovery:
		return "recovery"
	case RecoveryValidation:
		return "recovery_validation"
	case EventLoop:
		return "event_loop"
	default:
		return "unknown"
	}
}

// SignalKind enumerates the signals emitted to collaborators
// (spec.md §6: ApplyResult, VerificationResult, Exit).
type SignalKind int

const (
	ApplyResultSignal SignalKind = iota
	VerificationResultSignal
	ExitSignal
)

// Signal is a user/collaborator-visible emission from the machine.
type Signal struct {
	Kind     SignalKind
	Status   operations.Status
	Verified bool
	ExitCode int
}

// TaskName is the stable identifier the scheduled revert task is
// created/deleted/probed under.
const TaskName = "hostd-revert"

// Machine is the C10 single-owner control state machine. All exported
// methods other than Run/Enqueue/Signals are safe to call from any
// goroutine because they only ever post onto the queue; all state
// mutation happens inside the Run loop.
type Machine struct {
	backend        displaybackend.Port
	workarounds    workarounds.Port
	dispatcher     *dispatcher.Dispatcher
	ledger         *snapshot.Ledger
	policy         *policy.Policy
	clock          clock.Clock
	revertCommand  []string

	cancellation *clock.CancellationSource

	queue  chan Message
	signals chan Signal

	// OtherDevices supplies the non-primary participants used when
	// computing the expected topology for a request.
	OtherDevices func() []displaybackend.DeviceID
	// AvailableDevices supplies the currently connected device set used
	// to availability-gate snapshot loads during recovery.
	AvailableDevices func() map[displaybackend.DeviceID]bool

	state          State
	attempts       int
	recoveryArmed  bool
	currentRequest operations.Request
	expectedTopo   *displaybackend.Topology
	recoveryWinner displaybackend.Snapshot
}

// New builds a Machine in the Waiting state.
func New(
	backend displaybackend.Port,
	wa workarounds.Port,
	d *dispatcher.Dispatcher,
	ledger *snapshot.Ledger,
	pol *policy.Policy,
	c clock.Clock,
	revertCommand []string,
) *Machine {
	return &Machine{
		backend:       backend,
		workarounds:   wa,
		dispatcher:    d,
		ledger:        ledger,
		policy:        pol,
		clock:         c,
		revertCommand: revertCommand,
		cancellation:  clock.NewCancellationSource(),
		queue:         make(chan Message, 64),
		signals:       make(chan Signal, 16),
		state:         Waiting,
		OtherDevices:  func() []displaybackend.DeviceID { return nil },
		AvailableDevices: func() map[displaybackend.DeviceID]bool {
			return map[displaybackend.DeviceID]bool{}
		},
	}
}

// Signals returns the channel collaborators read ApplyResult/
// VerificationResult/Exit emissions from.
func (m *Machine) Signals() <-chan Signal { return m.signals }

// CurrentGeneration returns the machine's live cancellation generation,
// used to stamp new external commands before enqueuing them.
func (m *Machine) CurrentGeneration() uint64 { return m.cancellation.Current() }

// Enqueue posts msg onto the FIFO queue from any goroutine.
func (m *Machine) Enqueue(msg Message) {
	m.queue <- msg
}

// SubmitApply stamps and enqueues an ApplyCommand.
func (m *Machine) SubmitApply(req operations.Request) {
	m.Enqueue(ApplyCommand{baseMsg: baseMsg{Gen: m.CurrentGeneration()}, Request: req})
}

// SubmitRevert stamps and enqueues a RevertCommand.
func (m *Machine) SubmitRevert() {
	m.Enqueue(RevertCommand{baseMsg{Gen: m.CurrentGeneration()}})
}

// SubmitDisarm stamps and enqueues a DisarmCommand.
func (m *Machine) SubmitDisarm() {
	m.Enqueue(DisarmCommand{baseMsg{Gen: m.CurrentGeneration()}})
}

// SubmitExportGolden stamps and enqueues an ExportGoldenCommand. Unlike
// the other commands, Export is accepted in any state and does not
// perturb state-machine state (decided in DESIGN.md's Open Question
// (c)), so it is handled inline here rather than via the queue.
func (m *Machine) SubmitExportGolden(ctx context.Context, blacklist map[displaybackend.DeviceID]bool) error {
	return m.exportGolden(ctx, blacklist)
}

// SubmitSnapshotCurrent is the synchronous counterpart for
// SnapshotCurrentCommand, for the same reason as SubmitExportGolden.
func (m *Machine) SubmitSnapshotCurrent(ctx context.Context, blacklist map[displaybackend.DeviceID]bool) error {
	return m.snapshotCurrent(ctx, blacklist)
}

// SubmitDisplayChange stamps and enqueues a debounced display-change
// notification.
func (m *Machine) SubmitDisplayChange() {
	m.Enqueue(DisplayEventMessage{baseMsg{Gen: m.CurrentGeneration()}, DisplayChange})
}

// SubmitHeartbeatTimeout stamps and enqueues a heartbeat-timeout event.
func (m *Machine) SubmitHeartbeatTimeout() {
	m.Enqueue(HelperEventMessage{baseMsg{Gen: m.CurrentGeneration()}, HeartbeatTimeout})
}

// State returns the machine's current state. Safe to call from the Run
// goroutine only; other goroutines should treat it as advisory.
func (m *Machine) State() State { return m.state }

// RecoveryArmed reports whether the armed-recovery flag is set.
func (m *Machine) RecoveryArmed() bool { return m.recoveryArmed }

// Run starts the single-threaded event loop. It also relays dispatcher
// completions onto the same queue so all messages are processed in one
// FIFO order, per spec.md §5's ordering guarantee.
func (m *Machine) Run(ctx context.Context) {
	go func() {
		for c := range m.dispatcher.Completions() {
			if msg := fromCompletion(c); msg != nil {
				select {
				case m.queue <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.queue:
			if msg.generation() != m.cancellation.Current() {
				continue // stale message, dropped silently (§4.10)
			}
			m.handle(ctx, msg)
		}
	}
}

func (m *Machine) handle(ctx context.Context, msg Message) {
	switch t := msg.(type) {
	case ApplyCommand:
		m.onApplyCommand(ctx, t)
	case RevertCommand:
		m.onRevertCommand(ctx)
	case DisarmCommand:
		m.onDisarmCommand(ctx)
	case ExportGoldenCommand:
		if err := m.exportGolden(ctx, t.Blacklist); err != nil {
			log.Warn("export golden failed", logging.KeyError, err.Error())
		}
	case SnapshotCurrentCommand:
		if err := m.snapshotCurrent(ctx, t.Blacklist); err != nil {
			log.Warn("snapshot current failed", logging.KeyError, err.Error())
		}
	case DisplayEventMessage:
		m.onDisplayEvent(ctx)
	case HelperEventMessage:
		m.onHelperEvent(ctx)
	case applyOutcomeMessage:
		m.onApplyOutcome(ctx, t.Outcome)
	case verificationResultMessage:
		m.onVerificationResult(ctx, t.Result)
	case recoveryOutcomeMessage:
		m.onRecoveryOutcome(ctx, t.Result)
	case recoveryValidationResultMessage:
		m.onRecoveryValidationResult(t.Result)
	}
}

func (m *Machine) emit(sig Signal) {
	select {
	case m.signals <- sig:
	default:
		log.Warn("signal channel full, dropping signal")
	}
}
