// Package dispatcher implements the Async Dispatcher (C7): one worker
// per operation kind (Apply, Verify, Recovery, RecoveryValidate),
// dispatched fire-and-forget with results posted back onto a
// completion channel rather than invoked synchronously, so the state
// machine never needs a lock around its own state. Grounded on the
// teacher's internal/workerpool.Pool, reused here as four independent
// single-purpose pools instead of the teacher's one general-purpose
// job pool, since each operation kind has distinct pre-dispatch
// sequencing (the virtual-display reset cycle belongs only to Apply).
package dispatcher

import (
	"context"
	"time"

	"github.com/vistadeck/hostd/internal/clock"
	"github.com/vistadeck/hostd/internal/displaybackend"
	"github.com/vistadeck/hostd/internal/logging"
	"github.com/vistadeck/hostd/internal/operations"
	"github.com/vistadeck/hostd/internal/snapshot"
	"github.com/vistadeck/hostd/internal/virtualdisplay"
	"github.com/vistadeck/hostd/internal/workerpool"
)

var log = logging.L("dispatcher")

// CompletionKind names which operation a Completion carries the result
// of, so the state machine's single inbound channel can discriminate
// without four separate channels.
type CompletionKind int

const (
	ApplyCompletion CompletionKind = iota
	VerificationCompletion
	RecoveryCompletion
	RecoveryValidationCompletion
)

// Completion is posted onto the dispatcher's Completions channel once
// an operation finishes (or is dropped for being stale).
type Completion struct {
	Kind       CompletionKind
	Generation uint64

	ApplyOutcome       operations.Outcome
	VerificationResult bool
	RecoveryResult     operations.RecoveryResult
	RecoveryValidResult bool
}

// ApplyJob carries everything the Apply worker needs, including the
// optional pre-delay and virtual-display reset sequence flag (§4.9).
type ApplyJob struct {
	Request     operations.Request
	OtherDevices []displaybackend.DeviceID
	PreDelay    time.Duration
	ResetVirtualDisplay bool
	Token       clock.CancellationToken
}

// VerifyJob carries what the Verify worker needs.
type VerifyJob struct {
	Request  operations.Request
	Expected *displaybackend.Topology
	Token    clock.CancellationToken
}

// RecoveryJob carries what the Recovery worker needs.
type RecoveryJob struct {
	Available map[displaybackend.DeviceID]bool
	Token     clock.CancellationToken
}

// RecoveryValidationJob carries what the RecoveryValidation worker needs.
type RecoveryValidationJob struct {
	Winner displaybackend.Snapshot
	Token  clock.CancellationToken
}

// Dispatcher owns one single-worker pool per operation kind and a
// shared completion channel.
type Dispatcher struct {
	backend        displaybackend.Port
	virtualDisplay virtualdisplay.Port
	clock          clock.Clock
	ledger         *snapshot.Ledger

	applyPool              *workerpool.Pool
	verifyPool             *workerpool.Pool
	recoveryPool           *workerpool.Pool
	recoveryValidationPool *workerpool.Pool

	completions chan Completion
}

// New builds a Dispatcher. Each pool is sized 1x1: operations of the
// same kind never run concurrently with themselves, matching §8
// property 5 (single-flight apply/verification per generation).
func New(backend displaybackend.Port, vd virtualdisplay.Port, c clock.Clock, ledger *snapshot.Ledger) *Dispatcher {
	return &Dispatcher{
		backend:                backend,
		virtualDisplay:         vd,
		clock:                  c,
		ledger:                 ledger,
		applyPool:              workerpool.New(1, 8),
		verifyPool:             workerpool.New(1, 8),
		recoveryPool:           workerpool.New(1, 8),
		recoveryValidationPool: workerpool.New(1, 8),
		completions:            make(chan Completion, 16),
	}
}

// Completions returns the channel the state machine reads completion
// messages from.
func (d *Dispatcher) Completions() <-chan Completion {
	return d.completions
}

// DispatchApply runs the Apply operation, optionally preceded by the
// §4.9 virtual-display reset sequence.
func (d *Dispatcher) DispatchApply(job ApplyJob) {
	d.applyPool.Submit(func() {
		ctx := context.Background()
		gen := job.Token.Generation()

		if job.PreDelay > 0 {
			d.clock.Sleep(job.PreDelay)
		}

		if job.ResetVirtualDisplay {
			if job.Token.IsCancelled() {
				return
			}
			if err := d.virtualDisplay.Disable(ctx); err != nil {
				d.postApply(gen, operations.Outcome{Status: operations.Fatal, Err: err})
				return
			}
			d.clock.Sleep(500 * time.Millisecond)
			if err := d.virtualDisplay.Enable(ctx); err != nil {
				d.postApply(gen, operations.Outcome{Status: operations.Fatal, Err: err})
				return
			}
			d.clock.Sleep(1000 * time.Millisecond)
		}

		if job.Token.IsCancelled() {
			return
		}
		outcome := operations.Apply(ctx, d.backend, job.OtherDevices, job.Request, job.Token)
		if job.Token.IsCancelled() {
			return
		}
		d.postApply(gen, outcome)
	})
}

func (d *Dispatcher) postApply(gen uint64, outcome operations.Outcome) {
	d.completions <- Completion{Kind: ApplyCompletion, Generation: gen, ApplyOutcome: outcome}
}

// DispatchVerify runs the Verification operation with no pre-delay.
func (d *Dispatcher) DispatchVerify(job VerifyJob) {
	d.verifyPool.Submit(func() {
		if job.Token.IsCancelled() {
			return
		}
		ok := operations.Verify(context.Background(), d.backend, d.clock, job.Request, job.Expected, job.Token)
		if job.Token.IsCancelled() {
			return
		}
		d.completions <- Completion{Kind: VerificationCompletion, Generation: job.Token.Generation(), VerificationResult: ok}
	})
}

// DispatchRecovery runs the Recovery operation with no pre-delay.
func (d *Dispatcher) DispatchRecovery(job RecoveryJob) {
	d.recoveryPool.Submit(func() {
		if job.Token.IsCancelled() {
			return
		}
		result := operations.Recovery(context.Background(), d.backend, d.clock, d.ledger, job.Available, job.Token)
		if job.Token.IsCancelled() {
			return
		}
		d.completions <- Completion{Kind: RecoveryCompletion, Generation: job.Token.Generation(), RecoveryResult: result}
	})
}

// DispatchRecoveryValidation runs the RecoveryValidation operation with
// no pre-delay.
func (d *Dispatcher) DispatchRecoveryValidation(job RecoveryValidationJob) {
	d.recoveryValidationPool.Submit(func() {
		if job.Token.IsCancelled() {
			return
		}
		ok := operations.RecoveryValidation(context.Background(), d.backend, d.clock, job.Winner, job.Token)
		if job.Token.IsCancelled() {
			return
		}
		d.completions <- Completion{Kind: RecoveryValidationCompletion, Generation: job.Token.Generation(), RecoveryValidResult: ok}
	})
}

// Shutdown drains every pool, bounded by ctx.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.applyPool.StopAccepting()
	d.verifyPool.StopAccepting()
	d.recoveryPool.StopAccepting()
	d.recoveryValidationPool.StopAccepting()
	d.applyPool.Drain(ctx)
	d.verifyPool.Drain(ctx)
	d.recoveryPool.Drain(ctx)
	d.recoveryValidationPool.Drain(ctx)
	log.Info("dispatcher shut down")
}
