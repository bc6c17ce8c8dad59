// Package operations implements the pure sequencing logic for the four
// operation kinds the dispatcher runs: Apply, Verification, Recovery,
// and RecoveryValidation (spec.md §4.4-§4.7). Each operation is a plain
// function taking a displaybackend.Port and a cancellation token; none
// of them touch the state machine or the dispatcher directly, matching
// the teacher's separation between a provider's pure logic
// (internal/patching.Provider.Install) and the orchestration that calls
// it (internal/patching's job runner).
package operations

import (
	"context"
	"fmt"

	"github.com/vistadeck/hostd/internal/clock"
	"github.com/vistadeck/hostd/internal/displaybackend"
)

// Status mirrors spec.md §3's ApplyStatus enum.
type Status int

const (
	Ok Status = iota
	Retryable
	NeedsVirtualDisplayReset
	InvalidRequest
	Fatal
)

func (s Status) String() string {
	switch s {
	case Ok:
		return "ok"
	case Retryable:
		return "retryable"
	case NeedsVirtualDisplayReset:
		return "needs_virtual_display_reset"
	case InvalidRequest:
		return "invalid_request"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ShouldSkipTier is ApplyPolicy.should_skip_tier (§4.8), kept here
// alongside Status since it's a pure function of the status value; the
// policy package imports it rather than duplicating the switch.
func ShouldSkipTier(s Status) bool {
	return s == InvalidRequest || s == Fatal
}

// Request is spec.md §3's ApplyRequest: immutable once constructed.
type Request struct {
	Configuration     displaybackend.SingleDisplayConfiguration
	TopologyOverride  *displaybackend.Topology
	VirtualLayout     displaybackend.VirtualLayout
	SessionFingerprint string
}

// Outcome is spec.md §3's ApplyOutcome.
type Outcome struct {
	Status                  Status
	ExpectedTopology        *displaybackend.Topology
	VirtualDisplayRequested bool
	Err                     error
}

// Apply runs the §4.4 Apply operation.
func Apply(ctx context.Context, backend displaybackend.Port, others []displaybackend.DeviceID, req Request, tok clock.CancellationToken) Outcome {
	if tok.IsCancelled() {
		return Outcome{Status: Fatal, Err: fmt.Errorf("operations: apply cancelled before dispatch")}
	}

	computed := displaybackend.ComputeExpectedTopology(req.Configuration.Primary, others, req.VirtualLayout)
	expected := &computed
	if req.TopologyOverride != nil {
		// The request's explicit override wins for verification even
		// though compute_expected_topology still ran above (§4.4 step 3).
		expected = req.TopologyOverride
	}

	err := backend.Apply(ctx, req.Configuration)
	if err == nil {
		return Outcome{Status: Ok, ExpectedTopology: expected}
	}

	if vdErr, ok := err.(VirtualDisplayInconsistencyError); ok {
		return Outcome{Status: NeedsVirtualDisplayReset, ExpectedTopology: expected, VirtualDisplayRequested: true, Err: vdErr}
	}
	if invErr, ok := err.(InvalidRequestError); ok {
		return Outcome{Status: InvalidRequest, ExpectedTopology: expected, Err: invErr}
	}
	return Outcome{Status: Retryable, ExpectedTopology: expected, Err: err}
}

// VirtualDisplayInconsistencyError is returned by a backend when it
// detects the virtual display driver is in a state Apply cannot
// resolve without a disable/enable cycle.
type VirtualDisplayInconsistencyError struct{ Cause error }

func (e VirtualDisplayInconsistencyError) Error() string {
	if e.Cause == nil {
		return "operations: virtual display inconsistency"
	}
	return "operations: virtual display inconsistency: " + e.Cause.Error()
}
func (e VirtualDisplayInconsistencyError) Unwrap() error { return e.Cause }

// InvalidRequestError is returned by a backend when the request itself
// is structurally unusable.
type InvalidRequestError struct{ Cause error }

func (e InvalidRequestError) Error() string {
	if e.Cause == nil {
		return "operations: invalid request"
	}
	return "operations: invalid request: " + e.Cause.Error()
}
func (e InvalidRequestError) Unwrap() error { return e.Cause }
