// Package control is the daemon-facing side of spec.md §6's "Commands
// accepted by C10" surface: a small message-framed protocol the
// cmd/hostd CLI subcommands (apply/revert/disarm/export-golden/
// snapshot-current/status) speak to the running daemon, reusing the
// same ipc.Conn transport (length-prefixed JSON envelopes, HMAC
// signing, sequence validation) that internal/helperpipe uses for the
// daemon-to-helper leg, per SPEC_FULL.md §2's domain-stack table.
package control

// Message type constants for the control socket.
const (
	TypeApply           = "ctl_apply"
	TypeRevert          = "ctl_revert"
	TypeDisarm          = "ctl_disarm"
	TypeExportGolden    = "ctl_export_golden"
	TypeSnapshotCurrent = "ctl_snapshot_current"
	TypeStatus          = "ctl_status"
	TypeStatusResult    = "ctl_status_result"
	TypeResult          = "ctl_result"
)

// ApplyPayload carries a wire-serializable ApplyRequest (spec.md §3):
// the CLI builds this from its flags, the server decodes it into an
// operations.Request before submitting it to the state machine.
type ApplyPayload struct {
	PrimaryDeviceID    string          `json:"primaryDeviceId"`
	DesiredMode        *ModePayload    `json:"desiredMode,omitempty"`
	DesiredHDR         string          `json:"desiredHdr,omitempty"` // "enabled" | "disabled" | ""
	Preparation        string          `json:"preparation"`          // verify_only|ensure_active|ensure_only_display|ensure_primary
	VirtualLayout      string          `json:"virtualLayout,omitempty"`
	TopologyOverride   *TopologyPayload `json:"topologyOverride,omitempty"`
	SessionFingerprint string          `json:"sessionFingerprint"`
}

// ModePayload is the wire form of displaybackend.Mode.
type ModePayload struct {
	Width      int `json:"width"`
	Height     int `json:"height"`
	RefreshNum int `json:"refreshNum"`
	RefreshDen int `json:"refreshDen"`
}

// TopologyPayload is the wire form of displaybackend.Topology.
type TopologyPayload struct {
	Groups [][]string `json:"groups"`
}

// BlacklistPayload carries an optional device-id blacklist, used by
// both ExportGolden and SnapshotCurrent.
type BlacklistPayload struct {
	Blacklist []string `json:"blacklist,omitempty"`
}

// Result is the generic ok/error reply for Apply/Revert/Disarm/
// ExportGolden/SnapshotCurrent.
type Result struct {
	OK     bool   `json:"ok"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// StatusResult answers TypeStatus: a snapshot of the machine's current
// state for `hostd status`. Server reports whether a Pending exists
// (HasPending) but never fills PendingFingerprint, so that field is
// always empty in its replies.
type StatusResult struct {
	State              string `json:"state"`
	RecoveryArmed      bool   `json:"recoveryArmed"`
	Generation         uint64 `json:"generation"`
	HasPending         bool   `json:"hasPending"`
	PendingFingerprint string `json:"pendingFingerprint,omitempty"`
	WatchdogReady      bool   `json:"watchdogReady"`
}
