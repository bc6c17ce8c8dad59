package ipc

import "encoding/json"

// Message type constants for the control-plane/helper IPC protocol
// (spec.md §6's "IPC to the out-of-process helper"): an auth handshake
// followed by the five operations the helper executes on the control
// plane's behalf.
const (
	TypeAuthRequest  = "auth_request"
	TypeAuthResponse = "auth_response"

	TypePing           = "ping"
	TypePong           = "pong"
	TypeApply          = "apply"
	TypeApplyResult    = "apply_result"
	TypeRevert         = "revert"
	TypeRevertResult   = "revert_result"
	TypeExportGolden   = "export_golden"
	TypeSnapshotCurrent = "snapshot_current"
	TypeOpResult       = "op_result"
	TypeDisconnect     = "disconnect"
)

// MaxMessageSize is the maximum size of a JSON IPC message (16MB).
const MaxMessageSize = 16 * 1024 * 1024

// ProtocolVersion is the current IPC protocol version.
const ProtocolVersion = 1

// Envelope is the wire-format wrapper for all IPC messages.
type Envelope struct {
	ID      string          `json:"id"`
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error,omitempty"`
	HMAC    string          `json:"hmac"`
}

// AuthRequest is sent by the connecting side right after dialing (the
// control plane to the helper, or the CLI to the daemon), identifying
// the caller and proving it holds the out-of-band-distributed
// pre-shared token.
type AuthRequest struct {
	ProtocolVersion int    `json:"protocolVersion"`
	PID             int    `json:"pid"`
	BinaryHash      string `json:"binaryHash"`
	Token           string `json:"token"`
}

// AuthResponse is the listening side's reply to an AuthRequest.
type AuthResponse struct {
	Accepted   bool   `json:"accepted"`
	SessionKey string `json:"sessionKey,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// ApplyPayload carries the serialized apply request sent to the helper.
type ApplyPayload struct {
	PrimaryDeviceID string          `json:"primaryDeviceId"`
	Configuration   json.RawMessage `json:"configuration"`
}

// ExportGoldenPayload and SnapshotCurrentPayload carry an optional
// device-id blacklist.
type ExportGoldenPayload struct {
	Blacklist []string `json:"blacklist,omitempty"`
}

type SnapshotCurrentPayload struct {
	Blacklist []string `json:"blacklist,omitempty"`
}

// OpResult is the helper's response to apply/revert/export_golden/
// snapshot_current: a bare ok/error pair, since all decision logic
// (retries, status mapping) lives in the control plane, not the helper.
type OpResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
