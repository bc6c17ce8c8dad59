// Package helperpipe is the control-plane side of the out-of-process
// helper IPC connection described in spec.md §6: a message-framed pipe
// exposing ping/apply/revert/export_golden/snapshot_current. The helper
// is a pure executor; all decision logic (retry, status mapping) stays
// in the state machine. Grounded on the teacher's internal/ipc.Conn
// (length-prefixed JSON framing, HMAC signing, sequence validation),
// reused unmodified for transport while the message catalogue above it
// is this package's own.
package helperpipe

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/vistadeck/hostd/internal/ipc"
	"github.com/vistadeck/hostd/internal/logging"
)

var log = logging.L("helperpipe")

// DefaultTimeout bounds a single round-trip, such as the watchdog's
// ping.
const DefaultTimeout = 5 * time.Second

// Dialer opens a fresh connection to the helper. Production code dials
// the platform's named pipe/unix socket; tests substitute an in-memory
// net.Pipe pair.
type Dialer func(ctx context.Context) (net.Conn, error)

// Client is a single-connection, request/response wrapper around an
// ipc.Conn. It is not safe for concurrent use by multiple callers:
// goroutines sharing one Client need external serialization. In this
// repo the only caller is ProcessManager, which the watchdog drives.
type Client struct {
	dial       Dialer
	authToken  string
	binaryHash string

	conn *ipc.Conn
	seq  int
}

// NewClient builds a Client. Connect must be called (directly or via
// EnsureConnected) before any request is sent.
func NewClient(dial Dialer, authToken, binaryHash string) *Client {
	return &Client{dial: dial, authToken: authToken, binaryHash: binaryHash}
}

// Connected reports whether a live connection is held.
func (c *Client) Connected() bool { return c.conn != nil }

// Connect dials a fresh connection and performs the auth handshake.
func (c *Client) Connect(ctx context.Context) error {
	raw, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("helperpipe: dial: %w", err)
	}
	conn := ipc.NewConn(raw)

	if err := conn.SendTyped("auth", ipc.TypeAuthRequest, ipc.AuthRequest{
		ProtocolVersion: ipc.ProtocolVersion,
		BinaryHash:      c.binaryHash,
		Token:           c.authToken,
	}); err != nil {
		conn.Close()
		return fmt.Errorf("helperpipe: send auth request: %w", err)
	}

	env, err := conn.Recv()
	if err != nil {
		conn.Close()
		return fmt.Errorf("helperpipe: recv auth response: %w", err)
	}
	var resp ipc.AuthResponse
	if err := json.Unmarshal(env.Payload, &resp); err != nil {
		conn.Close()
		return fmt.Errorf("helperpipe: unmarshal auth response: %w", err)
	}
	if !resp.Accepted {
		conn.Close()
		return fmt.Errorf("helperpipe: auth rejected: %s", resp.Reason)
	}
	if resp.SessionKey != "" {
		conn.SetSessionKey([]byte(resp.SessionKey))
	}

	c.conn = conn
	return nil
}

// Close tears down the live connection, if any.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) nextID(kind string) string {
	c.seq++
	return fmt.Sprintf("%s-%d", kind, c.seq)
}

// roundTrip sends a typed request and decodes an OpResult reply, used
// by every operation below except Ping.
func (c *Client) roundTrip(ctx context.Context, kind, msgType string, payload any) error {
	if c.conn == nil {
		return fmt.Errorf("helperpipe: not connected")
	}
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
	} else {
		c.conn.SetDeadline(time.Now().Add(DefaultTimeout))
	}
	if err := c.conn.SendTyped(c.nextID(kind), msgType, payload); err != nil {
		return fmt.Errorf("helperpipe: send %s: %w", kind, err)
	}
	env, err := c.conn.Recv()
	if err != nil {
		return fmt.Errorf("helperpipe: recv %s result: %w", kind, err)
	}
	var result ipc.OpResult
	if err := json.Unmarshal(env.Payload, &result); err != nil {
		return fmt.Errorf("helperpipe: unmarshal %s result: %w", kind, err)
	}
	if !result.OK {
		return fmt.Errorf("helperpipe: %s failed: %s", kind, result.Error)
	}
	return nil
}

// Ping checks liveness. Unlike the other operations it never returns an
// error to the caller: a failed or timed-out ping is just "not alive",
// which is exactly what the watchdog wants to branch on.
func (c *Client) Ping(ctx context.Context) bool {
	if c.conn == nil {
		return false
	}
	deadline := time.Now().Add(DefaultTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetDeadline(deadline)
	if err := c.conn.SendTyped(c.nextID("ping"), ipc.TypePing, struct{}{}); err != nil {
		log.Warn("ping send failed", logging.KeyError, err.Error())
		return false
	}
	env, err := c.conn.Recv()
	if err != nil {
		log.Warn("ping recv failed", logging.KeyError, err.Error())
		return false
	}
	return env.Type == ipc.TypePong
}

// Apply sends a serialized SingleDisplayConfiguration to the helper.
func (c *Client) Apply(ctx context.Context, primaryDeviceID string, configuration json.RawMessage) error {
	return c.roundTrip(ctx, "apply", ipc.TypeApply, ipc.ApplyPayload{
		PrimaryDeviceID: primaryDeviceID,
		Configuration:   configuration,
	})
}

// Revert asks the helper to invoke its own revert entry point.
func (c *Client) Revert(ctx context.Context) error {
	return c.roundTrip(ctx, "revert", ipc.TypeRevert, struct{}{})
}

// ExportGolden asks the helper to export the current display state into
// the Golden tier, filtered by blacklist.
func (c *Client) ExportGolden(ctx context.Context, blacklist []string) error {
	return c.roundTrip(ctx, "export_golden", ipc.TypeExportGolden, ipc.ExportGoldenPayload{Blacklist: blacklist})
}

// SnapshotCurrent asks the helper to rotate and capture a fresh Current
// snapshot, filtered by blacklist.
func (c *Client) SnapshotCurrent(ctx context.Context, blacklist []string) error {
	return c.roundTrip(ctx, "snapshot_current", ipc.TypeSnapshotCurrent, ipc.SnapshotCurrentPayload{Blacklist: blacklist})
}
