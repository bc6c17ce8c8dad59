package control

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vistadeck/hostd/internal/ipc"
)

// DefaultTimeout bounds a single control round-trip, matching
// internal/helperpipe.Client's DefaultTimeout.
const DefaultTimeout = 5 * time.Second

// Client is the cobra CLI's thin IPC client to a running daemon,
// grounded on internal/helperpipe.Client's dial-then-authenticate-
// then-roundtrip shape, re-pointed at the control socket instead of
// the helper socket.
type Client struct {
	endpoint  string
	authToken string
}

// NewClient builds a Client bound to endpoint (a unix socket path, or
// on Windows a "host:port" TCP address).
func NewClient(endpoint, authToken string) *Client {
	return &Client{endpoint: endpoint, authToken: authToken}
}

func (c *Client) dial(ctx context.Context) (*ipc.Conn, error) {
	raw, err := ipc.DialEndpoint(ctx, c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("control: dial %s: %w", c.endpoint, err)
	}
	conn := ipc.NewConn(raw)

	if err := conn.SendTyped(uuid.NewString(), ipc.TypeAuthRequest, ipc.AuthRequest{
		ProtocolVersion: ipc.ProtocolVersion,
		Token:           c.authToken,
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("control: send auth request: %w", err)
	}
	env, err := conn.Recv()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("control: recv auth response: %w", err)
	}
	var resp ipc.AuthResponse
	if err := json.Unmarshal(env.Payload, &resp); err != nil {
		conn.Close()
		return nil, fmt.Errorf("control: unmarshal auth response: %w", err)
	}
	if !resp.Accepted {
		conn.Close()
		return nil, fmt.Errorf("control: auth rejected: %s", resp.Reason)
	}
	if resp.SessionKey != "" {
		conn.SetSessionKey([]byte(resp.SessionKey))
	}
	return conn, nil
}

func (c *Client) roundTrip(ctx context.Context, msgType string, payload any, reply any) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(DefaultTimeout))
	}

	id := uuid.NewString()
	if err := conn.SendTyped(id, msgType, payload); err != nil {
		return fmt.Errorf("control: send %s: %w", msgType, err)
	}
	env, err := conn.Recv()
	if err != nil {
		return fmt.Errorf("control: recv %s reply: %w", msgType, err)
	}
	if reply == nil {
		return nil
	}
	return json.Unmarshal(env.Payload, reply)
}

// Apply submits a display-configuration request to the daemon.
func (c *Client) Apply(ctx context.Context, p ApplyPayload) (Result, error) {
	var r Result
	if p.SessionFingerprint == "" {
		p.SessionFingerprint = uuid.NewString()
	}
	err := c.roundTrip(ctx, TypeApply, p, &r)
	return r, err
}

// Revert asks the daemon to restore the most recent armed snapshot.
func (c *Client) Revert(ctx context.Context) (Result, error) {
	var r Result
	err := c.roundTrip(ctx, TypeRevert, struct{}{}, &r)
	return r, err
}

// Disarm clears the armed-recovery flag without running a recovery.
func (c *Client) Disarm(ctx context.Context) (Result, error) {
	var r Result
	err := c.roundTrip(ctx, TypeDisarm, struct{}{}, &r)
	return r, err
}

// ExportGolden asks the daemon to capture the current display state
// into the Golden tier.
func (c *Client) ExportGolden(ctx context.Context, blacklist []string) (Result, error) {
	var r Result
	err := c.roundTrip(ctx, TypeExportGolden, BlacklistPayload{Blacklist: blacklist}, &r)
	return r, err
}

// SnapshotCurrent asks the daemon to rotate and capture a fresh Current
// snapshot.
func (c *Client) SnapshotCurrent(ctx context.Context, blacklist []string) (Result, error) {
	var r Result
	err := c.roundTrip(ctx, TypeSnapshotCurrent, BlacklistPayload{Blacklist: blacklist}, &r)
	return r, err
}

// Status queries the daemon's current state-machine snapshot.
func (c *Client) Status(ctx context.Context) (StatusResult, error) {
	var r StatusResult
	err := c.roundTrip(ctx, TypeStatus, struct{}{}, &r)
	return r, err
}
