package helperpipe

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"sync"
	"time"

	"github.com/vistadeck/hostd/internal/ipc"
	"github.com/vistadeck/hostd/internal/logging"
)

// ProcessManager owns the helper's process lifecycle and its single live
// Client connection, satisfying watchdog.Helper. Grounded on
// userhelper.Client's dial-then-authenticate sequence, extended with the
// process-start step the watchdog needs before it can dial at all.
type ProcessManager struct {
	binaryPath string
	socketPath string
	authToken  string
	binaryHash string
	startTimeout time.Duration

	mu     sync.Mutex
	client *Client
	cmd    *exec.Cmd
}

// NewProcessManager builds a ProcessManager. binaryPath is the helper
// executable to launch if it is not already running; socketPath is
// where it listens once started.
func NewProcessManager(binaryPath, socketPath, authToken, binaryHash string) *ProcessManager {
	return &ProcessManager{
		binaryPath:   binaryPath,
		socketPath:   socketPath,
		authToken:    authToken,
		binaryHash:   binaryHash,
		startTimeout: 10 * time.Second,
	}
}

func endpointDialer(socketPath string) Dialer {
	return func(ctx context.Context) (net.Conn, error) {
		return ipc.DialEndpoint(ctx, socketPath)
	}
}

// EnsureStarted launches the helper process if no live connection is
// held, then connects and authenticates. It is a no-op if a connection
// is already live; callers that suspect a stale connection must call
// ResetConnection first.
func (m *ProcessManager) EnsureStarted(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil && m.client.Connected() {
		return nil
	}

	if m.cmd == nil || m.cmd.ProcessState != nil {
		cmd := exec.CommandContext(context.Background(), m.binaryPath)
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("helperpipe: start helper process: %w", err)
		}
		m.cmd = cmd
	}

	client := NewClient(endpointDialer(m.socketPath), m.authToken, m.binaryHash)
	connectCtx, cancel := context.WithTimeout(ctx, m.startTimeout)
	defer cancel()

	if err := client.Connect(connectCtx); err != nil {
		return fmt.Errorf("helperpipe: connect after start: %w", err)
	}

	m.client = client
	return nil
}

// Ping delegates to the live client, returning false with no error if
// no connection is held.
func (m *ProcessManager) Ping(ctx context.Context) bool {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil {
		return false
	}
	return client.Ping(ctx)
}

// ResetConnection tears down the live connection so the next
// EnsureStarted call dials fresh. The helper process is left running;
// nothing in this package kills it.
func (m *ProcessManager) ResetConnection(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
}

// Client returns the current live client, or nil, for callers that need
// the richer Client API beyond watchdog.Helper's narrow surface.
func (m *ProcessManager) Client() *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client
}
