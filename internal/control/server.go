package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/vistadeck/hostd/internal/displaybackend"
	"github.com/vistadeck/hostd/internal/ipc"
	"github.com/vistadeck/hostd/internal/logging"
	"github.com/vistadeck/hostd/internal/operations"
	"github.com/vistadeck/hostd/internal/statemachine"
	"github.com/vistadeck/hostd/internal/watchdog"
)

var log = logging.L("control")

const (
	// rateLimitAttempts is the max auth attempts per peer identity per
	// rateLimitWindow, matching the teacher's sessionbroker.RateLimitAttempts.
	rateLimitAttempts = 5

	// rateLimitWindow is the sliding window rateLimitAttempts is measured
	// over, matching the teacher's sessionbroker.RateLimitWindow.
	rateLimitWindow = 60 * time.Second
)

// Machine is the subset of *statemachine.Machine the server drives.
// Named so tests can substitute a stub without pulling in the full
// dispatcher/operations wiring.
type Machine interface {
	SubmitApply(req operations.Request)
	SubmitRevert()
	SubmitDisarm()
	SubmitExportGolden(ctx context.Context, blacklist map[displaybackend.DeviceID]bool) error
	SubmitSnapshotCurrent(ctx context.Context, blacklist map[displaybackend.DeviceID]bool) error
	State() statemachine.State
	RecoveryArmed() bool
	CurrentGeneration() uint64
}

// Deferral is the subset of *deferral.Manager the status query reads.
type Deferral interface {
	HasPending() bool
}

// Server listens on a local control endpoint and answers the cobra CLI
// subcommands (apply/revert/disarm/export-golden/snapshot-current/
// status), each one round-trip per connection. Grounded on
// internal/helperpipe.Client's auth-then-roundtrip shape, turned inside
// out into an accept loop the way internal/wsfeed.Hub wraps
// gorilla/websocket's upgrade-then-serve.
type Server struct {
	machine  Machine
	deferral Deferral
	watchdog *watchdog.Watchdog
	authToken string

	rateLimiter *ipc.RateLimiter

	listener net.Listener
}

// NewServer builds a Server bound to nothing yet; call Serve to start
// accepting connections.
func NewServer(machine Machine, deferralMgr Deferral, wd *watchdog.Watchdog, authToken string) *Server {
	return &Server{
		machine:     machine,
		deferral:    deferralMgr,
		watchdog:    wd,
		authToken:   authToken,
		rateLimiter: ipc.NewRateLimiter(rateLimitAttempts, rateLimitWindow),
	}
}

// Serve listens on endpoint (a unix socket path, or on Windows a
// "host:port" TCP address per ipc.EndpointNetwork) and accepts
// connections until ctx is cancelled or the listener is closed.
func (s *Server) Serve(ctx context.Context, endpoint string) error {
	ln, err := ipc.ListenEndpoint(endpoint)
	if err != nil {
		return fmt.Errorf("control: listen %s: %w", endpoint, err)
	}
	s.listener = ln

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		raw, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("control: accept: %w", err)
		}
		go s.handleConn(ctx, raw)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleConn(ctx context.Context, raw net.Conn) {
	defer raw.Close()

	if !s.checkRateLimit(raw) {
		return
	}

	conn := ipc.NewConn(raw)

	if !s.authenticate(conn) {
		return
	}

	env, err := conn.Recv()
	if err != nil {
		log.Warn("control: recv request failed", logging.KeyError, err.Error())
		return
	}

	s.dispatch(ctx, conn, env)
}

// checkRateLimit mirrors the teacher's sessionbroker.handleConnection
// steps 1-2: resolve the kernel-verified peer UID and gate the
// handshake with the rate limiter before a single byte of the auth
// request is read, so a flood of connection attempts from one peer
// never reaches JSON decoding. A loopback connection whose peer
// credentials can't be resolved (the Windows control transport is
// plain TCP, not the named pipe auth_windows.go's GetPeerCredentials
// expects) degrades to a shared bucket rather than rejecting the
// connection outright, since there is no OS-level identity to key on
// in that case.
func (s *Server) checkRateLimit(raw net.Conn) bool {
	const unknownPeerUID = 0

	uid := uint32(unknownPeerUID)
	if creds, err := ipc.GetPeerCredentials(raw); err != nil {
		log.Debug("control: peer credential check unavailable", logging.KeyError, err.Error())
	} else {
		uid = creds.UID
	}

	if !s.rateLimiter.Allow(uid) {
		log.Warn("control: connection rate limited", "uid", uid)
		return false
	}
	return true
}

func (s *Server) authenticate(conn *ipc.Conn) bool {
	env, err := conn.Recv()
	if err != nil {
		log.Warn("control: recv auth request failed", logging.KeyError, err.Error())
		return false
	}
	var req ipc.AuthRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		log.Warn("control: unmarshal auth request failed", logging.KeyError, err.Error())
		return false
	}

	accepted := s.authToken == "" || req.Token == s.authToken
	resp := ipc.AuthResponse{Accepted: accepted}
	if !accepted {
		resp.Reason = "invalid token"
	}
	var sessionKey []byte
	if accepted {
		sessionKey, _ = ipc.GenerateSessionKey()
		resp.SessionKey = string(sessionKey)
	}
	if err := conn.SendTyped(uuid.NewString(), ipc.TypeAuthResponse, resp); err != nil {
		log.Warn("control: send auth response failed", logging.KeyError, err.Error())
		return false
	}
	if accepted && len(sessionKey) > 0 {
		conn.SetSessionKey(sessionKey)
	}
	return accepted
}

func (s *Server) dispatch(ctx context.Context, conn *ipc.Conn, env *ipc.Envelope) {
	id := env.ID
	switch env.Type {
	case TypeApply:
		var p ApplyPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			s.sendResult(conn, id, Result{OK: false, Error: err.Error()})
			return
		}
		req, err := requestFromPayload(p)
		if err != nil {
			s.sendResult(conn, id, Result{OK: false, Error: err.Error()})
			return
		}
		s.machine.SubmitApply(req)
		s.sendResult(conn, id, Result{OK: true, Status: "submitted"})

	case TypeRevert:
		s.machine.SubmitRevert()
		s.sendResult(conn, id, Result{OK: true, Status: "submitted"})

	case TypeDisarm:
		s.machine.SubmitDisarm()
		s.sendResult(conn, id, Result{OK: true, Status: "submitted"})

	case TypeExportGolden:
		var p BlacklistPayload
		_ = json.Unmarshal(env.Payload, &p)
		err := s.machine.SubmitExportGolden(ctx, blacklistSet(p.Blacklist))
		s.sendResult(conn, id, resultFromErr(err))

	case TypeSnapshotCurrent:
		var p BlacklistPayload
		_ = json.Unmarshal(env.Payload, &p)
		err := s.machine.SubmitSnapshotCurrent(ctx, blacklistSet(p.Blacklist))
		s.sendResult(conn, id, resultFromErr(err))

	case TypeStatus:
		watchdogReady := s.watchdog != nil && s.watchdog.Ready()
		sr := StatusResult{
			State:         s.machine.State().String(),
			RecoveryArmed: s.machine.RecoveryArmed(),
			Generation:    s.machine.CurrentGeneration(),
			HasPending:    s.deferral != nil && s.deferral.HasPending(),
			WatchdogReady: watchdogReady,
		}
		if err := conn.SendTyped(id, TypeStatusResult, sr); err != nil {
			log.Warn("control: send status result failed", logging.KeyError, err.Error())
		}

	default:
		s.sendResult(conn, id, Result{OK: false, Error: fmt.Sprintf("unknown command %q", env.Type)})
	}
}

func (s *Server) sendResult(conn *ipc.Conn, id string, r Result) {
	if err := conn.SendTyped(id, TypeResult, r); err != nil {
		log.Warn("control: send result failed", logging.KeyError, err.Error())
	}
}

func resultFromErr(err error) Result {
	if err != nil {
		return Result{OK: false, Error: err.Error()}
	}
	return Result{OK: true}
}

func blacklistSet(ids []string) map[displaybackend.DeviceID]bool {
	out := make(map[displaybackend.DeviceID]bool, len(ids))
	for _, id := range ids {
		out[displaybackend.DeviceID(id)] = true
	}
	return out
}

func requestFromPayload(p ApplyPayload) (operations.Request, error) {
	if p.PrimaryDeviceID == "" {
		return operations.Request{}, fmt.Errorf("control: primaryDeviceId is required")
	}

	cfg := displaybackend.SingleDisplayConfiguration{
		Primary:       displaybackend.DeviceID(p.PrimaryDeviceID),
		Preparation:   preparationFromString(p.Preparation),
		VirtualLayout: displaybackend.VirtualLayout(p.VirtualLayout),
	}
	if p.DesiredMode != nil {
		mode := displaybackend.Mode{
			Width:      p.DesiredMode.Width,
			Height:     p.DesiredMode.Height,
			RefreshNum: p.DesiredMode.RefreshNum,
			RefreshDen: p.DesiredMode.RefreshDen,
		}
		cfg.DesiredMode = &mode
	}
	if p.DesiredHDR != "" {
		hdr := displaybackend.ParseHDRState(p.DesiredHDR)
		cfg.DesiredHDR = &hdr
	}

	req := operations.Request{
		Configuration:      cfg,
		VirtualLayout:       cfg.VirtualLayout,
		SessionFingerprint: p.SessionFingerprint,
	}
	if req.SessionFingerprint == "" {
		// A fingerprint is required to correlate this apply with a
		// deferred/replayed session (spec.md §4.11); the CLI normally
		// supplies one, but generate a fresh one rather than reject the
		// request outright for ad hoc `hostd apply` invocations.
		req.SessionFingerprint = uuid.NewString()
	}
	if p.TopologyOverride != nil {
		t := topologyFromPayload(*p.TopologyOverride)
		req.TopologyOverride = &t
	}
	return req, nil
}

func topologyFromPayload(p TopologyPayload) displaybackend.Topology {
	groups := make([][]displaybackend.DeviceID, len(p.Groups))
	for i, g := range p.Groups {
		ids := make([]displaybackend.DeviceID, len(g))
		for j, id := range g {
			ids[j] = displaybackend.DeviceID(id)
		}
		groups[i] = ids
	}
	return displaybackend.Topology{Groups: groups}
}

func preparationFromString(s string) displaybackend.DevicePreparation {
	switch s {
	case "ensure_active":
		return displaybackend.EnsureActive
	case "ensure_only_display":
		return displaybackend.EnsureOnlyDisplay
	case "ensure_primary":
		return displaybackend.EnsurePrimary
	default:
		return displaybackend.VerifyOnly
	}
}
