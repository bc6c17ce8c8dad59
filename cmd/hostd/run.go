package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vistadeck/hostd/internal/clock"
	"github.com/vistadeck/hostd/internal/config"
	"github.com/vistadeck/hostd/internal/control"
	"github.com/vistadeck/hostd/internal/deferral"
	"github.com/vistadeck/hostd/internal/dispatcher"
	"github.com/vistadeck/hostd/internal/displaybackend"
	"github.com/vistadeck/hostd/internal/events"
	"github.com/vistadeck/hostd/internal/helperpipe"
	"github.com/vistadeck/hostd/internal/logging"
	"github.com/vistadeck/hostd/internal/policy"
	"github.com/vistadeck/hostd/internal/snapshot"
	"github.com/vistadeck/hostd/internal/statemachine"
	"github.com/vistadeck/hostd/internal/virtualdisplay"
	"github.com/vistadeck/hostd/internal/watchdog"
	"github.com/vistadeck/hostd/internal/workarounds"
	"github.com/vistadeck/hostd/internal/wsfeed"
)

// daemonComponents holds every long-running piece runDaemon starts, so
// shutdownDaemon can tear them down in reverse order. Grounded on the
// teacher's agentComponents/shutdownAgent pairing in cmd/breeze-agent.
type daemonComponents struct {
	cfg         *config.Config
	machine     *statemachine.Machine
	dispatcher  *dispatcher.Dispatcher
	watchdog    *watchdog.Watchdog
	helper      *helperpipe.ProcessManager
	deferral    *deferral.Manager
	control     *control.Server
	hub         *wsfeed.Hub
	statusSrv   *http.Server
	cancel      context.CancelFunc
	doneCh      chan struct{}
}

func sessionCounter(m *statemachine.Machine) watchdog.SessionCounter {
	return func() int {
		if m.State() != statemachine.Waiting {
			return 1
		}
		return 0
	}
}

// otherDevices enumerates the backend's currently connected devices for
// Machine.OtherDevices, the participant set compute_expected_topology
// needs beyond the request's primary (spec.md §3's VirtualLayout
// semantics). Enumerate is the same Port method ApplyTopology and
// SetDisplayOrigin already exercise elsewhere in the backend.
func otherDevices(backend displaybackend.Port) func() []displaybackend.DeviceID {
	return func() []displaybackend.DeviceID {
		devices, err := backend.Enumerate(context.Background(), displaybackend.DetailBasic)
		if err != nil {
			log.Warn("enumerate devices for apply topology failed", logging.KeyError, err.Error())
			return nil
		}
		ids := make([]displaybackend.DeviceID, 0, len(devices))
		for _, d := range devices {
			if d.Connected {
				ids = append(ids, d.ID)
			}
		}
		return ids
	}
}

// availableDevices enumerates the backend's connected devices for
// Machine.AvailableDevices, the set operations.Recovery gates snapshot
// tiers against (a tier naming a device absent from this set is marked
// MissingDevices and skipped per spec.md §4.7).
func availableDevices(backend displaybackend.Port) func() map[displaybackend.DeviceID]bool {
	return func() map[displaybackend.DeviceID]bool {
		devices, err := backend.Enumerate(context.Background(), displaybackend.DetailBasic)
		if err != nil {
			log.Warn("enumerate devices for recovery availability failed", logging.KeyError, err.Error())
			return map[displaybackend.DeviceID]bool{}
		}
		out := make(map[displaybackend.DeviceID]bool, len(devices))
		for _, d := range devices {
			out[d.ID] = d.Connected
		}
		return out
	}
}

// runDaemon wires up every C1-C12 component per the running daemon's
// startup sequence and blocks until a signal or a state-machine Exit
// signal requests shutdown, mirroring runAgent's signal-based
// graceful-shutdown pattern.
func runDaemon() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	var logOutput *os.File
	if cfg.LogFile != "" {
		f, ferr := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if ferr == nil {
			logOutput = f
		}
	}
	if logOutput != nil {
		logging.Init(cfg.LogFormat, cfg.LogLevel, logOutput)
		defer logOutput.Close()
	} else {
		logging.Init(cfg.LogFormat, cfg.LogLevel, os.Stdout)
	}

	comps, err := startDaemon(cfg)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "signal", sig.String())
	case <-comps.doneCh:
		log.Info("state machine requested exit")
	}

	shutdownDaemon(comps)
	return nil
}

// startDaemon builds and starts every component, returning once the
// control socket is accepting connections. Split out from runDaemon so
// the Windows service handler (service_windows.go) can call it without
// going through cobra's Run path.
func startDaemon(cfg *config.Config) (*daemonComponents, error) {
	exePath, err := os.Executable()
	if err != nil {
		exePath = "hostd"
	}

	backend := displaybackend.NewFake()
	vd := virtualdisplay.NewFake(displaybackend.DeviceID("virtual-0"))
	wa := workarounds.New()

	if err := os.MkdirAll(cfg.SnapshotDir, 0700); err != nil {
		return nil, err
	}
	ledger := snapshot.NewLedger(cfg.SnapshotDir, cfg.PreferGoldenFirst)
	pol := policy.New(clock.Real)
	disp := dispatcher.New(backend, vd, clock.Real, ledger)

	revertCommand := []string{exePath, "revert"}
	machine := statemachine.New(backend, wa, disp, ledger, pol, clock.Real, revertCommand)
	machine.OtherDevices = otherDevices(backend)
	machine.AvailableDevices = availableDevices(backend)

	helperMgr := helperpipe.NewProcessManager(cfg.HelperBinaryPath, cfg.HelperSocketPath, cfg.HelperAuthToken, cfg.HelperBinaryHash)
	wd := watchdog.New(helperMgr, sessionCounter(machine), func() bool { return cfg.HelperEnabled })

	defMgr := deferral.New(clock.Real)

	hub := wsfeed.NewHub()

	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})

	go machine.Run(ctx)
	go wd.Start(ctx)
	go hub.Run(ctx, machine.Signals())
	go watchHeartbeat(ctx, machine, wd, time.Duration(cfg.HeartbeatTimeoutSec)*time.Second)
	go watchDisconnect(ctx, machine, wd, helperMgr, time.Duration(cfg.DisconnectGraceSec)*time.Second)
	go watchDisplayEvents(ctx, machine, backend, time.Duration(cfg.DisplayDebounceMs)*time.Millisecond)
	go watchExit(ctx, machine, doneCh)
	go watchDeferral(ctx, machine, defMgr)

	ctlServer := control.NewServer(machine, defMgr, wd, cfg.ControlAuthToken)
	go func() {
		if err := ctlServer.Serve(ctx, cfg.ControlSocketPath); err != nil {
			log.Error("control server stopped", logging.KeyError, err.Error())
		}
	}()

	var statusSrv *http.Server
	if cfg.StatusListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/status", hub)
		statusSrv = &http.Server{Addr: cfg.StatusListenAddr, Handler: mux}
		go func() {
			if err := statusSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("status server stopped", logging.KeyError, err.Error())
			}
		}()
	}

	log.Info("hostd daemon started", "controlSocket", cfg.ControlSocketPath)

	return &daemonComponents{
		cfg:        cfg,
		machine:    machine,
		dispatcher: disp,
		watchdog:   wd,
		helper:     helperMgr,
		deferral:   defMgr,
		control:    ctlServer,
		hub:        hub,
		statusSrv:  statusSrv,
		cancel:     cancel,
		doneCh:     doneCh,
	}, nil
}

// shutdownDaemon tears down comps in reverse order of construction.
func shutdownDaemon(comps *daemonComponents) {
	if comps.statusSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		comps.statusSrv.Shutdown(shutdownCtx)
		cancel()
	}
	comps.control.Close()
	comps.watchdog.Stop()
	comps.cancel()
}

// watchExit observes the machine's Exit signal and closes doneCh once,
// the same role cmd/breeze-agent's signal channel plays for an
// operator-initiated shutdown, here triggered from inside the core
// instead (spec.md §4.10's validated-recovery Exit(0)).
func watchExit(ctx context.Context, m *statemachine.Machine, doneCh chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-m.Signals():
			if !ok {
				return
			}
			if sig.Kind == statemachine.ExitSignal {
				close(doneCh)
				return
			}
		}
	}
}

// watchDeferral polls the deferral manager and submits a deferred
// Apply once it reports Ready. The session-readiness signal itself
// comes from the RTSP launch-session producer, an external
// collaborator referenced only by interface (spec.md §1); until that
// collaborator is wired in, every poll treats the held session as
// ready, so a Pending becomes Ready purely on the §4.11 settle delay.
func watchDeferral(ctx context.Context, m *statemachine.Machine, mgr *deferral.Manager) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !mgr.HasPending() {
				continue
			}
			outcome, pending := mgr.TakeReady(true)
			if outcome == deferral.Ready && pending != nil {
				m.SubmitApply(pending.Request)
			}
		}
	}
}

// watchHeartbeat arms the heartbeat monitor whenever the watchdog
// reports the helper alive, and submits a timeout event to the state
// machine when it elapses without a fresh arm. The real per-tick
// liveness signal the monitor tracks comes from the watchdog, per
// SPEC_FULL.md's mapping of the teacher's ticker-loop idiom onto C9's
// heartbeat monitor.
func watchHeartbeat(ctx context.Context, m *statemachine.Machine, wd *watchdog.Watchdog, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	monitor := events.NewHeartbeatMonitor(clock.Real, timeout)
	ticker := time.NewTicker(timeout / 3)
	defer ticker.Stop()
	armed := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if wd.Ready() {
				monitor.Arm()
				armed = true
			}
			if armed && monitor.CheckTimeout() {
				m.SubmitHeartbeatTimeout()
			}
		}
	}
}

// watchDisconnect drives C9's ReconnectController off the watchdog's
// helper-liveness signal, the closest in-process proxy this daemon has
// to "the session's helper link is up" until the RTSP launch-session
// producer (spec.md §1, external collaborator referenced only by
// interface) is wired in. A sustained gap in that signal past the
// disconnect-grace window submits a Revert, per spec.md §4.12's
// primary session-end restore trigger; a failed ping also marks the
// pipe broken so the next reconnect forces a fresh connection instead
// of reusing a stale one.
func watchDisconnect(ctx context.Context, m *statemachine.Machine, wd *watchdog.Watchdog, helperMgr *helperpipe.ProcessManager, grace time.Duration) {
	if grace <= 0 {
		return
	}
	ctrl := events.NewReconnectController(clock.Real, grace)
	ticker := time.NewTicker(grace / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			connected := wd.Ready()
			if !connected {
				ctrl.OnBroken()
			}
			if ctrl.UpdateConnection(connected) {
				m.SubmitRevert()
			}
			if ctrl.ShouldRestartPipe() {
				helperMgr.ResetConnection(ctx)
			}
		}
	}
}

// watchDisplayEvents polls the backend's live topology and feeds a
// change into C9's Debounce whenever it differs from the last observed
// topology, submitting at most one DisplayChange per debounce window
// (spec.md §4.1/§8 property 7). The real OS display-change
// notification stream is an external collaborator referenced only by
// interface (spec.md §1); polling CaptureTopology through the same
// backend.Port Apply and Recovery already use is the closest in-process
// stand-in until that collaborator exists.
func watchDisplayEvents(ctx context.Context, m *statemachine.Machine, backend displaybackend.Port, window time.Duration) {
	if window <= 0 {
		return
	}
	debounce := events.NewDebounce(clock.Real, window)
	ticker := time.NewTicker(window / 3)
	defer ticker.Stop()

	last, err := backend.CaptureTopology(ctx)
	if err != nil {
		log.Warn("initial topology capture failed", logging.KeyError, err.Error())
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current, err := backend.CaptureTopology(ctx)
			if err != nil {
				log.Warn("topology capture failed", logging.KeyError, err.Error())
				continue
			}
			if !displaybackend.IsTopologySame(last, current) {
				last = current
				debounce.Notify()
			}
			if debounce.ShouldFire() {
				m.SubmitDisplayChange()
			}
		}
	}
}
