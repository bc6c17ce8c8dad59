//go:build windows

package main

import (
	"fmt"

	"golang.org/x/sys/windows/svc"

	"github.com/vistadeck/hostd/internal/logging"
)

// isWindowsService reports whether the process was started by the Windows
// Service Control Manager. Must be called early, before any console I/O.
func isWindowsService() bool {
	ok, err := svc.IsWindowsService()
	if err != nil {
		return false
	}
	return ok
}

// hostdService implements svc.Handler for the Windows SCM.
type hostdService struct {
	startFn func() (*daemonComponents, error)
}

// runAsService runs the daemon under the Windows Service Control Manager.
// startFn is called once the SCM has accepted the service start request; it
// must return the running components so they can be torn down on SCM stop.
func runAsService(startFn func() (*daemonComponents, error)) error {
	h := &hostdService{startFn: startFn}
	return svc.Run(windowsServiceName, h)
}

// Execute is the SCM callback. It reports StartPending, runs startFn, then
// blocks until the SCM sends Stop or Shutdown.
func (s *hostdService) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	const accepted = svc.AcceptStop | svc.AcceptShutdown

	changes <- svc.Status{State: svc.StartPending}

	comps, err := s.startFn()
	if err != nil {
		log.Error("daemon start failed", logging.KeyError, err.Error())
		changes <- svc.Status{State: svc.StopPending}
		return true, 1
	}

	changes <- svc.Status{State: svc.Running, Accepts: accepted}
	log.Info("hostd running as Windows service")

	for {
		cr := <-r
		switch cr.Cmd {
		case svc.Interrogate:
			changes <- cr.CurrentStatus
		case svc.Stop, svc.Shutdown:
			log.Info("SCM requested stop")
			changes <- svc.Status{State: svc.StopPending}
			shutdownDaemon(comps)
			return false, 0
		default:
			log.Warn(fmt.Sprintf("unexpected SCM control request #%d", cr.Cmd))
		}
	}
}
