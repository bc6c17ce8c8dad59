// Package virtualdisplay defines the Port to the virtual display driver
// (C3): a small sealed interface for enabling, disabling, and probing
// the synthetic display device the control plane projects the stream
// onto. The driver itself (a kernel-mode or user-mode indirect display
// driver) is out of scope; this package only models the control
// surface and ships an in-memory Fake for tests.
package virtualdisplay

import (
	"context"

	"github.com/vistadeck/hostd/internal/displaybackend"
)

// Port is the control surface for the virtual display device.
type Port interface {
	// Enable turns the virtual display on, if it is not already.
	Enable(ctx context.Context) error

	// Disable turns the virtual display off, if it is currently on.
	Disable(ctx context.Context) error

	// Available reports whether the virtual display driver is installed
	// and ready to be enabled (distinct from whether it is currently on).
	Available(ctx context.Context) (bool, error)

	// Enabled reports whether the virtual display is currently on.
	Enabled(ctx context.Context) (bool, error)

	// DeviceID returns the stable device id the virtual display
	// presents once enabled. Returns ok=false if it is not currently
	// enumerable (e.g. disabled or driver absent).
	DeviceID(ctx context.Context) (id displaybackend.DeviceID, ok bool, err error)
}

// Fake is an in-memory Port for tests.
type Fake struct {
	enabled   bool
	available bool
	id        displaybackend.DeviceID

	FailEnable  error
	FailDisable error

	EnableCalls  int
	DisableCalls int
}

// NewFake builds a Fake whose driver is available and whose device id
// will be reported once enabled.
func NewFake(id displaybackend.DeviceID) *Fake {
	return &Fake{available: true, id: id}
}

func (f *Fake) Enable(ctx context.Context) error {
	f.EnableCalls++
	if f.FailEnable != nil {
		err := f.FailEnable
		f.FailEnable = nil
		return err
	}
	f.enabled = true
	return nil
}

func (f *Fake) Disable(ctx context.Context) error {
	f.DisableCalls++
	if f.FailDisable != nil {
		err := f.FailDisable
		f.FailDisable = nil
		return err
	}
	f.enabled = false
	return nil
}

func (f *Fake) Available(ctx context.Context) (bool, error) {
	return f.available, nil
}

func (f *Fake) Enabled(ctx context.Context) (bool, error) {
	return f.enabled, nil
}

func (f *Fake) DeviceID(ctx context.Context) (displaybackend.DeviceID, bool, error) {
	if !f.enabled {
		return "", false, nil
	}
	return f.id, true, nil
}

// SetAvailable lets tests simulate the driver being uninstalled.
func (f *Fake) SetAvailable(available bool) {
	f.available = available
}

var _ Port = (*Fake)(nil)
