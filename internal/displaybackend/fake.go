package displaybackend

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Port used by every other package's tests. It
// models just enough OS behavior to exercise the control plane's
// sequencing: connected devices, per-device mode/HDR, topology, and an
// optional injected failure for the next call of a given kind.
type Fake struct {
	mu sync.Mutex

	devices map[DeviceID]EnumeratedDevice
	modes   map[DeviceID]Mode
	hdr     map[DeviceID]HDRState
	origin  map[DeviceID]Point
	topo    Topology
	primary *DeviceID

	// FailNext, when set, is returned (and cleared) on the next call to
	// the method of the same name.
	FailNext map[string]error

	// Calls records method names in invocation order, for assertions.
	Calls []string
}

// NewFake builds a Fake with the given connected devices pre-registered
// in an unconfigured (zero-value mode/HDR-unknown) state.
func NewFake(ids ...DeviceID) *Fake {
	f := &Fake{
		devices:  make(map[DeviceID]EnumeratedDevice),
		modes:    make(map[DeviceID]Mode),
		hdr:      make(map[DeviceID]HDRState),
		origin:   make(map[DeviceID]Point),
		FailNext: make(map[string]error),
	}
	for _, id := range ids {
		f.devices[id] = EnumeratedDevice{ID: id, Name: string(id), Connected: true}
		f.hdr[id] = HDRUnknown
	}
	return f
}

func (f *Fake) takeFailure(name string) error {
	if err, ok := f.FailNext[name]; ok {
		delete(f.FailNext, name)
		return err
	}
	return nil
}

// SetConnected marks a device connected/disconnected, as if the user
// had plugged or unplugged it.
func (f *Fake) SetConnected(id DeviceID, connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.devices[id]
	d.ID = id
	if d.Name == "" {
		d.Name = string(id)
	}
	d.Connected = connected
	f.devices[id] = d
}

func (f *Fake) Apply(ctx context.Context, cfg SingleDisplayConfiguration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "Apply")
	if err := f.takeFailure("Apply"); err != nil {
		return err
	}
	if d, ok := f.devices[cfg.Primary]; !ok || !d.Connected {
		return fmt.Errorf("displaybackend: device %q not connected", cfg.Primary)
	}
	if cfg.DesiredMode != nil {
		f.modes[cfg.Primary] = *cfg.DesiredMode
	}
	if cfg.DesiredHDR != nil {
		f.hdr[cfg.Primary] = *cfg.DesiredHDR
	}
	if cfg.Preparation == EnsurePrimary {
		id := cfg.Primary
		f.primary = &id
	}
	// A real adapter's single-call SetDisplayConfig-style apply also
	// establishes topology as a side effect for any preparation beyond
	// a bare verify; model that here so CaptureTopology reflects what
	// Apply just did instead of requiring a separate ApplyTopology call.
	if cfg.Preparation != VerifyOnly {
		f.topo = Topology{Groups: [][]DeviceID{{cfg.Primary}}}
	}
	return nil
}

func (f *Fake) ApplyTopology(ctx context.Context, t Topology) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "ApplyTopology")
	if err := f.takeFailure("ApplyTopology"); err != nil {
		return err
	}
	for _, id := range t.DeviceIDs() {
		if d, ok := f.devices[id]; !ok || !d.Connected {
			return fmt.Errorf("displaybackend: device %q not connected", id)
		}
	}
	f.topo = t
	return nil
}

func (f *Fake) Enumerate(ctx context.Context, detail EnumerationDetail) ([]EnumeratedDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "Enumerate")
	if err := f.takeFailure("Enumerate"); err != nil {
		return nil, err
	}
	out := make([]EnumeratedDevice, 0, len(f.devices))
	for _, d := range f.devices {
		out = append(out, d)
	}
	return out, nil
}

func (f *Fake) CaptureTopology(ctx context.Context) (Topology, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "CaptureTopology")
	if err := f.takeFailure("CaptureTopology"); err != nil {
		return Topology{}, err
	}
	return f.topo, nil
}

func (f *Fake) ValidateTopology(ctx context.Context, t Topology) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "ValidateTopology")
	if err := f.takeFailure("ValidateTopology"); err != nil {
		return err
	}
	for _, id := range t.DeviceIDs() {
		if d, ok := f.devices[id]; !ok || !d.Connected {
			return fmt.Errorf("displaybackend: device %q not connected", id)
		}
	}
	return nil
}

func (f *Fake) CaptureSnapshot(ctx context.Context) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "CaptureSnapshot")
	if err := f.takeFailure("CaptureSnapshot"); err != nil {
		return Snapshot{}, err
	}
	s := Snapshot{
		Topology:  f.topo,
		Modes:     make(map[DeviceID]Mode),
		HDRStates: make(map[DeviceID]HDRState),
	}
	for _, id := range f.topo.DeviceIDs() {
		s.Modes[id] = f.modes[id]
		s.HDRStates[id] = f.hdr[id]
	}
	if f.primary != nil {
		id := *f.primary
		s.PrimaryDevice = &id
	}
	return s, nil
}

func (f *Fake) ApplySnapshot(ctx context.Context, s Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "ApplySnapshot")
	if err := f.takeFailure("ApplySnapshot"); err != nil {
		return err
	}
	for _, id := range s.Topology.DeviceIDs() {
		if d, ok := f.devices[id]; !ok || !d.Connected {
			return fmt.Errorf("displaybackend: device %q not connected", id)
		}
	}
	f.topo = s.Topology
	for id, m := range s.Modes {
		f.modes[id] = m
	}
	for id, h := range s.HDRStates {
		f.hdr[id] = h
	}
	if s.PrimaryDevice != nil {
		id := *s.PrimaryDevice
		f.primary = &id
	} else {
		f.primary = nil
	}
	return nil
}

func (f *Fake) SnapshotMatchesCurrent(ctx context.Context, s Snapshot) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "SnapshotMatchesCurrent")
	if err := f.takeFailure("SnapshotMatchesCurrent"); err != nil {
		return false, err
	}
	if !s.Topology.Equal(f.topo) {
		return false, nil
	}
	for id, m := range s.Modes {
		if f.modes[id] != m {
			return false, nil
		}
	}
	for id, h := range s.HDRStates {
		if f.hdr[id] != h {
			return false, nil
		}
	}
	if (s.PrimaryDevice == nil) != (f.primary == nil) {
		return false, nil
	}
	if s.PrimaryDevice != nil && f.primary != nil && *s.PrimaryDevice != *f.primary {
		return false, nil
	}
	return true, nil
}

func (f *Fake) ConfigurationMatches(ctx context.Context, id DeviceID, cfg SingleDisplayConfiguration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "ConfigurationMatches")
	if err := f.takeFailure("ConfigurationMatches"); err != nil {
		return false, err
	}
	if cfg.DesiredMode != nil && f.modes[id] != *cfg.DesiredMode {
		return false, nil
	}
	if cfg.DesiredHDR != nil && f.hdr[id] != *cfg.DesiredHDR {
		return false, nil
	}
	if cfg.Preparation == EnsurePrimary {
		if f.primary == nil || *f.primary != id {
			return false, nil
		}
	}
	return true, nil
}

func (f *Fake) SetDisplayOrigin(ctx context.Context, id DeviceID, p Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "SetDisplayOrigin")
	if err := f.takeFailure("SetDisplayOrigin"); err != nil {
		return err
	}
	f.origin[id] = p
	return nil
}

var _ Port = (*Fake)(nil)
