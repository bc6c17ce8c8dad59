// Package displaybackend defines the data model (§3) and the Port (§4.2)
// the control plane uses to talk to the OS display-configuration layer.
// The OS syscalls themselves are out of scope (spec.md §1): this package
// only defines the interface and an in-memory Fake used by every other
// package's tests.
package displaybackend

import "fmt"

// DeviceID is an opaque stable string assigned by the OS enumeration.
type DeviceID string

// Mode is a display mode: resolution plus refresh rate expressed as a
// rational (numerator/denominator), matching how Windows/macOS/Linux
// compositors all report a non-integer refresh rate (e.g. 59.94 Hz).
type Mode struct {
	Width         int
	Height        int
	RefreshNum    int
	RefreshDen    int
}

// RefreshMillihertz returns the refresh rate in millihertz, rounding to
// the nearest integer. Den of 0 is treated as 1 (whole-number refresh).
func (m Mode) RefreshMillihertz() int {
	den := m.RefreshDen
	if den == 0 {
		den = 1
	}
	return (m.RefreshNum*1000 + den/2) / den
}

// HDRState mirrors spec.md §3: Unknown/Enabled/Disabled.
type HDRState int

const (
	HDRUnknown HDRState = iota
	HDREnabled
	HDRDisabled
)

func (s HDRState) String() string {
	switch s {
	case HDREnabled:
		return "enabled"
	case HDRDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// ParseHDRState parses the serialized form used by the snapshot file
// format (§6): "enabled" | "disabled" | "" (unknown/null).
func ParseHDRState(s string) HDRState {
	switch s {
	case "enabled":
		return HDREnabled
	case "disabled":
		return HDRDisabled
	default:
		return HDRUnknown
	}
}

// Point is an integer (x,y) display origin in the virtual desktop.
type Point struct {
	X int
	Y int
}

// Topology is an ordered sequence of groups; each group is an ordered
// non-empty sequence of device ids. Devices within a group are mirrored
// (duplicated); order across groups is layout order.
type Topology struct {
	Groups [][]DeviceID
}

// Equal implements spec.md §3's equality: multiset-of-groups, where each
// group's *member order* matters but the order of groups themselves does
// not (two topologies that duplicate the same sets in a different
// left-to-right order are still the same topology).
func (t Topology) Equal(o Topology) bool {
	if len(t.Groups) != len(o.Groups) {
		return false
	}
	used := make([]bool, len(o.Groups))
	for _, g := range t.Groups {
		found := false
		for i, og := range o.Groups {
			if used[i] {
				continue
			}
			if groupEqual(g, og) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func groupEqual(a, b []DeviceID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DeviceIDs returns every device id referenced anywhere in the topology,
// in first-seen order.
func (t Topology) DeviceIDs() []DeviceID {
	var out []DeviceID
	seen := make(map[DeviceID]bool)
	for _, g := range t.Groups {
		for _, id := range g {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// Empty reports whether the topology has no devices at all.
func (t Topology) Empty() bool {
	for _, g := range t.Groups {
		if len(g) > 0 {
			return false
		}
		_ = g
	}
	return len(t.DeviceIDs()) == 0
}

// DevicePreparation is the enum from spec.md §3.
type DevicePreparation int

const (
	VerifyOnly DevicePreparation = iota
	EnsureActive
	EnsureOnlyDisplay
	EnsurePrimary
)

// VirtualLayout names the virtual-display layout tags from spec.md §3.
type VirtualLayout string

const (
	LayoutNone                    VirtualLayout = ""
	LayoutExclusive               VirtualLayout = "exclusive"
	LayoutExtended                VirtualLayout = "extended"
	LayoutExtendedPrimary         VirtualLayout = "extended_primary"
	LayoutExtendedIsolated        VirtualLayout = "extended_isolated"
	LayoutExtendedPrimaryIsolated VirtualLayout = "extended_primary_isolated"
)

// SingleDisplayConfiguration is the target intent passed into Apply.
type SingleDisplayConfiguration struct {
	Primary       DeviceID
	DesiredMode   *Mode
	DesiredHDR    *HDRState
	Preparation   DevicePreparation
	VirtualLayout VirtualLayout
}

// Snapshot is the persisted capture of display state (§3). The
// invariant enforced by Validate: every id in Topology has
// entries in both Modes and HDRStates, and PrimaryDevice (if set)
// appears in Topology.
type Snapshot struct {
	Topology      Topology
	Modes         map[DeviceID]Mode
	HDRStates     map[DeviceID]HDRState
	PrimaryDevice *DeviceID
}

// Validate checks the §3 Snapshot invariant.
func (s Snapshot) Validate() error {
	for _, id := range s.Topology.DeviceIDs() {
		if _, ok := s.Modes[id]; !ok {
			return fmt.Errorf("displaybackend: snapshot missing mode for device %q", id)
		}
		if _, ok := s.HDRStates[id]; !ok {
			return fmt.Errorf("displaybackend: snapshot missing hdr state for device %q", id)
		}
	}
	if s.PrimaryDevice != nil {
		found := false
		for _, id := range s.Topology.DeviceIDs() {
			if id == *s.PrimaryDevice {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("displaybackend: primary device %q not present in topology", *s.PrimaryDevice)
		}
	}
	return nil
}

// Clone deep-copies a Snapshot so callers can mutate the copy (e.g. to
// filter a blacklist) without aliasing the original's maps/slices.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Modes:     make(map[DeviceID]Mode, len(s.Modes)),
		HDRStates: make(map[DeviceID]HDRState, len(s.HDRStates)),
	}
	for _, g := range s.Topology.Groups {
		ng := make([]DeviceID, len(g))
		copy(ng, g)
		out.Topology.Groups = append(out.Topology.Groups, ng)
	}
	for k, v := range s.Modes {
		out.Modes[k] = v
	}
	for k, v := range s.HDRStates {
		out.HDRStates[k] = v
	}
	if s.PrimaryDevice != nil {
		id := *s.PrimaryDevice
		out.PrimaryDevice = &id
	}
	return out
}

// EnumeratedDevice describes one device returned by Enumerate.
type EnumeratedDevice struct {
	ID        DeviceID
	Name      string
	Connected bool
}

// EnumerationDetail controls how much detail Enumerate returns; kept as
// an opaque int so adapters can add detail levels without breaking the
// port's signature.
type EnumerationDetail int

const (
	DetailBasic EnumerationDetail = iota
	DetailFull
)
