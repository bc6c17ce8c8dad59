package displaybackend

import "context"

// Port is the seam between the control plane and the OS's real display
// configuration surface (Windows CCD API, macOS CoreGraphics, the Linux
// compositor's randr-equivalent). Every operation the higher components
// (operations, dispatcher) perform against "the display" goes through
// this interface, never a concrete OS call, so tests run against Fake
// and a real per-OS adapter can be dropped in behind a build tag later
// without touching any other package.
type Port interface {
	// Apply configures a single target device per cfg. It does not touch
	// any other device's state.
	Apply(ctx context.Context, cfg SingleDisplayConfiguration) error

	// ApplyTopology arranges every device named in t into the requested
	// groups (mirror within a group, extend across groups).
	ApplyTopology(ctx context.Context, t Topology) error

	// Enumerate lists every device currently known to the OS.
	Enumerate(ctx context.Context, detail EnumerationDetail) ([]EnumeratedDevice, error)

	// CaptureTopology reads back the OS's current group arrangement.
	CaptureTopology(ctx context.Context) (Topology, error)

	// ValidateTopology reports whether t is realizable given currently
	// connected devices (e.g. rejects ids that are not present).
	ValidateTopology(ctx context.Context, t Topology) error

	// CaptureSnapshot reads the full current state (topology + per-device
	// mode + per-device HDR state + primary) into a Snapshot.
	CaptureSnapshot(ctx context.Context) (Snapshot, error)

	// ApplySnapshot restores a previously captured Snapshot in full.
	ApplySnapshot(ctx context.Context, s Snapshot) error

	// SnapshotMatchesCurrent reports whether s already matches the live
	// display state, so callers can skip a redundant Apply.
	SnapshotMatchesCurrent(ctx context.Context, s Snapshot) (bool, error)

	// ConfigurationMatches reports whether device id is already
	// configured per cfg.
	ConfigurationMatches(ctx context.Context, id DeviceID, cfg SingleDisplayConfiguration) (bool, error)

	// SetDisplayOrigin repositions device id to origin p in the virtual
	// desktop coordinate space.
	SetDisplayOrigin(ctx context.Context, id DeviceID, p Point) error
}

// ComputeExpectedTopology derives the topology the given layout implies
// for a primary device and a set of additional participants, per
// spec.md §3's VirtualLayout semantics. This is pure data shaping, not
// an OS call, so it lives as a free function rather than a Port method.
func ComputeExpectedTopology(primary DeviceID, others []DeviceID, layout VirtualLayout) Topology {
	switch layout {
	case LayoutExclusive:
		return Topology{Groups: [][]DeviceID{{primary}}}
	case LayoutExtended:
		groups := [][]DeviceID{{primary}}
		for _, id := range others {
			groups = append(groups, []DeviceID{id})
		}
		return Topology{Groups: groups}
	case LayoutExtendedPrimary:
		groups := [][]DeviceID{{primary}}
		for _, id := range others {
			groups = append(groups, []DeviceID{id})
		}
		return Topology{Groups: groups}
	case LayoutExtendedIsolated, LayoutExtendedPrimaryIsolated:
		groups := [][]DeviceID{{primary}}
		for _, id := range others {
			groups = append(groups, []DeviceID{id})
		}
		return Topology{Groups: groups}
	default:
		return Topology{Groups: [][]DeviceID{{primary}}}
	}
}

// IsTopologySame is a thin, OS-independent wrapper around Topology.Equal
// kept at package level so callers working only with two Topology
// values (no live Port) don't need a Port instance to compare them.
func IsTopologySame(a, b Topology) bool {
	return a.Equal(b)
}
