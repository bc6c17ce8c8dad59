package displaybackend

import "testing"

func TestTopologyEqualIgnoresGroupOrder(t *testing.T) {
	a := Topology{Groups: [][]DeviceID{{"A"}, {"B", "C"}}}
	b := Topology{Groups: [][]DeviceID{{"B", "C"}, {"A"}}}
	if !a.Equal(b) {
		t.Fatal("expected topologies to be equal regardless of group order")
	}
}

func TestTopologyEqualRespectsMemberOrder(t *testing.T) {
	a := Topology{Groups: [][]DeviceID{{"B", "C"}}}
	b := Topology{Groups: [][]DeviceID{{"C", "B"}}}
	if a.Equal(b) {
		t.Fatal("expected topologies with different member order within a group to differ")
	}
}

func TestSnapshotValidateRequiresModeAndHDRForEveryDevice(t *testing.T) {
	s := Snapshot{
		Topology: Topology{Groups: [][]DeviceID{{"A"}}},
		Modes:    map[DeviceID]Mode{},
		HDRStates: map[DeviceID]HDRState{
			"A": HDRDisabled,
		},
	}
	if err := s.Validate(); err == nil {
		t.Fatal("expected validation error for missing mode")
	}
}

func TestSnapshotValidatePrimaryMustBeInTopology(t *testing.T) {
	other := DeviceID("Z")
	s := Snapshot{
		Topology:      Topology{Groups: [][]DeviceID{{"A"}}},
		Modes:         map[DeviceID]Mode{"A": {}},
		HDRStates:     map[DeviceID]HDRState{"A": HDRDisabled},
		PrimaryDevice: &other,
	}
	if err := s.Validate(); err == nil {
		t.Fatal("expected validation error for primary not in topology")
	}
}

func TestSnapshotCloneDoesNotAliasMaps(t *testing.T) {
	s := Snapshot{
		Topology:  Topology{Groups: [][]DeviceID{{"A"}}},
		Modes:     map[DeviceID]Mode{"A": {Width: 1920, Height: 1080}},
		HDRStates: map[DeviceID]HDRState{"A": HDREnabled},
	}
	clone := s.Clone()
	clone.Modes["A"] = Mode{Width: 100, Height: 100}
	if s.Modes["A"].Width != 1920 {
		t.Fatal("clone mutation leaked into original snapshot")
	}
}

func TestFakeApplyRejectsDisconnectedDevice(t *testing.T) {
	f := NewFake("A")
	f.SetConnected("A", false)
	err := f.Apply(nil, SingleDisplayConfiguration{Primary: "A"})
	if err == nil {
		t.Fatal("expected error applying to disconnected device")
	}
}

func TestFakeSnapshotRoundTrip(t *testing.T) {
	f := NewFake("A", "B")
	topo := Topology{Groups: [][]DeviceID{{"A"}, {"B"}}}
	if err := f.ApplyTopology(nil, topo); err != nil {
		t.Fatal(err)
	}
	mode := Mode{Width: 2560, Height: 1440, RefreshNum: 144, RefreshDen: 1}
	if err := f.Apply(nil, SingleDisplayConfiguration{Primary: "A", DesiredMode: &mode}); err != nil {
		t.Fatal(err)
	}
	snap, err := f.CaptureSnapshot(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := snap.Validate(); err != nil {
		t.Fatalf("captured snapshot invalid: %v", err)
	}
	match, err := f.SnapshotMatchesCurrent(nil, snap)
	if err != nil || !match {
		t.Fatalf("expected freshly captured snapshot to match current, match=%v err=%v", match, err)
	}
}

func TestComputeExpectedTopologyExclusiveIsSingleGroup(t *testing.T) {
	topo := ComputeExpectedTopology("virtual", []DeviceID{"physical"}, LayoutExclusive)
	if len(topo.Groups) != 1 || len(topo.Groups[0]) != 1 {
		t.Fatalf("exclusive layout should produce one singleton group, got %+v", topo.Groups)
	}
}
